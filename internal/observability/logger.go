package observability

import (
	"github.com/danmuck/plantlink/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger tags the runtime logger with app and installs it globally. Sink
// and level follow the PLANTLINK_LOG_* environment.
func InitLogger(app string) zerolog.Logger {
	logging.ConfigureRuntime()
	logger := log.Logger.With().Str("app", app).Logger()
	log.Logger = logger
	return logger
}
