package emulator

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/danmuck/plantlink/internal/auth"
	"github.com/danmuck/plantlink/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var ErrTooManyClients = errors.New("emulator: client limit reached")

type BridgeConfig struct {
	Listen string
	// Latency delays every notification, approximating the radio round trip.
	Latency    time.Duration
	MaxClients int
	// Token, when set, is required on /link.
	Token string
}

func DefaultBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Listen:     "127.0.0.1:7020",
		Latency:    20 * time.Millisecond,
		MaxClients: 1,
	}
}

// Bridge serves a Device over websocket at /link, one binary message per
// frame. A BLE peripheral accepts a single central, so MaxClients defaults to 1.
type Bridge struct {
	dev      *Device
	cfg      BridgeConfig
	logger   zerolog.Logger
	router   *gin.Engine
	upgrader websocket.Upgrader
	clients  atomic.Int32
	appeared time.Time
}

func NewBridge(dev *Device, cfg BridgeConfig, logger zerolog.Logger) *Bridge {
	def := DefaultBridgeConfig()
	if cfg.Listen == "" {
		cfg.Listen = def.Listen
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = def.MaxClients
	}
	gin.SetMode(gin.ReleaseMode)
	b := &Bridge{
		dev:    dev,
		cfg:    cfg,
		logger: logger,
		router: gin.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		appeared: time.Now(),
	}
	node := dev.Config().Node
	b.router.Use(gin.Recovery(), observability.RequestLogger(logger), observability.RequestMetricsMiddleware(node))
	b.registerRoutes()
	return b
}

func (b *Bridge) registerRoutes() {
	b.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(b.appeared).Truncate(time.Second).String(),
			"clients": b.clients.Load(),
			"device":  b.dev.Snapshot(),
		})
	})
	b.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if b.cfg.Token != "" {
		b.router.GET("/link", auth.Require(auth.StaticToken{Token: b.cfg.Token}), b.handleLink)
		return
	}
	b.router.GET("/link", b.handleLink)
}

func (b *Bridge) Handler() http.Handler {
	return b.router
}

func (b *Bridge) handleLink(c *gin.Context) {
	if int(b.clients.Add(1)) > b.cfg.MaxClients {
		b.clients.Add(-1)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": ErrTooManyClients.Error()})
		return
	}
	defer b.clients.Add(-1)

	conn, err := b.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("link upgrade failed")
		return
	}
	defer conn.Close()

	remote := c.Request.RemoteAddr
	b.logger.Info().Str("remote", remote).Msg("central connected")
	defer b.logger.Info().Str("remote", remote).Msg("central disconnected")

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.logger.Warn().Str("remote", remote).Err(err).Msg("link read failed")
			}
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if b.cfg.Latency > 0 {
			time.Sleep(b.cfg.Latency)
		}
		for _, out := range b.dev.Handle(data) {
			if err := conn.WriteMessage(websocket.BinaryMessage, out); err != nil {
				b.logger.Warn().Str("remote", remote).Err(err).Msg("link write failed")
				return
			}
		}
	}
}

// ListenAndServe runs until ctx is done, then shuts down gracefully.
func (b *Bridge) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              b.cfg.Listen,
		Handler:           b.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		b.logger.Info().Str("listen", b.cfg.Listen).Msg("bridge listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
