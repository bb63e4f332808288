package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/plantlink/internal/protocol/payload"
	"github.com/danmuck/plantlink/internal/testutil/testlog"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAppendAndRecent(t *testing.T) {
	testlog.Start(t)
	s := openTemp(t)
	ctx := context.Background()
	at := time.Date(2025, time.May, 4, 9, 15, 0, 0, time.UTC)

	v1 := payload.SensorReading{
		Version: payload.DataV1, Time: payload.CalendarFromTime(at),
		Lux: 1200, Temperature: 21.5, Humidity: 48, SoilMoisture: 1650,
	}
	v2 := v1
	v2.Version = payload.DataV2
	v2.Time = payload.CalendarFromTime(at.Add(time.Minute))
	v2.Soil = &payload.SoilExtension{
		Temperature: [2]float32{17.25, 16.75},
		Capacitance: [payload.CapacitanceChannels]float32{1, 2, 3, 4},
	}

	first, err := s.Append(ctx, "kitchen", v1)
	require.NoError(t, err)
	_, err = ulid.ParseStrict(first.ID)
	require.NoError(t, err)
	second, err := s.Append(ctx, "kitchen", v2)
	require.NoError(t, err)
	assert.Less(t, first.ID, second.ID, "ids are monotonic")
	_, err = s.Append(ctx, "balcony", v1)
	require.NoError(t, err)

	got, err := s.Recent(ctx, "kitchen", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Equal(t, payload.DataV2, got[0].Reading.Version)
	require.NotNil(t, got[0].Reading.Soil)
	assert.Equal(t, float32(17.25), got[0].Reading.Soil.Temperature[0])
	assert.Equal(t, float32(4), got[0].Reading.Soil.Capacitance[3])
	assert.Equal(t, int32(16), got[0].Reading.Time.Min)

	assert.Nil(t, got[1].Reading.Soil)
	assert.Equal(t, float32(21.5), got[1].Reading.Temperature)
	assert.Equal(t, float32(1650), got[1].Reading.SoilMoisture)

	n, err := s.Count(ctx, "balcony")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecentLimit(t *testing.T) {
	testlog.Start(t)
	s := openTemp(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := s.Append(ctx, "pot", payload.SensorReading{Version: payload.DataV1, Lux: float32(i)})
		require.NoError(t, err)
	}
	got, err := s.Recent(ctx, "pot", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, float32(4), got[0].Reading.Lux)
	assert.Equal(t, float32(3), got[1].Reading.Lux)
}

func TestAppendRequiresDevice(t *testing.T) {
	testlog.Start(t)
	s := openTemp(t)
	_, err := s.Append(context.Background(), "", payload.SensorReading{})
	require.ErrorIs(t, err, ErrDeviceRequired)
}

func TestReopenKeepsRows(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.Append(context.Background(), "pot", payload.SensorReading{Version: payload.DataV1})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	n, err := s.Count(context.Background(), "pot")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
