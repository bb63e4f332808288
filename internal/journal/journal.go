// Package journal persists sensor readings in SQLite, keyed by ULID so rows
// sort by the host time they were recorded.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/plantlink/internal/protocol/payload"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"
)

var ErrDeviceRequired = errors.New("journal: device name required")

// Entry is one stored reading.
type Entry struct {
	ID         string
	Device     string
	RecordedAt time.Time
	Reading    payload.SensorReading
}

type Store struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Store{
		db:      db,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS readings (
			id           TEXT PRIMARY KEY,
			device       TEXT NOT NULL,
			recorded_at  TEXT NOT NULL,
			version      INTEGER NOT NULL,
			device_time  TEXT NOT NULL,
			lux          REAL NOT NULL,
			temperature  REAL NOT NULL,
			humidity     REAL NOT NULL,
			soil_mv      REAL NOT NULL,
			soil_temp0   REAL,
			soil_temp1   REAL,
			cap0         REAL,
			cap1         REAL,
			cap2         REAL,
			cap3         REAL
		);
		CREATE INDEX IF NOT EXISTS readings_device_id ON readings (device, id);
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

// Append stores r for device and returns the stored entry.
func (s *Store) Append(ctx context.Context, device string, r payload.SensorReading) (Entry, error) {
	if device == "" {
		return Entry{}, ErrDeviceRequired
	}
	now := s.now().UTC()
	e := Entry{ID: s.newID(now), Device: device, RecordedAt: now, Reading: r}

	var soil [6]sql.NullFloat64
	if r.Soil != nil {
		soil[0] = nullFloat(r.Soil.Temperature[0])
		soil[1] = nullFloat(r.Soil.Temperature[1])
		for i, v := range r.Soil.Capacitance {
			soil[2+i] = nullFloat(v)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO readings (
			id, device, recorded_at, version, device_time,
			lux, temperature, humidity, soil_mv,
			soil_temp0, soil_temp1, cap0, cap1, cap2, cap3
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, device, now.Format(time.RFC3339Nano), int(r.Version), r.Time.Time(time.UTC).Format(time.RFC3339),
		r.Lux, r.Temperature, r.Humidity, r.SoilMoisture,
		soil[0], soil[1], soil[2], soil[3], soil[4], soil[5],
	)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: append: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries for device, newest first.
func (s *Store) Recent(ctx context.Context, device string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, device, recorded_at, version, device_time,
			lux, temperature, humidity, soil_mv,
			soil_temp0, soil_temp1, cap0, cap1, cap2, cap3
		FROM readings WHERE device = ? ORDER BY id DESC LIMIT ?`, device, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Count(ctx context.Context, device string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM readings WHERE device = ?", device).Scan(&n)
	return n, err
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                  Entry
		recorded, devTime  string
		version            int
		lux, temp, hum, mv float64
		soil               [6]sql.NullFloat64
	)
	if err := rows.Scan(
		&e.ID, &e.Device, &recorded, &version, &devTime,
		&lux, &temp, &hum, &mv,
		&soil[0], &soil[1], &soil[2], &soil[3], &soil[4], &soil[5],
	); err != nil {
		return Entry{}, fmt.Errorf("journal: scan: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, recorded)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: recorded_at: %w", err)
	}
	dt, err := time.Parse(time.RFC3339, devTime)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: device_time: %w", err)
	}
	e.RecordedAt = at
	e.Reading = payload.SensorReading{
		Version:      payload.DataVersion(version),
		Time:         payload.CalendarFromTime(dt),
		Lux:          float32(lux),
		Temperature:  float32(temp),
		Humidity:     float32(hum),
		SoilMoisture: float32(mv),
	}
	if soil[0].Valid {
		ext := &payload.SoilExtension{}
		ext.Temperature[0] = float32(soil[0].Float64)
		ext.Temperature[1] = float32(soil[1].Float64)
		for i := range ext.Capacitance {
			ext.Capacitance[i] = float32(soil[2+i].Float64)
		}
		e.Reading.Soil = ext
	}
	return e, nil
}

func nullFloat(v float32) sql.NullFloat64 {
	return sql.NullFloat64{Float64: float64(v), Valid: true}
}
