package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/voss/memguard/internal/errors"
	"codeberg.org/voss/memguard/internal/logger"
	"codeberg.org/voss/memguard/internal/pressure"
	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultDirPerm      = 0o755
	defaultBatchSize    = 16
	defaultFlushSeconds = 30
)

type Config struct {
	Path          string
	BatchSize     int
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushSeconds * time.Second,
	}
}

// Journal persists pressure events to sqlite with buffered batch writes.
// It doubles as the external-storage mitigation surface: stale entries can
// be trimmed by fraction and the whole journal cleared.
type Journal struct {
	db  *sql.DB
	cfg Config

	mu     sync.Mutex
	buffer []pressure.Event

	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func New(cfg Config) (*Journal, error) {
	errFactory := errors.New()

	if cfg.Path == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	dsn := cfg.Path + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	j := &Journal{
		db:            db,
		cfg:           cfg,
		buffer:        make([]pressure.Event, 0, cfg.BatchSize),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.FlushInterval > 0 {
		j.flushTicker = time.NewTicker(cfg.FlushInterval)
		go j.flusher()
	} else {
		close(j.flushDoneChan)
	}

	logger.Debug().
		Str("path", cfg.Path).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Msg("Pressure event journal initialized")

	return j, nil
}

// Record buffers one event, flushing when the batch is full.
func (j *Journal) Record(ev pressure.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.buffer = append(j.buffer, ev)

	if len(j.buffer) >= j.cfg.BatchSize {
		return j.flush()
	}

	return nil
}

// Close flushes pending events, checkpoints the WAL and closes the
// database.
func (j *Journal) Close() error {
	errFactory := errors.New()

	if j.flushTicker != nil {
		close(j.shutdownChan)
		j.flushTicker.Stop()
	}
	<-j.flushDoneChan

	j.mu.Lock()
	err := j.flush()
	j.mu.Unlock()
	if err != nil {
		logger.Error().Err(err).Msg("Final journal flush failed")
	}

	if _, err := j.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	if err := j.db.Close(); err != nil {
		return errFactory.Wrap(ErrStorageClose, err)
	}

	return nil
}

func (j *Journal) flusher() {
	defer close(j.flushDoneChan)

	for {
		select {
		case <-j.flushTicker.C:
			j.mu.Lock()
			if err := j.flush(); err != nil {
				logger.Error().Err(err).Msg("Journal flush failed")
			}
			j.mu.Unlock()
		case <-j.shutdownChan:
			return
		}
	}
}

// flush writes the buffer in one transaction. Caller holds j.mu.
func (j *Journal) flush() error {
	if len(j.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := j.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertEventSQL)
	if err != nil {
		if err := tx.Rollback(); err != nil {
			logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, ev := range j.buffer {
		if _, err := stmt.Exec(ev.ObservedAt.Unix(), ev.Level.String(), ev.UsedMB); err != nil {
			if err := tx.Rollback(); err != nil {
				logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	logger.Debug().Int("records", len(j.buffer)).Msg("Flushed events to journal")
	j.buffer = j.buffer[:0]

	return nil
}

// TrimStale removes the oldest fraction of persisted events.
func (j *Journal) TrimStale(fraction float64) error {
	errFactory := errors.New()

	if fraction <= 0 {
		return nil
	}
	if fraction > 1 {
		fraction = 1
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.flush(); err != nil {
		return err
	}

	var count int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM pressure_events`).Scan(&count); err != nil {
		return errFactory.Wrap(ErrTrimFailed, err)
	}

	n := int(float64(count) * fraction)
	if n == 0 {
		return nil
	}

	if _, err := j.db.Exec(`
        DELETE FROM pressure_events WHERE id IN (
            SELECT id FROM pressure_events ORDER BY id ASC LIMIT ?
        )`, n); err != nil {
		return errFactory.Wrap(ErrTrimFailed, err)
	}

	logger.Debug().Int("removed", n).Msg("Trimmed stale journal entries")

	return nil
}

// Clear drops every persisted event and any buffered ones.
func (j *Journal) Clear() error {
	errFactory := errors.New()

	j.mu.Lock()
	defer j.mu.Unlock()

	j.buffer = j.buffer[:0]

	if _, err := j.db.Exec(`DELETE FROM pressure_events`); err != nil {
		return errFactory.Wrap(ErrTrimFailed, err)
	}

	return nil
}

// Count returns the number of persisted events, flushing first.
func (j *Journal) Count() (int, error) {
	errFactory := errors.New()

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.flush(); err != nil {
		return 0, err
	}

	var count int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM pressure_events`).Scan(&count); err != nil {
		return 0, errFactory.Wrap(ErrTransactionFailed, err)
	}

	return count, nil
}

// Name implements the cleanup-target contract.
func (*Journal) Name() string {
	return "journal"
}

// Trim implements the cleanup-target contract via a stale trim.
func (j *Journal) Trim(fraction float64) error {
	return j.TrimStale(fraction)
}
