// Package postgres implements the Scheduler store contract on top of
// Postgres via gorm, grounded on the pack's gorm repository pattern: a
// model struct with a unique index giving the dedup policy for free via
// a constraint-violation check, and a thin repository wrapping *gorm.DB.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/skylineware/spidercore/internal/spider"
)

// pendingRequest is the gorm model backing one queued request row.
type pendingRequest struct {
	ID             uint `gorm:"primarykey"`
	Hash           string `gorm:"uniqueIndex"`
	RequestURI     string
	Owner          string
	DownloaderType string
	Agent          string
	Policy         string
	Proxy          string
	Headers        string
	RequestedTimes int
	Depth          int
	Timestamp      int64
}

// Config controls the Postgres connection backing a Store.
type Config struct {
	DSN string
}

// Store is a Postgres-backed scheduler.Store: pending requests live as
// rows, ordered by a monotonic sequence column so Dequeue returns FIFO.
type Store struct {
	db *gorm.DB
}

// New connects to Postgres per cfg and migrates the pending-request
// table.
func New(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("scheduler.dsn is required")
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := db.AutoMigrate(&pendingRequest{}); err != nil {
		return nil, fmt.Errorf("migrate scheduler table: %w", err)
	}
	return NewWithDB(db)
}

// NewWithDB constructs a Store from an already-open, already-migrated
// *gorm.DB, primarily for testing with go-sqlmock's postgres dialector —
// AutoMigrate's introspection queries aren't worth mocking precisely.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Store{db: db}, nil
}

// Enqueue inserts reqs, skipping any whose hash already has a pending
// row, and returns the count newly accepted.
func (s *Store) Enqueue(ctx context.Context, reqs []spider.Request) (int, error) {
	accepted := 0
	for _, req := range reqs {
		headersJSON, err := json.Marshal(req.Headers)
		if err != nil {
			return accepted, fmt.Errorf("marshal headers: %w", err)
		}
		row := pendingRequest{
			Hash:           req.Hash,
			RequestURI:     req.RequestUri,
			Owner:          req.Owner,
			DownloaderType: req.DownloaderType,
			Agent:          req.Agent,
			Policy:         string(req.Policy),
			Proxy:          req.Proxy,
			Headers:        string(headersJSON),
			RequestedTimes: req.RequestedTimes,
			Depth:          req.Depth,
			Timestamp:      req.Timestamp,
		}
		result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return accepted, fmt.Errorf("insert pending request: %w", result.Error)
		}
		if result.RowsAffected > 0 {
			accepted++
		}
	}
	return accepted, nil
}

// Dequeue removes and returns up to n pending rows in FIFO order.
func (s *Store) Dequeue(ctx context.Context, n int) ([]spider.Request, error) {
	if n <= 0 {
		return nil, nil
	}
	var rows []pendingRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Order("id").Limit(n).Find(&rows).Error; err != nil {
			return fmt.Errorf("select pending requests: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		ids := make([]uint, len(rows))
		for i, row := range rows {
			ids[i] = row.ID
		}
		if err := tx.Delete(&pendingRequest{}, ids).Error; err != nil {
			return fmt.Errorf("delete pending requests: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]spider.Request, 0, len(rows))
	for _, row := range rows {
		req := spider.Request{
			Hash:           row.Hash,
			RequestUri:     row.RequestURI,
			Owner:          row.Owner,
			DownloaderType: row.DownloaderType,
			Agent:          row.Agent,
			Policy:         spider.Policy(row.Policy),
			Proxy:          row.Proxy,
			RequestedTimes: row.RequestedTimes,
			Depth:          row.Depth,
			Timestamp:      row.Timestamp,
		}
		if row.Headers != "" {
			if err := json.Unmarshal([]byte(row.Headers), &req.Headers); err != nil {
				return nil, fmt.Errorf("unmarshal headers: %w", err)
			}
		}
		out = append(out, req)
	}
	return out, nil
}

// Total reports the number of rows currently pending.
func (s *Store) Total(ctx context.Context) (int, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&pendingRequest{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("count pending requests: %w", err)
	}
	return int(total), nil
}
