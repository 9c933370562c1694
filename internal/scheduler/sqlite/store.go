// Package sqlite implements the Scheduler store contract on top of a
// local SQLite database via gorm, grounded on the pack's gorm repository
// pattern — a model struct, a thin repository wrapping *gorm.DB, no raw
// SQL strings.
package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/glebarez/sqlite"
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

// Store is a SQLite-backed scheduler.Store, suited to single-process
// deployments that want a durable queue without a Postgres dependency.
type Store struct {
	db *gorm.DB
}

// New opens (creating if absent) the SQLite database at dsn and migrates
// the pending-request table.
func New(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("scheduler.dsn is required")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&pendingRequest{}); err != nil {
		return nil, fmt.Errorf("migrate scheduler table: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB constructs a Store from an already-open *gorm.DB, primarily
// for testing against an in-memory SQLite database.
func NewWithDB(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if err := db.AutoMigrate(&pendingRequest{}); err != nil {
		return nil, fmt.Errorf("migrate scheduler table: %w", err)
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
		if err := tx.Order("id").Limit(n).Find(&rows).Error; err != nil {
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
