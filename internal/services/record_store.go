// Package services holds the record store: the only component that reads and
// mutates the ledger tables.
package services

import (
	"context"
	"sync"
	"time"

	"gastos/internal/cache"
	"gastos/internal/core"
	"gastos/internal/log"
	"gastos/internal/sheets"

	"github.com/google/uuid"
)

// Default cache lifetimes per table.
const (
	DefaultMovementsTTL  = 30 * time.Second
	DefaultCategoriesTTL = 300 * time.Second
)

// DefaultCategories seeds a user that has no categories yet.
var DefaultCategories = []string{"Comida", "Transporte", "Ocio", "Otros"}

// ChangePublisher announces successful writes to other processes.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev core.ChangeEvent) error
}

// Options configures a RecordStore. Zero values select the defaults; a
// negative TTL disables caching for that table.
type Options struct {
	MovementsTTL      time.Duration
	CategoriesTTL     time.Duration
	DefaultCategories []string
	Publisher         ChangePublisher
	Logger            *log.Logger
	Clock             func() time.Time
	NewID             func() string
}

// RecordStore reads and writes movements and categories through a backing
// medium, with a per-table TTL cache in front of reads.
//
// Write paths are serialised inside the process. Nothing coordinates writers
// in different processes: the last full-table write wins.
type RecordStore struct {
	medium    sheets.Medium
	cache     *cache.TableCache
	defaults  []string
	publisher ChangePublisher
	logger    *log.Logger
	now       func() time.Time
	newID     func() string

	mu sync.Mutex
}

func NewRecordStore(medium sheets.Medium, opts Options) *RecordStore {
	if opts.MovementsTTL == 0 {
		opts.MovementsTTL = DefaultMovementsTTL
	}
	if opts.CategoriesTTL == 0 {
		opts.CategoriesTTL = DefaultCategoriesTTL
	}
	if opts.DefaultCategories == nil {
		opts.DefaultCategories = DefaultCategories
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	tc := cache.NewTableCache(map[string]time.Duration{
		sheets.MovementsTable:  opts.MovementsTTL,
		sheets.CategoriesTable: opts.CategoriesTTL,
	})
	tc.SetClock(opts.Clock)

	return &RecordStore{
		medium:    medium,
		cache:     tc,
		defaults:  append([]string(nil), opts.DefaultCategories...),
		publisher: opts.Publisher,
		logger:    opts.Logger.WithComponent(log.ComponentLedger),
		now:       opts.Clock,
		newID:     opts.NewID,
	}
}

// Cache exposes the table cache so the server can register it for cleanup.
func (s *RecordStore) Cache() *cache.TableCache { return s.cache }

// Invalidate drops the cached copy of a table, or of every table when table
// is empty.
func (s *RecordStore) Invalidate(table string) {
	if table == "" {
		s.cache.InvalidateAll()
	} else {
		s.cache.Invalidate(table)
	}
	s.logger.Debug("Cache invalidated", log.FieldTable, table)
}

// Ping reads the movements table through the cache. The server's readiness
// check uses it.
func (s *RecordStore) Ping(ctx context.Context) error {
	_, err := s.read(ctx, sheets.MovementsTable)
	return err
}

// read serves a table from the cache when fresh, otherwise from the medium.
// A load that overlaps a write is returned but not cached.
func (s *RecordStore) read(ctx context.Context, table string) (sheets.Table, error) {
	if t, ok := s.cache.Get(table); ok {
		return t, nil
	}
	gen := s.cache.Generation(table)
	t, err := s.medium.ReadTable(ctx, table)
	if err != nil {
		return sheets.Table{}, err
	}
	if !s.cache.PutIfCurrent(table, t, gen) {
		s.logger.DebugContext(ctx, "Discarded table load overlapping a write", log.FieldTable, table)
		return t, nil
	}
	s.logger.DebugContext(ctx, "Table loaded from medium", log.FieldTable, table, log.FieldRows, len(t.Rows))
	return t, nil
}

// appendRow adds one row, through the medium's append capability when it has
// one. The caller holds s.mu and invalidates afterwards.
func (s *RecordStore) appendRow(ctx context.Context, table string, row sheets.Row) error {
	if a, ok := s.medium.(sheets.RowAppender); ok {
		return a.AppendRow(ctx, table, row)
	}
	t, err := s.medium.ReadTable(ctx, table)
	if err != nil {
		return err
	}
	return s.medium.WriteTable(ctx, table, append(t.Rows, row))
}

func (s *RecordStore) publish(ctx context.Context, ev core.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishChange(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish change",
			log.FieldTable, ev.Table,
			log.FieldOperation, log.OpPublish,
			log.FieldError, err)
	}
}
