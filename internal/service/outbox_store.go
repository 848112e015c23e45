package service

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"geografica/internal/model"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// OutboxStore persists location records waiting for a batch sync
type OutboxStore interface {
	Add(ctx context.Context, p *model.PendingLocation) error
	Pending(ctx context.Context, limit int) ([]model.PendingLocation, error)
	Delete(ctx context.Context, ids []string) error
	MarkFailed(ctx context.Context, ids []string, reason string) error
	Count(ctx context.Context) (int64, error)
}

// MigrateOutbox applies the embedded schema migrations
func MigrateOutbox(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}

	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	defer src.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: "geografica_schema_migrations"})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate outbox schema: %w", err)
	}
	return nil
}

// GormOutboxStore keeps pending records in postgres
type GormOutboxStore struct {
	db *gorm.DB
}

// NewGormOutboxStore creates a postgres backed store
func NewGormOutboxStore(db *gorm.DB) *GormOutboxStore {
	return &GormOutboxStore{db: db}
}

func (s *GormOutboxStore) Add(ctx context.Context, p *model.PendingLocation) error {
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *GormOutboxStore) Pending(ctx context.Context, limit int) ([]model.PendingLocation, error) {
	var rows []model.PendingLocation
	err := s.db.WithContext(ctx).
		Order("captured_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (s *GormOutboxStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.PendingLocation{}).Error
}

func (s *GormOutboxStore) MarkFailed(ctx context.Context, ids []string, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&model.PendingLocation{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
		}).Error
}

func (s *GormOutboxStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.PendingLocation{}).Count(&count).Error
	return count, err
}

// MemoryOutboxStore keeps pending records in process memory; they are
// lost on restart.
type MemoryOutboxStore struct {
	mu   sync.Mutex
	rows map[string]model.PendingLocation
}

// NewMemoryOutboxStore creates an in-memory store
func NewMemoryOutboxStore() *MemoryOutboxStore {
	return &MemoryOutboxStore{rows: make(map[string]model.PendingLocation)}
}

func (s *MemoryOutboxStore) Add(_ context.Context, p *model.PendingLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[p.ID]; ok {
		return fmt.Errorf("duplicate pending location %s", p.ID)
	}
	s.rows[p.ID] = *p
	return nil
}

func (s *MemoryOutboxStore) Pending(_ context.Context, limit int) ([]model.PendingLocation, error) {
	s.mu.Lock()
	rows := make([]model.PendingLocation, 0, len(s.rows))
	for _, row := range s.rows {
		rows = append(rows, row)
	}
	s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CapturedAt.Equal(rows[j].CapturedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CapturedAt.Before(rows[j].CapturedAt)
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *MemoryOutboxStore) Delete(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.rows, id)
	}
	return nil
}

func (s *MemoryOutboxStore) MarkFailed(_ context.Context, ids []string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if row, ok := s.rows[id]; ok {
			row.Attempts++
			row.LastError = reason
			s.rows[id] = row
		}
	}
	return nil
}

func (s *MemoryOutboxStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.rows)), nil
}
