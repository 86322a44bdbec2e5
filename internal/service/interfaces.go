package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"feed_syncer/internal/domain"
)

type Source interface {
	ID() string
	Name() string
	FetchNewSince(ctx context.Context, existingIDs map[string]struct{}, startURL string) ([]domain.SourceItem, error)
	FetchAll(ctx context.Context, startURL string) ([]domain.SourceItem, error)
}

type RecordStore interface {
	Authorize(ctx context.Context) error
	LoadAll(ctx context.Context, rowOffset int) ([]domain.Record, error)
	WriteRows(ctx context.Context, rows [][]string, rowOffset int) error
}

type BackupWriter interface {
	Snapshot(records []domain.Record) (string, error)
}

type RunStore interface {
	Record(ctx context.Context, run *domain.SyncRun) error
	Last(ctx context.Context, sourceID string) (*domain.SyncRun, error)
}

type Publisher interface {
	Publish(ctx context.Context, runID, sourceID string, record domain.Record) error
	Close() error
}
