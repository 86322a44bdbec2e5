package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"feed_syncer/internal/config"
	"feed_syncer/internal/domain"
	"feed_syncer/internal/metrics"
	"feed_syncer/internal/normalize"
)

// Run modes.
const (
	ModeIncremental = "incremental"
	ModeBackfill    = "backfill"
)

// SyncService sequences one run: authorize, load, fetch, normalize, backup,
// persist. Runs must not overlap; the scheduler guarantees it.
type SyncService struct {
	source    Source
	store     RecordStore
	backup    BackupWriter
	runs      RunStore
	publisher Publisher
	columns   []string
	logger    *slog.Logger
	config    config.SyncConfig
}

// NewSyncService wires the collaborators. runs and publisher may be nil.
func NewSyncService(
	source Source,
	store RecordStore,
	backup BackupWriter,
	runs RunStore,
	publisher Publisher,
	columns []string,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		source:    source,
		store:     store,
		backup:    backup,
		runs:      runs,
		publisher: publisher,
		columns:   columns,
		logger:    logger.With("source", source.ID()),
		config:    cfg,
	}
}

// Sync fetches the feed up to the first page without unseen items and writes
// the new records above the existing ones.
func (s *SyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	return s.run(ctx, ModeIncremental)
}

// Backfill crawls the whole feed and writes every record the store lacks.
func (s *SyncService) Backfill(ctx context.Context) (*domain.SyncStats, error) {
	return s.run(ctx, ModeBackfill)
}

func (s *SyncService) run(ctx context.Context, mode string) (*domain.SyncStats, error) {
	stats := &domain.SyncStats{
		RunID:     uuid.NewString(),
		SourceID:  s.source.ID(),
		Mode:      mode,
		State:     domain.StateInit,
		StartedAt: time.Now(),
	}
	logger := s.logger.With("run_id", stats.RunID, "mode", mode)
	logger.Info("starting sync",
		"source_name", s.source.Name(),
		"start_url", s.config.StartURL,
		"row_offset", s.config.RowOffset,
	)
	s.checkPreviousRun(ctx, logger, stats.SourceID)

	err := s.execute(ctx, logger, stats)
	stats.Duration = time.Since(stats.StartedAt)

	outcome := stats.State.String()
	if err != nil {
		logger.Error("sync failed", "state", stats.State.String(), "error", err)
		stats.State = domain.StateFailed
		outcome = stats.State.String()
	} else {
		if stats.New == 0 {
			outcome = domain.StateNoNewItems.String()
		}
		logger.Info("sync completed",
			"existing", stats.Existing,
			"new", stats.New,
			"written", stats.Written,
			"published", stats.Published,
			"errors", stats.Errors,
			"backup", stats.BackupPath,
			"duration", stats.Duration,
		)
	}

	persisted := 0
	if err == nil {
		persisted = stats.New
	}
	metrics.ObserveRun(mode, outcome, stats.Duration, persisted)
	s.recordRun(ctx, logger, stats, outcome, err)

	return stats, err
}

func (s *SyncService) execute(ctx context.Context, logger *slog.Logger, stats *domain.SyncStats) error {
	if err := s.store.Authorize(ctx); err != nil {
		return domain.NewSyncError(domain.ErrAuth, "authorize store", err)
	}
	s.advance(logger, stats, domain.StateClientAuthorized)

	existing, err := s.store.LoadAll(ctx, s.config.RowOffset)
	if err != nil {
		return domain.NewSyncError(domain.ErrStoreRead, "load existing records", err)
	}
	stats.Existing = len(existing)
	s.advance(logger, stats, domain.StateLoadedExisting)

	items, err := s.fetch(ctx, stats.Mode, normalize.IDSet(existing))
	if err != nil {
		return domain.NewSyncError(domain.ErrFetch, "fetch new items", err)
	}
	stats.New = len(items)
	s.advance(logger, stats, domain.StateFetchedNew)

	if len(items) == 0 {
		s.advance(logger, stats, domain.StateNoNewItems)
		logger.Info("no new items, skipping write")
		s.advance(logger, stats, domain.StateDone)
		return nil
	}

	fresh := make([]domain.Record, len(items))
	for i, it := range items {
		fresh[i] = normalize.Normalize(it)
	}
	s.advance(logger, stats, domain.StateNormalized)

	merged := normalize.Merge(fresh, existing)

	path, err := s.backup.Snapshot(existing)
	if err != nil {
		return domain.NewSyncError(domain.ErrBackupWrite, "write backup", err)
	}
	stats.BackupPath = path
	s.advance(logger, stats, domain.StateBackedUp)

	rows := normalize.ProjectAll(merged, s.columns)
	if err := s.store.WriteRows(ctx, rows, s.config.RowOffset); err != nil {
		return domain.NewSyncError(domain.ErrStoreWrite,
			fmt.Sprintf("write %d rows at row %d", len(rows), s.config.RowOffset), err)
	}
	stats.Written = len(rows)
	s.advance(logger, stats, domain.StatePersisted)

	s.publish(ctx, logger, stats, fresh)

	s.advance(logger, stats, domain.StateDone)
	return nil
}

func (s *SyncService) fetch(ctx context.Context, mode string, ids map[string]struct{}) ([]domain.SourceItem, error) {
	if mode != ModeBackfill {
		return s.source.FetchNewSince(ctx, ids, s.config.StartURL)
	}

	all, err := s.source.FetchAll(ctx, s.config.StartURL)
	if err != nil {
		return nil, err
	}

	var fresh []domain.SourceItem
	for _, it := range all {
		id := it.ID()
		if _, ok := ids[id]; ok {
			continue
		}
		ids[id] = struct{}{}
		fresh = append(fresh, it)
	}
	return fresh, nil
}

func (s *SyncService) publish(ctx context.Context, logger *slog.Logger, stats *domain.SyncStats, records []domain.Record) {
	if s.publisher == nil {
		return
	}
	for _, r := range records {
		if err := s.publisher.Publish(ctx, stats.RunID, stats.SourceID, r); err != nil {
			logger.Warn("publish failed", "record_id", r.ID(), "error", err)
			stats.Errors++
			continue
		}
		stats.Published++
	}
}

func (s *SyncService) advance(logger *slog.Logger, stats *domain.SyncStats, next domain.RunState) {
	logger.Debug("state transition", "from", stats.State.String(), "to", next.String())
	stats.State = next
}

// checkPreviousRun reports how the last recorded run of the source ended.
// A failed run that wrote its backup left the table possibly half written.
func (s *SyncService) checkPreviousRun(ctx context.Context, logger *slog.Logger, sourceID string) {
	if s.runs == nil {
		return
	}

	prev, err := s.runs.Last(ctx, sourceID)
	if err != nil {
		logger.Warn("failed to read previous sync run", "error", err)
		return
	}
	if prev == nil {
		logger.Info("no previous sync run recorded")
		return
	}

	if prev.State == domain.StateFailed.String() {
		logger.Warn("previous sync run failed",
			"previous_run_id", prev.ID,
			"previous_error", prev.Error,
			"previous_backup", prev.BackupPath,
			"previous_started_at", prev.StartedAt,
		)
		return
	}
	logger.Info("previous sync run",
		"previous_run_id", prev.ID,
		"previous_state", prev.State,
		"previous_written", prev.Written,
		"previous_finished_at", prev.FinishedAt,
	)
}

func (s *SyncService) recordRun(ctx context.Context, logger *slog.Logger, stats *domain.SyncStats, outcome string, runErr error) {
	if s.runs == nil {
		return
	}

	run := &domain.SyncRun{
		ID:         stats.RunID,
		SourceID:   stats.SourceID,
		Mode:       stats.Mode,
		State:      outcome,
		Existing:   stats.Existing,
		New:        stats.New,
		Written:    stats.Written,
		BackupPath: stats.BackupPath,
		StartedAt:  stats.StartedAt,
		FinishedAt: stats.StartedAt.Add(stats.Duration),
	}
	if runErr != nil {
		run.Error = runErr.Error()
	}

	if err := s.runs.Record(ctx, run); err != nil {
		logger.Warn("failed to record sync run", "error", err)
		stats.Errors++
	}
}
