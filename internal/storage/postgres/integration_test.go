//go:build integration

package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"feed_syncer/internal/domain"
	"feed_syncer/internal/normalize"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
	logger    *slog.Logger
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_sheet_rows.up.sql"),
			filepath.Join(migrationsPath, "002_create_sync_runs.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sheet_rows")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM sync_runs")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) TestRecordStore_AuthorizeSeedsHeaderOnce() {
	store := NewRecordStore(s.db, "recipes", domain.Columns, s.logger)

	s.Require().NoError(store.Authorize(s.ctx))
	s.Require().NoError(store.Authorize(s.ctx))

	var count int
	err := s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM sheet_rows WHERE sheet = $1", "recipes")
	s.NoError(err)
	s.Equal(1, count)

	records, err := store.LoadAll(s.ctx, 2)
	s.NoError(err)
	s.Empty(records)
}

func (s *PostgresIntegrationSuite) TestRecordStore_WriteAndLoadRoundTrip() {
	store := NewRecordStore(s.db, "recipes", domain.Columns, s.logger)
	s.Require().NoError(store.Authorize(s.ctx))

	written := []domain.Record{
		domain.NewRecord("id", "2", "title", "B", "cover_url", "https://img/2.jpg"),
		domain.NewRecord("id", "1", "title", "A"),
	}
	s.Require().NoError(store.WriteRows(s.ctx, normalize.ProjectAll(written, domain.Columns), 2))

	loaded, err := store.LoadAll(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(loaded, 2)
	for i := range written {
		for _, c := range domain.Columns {
			s.Equal(written[i].Value(c), loaded[i].Value(c), "row %d column %s", i, c)
		}
	}
}

func (s *PostgresIntegrationSuite) TestRecordStore_WriteOverwritesRange() {
	store := NewRecordStore(s.db, "recipes", []string{"id", "title"}, s.logger)
	s.Require().NoError(store.Authorize(s.ctx))

	s.Require().NoError(store.WriteRows(s.ctx, [][]string{{"1", "A"}}, 2))
	s.Require().NoError(store.WriteRows(s.ctx, [][]string{{"2", "B"}, {"1", "A"}}, 2))

	loaded, err := store.LoadAll(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(loaded, 2)
	s.Equal("2", loaded[0].ID())
	s.Equal("1", loaded[1].ID())
}

func (s *PostgresIntegrationSuite) TestRecordStore_LargeWriteSpansBatches() {
	store := NewRecordStore(s.db, "recipes", []string{"id"}, s.logger)
	s.Require().NoError(store.Authorize(s.ctx))

	rows := make([][]string, writeBatchSize+7)
	for i := range rows {
		rows[i] = []string{uuid.NewString()}
	}
	s.Require().NoError(store.WriteRows(s.ctx, rows, 2))

	loaded, err := store.LoadAll(s.ctx, 2)
	s.Require().NoError(err)
	s.Len(loaded, len(rows))
	s.Equal(rows[len(rows)-1][0], loaded[len(loaded)-1].ID())
}

func (s *PostgresIntegrationSuite) TestRecordStore_LoadFromOffsetKeepsRowsAbove() {
	store := NewRecordStore(s.db, "recipes", []string{"id", "title"}, s.logger)
	s.Require().NoError(store.Authorize(s.ctx))
	_, err := s.db.ExecContext(s.ctx,
		`INSERT INTO sheet_rows (sheet, row_num, cells) VALUES ($1, 2, $2)`,
		"recipes", pq.StringArray{"", "note"},
	)
	s.Require().NoError(err)
	s.Require().NoError(store.WriteRows(s.ctx, [][]string{{"1", "A"}}, 3))

	for _, fresh := range [][]domain.Record{{domain.NewRecord("id", "2", "title", "B")}, nil} {
		existing, err := store.LoadAll(s.ctx, 3)
		s.Require().NoError(err)
		merged := normalize.Merge(fresh, existing)
		s.Require().NoError(store.WriteRows(s.ctx, normalize.ProjectAll(merged, []string{"id", "title"}), 3))
	}

	var count int
	s.Require().NoError(s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM sheet_rows WHERE sheet = $1", "recipes"))
	s.Equal(4, count)

	loaded, err := store.LoadAll(s.ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(loaded, 2)
	s.Equal("2", loaded[0].ID())
	s.Equal("1", loaded[1].ID())
}

func (s *PostgresIntegrationSuite) TestRecordStore_RejectsHeaderOffset() {
	store := NewRecordStore(s.db, "recipes", []string{"id"}, s.logger)

	err := store.WriteRows(s.ctx, [][]string{{"1"}}, 1)
	s.Error(err)
}

func (s *PostgresIntegrationSuite) TestRunStore_LastWhenEmpty() {
	store := NewRunStore(s.db)

	run, err := store.Last(s.ctx, "feed")
	s.NoError(err)
	s.Nil(run)
}

func (s *PostgresIntegrationSuite) TestRunStore_RecordAndLast() {
	store := NewRunStore(s.db)
	now := time.Now().Truncate(time.Microsecond)

	older := &domain.SyncRun{
		ID: uuid.NewString(), SourceID: "feed", Mode: "incremental", State: "no_new_items",
		StartedAt: now.Add(-15 * time.Minute), FinishedAt: now.Add(-15 * time.Minute),
	}
	newer := &domain.SyncRun{
		ID: uuid.NewString(), SourceID: "feed", Mode: "incremental", State: "done",
		Existing: 10, New: 2, Written: 12, BackupPath: "backups/x.json",
		StartedAt: now, FinishedAt: now.Add(time.Second),
	}
	s.Require().NoError(store.Record(s.ctx, older))
	s.Require().NoError(store.Record(s.ctx, newer))

	last, err := store.Last(s.ctx, "feed")
	s.Require().NoError(err)
	s.Require().NotNil(last)
	s.Equal(newer.ID, last.ID)
	s.Equal(12, last.Written)
	s.Equal("backups/x.json", last.BackupPath)
	s.WithinDuration(now, last.StartedAt, time.Second)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		exec := GetExecutor(ctx, s.db)
		_, err := exec.ExecContext(ctx,
			`INSERT INTO sheet_rows (sheet, row_num, cells) VALUES ($1, $2, $3)`,
			"rollback", 2, "{a}",
		)
		if err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.Error(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM sheet_rows WHERE sheet = $1", "rollback")
	s.NoError(err)
	s.Equal(0, count)
}
