package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"feed_syncer/internal/domain"
	"feed_syncer/internal/normalize"
)

const (
	headerRow = 1
	// rows per INSERT statement; three parameters each.
	writeBatchSize = 500
)

// RecordStore keeps a sheet-like table in Postgres: one row per row number,
// cells stored positionally, headers in row 1.
type RecordStore struct {
	db      *sqlx.DB
	tm      *TransactionManager
	sheet   string
	columns []string
	logger  *slog.Logger
}

func NewRecordStore(db *sqlx.DB, sheet string, columns []string, logger *slog.Logger) *RecordStore {
	return &RecordStore{
		db:      db,
		tm:      NewTransactionManager(db),
		sheet:   sheet,
		columns: columns,
		logger:  logger.With("store", "postgres", "sheet", sheet),
	}
}

// Authorize checks the connection and seeds the header row when missing.
func (s *RecordStore) Authorize(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sheet_rows (sheet, row_num, cells) VALUES ($1, $2, $3) ON CONFLICT (sheet, row_num) DO NOTHING`,
		s.sheet, headerRow, pq.StringArray(s.columns),
	)
	if err != nil {
		return fmt.Errorf("seed header: %w", err)
	}
	return nil
}

// LoadAll maps rows rowOffset.. onto the header row. Rows between the header
// and rowOffset are never loaded, matching the block WriteRows overwrites.
func (s *RecordStore) LoadAll(ctx context.Context, rowOffset int) ([]domain.Record, error) {
	if rowOffset <= headerRow {
		return nil, fmt.Errorf("row offset %d would read the header as a record", rowOffset)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT row_num, cells FROM sheet_rows
		WHERE sheet = $1 AND (row_num = $2 OR row_num >= $3)
		ORDER BY row_num`,
		s.sheet, headerRow, rowOffset,
	)
	if err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var headers []string
	var records []domain.Record
	for rows.Next() {
		var rowNum int
		var cells pq.StringArray
		if err := rows.Scan(&rowNum, &cells); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if rowNum == headerRow {
			headers = cells
			continue
		}
		if headers == nil {
			return nil, fmt.Errorf("row %d found before header row", rowNum)
		}
		records = append(records, normalize.FromRow(headers, cells))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// WriteRows overwrites rows rowOffset.. in a single transaction.
func (s *RecordStore) WriteRows(ctx context.Context, rows [][]string, rowOffset int) error {
	if rowOffset <= headerRow {
		return fmt.Errorf("row offset %d would overwrite the header", rowOffset)
	}
	if len(rows) == 0 {
		return nil
	}

	err := s.tm.WithTransaction(ctx, func(txCtx context.Context) error {
		exec := GetExecutor(txCtx, s.db)
		for start := 0; start < len(rows); start += writeBatchSize {
			end := start + writeBatchSize
			if end > len(rows) {
				end = len(rows)
			}
			query, args := s.upsertBatch(rows[start:end], rowOffset+start)
			if _, err := exec.ExecContext(txCtx, query, args...); err != nil {
				return fmt.Errorf("upsert rows %d-%d: %w", rowOffset+start, rowOffset+end-1, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("rows written", "from", rowOffset, "count", len(rows))
	return nil
}

func (s *RecordStore) upsertBatch(rows [][]string, firstRow int) (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString("INSERT INTO sheet_rows (sheet, row_num, cells) VALUES ")
	args := make([]interface{}, 0, len(rows)*3)

	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * 3
		sb.WriteString("($" + strconv.Itoa(n+1) + ", $" + strconv.Itoa(n+2) + ", $" + strconv.Itoa(n+3) + ")")
		args = append(args, s.sheet, firstRow+i, pq.StringArray(row))
	}
	sb.WriteString(" ON CONFLICT (sheet, row_num) DO UPDATE SET cells = EXCLUDED.cells, updated_at = now()")

	return sb.String(), args
}
