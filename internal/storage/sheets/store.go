// Package sheets stores records in a Google Sheets tab. Row 1 holds the
// column headers; data rows are written positionally below it.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"

	"feed_syncer/internal/domain"
	"feed_syncer/internal/normalize"
)

// Config holds spreadsheet configuration.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	Columns         []string
}

type Store struct {
	cfg    Config
	opts   []option.ClientOption
	svc    *gsheets.Service
	logger *slog.Logger
}

// New creates a store. opts are appended to the client options built from
// the credentials file and are mostly useful to point the client elsewhere.
func New(cfg Config, logger *slog.Logger, opts ...option.ClientOption) *Store {
	return &Store{
		cfg:    cfg,
		opts:   opts,
		logger: logger.With("store", "sheets", "spreadsheet_id", cfg.SpreadsheetID, "sheet", cfg.SheetName),
	}
}

// Authorize performs the service-account token handshake, builds the API
// client and makes sure the header row is present.
func (s *Store) Authorize(ctx context.Context) error {
	opts := make([]option.ClientOption, 0, len(s.opts)+1)

	if s.cfg.CredentialsFile != "" {
		key, err := os.ReadFile(s.cfg.CredentialsFile)
		if err != nil {
			return fmt.Errorf("read credentials: %w", err)
		}

		jwtCfg, err := google.JWTConfigFromJSON(key, gsheets.SpreadsheetsScope)
		if err != nil {
			return fmt.Errorf("parse credentials: %w", err)
		}

		ts := jwtCfg.TokenSource(ctx)
		if _, err := ts.Token(); err != nil {
			return fmt.Errorf("obtain token for %s: %w", jwtCfg.Email, err)
		}
		opts = append(opts, option.WithTokenSource(ts))
	}
	opts = append(opts, s.opts...)

	svc, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return fmt.Errorf("create sheets client: %w", err)
	}
	s.svc = svc

	if err := s.ensureHeader(ctx); err != nil {
		return err
	}

	s.logger.Debug("sheets client authorized")
	return nil
}

// LoadAll reads the header row and maps every row from rowOffset on onto it.
// Rows between the header and rowOffset are left to the user and never loaded,
// so the block read is exactly the block WriteRows overwrites.
func (s *Store) LoadAll(ctx context.Context, rowOffset int) ([]domain.Record, error) {
	if s.svc == nil {
		return nil, errNotAuthorized
	}
	if rowOffset <= 1 {
		return nil, fmt.Errorf("row offset %d would read the header as a record", rowOffset)
	}

	rng := rowRange(s.cfg.SheetName, len(s.cfg.Columns), 1, 0)
	resp, err := s.svc.Spreadsheets.Values.Get(s.cfg.SpreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get values %s: %w", rng, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}

	headers := cellsToStrings(resp.Values[0])
	if len(resp.Values) < rowOffset {
		return nil, nil
	}
	body := resp.Values[rowOffset-1:]
	records := make([]domain.Record, 0, len(body))
	for _, row := range body {
		records = append(records, normalize.FromRow(headers, cellsToStrings(row)))
	}

	s.logger.Debug("loaded records", "count", len(records))
	return records, nil
}

// WriteRows overwrites the block starting at rowOffset with rows.
func (s *Store) WriteRows(ctx context.Context, rows [][]string, rowOffset int) error {
	if s.svc == nil {
		return errNotAuthorized
	}
	if len(rows) == 0 {
		return nil
	}

	rng := rowRange(s.cfg.SheetName, len(s.cfg.Columns), rowOffset, rowOffset+len(rows)-1)
	body := &gsheets.ValueRange{
		Range:          rng,
		MajorDimension: "ROWS",
		Values:         stringsToCells(rows),
	}

	resp, err := s.svc.Spreadsheets.Values.Update(s.cfg.SpreadsheetID, rng, body).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update values %s: %w", rng, err)
	}

	s.logger.Info("rows written", "range", rng, "updated_rows", resp.UpdatedRows)
	return nil
}

func (s *Store) ensureHeader(ctx context.Context) error {
	rng := rowRange(s.cfg.SheetName, len(s.cfg.Columns), 1, 1)
	resp, err := s.svc.Spreadsheets.Values.Get(s.cfg.SpreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get header %s: %w", rng, err)
	}
	if len(resp.Values) > 0 && len(resp.Values[0]) > 0 {
		return nil
	}

	body := &gsheets.ValueRange{Values: stringsToCells([][]string{s.cfg.Columns})}
	if _, err := s.svc.Spreadsheets.Values.Update(s.cfg.SpreadsheetID, rng, body).
		ValueInputOption("RAW").
		Context(ctx).
		Do(); err != nil {
		return fmt.Errorf("write header %s: %w", rng, err)
	}

	s.logger.Info("header row written", "columns", len(s.cfg.Columns))
	return nil
}

var errNotAuthorized = errors.New("sheets client not authorized")

func cellsToStrings(cells []interface{}) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		if c == nil {
			continue
		}
		out[i] = fmt.Sprint(c)
	}
	return out
}

func stringsToCells(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, v := range row {
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}
