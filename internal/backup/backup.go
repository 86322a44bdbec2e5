// Package backup writes point-in-time JSON snapshots of the record table.
// Snapshots are never read back by the syncer.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"feed_syncer/internal/domain"
)

// TimestampLayout names snapshot files. It avoids ':' so names are valid on every filesystem.
const TimestampLayout = "2006-01-02T15-04-05.000Z"

const maxCollisions = 100

type Writer struct {
	dir    string
	now    func() time.Time
	logger *slog.Logger
}

func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{
		dir:    dir,
		now:    time.Now,
		logger: logger.With("component", "backup"),
	}
}

// Snapshot serializes records into a new file named after the current UTC time
// and returns its path.
func (w *Writer) Snapshot(records []domain.Record) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	if records == nil {
		records = []domain.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	f, path, err := w.create(w.now().UTC().Format(TimestampLayout))
	if err != nil {
		return "", err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write snapshot %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return "", fmt.Errorf("sync snapshot %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close snapshot %s: %w", path, err)
	}

	w.logger.Info("snapshot written", "path", path, "records", len(records))
	return path, nil
}

func (w *Writer) create(stamp string) (*os.File, string, error) {
	for i := 0; i < maxCollisions; i++ {
		name := stamp + ".json"
		if i > 0 {
			name = fmt.Sprintf("%s-%d.json", stamp, i)
		}
		path := filepath.Join(w.dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("create snapshot %s: %w", path, err)
		}
	}
	return nil, "", fmt.Errorf("create snapshot %s: too many files with the same timestamp", stamp)
}
