package domain

import "time"

// RunState is a step of a single sync run.
type RunState int

const (
	StateInit RunState = iota
	StateClientAuthorized
	StateLoadedExisting
	StateFetchedNew
	StateNoNewItems
	StateNormalized
	StateBackedUp
	StatePersisted
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:             "init",
	StateClientAuthorized: "client_authorized",
	StateLoadedExisting:   "loaded_existing",
	StateFetchedNew:       "fetched_new",
	StateNoNewItems:       "no_new_items",
	StateNormalized:       "normalized",
	StateBackedUp:         "backed_up",
	StatePersisted:        "persisted",
	StateDone:             "done",
	StateFailed:           "failed",
}

func (s RunState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// SyncStats holds statistics about a sync run.
type SyncStats struct {
	RunID      string
	SourceID   string
	Mode       string
	Existing   int
	New        int
	Written    int
	Published  int
	Errors     int
	BackupPath string
	State      RunState
	StartedAt  time.Time
	Duration   time.Duration
}

// SyncRun is a ledger entry describing a finished run.
type SyncRun struct {
	ID         string    `db:"id"`
	SourceID   string    `db:"source_id"`
	Mode       string    `db:"mode"`
	State      string    `db:"state"`
	Existing   int       `db:"existing_count"`
	New        int       `db:"new_count"`
	Written    int       `db:"written_count"`
	BackupPath string    `db:"backup_path"`
	Error      string    `db:"error"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}
