package history

import "time"

// Run is the metadata of one completed aggregation run.
// It never carries the rules themselves.
type Run struct {
	Version      uint64         `json:"version"`
	FinishedAt   time.Time      `json:"finished_at"`
	Rules        int            `json:"rules"`
	Parsed       int            `json:"parsed"`
	Duplicates   int            `json:"duplicates"`
	SourcesOK    int            `json:"sources_ok"`
	SourcesTotal int            `json:"sources_total"`
	Kinds        map[string]int `json:"kinds,omitempty"`
}

// StoreStats summarizes a history store.
type StoreStats struct {
	Runs        uint64
	Version     uint64 // version of the latest run
	UpdatedUnix int64  // finish time of the latest run
}

// Store persists run metadata. Versions are assigned by the store and are
// strictly increasing.
type Store interface {
	Record(run Run) (uint64, error)
	Latest() (Run, bool, error)
	// List returns up to limit runs, newest first. limit <= 0 returns all.
	List(limit int) ([]Run, error)
	Stats() StoreStats
	Close() error
}
