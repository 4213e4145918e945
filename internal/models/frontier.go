package models

import "time"

// EntryStatus is the lifecycle state of a FrontierEntry. Transitions follow
// Pending -> InProgress -> {Complete, Failed, Skipped}, with Failed allowed
// to re-enter Pending while retries remain.
type EntryStatus string

const (
	StatusPending    EntryStatus = "pending"
	StatusInProgress EntryStatus = "in_progress"
	StatusComplete   EntryStatus = "complete"
	StatusFailed     EntryStatus = "failed"
	StatusSkipped    EntryStatus = "skipped"
)

// Kind distinguishes the two admission policies the Frontier enforces: pages
// go through scope/filter checks, assets do not.
type Kind string

const (
	KindPage  Kind = "page"
	KindAsset Kind = "asset"
)

// FrontierEntry is one URL tracked by the Frontier, from enqueue through to
// its terminal status.
type FrontierEntry struct {
	OriginalURL  string
	CanonicalURL string
	Kind         Kind
	Depth        int
	ParentURL    string
	Status       EntryStatus
	RetryCount   int
	EnqueuedAt   time.Time
	ProcessedAt  time.Time
	Error        error
}

// QueueStats is a read-only snapshot of frontier composition by status.
type QueueStats struct {
	Pending    int
	InProgress int
	Complete   int
	Failed     int
	Skipped    int
	Total      int
}

// StorageStats is a read-only snapshot of the storage sandbox.
type StorageStats struct {
	FilesWritten int
	TotalBytes   int64
	Directories  int
}
