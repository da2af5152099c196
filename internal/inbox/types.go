package inbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/teemow/rapture-inbox/internal/drive"
)

// Status is the engine's run state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
)

// Error strings reported in a Result.
const (
	msgBusy = "Sync already in progress"
)

// Remote is the mailbox side of a drain.
type Remote interface {
	LocateMailboxFolder(ctx context.Context) (string, error)
	ListFiles(ctx context.Context, folderID string) ([]drive.FileInfo, error)
	DownloadContent(ctx context.Context, fileID string) (string, error)
	DeleteFile(ctx context.Context, fileID string) bool
}

// LocalStore is the destination folder tree.
type LocalStore interface {
	Exists(path string) (bool, error)
	CreateFolder(path string) error
	Create(path, content string) error
}

// Recorder keeps a history of completed runs.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// Settings are the engine inputs that may change between runs.
type Settings struct {
	// DestinationFolder is the vault-relative folder notes are written to.
	DestinationFolder string
}

// Transfer describes one file that was written locally and removed remotely.
type Transfer struct {
	FileID string `json:"file_id"`
	Name   string `json:"name"`
	Path   string `json:"path"`
}

// Result is the outcome of one SyncNow call. Success is derived from the
// counts and cannot be set directly.
type Result struct {
	FilesDownloaded int
	Errors          []string
	Files           []Transfer

	aborted bool
	busy    bool
}

// Success reports whether the run counts as successful: no errors, or
// errors alongside at least one transferred file. Aborted and rejected runs
// are never successful.
func (r Result) Success() bool {
	if r.aborted {
		return false
	}
	return len(r.Errors) == 0 || r.FilesDownloaded > 0
}

// MarshalJSON includes the derived success flag.
func (r Result) MarshalJSON() ([]byte, error) {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return json.Marshal(struct {
		Success         bool       `json:"success"`
		FilesDownloaded int        `json:"files_downloaded"`
		Errors          []string   `json:"errors"`
		Files           []Transfer `json:"files,omitempty"`
	}{r.Success(), r.FilesDownloaded, errs, r.Files})
}

// Run is a completed run as handed to a Recorder.
type Run struct {
	StartedAt  time.Time
	FinishedAt time.Time
	// Outcome is one of the instrumentation.RunResult* values.
	Outcome string
	Result  Result
}
