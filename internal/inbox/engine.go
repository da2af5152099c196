package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/teemow/rapture-inbox/internal/drive"
	"github.com/teemow/rapture-inbox/internal/instrumentation"
	"github.com/teemow/rapture-inbox/internal/logging"
	"github.com/teemow/rapture-inbox/internal/vault"
)

// Options configures an Engine.
type Options struct {
	Remote   Remote
	Local    LocalStore
	Settings Settings

	// Recorder is optional.
	Recorder Recorder
	Metrics  *instrumentation.Metrics
	Logger   *slog.Logger

	// Now overrides the clock used for collision suffixes and run timing.
	Now func() time.Time
}

// Engine drains the remote mailbox into the local store. At most one run is
// in flight at a time.
type Engine struct {
	remote   Remote
	local    LocalStore
	recorder Recorder
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	status   Status
	settings Settings
}

// NewEngine returns an idle engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		remote:   opts.Remote,
		local:    opts.Local,
		recorder: opts.Recorder,
		metrics:  opts.Metrics,
		logger:   logging.WithComponent(logger, "inbox"),
		now:      now,
		status:   StatusIdle,
		settings: opts.Settings,
	}
}

// Status returns the current run state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// UpdateSettings replaces the settings used by the next run. A run already
// in flight keeps the settings it started with.
func (e *Engine) UpdateSettings(s Settings) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settings = s
}

// SyncNow runs one drain: locate the mailbox, list it, and move every file
// into the destination folder, deleting each remote copy after it has been
// written locally. Per-file failures are collected in the result; failures
// outside the file loop abort the run and leave the engine in StatusError.
// A call made while another run is in flight returns immediately.
func (e *Engine) SyncNow(ctx context.Context) (result Result) {
	e.mu.Lock()
	if e.status == StatusSyncing {
		e.mu.Unlock()
		e.metrics.RecordSyncRun(ctx, instrumentation.RunResultBusy, 0)
		e.logger.DebugContext(ctx, "Sync requested while another run is in flight")
		return Result{Errors: []string{msgBusy}, aborted: true, busy: true}
	}
	e.status = StatusSyncing
	settings := e.settings
	e.mu.Unlock()

	ctx, span := instrumentation.StartSpan(ctx, "inbox.sync")
	defer span.End()

	started := e.now()
	final := StatusIdle

	defer func() {
		if r := recover(); r != nil {
			result.abort(fmt.Errorf("panic: %v", r))
			final = StatusError
		}

		e.mu.Lock()
		e.status = final
		e.mu.Unlock()

		e.finish(ctx, started, result, span)
	}()

	if err := e.drain(ctx, settings, &result); err != nil {
		result.abort(err)
		final = StatusError
	}

	return result
}

func (r *Result) abort(err error) {
	r.aborted = true
	r.Errors = append(r.Errors, fmt.Sprintf("Sync failed: %v", err))
}

func (e *Engine) drain(ctx context.Context, settings Settings, result *Result) error {
	folderID, err := e.remote.LocateMailboxFolder(ctx)
	if err != nil {
		return err
	}
	if folderID == "" {
		e.logger.DebugContext(ctx, "No mailbox folder, nothing to sync")
		return nil
	}

	files, err := e.remote.ListFiles(ctx, folderID)
	if err != nil {
		return err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(instrumentation.SpanAttrFilesListed, len(files)))
	if len(files) == 0 {
		e.logger.DebugContext(ctx, "Mailbox is empty", logging.FileID(folderID))
		return nil
	}

	dest := vault.NormalizePath(settings.DestinationFolder)
	if err := e.ensureFolder(dest); err != nil {
		return err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		target, err := e.transfer(ctx, dest, f)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to process %s: %v", f.Name, err))
			e.metrics.RecordFileOutcome(ctx, instrumentation.FileOutcomeFailed)
			e.logger.WarnContext(ctx, "Failed to process file",
				logging.File(f.Name), logging.FileID(f.ID), logging.Err(err))
			continue
		}

		if !e.remote.DeleteFile(ctx, f.ID) {
			result.Errors = append(result.Errors, fmt.Sprintf("Failed to delete %s from Drive", f.Name))
			e.metrics.RecordFileOutcome(ctx, instrumentation.FileOutcomeDeleteFailed)
			e.logger.WarnContext(ctx, "Kept local copy but remote delete failed",
				logging.File(f.Name), logging.Path(target))
			continue
		}

		result.FilesDownloaded++
		result.Files = append(result.Files, Transfer{FileID: f.ID, Name: f.Name, Path: target})
		e.metrics.RecordFileOutcome(ctx, instrumentation.FileOutcomeTransferred)
		e.logger.DebugContext(ctx, "Transferred file", logging.File(f.Name), logging.Path(target))
	}

	return nil
}

func (e *Engine) ensureFolder(dest string) error {
	if dest == "/" {
		return nil
	}

	ok, err := e.local.Exists(dest)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return e.local.CreateFolder(dest)
}

// transfer downloads f and writes it into dest, returning the path written.
func (e *Engine) transfer(ctx context.Context, dest string, f drive.FileInfo) (string, error) {
	content, err := e.remote.DownloadContent(ctx, f.ID)
	if err != nil {
		return "", err
	}

	target, err := e.resolvePath(joinPath(dest, localName(f)))
	if err != nil {
		return "", err
	}

	if err := e.local.Create(target, content); err != nil {
		return "", err
	}
	return target, nil
}

// resolvePath returns p, or p with a millisecond timestamp inserted before
// its extension when p is already taken.
func (e *Engine) resolvePath(p string) (string, error) {
	ok, err := e.local.Exists(p)
	if err != nil {
		return "", err
	}
	if !ok {
		return p, nil
	}

	dir, name := path.Split(p)
	return dir + CollisionName(name, e.now().UnixMilli()), nil
}

// CollisionName inserts -<suffix> before the last "." of name: note.md
// becomes note-<suffix>.md and .hidden becomes -<suffix>.hidden. Names
// without a "." get the suffix appended.
func CollisionName(name string, suffix int64) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return fmt.Sprintf("%s-%d%s", name[:i], suffix, name[i:])
	}
	return fmt.Sprintf("%s-%d", name, suffix)
}

// localName maps a remote file name onto a single safe path segment.
func localName(f drive.FileInfo) string {
	name := norm.NFC.String(strings.TrimSpace(f.Name))
	name = strings.NewReplacer("/", "-", `\`, "-").Replace(name)
	if name == "" || name == "." || name == ".." {
		return f.ID + ".md"
	}
	return name
}

func joinPath(dir, name string) string {
	if dir == "/" {
		return name
	}
	return dir + "/" + name
}

func (e *Engine) finish(ctx context.Context, started time.Time, result Result, span trace.Span) {
	finished := e.now()
	outcome := Outcome(result)

	span.SetAttributes(
		attribute.Int(instrumentation.SpanAttrFilesDownloaded, result.FilesDownloaded),
		attribute.Int(instrumentation.SpanAttrErrors, len(result.Errors)),
	)
	if result.Success() {
		instrumentation.SetSpanSuccess(span)
	} else {
		instrumentation.SetSpanError(span, errors.New(strings.Join(result.Errors, "; ")))
	}
	e.metrics.RecordSyncRun(ctx, outcome, finished.Sub(started))

	attrs := []any{
		slog.String("outcome", outcome),
		slog.Int("files_downloaded", result.FilesDownloaded),
		slog.Int("errors", len(result.Errors)),
		slog.Duration(logging.KeyDuration, finished.Sub(started)),
	}
	switch outcome {
	case instrumentation.RunResultSuccess:
		e.logger.InfoContext(ctx, "Sync finished", attrs...)
	case instrumentation.RunResultPartial:
		e.logger.WarnContext(ctx, "Sync finished with errors", attrs...)
	default:
		e.logger.ErrorContext(ctx, "Sync failed", append(attrs, slog.Any("run_errors", result.Errors))...)
	}

	if e.recorder == nil {
		return
	}
	// History must be written even when the run context was canceled.
	recordCtx := context.WithoutCancel(ctx)
	if err := e.recorder.RecordRun(recordCtx, Run{
		StartedAt:  started,
		FinishedAt: finished,
		Outcome:    outcome,
		Result:     result,
	}); err != nil {
		e.logger.WarnContext(ctx, "Failed to record sync run", logging.Err(err))
	}
}

// Outcome classifies a result as one of the instrumentation.RunResult* values.
func Outcome(r Result) string {
	switch {
	case r.busy:
		return instrumentation.RunResultBusy
	case r.aborted:
		return instrumentation.RunResultAborted
	case len(r.Errors) == 0:
		return instrumentation.RunResultSuccess
	case r.FilesDownloaded > 0:
		return instrumentation.RunResultPartial
	default:
		return instrumentation.RunResultFailed
	}
}

// Summary renders a one-line, user-facing description of a result.
func Summary(r Result) string {
	if !r.Success() {
		return "Sync failed: " + strings.Join(r.Errors, ", ")
	}
	switch r.FilesDownloaded {
	case 0:
		return "No new Rapture notes to sync"
	case 1:
		return "Synced 1 new Rapture note"
	default:
		return fmt.Sprintf("Synced %d new Rapture notes", r.FilesDownloaded)
	}
}

// IsBusy reports whether r is the immediate rejection of an overlapping run.
func IsBusy(r Result) bool {
	return r.busy
}
