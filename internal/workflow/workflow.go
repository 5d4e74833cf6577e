// Package workflow drives one upload cycle per session:
// idle → file_selected → submitting → analyzing → results_ready | failed | cancelled.
// The state lives in Redis so an in-flight analysis can be resumed after a reload or a restart.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"pdflearn/internal/analysis"
	"pdflearn/internal/config"
	"pdflearn/internal/confirm"
	"pdflearn/internal/model"
	"pdflearn/internal/service"
	"pdflearn/internal/storage"
)

var (
	ErrBusy              = errors.New("another upload operation is in progress")
	ErrUnsupportedType   = errors.New("only PDF files are accepted")
	ErrFileTooLarge      = errors.New("file is too large")
	ErrEmptyFile         = errors.New("file is empty")
	ErrNoFile            = errors.New("no file selected")
	ErrNotInFlight       = errors.New("no analysis is running")
	ErrNotReady          = errors.New("there are no analysis results to save")
	ErrStaleConfirmation = errors.New("confirmation no longer matches the current upload")
)

// Messages stored on the upload when an analysis does not produce results.
const (
	MsgSubmitFailed      = "Could not start the analysis. Please try again."
	MsgAnalysisFailed    = "Analysis failed. Please try again."
	MsgAnalysisCancelled = "Analysis was cancelled."
	MsgStatusUnavailable = "Could not check analysis status. Please try again."
	MsgTimedOut          = "Analysis timed out. Please try again."
)

// ConfirmationRequiredError is returned when an in-flight upload would be replaced or removed.
// The caller repeats the request with the ticket token once the user agrees.
type ConfirmationRequiredError struct {
	Ticket *confirm.Ticket
}

func (e *ConfirmationRequiredError) Error() string {
	return "confirmation required: " + e.Ticket.Description
}

// Caller identifies whose upload is being driven. Token is the bearer forwarded to the analysis service.
type Caller struct {
	SessionID string
	UserID    string
	Token     string
}

// File is an intake candidate.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// SaveInput selects which results to keep. An empty title defaults to the filename.
type SaveInput struct {
	Title    string   `json:"title"`
	Selected []string `json:"selected"`
}

// Options tunes a Workflow.
type Options struct {
	Upload   config.UploadConfig
	Analysis config.AnalysisConfig
	StateTTL time.Duration
	Logger   *slog.Logger
	Metrics  *Metrics
}

type task struct {
	correlationID string
	cancel        context.CancelFunc
	done          chan struct{}
}

// Workflow runs upload cycles and their background status polling.
type Workflow struct {
	states    *StateStore
	locks     *locker
	tickets   *confirm.Store
	store     storage.Storage
	analysis  analysis.Service
	resources service.ResourceService
	poller    Poller
	maxBytes  int64
	accepted  string
	logger    *slog.Logger
	metrics   *Metrics

	baseCtx context.Context
	stop    context.CancelFunc
	mu      sync.Mutex
	tasks   map[string]*task
	wg      sync.WaitGroup
}

// New builds a Workflow. Close must be called to stop background polling.
func New(rdb redis.UniversalClient, tickets *confirm.Store, store storage.Storage, an analysis.Service, resources service.ResourceService, opts Options) *Workflow {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics, _ = NewMetrics(nil)
	}
	if opts.Upload.MaxBytes <= 0 {
		opts.Upload.MaxBytes = 5 << 20
	}
	if opts.Upload.AcceptedMIME == "" {
		opts.Upload.AcceptedMIME = "application/pdf"
	}
	logger := opts.Logger.With("component", "workflow")
	ctx, stop := context.WithCancel(context.Background())
	return &Workflow{
		states:    NewStateStore(rdb, opts.StateTTL),
		locks:     &locker{rdb: rdb, ttl: defaultLockTTL, logger: logger},
		tickets:   tickets,
		store:     store,
		analysis:  an,
		resources: resources,
		poller:    Poller{Interval: opts.Analysis.PollInterval, Timeout: opts.Analysis.PollTimeout},
		maxBytes:  opts.Upload.MaxBytes,
		accepted:  strings.ToLower(opts.Upload.AcceptedMIME),
		logger:    logger,
		metrics:   opts.Metrics,
		baseCtx:   ctx,
		stop:      stop,
		tasks:     make(map[string]*task),
	}
}

// Close cancels every poll task and waits for them to return.
func (w *Workflow) Close() {
	w.stop()
	w.wg.Wait()
}

// Validate checks type and size before anything is stored.
func (w *Workflow) Validate(f File) error {
	mt, _, err := mime.ParseMediaType(f.ContentType)
	if err != nil || strings.ToLower(mt) != w.accepted {
		return ErrUnsupportedType
	}
	if f.Size <= 0 {
		return ErrEmptyFile
	}
	if f.Size > w.maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrFileTooLarge, f.Size, w.maxBytes)
	}
	return nil
}

// Current returns the session's upload without side effects.
func (w *Workflow) Current(ctx context.Context, caller Caller) (*model.Upload, error) {
	return w.states.Load(ctx, caller.SessionID)
}

// Intake accepts a new file for the session. Replacing an in-flight upload needs a redeemed
// replace-upload ticket; without one a ConfirmationRequiredError carries a fresh ticket.
func (w *Workflow) Intake(ctx context.Context, caller Caller, f File, confirmToken string) (*model.Upload, error) {
	if err := w.Validate(f); err != nil {
		return nil, err
	}
	release, err := w.locks.acquire(ctx, caller.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	cur, err := w.states.Load(ctx, caller.SessionID)
	if err != nil {
		return nil, err
	}
	if cur.Phase.InFlight() {
		desc := fmt.Sprintf("The analysis of %q is still running. Selecting a new file will cancel it.", cur.Filename)
		if err := w.confirmAbort(ctx, caller, cur, confirm.KindReplaceUpload, desc, confirmToken); err != nil {
			return nil, err
		}
	}
	if cur.StoragePath != "" {
		w.deleteBlob(ctx, cur)
	}

	key := storage.UploadKey(uuid.NewString(), f.Name)
	if _, err := w.store.Put(ctx, key, f.Body, storage.PutObjectOptions{
		Size:        f.Size,
		ContentType: w.accepted,
		Metadata:    map[string]string{"original-filename": storage.SafeName(f.Name)},
	}); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	next := &model.Upload{
		SessionID:   caller.SessionID,
		OwnerID:     caller.UserID,
		Phase:       model.PhaseFileSelected,
		Filename:    storage.SafeName(f.Name),
		ContentType: w.accepted,
		Size:        f.Size,
		StoragePath: key,
	}
	if err := w.states.Save(ctx, next); err != nil {
		return nil, err
	}
	w.metrics.transition(next.Phase)
	w.logger.InfoContext(ctx, "upload_file_selected", "session_id", caller.SessionID, "filename", next.Filename, "size", next.Size)
	return next, nil
}

// Submit starts an analysis of the selected file under a new correlation id.
func (w *Workflow) Submit(ctx context.Context, caller Caller) (*model.Upload, error) {
	release, err := w.locks.acquire(ctx, caller.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	cur, err := w.states.Load(ctx, caller.SessionID)
	if err != nil {
		return nil, err
	}
	if cur.Phase.InFlight() {
		return nil, ErrBusy
	}
	if cur.StoragePath == "" {
		return nil, ErrNoFile
	}

	cur.OwnerID = caller.UserID
	cur.CorrelationID = uuid.NewString()
	cur.Phase = model.PhaseSubmitting
	cur.Halting = false
	cur.Error = ""
	cur.Resources = nil
	if err := w.states.Save(ctx, cur); err != nil {
		return nil, err
	}
	w.metrics.transition(cur.Phase)

	if err := w.send(ctx, caller, cur); err != nil {
		cur.Phase = model.PhaseFailed
		cur.Error = MsgSubmitFailed
		if serr := w.states.Save(ctx, cur); serr != nil {
			w.logger.ErrorContext(ctx, "upload_state_write_failed", "session_id", caller.SessionID, "error", serr.Error())
		}
		w.metrics.transition(cur.Phase)
		w.logger.WarnContext(ctx, "analysis_submit_failed", "session_id", caller.SessionID, "correlation_id", cur.CorrelationID, "error", err.Error())
		return nil, err
	}

	cur.Phase = model.PhaseAnalyzing
	if err := w.states.Save(ctx, cur); err != nil {
		return nil, err
	}
	w.metrics.transition(cur.Phase)
	w.logger.InfoContext(ctx, "analysis_submitted", "session_id", caller.SessionID, "correlation_id", cur.CorrelationID)
	w.startPolling(caller, cur.CorrelationID)
	return cur, nil
}

func (w *Workflow) send(ctx context.Context, caller Caller, u *model.Upload) error {
	body, _, err := w.store.Get(ctx, u.StoragePath)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer body.Close()
	return w.analysis.Submit(ctx, caller.Token, analysis.Job{
		CorrelationID: u.CorrelationID,
		Filename:      u.Filename,
		ContentType:   u.ContentType,
		Body:          body,
	})
}

// Status returns the session's upload and resumes polling of an in-flight job that has no poller,
// which is the case after a restart.
func (w *Workflow) Status(ctx context.Context, caller Caller) (*model.Upload, error) {
	u, err := w.states.Load(ctx, caller.SessionID)
	if err != nil {
		return nil, err
	}
	if u.Phase == model.PhaseSubmitting && u.CorrelationID != "" {
		u, err = w.resumeSubmitting(ctx, caller, u)
		if err != nil {
			return nil, err
		}
	}
	if u.Phase == model.PhaseAnalyzing && u.CorrelationID != "" {
		w.startPolling(caller, u.CorrelationID)
	}
	return u, nil
}

// resumeSubmitting moves an upload left in submitting by an interrupted Submit to analyzing,
// so polling decides its outcome. A Submit still holding the session lock is left alone.
func (w *Workflow) resumeSubmitting(ctx context.Context, caller Caller, cur *model.Upload) (*model.Upload, error) {
	release, err := w.locks.acquire(ctx, caller.SessionID)
	if errors.Is(err, ErrBusy) {
		return cur, nil
	}
	if err != nil {
		return nil, err
	}
	defer release()

	u, err := w.states.Update(ctx, caller.SessionID, func(u *model.Upload) error {
		if u.Phase != model.PhaseSubmitting || u.CorrelationID != cur.CorrelationID {
			return errStale
		}
		u.Phase = model.PhaseAnalyzing
		return nil
	})
	if errors.Is(err, errStale) {
		return w.states.Load(ctx, caller.SessionID)
	}
	if err != nil {
		return nil, err
	}
	w.metrics.transition(u.Phase)
	w.logger.InfoContext(ctx, "analysis_submit_resumed", "session_id", caller.SessionID, "correlation_id", u.CorrelationID)
	return u, nil
}

// Halt asks the analysis service to cancel the running job. The terminal phase still comes
// from polling; until then the upload is marked halting.
func (w *Workflow) Halt(ctx context.Context, caller Caller) (*model.Upload, error) {
	var corr string
	u, err := w.states.Update(ctx, caller.SessionID, func(u *model.Upload) error {
		if !u.Phase.InFlight() {
			return ErrNotInFlight
		}
		corr = u.CorrelationID
		u.Halting = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := w.analysis.Halt(ctx, caller.Token, corr); err != nil {
		if _, rerr := w.states.Update(ctx, caller.SessionID, func(u *model.Upload) error {
			if u.CorrelationID != corr {
				return errStale
			}
			u.Halting = false
			return nil
		}); rerr != nil && !errors.Is(rerr, errStale) {
			w.logger.ErrorContext(ctx, "upload_state_write_failed", "session_id", caller.SessionID, "error", rerr.Error())
		}
		return nil, fmt.Errorf("halt analysis: %w", err)
	}
	w.logger.InfoContext(ctx, "analysis_halt_requested", "session_id", caller.SessionID, "correlation_id", corr)
	return u, nil
}

// Remove discards the session's upload and its stored file. Removing an in-flight upload needs a
// redeemed discard-upload ticket.
func (w *Workflow) Remove(ctx context.Context, caller Caller, confirmToken string) (*model.Upload, error) {
	release, err := w.locks.acquire(ctx, caller.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	cur, err := w.states.Load(ctx, caller.SessionID)
	if err != nil {
		return nil, err
	}
	if cur.Phase.InFlight() {
		desc := fmt.Sprintf("The analysis of %q is still running. Removing the file will cancel it.", cur.Filename)
		if err := w.confirmAbort(ctx, caller, cur, confirm.KindDiscardUpload, desc, confirmToken); err != nil {
			return nil, err
		}
	}
	if cur.StoragePath != "" {
		w.deleteBlob(ctx, cur)
	}
	if err := w.states.Clear(ctx, caller.SessionID); err != nil {
		return nil, err
	}
	w.metrics.transition(model.PhaseIdle)
	return idle(caller.SessionID), nil
}

// Save persists the selected results and resets the session to idle.
func (w *Workflow) Save(ctx context.Context, caller Caller, in SaveInput) (*service.SaveResult, error) {
	release, err := w.locks.acquire(ctx, caller.SessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	cur, err := w.states.Load(ctx, caller.SessionID)
	if err != nil {
		return nil, err
	}
	if cur.Phase != model.PhaseResultsReady {
		return nil, ErrNotReady
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = cur.Filename
	}

	res, err := w.resources.Save(ctx, caller.UserID, service.SaveRequest{
		CorrelationID: cur.CorrelationID,
		Title:         title,
		Filename:      cur.Filename,
		StoragePath:   cur.StoragePath,
		Candidates:    cur.Resources,
		Selected:      in.Selected,
	})
	if err != nil {
		return nil, err
	}
	// the blob now belongs to the saved document
	w.releaseSaved(ctx, caller.SessionID, cur.CorrelationID)
	if err := w.states.Clear(ctx, caller.SessionID); err != nil {
		w.logger.ErrorContext(ctx, "upload_state_clear_failed", "session_id", caller.SessionID, "error", err.Error())
	}
	w.metrics.transition(model.PhaseIdle)
	return res, nil
}

// releaseSaved resets a saved upload to idle without its blob, so a later Intake or Remove
// cannot delete the saved document's file even if the state is never cleared.
func (w *Workflow) releaseSaved(ctx context.Context, sessionID, correlationID string) {
	_, err := w.states.Update(ctx, sessionID, func(u *model.Upload) error {
		if u.CorrelationID != correlationID {
			return errStale
		}
		*u = model.Upload{SessionID: sessionID, OwnerID: u.OwnerID, Phase: model.PhaseIdle}
		return nil
	})
	if err != nil && !errors.Is(err, errStale) {
		w.logger.ErrorContext(ctx, "upload_state_write_failed", "session_id", sessionID, "error", err.Error())
	}
}

// confirmAbort requires a redeemed ticket before an in-flight job is abandoned,
// then stops its poller and asks the service to halt it.
func (w *Workflow) confirmAbort(ctx context.Context, caller Caller, cur *model.Upload, kind confirm.Kind, desc, token string) error {
	if token == "" {
		ticket, err := w.tickets.Request(ctx, caller.UserID, confirm.Command{
			Kind:        kind,
			Description: desc,
			Params:      map[string]string{"correlation_id": cur.CorrelationID},
		})
		if err != nil {
			return err
		}
		return &ConfirmationRequiredError{Ticket: ticket}
	}
	cmd, err := w.tickets.Redeem(ctx, caller.UserID, token, kind)
	if err != nil {
		return err
	}
	if cmd.Params["correlation_id"] != cur.CorrelationID {
		return ErrStaleConfirmation
	}

	w.stopPolling(caller.SessionID)
	if err := w.analysis.Halt(ctx, caller.Token, cur.CorrelationID); err != nil {
		w.logger.WarnContext(ctx, "analysis_halt_failed", "session_id", caller.SessionID, "correlation_id", cur.CorrelationID, "error", err.Error())
	}
	return nil
}

func (w *Workflow) deleteBlob(ctx context.Context, u *model.Upload) {
	if err := w.store.Delete(ctx, u.StoragePath); err != nil {
		w.logger.WarnContext(ctx, "upload_blob_delete_failed", "session_id", u.SessionID, "path", u.StoragePath, "error", err.Error())
	}
}

var errStale = errors.New("upload moved on")

// startPolling runs one poll task per session. A task for the same job is reused;
// a task for an older job is cancelled.
func (w *Workflow) startPolling(caller Caller, correlationID string) {
	w.mu.Lock()
	if t, ok := w.tasks[caller.SessionID]; ok {
		if t.correlationID == correlationID {
			w.mu.Unlock()
			return
		}
		t.cancel()
	}
	if w.baseCtx.Err() != nil {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(w.baseCtx)
	t := &task{correlationID: correlationID, cancel: cancel, done: make(chan struct{})}
	w.tasks[caller.SessionID] = t
	w.wg.Add(1)
	w.mu.Unlock()

	go w.poll(ctx, caller, t)
}

func (w *Workflow) stopPolling(sessionID string) {
	w.mu.Lock()
	t := w.tasks[sessionID]
	delete(w.tasks, sessionID)
	w.mu.Unlock()
	if t != nil {
		t.cancel()
		<-t.done
	}
}

func (w *Workflow) poll(ctx context.Context, caller Caller, t *task) {
	defer w.wg.Done()
	defer close(t.done)
	defer func() {
		w.mu.Lock()
		if w.tasks[caller.SessionID] == t {
			delete(w.tasks, caller.SessionID)
		}
		w.mu.Unlock()
		t.cancel()
	}()
	w.metrics.activePolls.Inc()
	defer w.metrics.activePolls.Dec()

	rep, err := w.poller.Poll(ctx, func(ctx context.Context) (*analysis.StatusReport, error) {
		return w.analysis.Status(ctx, caller.Token, t.correlationID)
	})
	if ctx.Err() != nil {
		return
	}

	phase, message, outcome := outcomeOf(rep, err)
	if err != nil {
		w.logger.Warn("analysis_poll_failed", "session_id", caller.SessionID, "correlation_id", t.correlationID, "error", err.Error())
	}
	_, uerr := w.states.Update(ctx, caller.SessionID, func(u *model.Upload) error {
		if u.CorrelationID != t.correlationID || !u.Phase.InFlight() {
			return errStale
		}
		u.Phase = phase
		u.Error = message
		u.Halting = false
		if phase == model.PhaseResultsReady {
			u.Resources = rep.Resources
		}
		return nil
	})
	switch {
	case errors.Is(uerr, errStale), ctx.Err() != nil:
		return
	case uerr != nil:
		w.logger.Error("upload_state_write_failed", "session_id", caller.SessionID, "error", uerr.Error())
		return
	}
	w.metrics.transition(phase)
	w.metrics.outcome(outcome)
	w.logger.Info("analysis_finished", "session_id", caller.SessionID, "correlation_id", t.correlationID, "phase", string(phase))
}

func outcomeOf(rep *analysis.StatusReport, err error) (model.UploadPhase, string, string) {
	switch {
	case errors.Is(err, ErrPollTimeout):
		return model.PhaseFailed, MsgTimedOut, "timeout"
	case err != nil:
		return model.PhaseFailed, MsgStatusUnavailable, "status_error"
	}
	switch rep.Status {
	case model.JobDone:
		return model.PhaseResultsReady, "", "done"
	case model.JobCancelled:
		return model.PhaseCancelled, orDefault(rep.Error, MsgAnalysisCancelled), "cancelled"
	default:
		return model.PhaseFailed, orDefault(rep.Error, MsgAnalysisFailed), "failed"
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
