// Package service provides training runner. It combines dataset extraction, staged progress reporting,
// optional cleanup and notifications into a single run
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/lorawiz/app/dataset"
	"github.com/umputun/lorawiz/app/service/request"
)

//go:generate moq -out mocks/extractor.go -pkg mocks -skip-ensure -fmt goimports . Extractor
//go:generate moq -out mocks/notifier.go -pkg mocks -skip-ensure -fmt goimports . Notifier
//go:generate moq -out mocks/repeater.go -pkg mocks -skip-ensure -fmt goimports . Repeater

// errors returned by Run and Stream
var (
	ErrCanceled     = errors.New("training canceled")
	ErrDuplicateRun = errors.New("dataset is already in training")
)

const (
	defaultEpochs = 3
	defaultSteps  = 5
)

// Runner simulates training on an extracted dataset. Safe for concurrent use,
// fields should not be changed after the first run.
type Runner struct {
	Extractor       Extractor
	Epochs          int           // default 3
	Steps           int           // steps per epoch, default 5
	Delay           time.Duration // pause after each step, zero for no pause
	DeDup           Dedupper      // guards dataset path, nil allows parallel runs on the same path
	Notifier        Notifier
	NotifyTimeout   time.Duration
	Repeater        Repeater // retries notification delivery, nil sends once
	HostName        string
	Stdout          io.Writer // progress log, default os.Stdout
	EnableLogPrefix bool
	MaxLogLines     int // lines of run log kept for failure notification
}

// Extractor unpacks and removes datasets, implemented by dataset.Extractor
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) (string, error)
	Remove(datasetPath string) error
}

// Notifier interface defines notification delivery on finished runs
type Notifier interface {
	Send(ctx context.Context, subj, text string) error
	IsOnError() bool
	IsOnCompletion() bool
	MakeErrorHTML(datasetPath, model, errorLog string) (string, error)
	MakeCompletionHTML(datasetPath, model, summary string) (string, error)
}

// Dedupper claims a dataset path for the duration of a run
type Dedupper interface {
	Add(key string) bool
	Remove(key string)
}

// Repeater repeats failed function
type Repeater interface {
	Do(ctx context.Context, fun func() error, errors ...error) (err error)
}

// Progress is a single training step report
type Progress struct {
	Epoch       int `json:"epoch"`
	TotalEpochs int `json:"total_epochs"`
	Step        int `json:"step"`
	TotalSteps  int `json:"total_steps"`
}

// String renders progress as "Epoch 1/3 Step 2/5"
func (p Progress) String() string {
	return fmt.Sprintf("Epoch %d/%d Step %d/%d", p.Epoch, p.TotalEpochs, p.Step, p.TotalSteps)
}

// Result of completed run. CleanupErr is set if the dataset was requested to be deleted but removal failed,
// the run itself is still successful in this case.
type Result struct {
	DatasetPath string `json:"dataset_path"`
	Deleted     bool   `json:"deleted"`
	Summary     string `json:"summary"`
	CleanupErr  error  `json:"-"`
}

// Update is an element of the run stream, only one field is set
type Update struct {
	Progress *Progress
	Result   *Result
	Err      error
}

// Run executes training blocking until completion. onProgress, if not nil, is called synchronously for each step.
// Extraction errors are returned as is, cancellation wraps ErrCanceled and ctx error.
func (r *Runner) Run(ctx context.Context, req request.Training, onProgress func(Progress)) (Result, error) {
	key := filepath.Clean(dataset.PathFor(req.ArchivePath, req.DestDir))
	if r.DeDup != nil {
		if !r.DeDup.Add(key) {
			return Result{}, fmt.Errorf("%w: %s", ErrDuplicateRun, key)
		}
		defer r.DeDup.Remove(key)
	}

	capture := NewOutputCapture(r.MaxLogLines)
	var logWriter io.Writer = r.stdout()
	if r.EnableLogPrefix {
		logWriter = NewLogPrefixer(logWriter, filepath.Base(key))
	}
	out := io.MultiWriter(capture, logWriter)

	log.Printf("[INFO] start training %s, model: %s", req.ArchivePath, req.ModelName)
	datasetPath, err := r.Extractor.Extract(ctx, req.ArchivePath, req.DestDir)
	if err != nil {
		r.notifyFailure(ctx, req, key, err, capture)
		return Result{}, err
	}

	if err = r.train(ctx, out, onProgress); err != nil {
		r.notifyFailure(ctx, req, datasetPath, err, capture)
		return Result{}, err
	}

	res := Result{DatasetPath: datasetPath}
	if req.DeleteAfter {
		if err = r.Extractor.Remove(datasetPath); err != nil {
			log.Printf("[WARN] can't delete dataset after training, %v", err)
			res.CleanupErr = err
		} else {
			res.Deleted = true
		}
	}
	res.Summary = Summary(datasetPath, req, res.Deleted)
	_, _ = fmt.Fprintln(out, res.Summary)
	log.Printf("[INFO] completed training %s", datasetPath)

	r.notifyCompletion(ctx, req, res)
	return res, nil
}

// Stream runs training in background and reports progress and the final state over returned channel.
// The channel gets zero or more progress updates, then exactly one Result or Err update, and closed.
// Caller should read it until closed or cancel ctx; after cancellation the producer never blocks,
// so the caller may stop reading.
func (r *Runner) Stream(ctx context.Context, req request.Training) <-chan Update {
	ch := make(chan Update, 1)
	go func() {
		defer close(ch)
		res, err := r.Run(ctx, req, func(p Progress) {
			select {
			case ch <- Update{Progress: &p}:
			case <-ctx.Done():
			}
		})
		if err != nil {
			sendFinal(ctx, ch, Update{Err: err})
			return
		}
		sendFinal(ctx, ch, Update{Result: &res})
	}()
	return ch
}

// sendFinal blocks until the final update is taken while ctx is alive. Once ctx is canceled,
// unread progress is dropped from the buffer and the final update takes its place.
func sendFinal(ctx context.Context, ch chan Update, upd Update) {
	select {
	case ch <- upd:
		return
	case <-ctx.Done():
	}
	select {
	case <-ch:
	default:
	}
	ch <- upd // only this goroutine sends, the buffer slot is free here
}

// Summary makes final status line for completed run
func Summary(datasetPath string, req request.Training, deleted bool) string {
	res := fmt.Sprintf("Training with dataset: %s, model: %s, lr: %s, batch: %s, rank: %s.",
		datasetPath, req.ModelName, req.LearningRate, req.BatchSize, req.Rank)
	if deleted {
		res += " Dataset deleted after training."
	}
	return res
}

// train emits progress for each step of each epoch and waits Delay after each step
func (r *Runner) train(ctx context.Context, out io.Writer, onProgress func(Progress)) error {
	epochs, steps, delay := r.plan()
	for epoch := 1; epoch <= epochs; epoch++ {
		for step := 1; step <= steps; step++ {
			p := Progress{Epoch: epoch, TotalEpochs: epochs, Step: step, TotalSteps: steps}
			_, _ = fmt.Fprintln(out, p.String())
			if onProgress != nil {
				onProgress(p)
			}
			if err := wait(ctx, delay); err != nil {
				return fmt.Errorf("%w at %s: %w", ErrCanceled, p, err)
			}
		}
	}
	return nil
}

func (r *Runner) plan() (epochs, steps int, delay time.Duration) {
	epochs, steps, delay = r.Epochs, r.Steps, r.Delay
	if epochs <= 0 {
		epochs = defaultEpochs
	}
	if steps <= 0 {
		steps = defaultSteps
	}
	if delay < 0 {
		delay = 0
	}
	return epochs, steps, delay
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	tm := time.NewTimer(delay)
	defer tm.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tm.C:
		return nil
	}
}

func (r *Runner) stdout() io.Writer {
	if r.Stdout == nil {
		return os.Stdout
	}
	return r.Stdout
}

func (r *Runner) notifyFailure(ctx context.Context, req request.Training, datasetPath string, runErr error, capture *OutputCapture) {
	if r.Notifier == nil || !r.Notifier.IsOnError() {
		return
	}
	errMsg := runErr.Error()
	if output := capture.GetOutput(); output != "" {
		errMsg += "\n\n" + output
	}
	msg, err := r.Notifier.MakeErrorHTML(datasetPath, req.ModelName, errMsg)
	if err != nil {
		log.Printf("[WARN] can't make html message, %v", err)
		return
	}
	r.send(ctx, fmt.Sprintf("failed training %q on %s", filepath.Base(datasetPath), r.HostName), msg)
}

func (r *Runner) notifyCompletion(ctx context.Context, req request.Training, res Result) {
	if r.Notifier == nil || !r.Notifier.IsOnCompletion() {
		return
	}
	msg, err := r.Notifier.MakeCompletionHTML(res.DatasetPath, req.ModelName, res.Summary)
	if err != nil {
		log.Printf("[WARN] can't make html message, %v", err)
		return
	}
	r.send(ctx, fmt.Sprintf("completed training %q on %s", filepath.Base(res.DatasetPath), r.HostName), msg)
}

// send delivers notification with timeout, canceled run still gets its notification
func (r *Runner) send(ctx context.Context, subj, msg string) {
	timeout := r.NotifyTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctxTimeout, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	sendFn := func() error { return r.Notifier.Send(ctxTimeout, subj, msg) }
	var err error
	if r.Repeater != nil {
		err = r.Repeater.Do(ctxTimeout, sendFn)
	} else {
		err = sendFn()
	}
	if err != nil {
		log.Printf("[WARN] failed to send notification %q, %v", subj, err)
	}
}
