// Package batch runs the tagger over every image of an import directory and
// writes tagged copies into an export directory.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/electronjoe/gpstag/internal/observability"
	"github.com/electronjoe/gpstag/internal/photo"
	"github.com/electronjoe/gpstag/internal/tagger"
)

// ErrAlreadyRun is reported when Run is called a second time.
var ErrAlreadyRun = errors.New("batch already run")

// Config wires a Worker.
type Config struct {
	ImportDir string
	ExportDir string
	Tagger    *tagger.Tagger
	// Metadata defaults to photo.Exif.
	Metadata Metadata
	// IFDO and KML are optional.
	IFDO IFDOSink
	KML  KMLSink
	// Attribution is written into every tagged copy alongside the GPS block.
	Attribution photo.Tags
	Logger      zerolog.Logger
	Metrics     *observability.Metrics
}

// Worker geotags one import directory into one export directory.
type Worker struct {
	cfg     Config
	runID   string
	started atomic.Bool
}

// New validates cfg and returns a Worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Tagger == nil {
		return nil, errors.New("batch: no tagger")
	}
	if err := CheckDirs(cfg.ImportDir, cfg.ExportDir); err != nil {
		return nil, err
	}
	if cfg.Metadata == nil {
		cfg.Metadata = photo.Exif{}
	}

	runID := uuid.NewString()
	cfg.Logger = cfg.Logger.With().Str("component", "batch").Str("run", runID).Logger()
	return &Worker{cfg: cfg, runID: runID}, nil
}

// CheckDirs rejects empty, identical or nested import and export
// directories. It does not touch the filesystem.
func CheckDirs(importDir, exportDir string) error {
	if importDir == "" {
		return errors.New("import directory not set")
	}
	if exportDir == "" {
		return errors.New("export directory not set")
	}
	in, err := filepath.Abs(importDir)
	if err != nil {
		return fmt.Errorf("resolve import directory: %w", err)
	}
	out, err := filepath.Abs(exportDir)
	if err != nil {
		return fmt.Errorf("resolve export directory: %w", err)
	}
	if in == out {
		return fmt.Errorf("import and export directory are both %s", in)
	}
	if rel, err := filepath.Rel(in, out); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("export directory %s is inside import directory %s", out, in)
	}
	return nil
}

// RunID identifies this worker's run in logs and summaries.
func (w *Worker) RunID() string { return w.runID }

// Run processes the batch in a background goroutine and streams its
// events. The stream always ends with one EventFinished; callers drain it
// until it closes, which Collect does.
//
// Canceling ctx stops the run between images. Collaborators are still
// finalized and the Finished summary has Canceled set. After cancellation
// the goroutine exits even if nobody reads the stream any more; the
// Finished event is left in the channel's buffer.
func (w *Worker) Run(ctx context.Context) <-chan Event {
	out := make(chan Event, 1)
	r := &run{
		w:   w,
		ctx: ctx,
		out: out,
		log: w.cfg.Logger,
		summary: Summary{
			RunID:     w.runID,
			ImportDir: w.cfg.ImportDir,
			ExportDir: w.cfg.ExportDir,
		},
	}

	if !w.started.CompareAndSwap(false, true) {
		go func() {
			defer close(out)
			r.diag("%v", ErrAlreadyRun)
			r.finish()
		}()
		return out
	}

	go func() {
		defer close(out)
		r.loop()
	}()
	return out
}

type run struct {
	w       *Worker
	ctx     context.Context
	out     chan Event
	log     zerolog.Logger
	summary Summary
}

func (r *run) loop() {
	cfg := r.w.cfg
	r.log.Info().Str("import", cfg.ImportDir).Str("export", cfg.ExportDir).
		Str("offset", cfg.Tagger.Offset().String()).Msg("starting batch")
	r.w.cfg.Metrics.SetTrackFixes(cfg.Tagger.Track().Len())

	paths, err := photo.List(r.log, cfg.ImportDir, cfg.ExportDir)
	if err != nil {
		r.diag("list images: %v", err)
	}
	r.summary.Total = len(paths)

	for _, path := range paths {
		if r.ctx.Err() != nil {
			r.summary.Canceled = true
			break
		}

		outcome := r.process(path)
		r.summary.Completed++
		switch outcome {
		case OutcomeTagged:
			r.summary.Tagged++
		default:
			r.summary.Skipped++
		}

		if !r.emit(Event{
			Kind:      EventProgress,
			Completed: r.summary.Completed,
			Total:     r.summary.Total,
			Path:      path,
			Outcome:   outcome,
		}) {
			r.summary.Canceled = true
			break
		}
	}

	if r.ctx.Err() != nil {
		r.summary.Canceled = true
	}
	r.finalize()
	r.summary.Done = !r.summary.Canceled
	r.w.cfg.Metrics.MarkFinished(time.Now())
	r.log.Info().Int("total", r.summary.Total).Int("tagged", r.summary.Tagged).
		Int("skipped", r.summary.Skipped).Bool("canceled", r.summary.Canceled).Msg("batch finished")
	r.finish()
}

// process handles one image and never panics.
func (r *run) process(path string) (outcome Outcome) {
	cfg := r.w.cfg
	start := time.Now()
	rel, err := filepath.Rel(cfg.ImportDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	reason := ""
	dst := ""

	defer func() {
		if p := recover(); p != nil {
			if dst != "" {
				os.Remove(dst)
			}
			r.diag("%s: unexpected failure: %v", rel, p)
			outcome = OutcomeFailed
			reason = "panic"
		}
		cfg.Metrics.ObserveImage(outcome.String(), reason, start)
	}()

	capture, err := cfg.Metadata.ReadCapture(path)
	if err != nil {
		r.diag("%s: read metadata: %v", rel, err)
		reason = "read"
		return OutcomeFailed
	}

	res := cfg.Tagger.TagImage(capture.Time)
	if res.Status != tagger.Tagged {
		reason = res.Reason.String()
		if res.Reason == tagger.OutOfTrackRange {
			r.diag("%s: skipped: %s (corrected time %s)", rel, reason, res.Corrected.Format(time.RFC3339))
		} else {
			r.diag("%s: skipped: %s", rel, reason)
		}
		return OutcomeSkipped
	}

	target := filepath.Join(cfg.ExportDir, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		r.diag("%s: create export directory: %v", rel, err)
		reason = "mkdir"
		return OutcomeFailed
	}
	dst = target
	if err := photo.CopyFile(path, dst); err != nil {
		os.Remove(dst)
		r.diag("%s: copy: %v", rel, err)
		reason = "copy"
		return OutcomeFailed
	}
	if err := cfg.Metadata.WriteTags(dst, res.Tags(cfg.Attribution)); err != nil {
		if rmErr := os.Remove(dst); rmErr != nil {
			r.log.Warn().Err(rmErr).Str("path", dst).Msg("remove untagged copy")
		}
		r.diag("%s: write tags: %v", rel, err)
		reason = "write"
		return OutcomeFailed
	}

	r.log.Debug().Str("path", rel).Float64("lat", res.Position.Latitude).
		Float64("lon", res.Position.Longitude).Time("corrected", res.Corrected).Msg("tagged")
	r.collect(rel, dst, capture, res)
	return OutcomeTagged
}

// collect forwards a tagged image to the collaborators. Their failures are
// diagnostics only.
func (r *run) collect(rel, dst string, capture photo.Capture, res tagger.Result) {
	cfg := r.w.cfg
	if cfg.IFDO != nil {
		sum, err := photo.HashFile(dst)
		if err != nil {
			r.diag("%s: hash: %v", rel, err)
		} else if err := safeCall(func() error {
			return cfg.IFDO.AddImage(IFDORecord{
				RelPath:   rel,
				Corrected: res.Corrected,
				Latitude:  res.Position.Latitude,
				Longitude: res.Position.Longitude,
				Platform:  capture.Platform(),
				SHA256:    sum,
			})
		}); err != nil {
			r.diag("%s: ifdo: %v", rel, err)
		}
	}
	if cfg.KML != nil {
		if err := safeCall(func() error {
			return cfg.KML.AddPoint(KMLPoint{Path: dst, Position: res.Position})
		}); err != nil {
			r.diag("%s: kml: %v", rel, err)
		}
	}
}

func (r *run) finalize() {
	cfg := r.w.cfg
	if cfg.IFDO != nil {
		if err := safeCall(cfg.IFDO.Finalize); err != nil {
			r.diag("finalize ifdo: %v", err)
		}
	}
	if cfg.KML != nil {
		if err := safeCall(cfg.KML.Finalize); err != nil {
			r.diag("finalize kml: %v", err)
		}
	}
}

// safeCall runs a collaborator method, turning a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}

func (r *run) diag(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.summary.Diagnostics = append(r.summary.Diagnostics, msg)
	r.log.Warn().Msg(msg)
	r.emit(Event{Kind: EventDiagnostic, Message: msg})
}

// emit delivers e unless the run has been canceled.
func (r *run) emit(e Event) bool {
	if r.ctx.Err() != nil {
		return false
	}
	select {
	case r.out <- e:
		return true
	case <-r.ctx.Done():
		return false
	}
}

// finish delivers the final event. Once canceled, an event still
// sitting in the buffer is dropped to make room, so the send cannot block
// on a consumer that stopped reading.
func (r *run) finish() {
	s := r.summary
	s.Diagnostics = append([]string(nil), r.summary.Diagnostics...)
	if r.ctx.Err() != nil {
		select {
		case <-r.out:
		default:
		}
	}
	r.out <- Event{
		Kind:      EventFinished,
		Completed: s.Completed,
		Total:     s.Total,
		Summary:   &s,
	}
}
