// Package batch runs a classifier or detector over many images with a pool of
// workers, each owning its own model instance.
package batch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeKo-Tech/roadsign/internal/classifier"
	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/imageio"
	"github.com/MeKo-Tech/roadsign/internal/render"
)

// ErrNoItems is returned by Run when there is nothing to process.
var ErrNoItems = errors.New("no images to process")

// Mode selects which model a batch runs.
type Mode string

const (
	ModeClassify Mode = "classify"
	ModeDetect   Mode = "detect"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case ModeClassify:
		return ModeClassify, nil
	case ModeDetect:
		return ModeDetect, nil
	default:
		return "", fmt.Errorf("unknown batch mode %q (want classify or detect)", s)
	}
}

// Item is one unit of work. When Image is set it is used as is; otherwise
// Source is loaded from disk.
type Item struct {
	Source string
	Page   int // PDF page number, 0 for plain image files
	Image  image.Image
}

// Name identifies the item in reports.
func (it Item) Name() string {
	if it.Page > 0 {
		return fmt.Sprintf("%s#page=%d", it.Source, it.Page)
	}
	return it.Source
}

// ItemsFromPaths wraps file paths as items.
func ItemsFromPaths(paths []string) []Item {
	items := make([]Item, len(paths))
	for i, p := range paths {
		items[i] = Item{Source: p}
	}
	return items
}

// Result is the outcome for one item.
type Result struct {
	Item           Item
	Classification *classifier.Result
	Detections     []detector.Detection
	Text           string
	Overlay        string
	Err            error
	Duration       time.Duration
}

// Options configures Run.
type Options struct {
	Workers         int  // 0 = runtime.NumCPU()
	ContinueOnError bool // false cancels remaining items after the first failure
	OverlayDir      string
	OverlayFormat   render.Format
	OverlayStyle    *render.Options // nil uses render.DefaultOptions
	Progress        ProgressCallback
}

// Report holds the ordered results of a batch.
type Report struct {
	Results  []Result
	Duration time.Duration
	Workers  int
}

// Failed counts results carrying an error.
func (r *Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Succeeded counts results without an error.
func (r *Report) Succeeded() int { return len(r.Results) - r.Failed() }

type job struct {
	index int
	item  Item
}

// Run processes items with opts.Workers workers. Every worker obtains its own
// model through factory and closes it when the queue drains. Results keep the
// order of items. With ContinueOnError unset, the first failure cancels the
// remaining items and is returned alongside the partial report.
func Run(ctx context.Context, items []Item, factory Factory, opts Options) (*Report, error) {
	if len(items) == 0 {
		return nil, ErrNoItems
	}
	if factory == nil {
		return nil, errors.New("batch: nil worker factory")
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(items))

	pool := make([]Worker, 0, workers)
	for i := range workers {
		w, err := factory()
		if err != nil {
			closeWorkers(pool)
			return nil, fmt.Errorf("failed to create worker %d: %w", i, err)
		}
		pool = append(pool, w)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := opts.Progress
	if progress == nil {
		progress = NoOpProgress{}
	}
	progress.OnStart(len(items))
	defer progress.OnComplete()

	jobs := make(chan job, len(items))
	for i, it := range items {
		jobs <- job{index: i, item: it}
	}
	close(jobs)

	results := make([]Result, len(items))
	var (
		wg        sync.WaitGroup
		done      atomic.Int64
		firstErr  error
		errOnce   sync.Once
		startTime = time.Now()
	)

	for _, w := range pool {
		wg.Add(1)
		go func(w Worker) {
			defer wg.Done()
			defer func() {
				if err := w.Close(); err != nil {
					slog.Warn("Failed to close batch worker", "error", err)
				}
			}()

			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results[j.index] = Result{Item: j.item, Err: err}
					continue
				}

				res := processItem(w, j.item, opts)
				results[j.index] = res

				n := int(done.Add(1))
				if res.Err != nil {
					slog.Warn("Batch item failed", "item", j.item.Name(), "error", res.Err)
					progress.OnError(n, res.Err)
					if !opts.ContinueOnError {
						errOnce.Do(func() {
							firstErr = fmt.Errorf("%s: %w", j.item.Name(), res.Err)
							cancel()
						})
					}
				}
				progress.OnProgress(n, len(items))
			}
		}(w)
	}
	wg.Wait()

	report := &Report{Results: results, Duration: time.Since(startTime), Workers: workers}
	if firstErr != nil {
		return report, firstErr
	}
	return report, nil
}

func processItem(w Worker, it Item, opts Options) Result {
	start := time.Now()
	res := Result{Item: it}

	img := it.Image
	if img == nil {
		loaded, _, err := imageio.Load(it.Source)
		if err != nil {
			res.Err = err
			res.Duration = time.Since(start)
			return res
		}
		img = loaded
	}

	out, err := w.Process(img)
	if err != nil {
		res.Err = err
		res.Duration = time.Since(start)
		return res
	}
	res.Classification = out.Classification
	res.Detections = out.Detections
	res.Text = out.Text

	if opts.OverlayDir != "" && out.Detections != nil {
		path, err := writeOverlay(img, out.Detections, it, opts)
		if err != nil {
			slog.Warn("Failed to write overlay", "item", it.Name(), "error", err)
		} else {
			res.Overlay = path
		}
	}
	res.Duration = time.Since(start)
	return res
}

// OverlayPath is the file an item's overlay is written to.
func OverlayPath(dir string, it Item, format render.Format) string {
	base := filepath.Base(it.Source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if it.Page > 0 {
		stem = fmt.Sprintf("%s_p%d", stem, it.Page)
	}
	return filepath.Join(dir, stem+"_overlay"+format.Extension())
}

func writeOverlay(img image.Image, dets []detector.Detection, it Item, opts Options) (string, error) {
	if err := os.MkdirAll(opts.OverlayDir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create overlay directory: %w", err)
	}
	format := opts.OverlayFormat
	if format == "" {
		format = render.FormatPNG
	}
	outPath := OverlayPath(opts.OverlayDir, it, format)

	f, err := os.Create(outPath) //nolint:gosec // G304: path built from the overlay-dir setting
	if err != nil {
		return "", err
	}
	style := render.DefaultOptions()
	if opts.OverlayStyle != nil {
		style = *opts.OverlayStyle
	}
	encErr := render.Encode(f, render.Draw(img, dets, style), format)
	if err := f.Close(); err != nil && encErr == nil {
		encErr = err
	}
	if encErr != nil {
		return "", encErr
	}
	return outPath, nil
}

func closeWorkers(pool []Worker) {
	for _, w := range pool {
		if err := w.Close(); err != nil {
			slog.Warn("Failed to close batch worker", "error", err)
		}
	}
}
