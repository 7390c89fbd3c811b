package batch

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MeKo-Tech/roadsign/internal/classifier"
	"github.com/MeKo-Tech/roadsign/internal/detector"
	"github.com/MeKo-Tech/roadsign/internal/i18n"
	"github.com/MeKo-Tech/roadsign/internal/labels"
	"github.com/MeKo-Tech/roadsign/internal/render"
	"github.com/MeKo-Tech/roadsign/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorker fails for images whose width is in failWidths.
type fakeWorker struct {
	failWidths map[int]bool
	closed     *atomic.Int32
}

func (w *fakeWorker) Process(img image.Image) (Outcome, error) {
	if img == nil {
		return Outcome{}, errors.New("nil image")
	}
	if w.failWidths[img.Bounds().Dx()] {
		return Outcome{}, errors.New("boom")
	}
	return Outcome{Text: "ok"}, nil
}

func (w *fakeWorker) Close() error {
	w.closed.Add(1)
	return nil
}

func fakeFactory(closed *atomic.Int32, created *atomic.Int32, failWidths ...int) Factory {
	fail := map[int]bool{}
	for _, w := range failWidths {
		fail[w] = true
	}
	return func() (Worker, error) {
		created.Add(1)
		return &fakeWorker{failWidths: fail, closed: closed}, nil
	}
}

func imageItems(widths ...int) []Item {
	items := make([]Item, len(widths))
	for i, w := range widths {
		items[i] = Item{Source: "mem", Page: i + 1, Image: testutil.UniformImage(w, 4, testutil.Gray128)}
	}
	return items
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Detect")
	require.NoError(t, err)
	assert.Equal(t, ModeDetect, m)
	_, err = ParseMode("segment")
	require.Error(t, err)
}

func TestRunClassifierOrdered(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.png", "b.jpg", "c.png", "d.png", "e.png"} {
		p := filepath.Join(dir, name)
		testutil.SaveImage(t, testutil.SignImage(50, 40), p)
		paths = append(paths, p)
	}

	var mu sync.Mutex
	var runners []*testutil.StaticRunner
	factory := func() (Worker, error) {
		r := testutil.NewStaticRunner([]float32{0, 0, 0, 0, 0, 0, 0.8, 0, 0})
		mu.Lock()
		runners = append(runners, r)
		mu.Unlock()
		return NewClassifierWorker(classifier.NewWithRunner(r, labels.Classifier(), classifier.Config{})), nil
	}

	report, err := Run(context.Background(), ItemsFromPaths(paths), factory, Options{Workers: 3})
	require.NoError(t, err)
	require.Len(t, report.Results, len(paths))
	assert.Equal(t, 3, report.Workers)
	assert.Equal(t, len(paths), report.Succeeded())

	for i, res := range report.Results {
		assert.Equal(t, paths[i], res.Item.Source)
		require.NotNil(t, res.Classification)
		assert.Equal(t, "speed limit 60", res.Classification.Label)
		assert.Equal(t, "Znak: speed limit 60 (pewność: 80.00%)", res.Text)
	}

	require.Len(t, runners, 3)
	total := 0
	for _, r := range runners {
		assert.Equal(t, 1, r.Closes(), "every worker closes its model")
		total += r.Calls()
	}
	assert.Equal(t, len(paths), total)
}

func TestRunDetectorWritesOverlays(t *testing.T) {
	outputs := testutil.DetectorOutputs(10, [][4]float32{{0.1, 0.1, 0.6, 0.6}}, []float32{2}, []float32{0.9}, 1)
	factory := func() (Worker, error) {
		d := detector.NewWithRunner(testutil.NewStaticRunner(outputs...), labels.Detector(), detector.Config{})
		return NewDetectorWorker(d, i18n.New("en")), nil
	}
	overlayDir := filepath.Join(t.TempDir(), "overlays")
	items := []Item{{Source: "scan.pdf", Page: 2, Image: testutil.SignImage(80, 60)}}

	report, err := Run(context.Background(), items, factory, Options{
		Workers:       1,
		OverlayDir:    overlayDir,
		OverlayFormat: render.FormatWebP,
	})
	require.NoError(t, err)
	res := report.Results[0]
	require.Len(t, res.Detections, 1)
	assert.Equal(t, "stop", res.Detections[0].Label)
	assert.Equal(t, "Result:\nstop (90.00%)\n", res.Text)
	assert.Equal(t, filepath.Join(overlayDir, "scan_p2_overlay.webp"), res.Overlay)
	assert.FileExists(t, res.Overlay)
}

func TestRunContinueOnError(t *testing.T) {
	var closed, created atomic.Int32
	items := imageItems(10, 11, 12, 13)
	report, err := Run(context.Background(), items, fakeFactory(&closed, &created, 11), Options{
		Workers:         2,
		ContinueOnError: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	require.Error(t, report.Results[1].Err)
	assert.Equal(t, "ok", report.Results[3].Text)
	assert.Equal(t, created.Load(), closed.Load())
}

func TestRunStopsOnFirstError(t *testing.T) {
	var closed, created atomic.Int32
	items := imageItems(10, 11, 12, 13, 14, 15)
	report, err := Run(context.Background(), items, fakeFactory(&closed, &created, 10), Options{Workers: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	require.NotNil(t, report)

	require.Error(t, report.Results[0].Err)
	for _, res := range report.Results[1:] {
		assert.ErrorIs(t, res.Err, context.Canceled)
	}
	assert.Equal(t, int32(1), closed.Load())
}

func TestRunMissingFile(t *testing.T) {
	var closed, created atomic.Int32
	items := []Item{{Source: filepath.Join(t.TempDir(), "gone.png")}}
	report, err := Run(context.Background(), items, fakeFactory(&closed, &created), Options{ContinueOnError: true})
	require.NoError(t, err)
	assert.ErrorIs(t, report.Results[0].Err, os.ErrNotExist)
}

func TestRunFactoryError(t *testing.T) {
	var closed atomic.Int32
	calls := 0
	factory := func() (Worker, error) {
		calls++
		if calls == 2 {
			return nil, errors.New("no model")
		}
		return &fakeWorker{closed: &closed}, nil
	}
	_, err := Run(context.Background(), imageItems(1, 2, 3), factory, Options{Workers: 3})
	require.Error(t, err)
	assert.Equal(t, int32(1), closed.Load())
}

func TestRunNoItems(t *testing.T) {
	_, err := Run(context.Background(), nil, nil, Options{})
	assert.ErrorIs(t, err, ErrNoItems)
}

func TestClassifierFactoryMissingModel(t *testing.T) {
	cfg := classifier.DefaultConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "missing.onnx")
	_, err := ClassifierFactory(cfg)()
	require.Error(t, err)
}

func TestOverlayPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "img_overlay.png"),
		OverlayPath("out", Item{Source: "/data/img.jpg"}, render.FormatPNG))
	assert.Equal(t, filepath.Join("out", "doc_p3_overlay.jpg"),
		OverlayPath("out", Item{Source: "doc.pdf", Page: 3}, render.FormatJPEG))
}
