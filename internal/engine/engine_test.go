package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ivlev/vidstab/internal/config"
	"github.com/ivlev/vidstab/internal/motion"
	"github.com/ivlev/vidstab/internal/report"
	"github.com/ivlev/vidstab/internal/source"
	"github.com/ivlev/vidstab/internal/testsupport"
	"github.com/ivlev/vidstab/internal/video"
)

const (
	frameW = 128
	frameH = 96
)

// writeFrames stores n frames in a fresh directory; frame k is rendered by gen(k).
func writeFrames(t *testing.T, n int, gen func(k int) *image.RGBA) string {
	t.Helper()
	dir := t.TempDir()
	for k := 0; k < n; k++ {
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("in_%03d.png", k)))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, gen(k)); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
	return dir
}

type fixture struct {
	cfg  *config.Config
	src  source.Source
	sink *video.PNGSink
	out  string
	stab *Stabilizer
}

func newFixture(t *testing.T, in string, mutate func(*config.Config)) *fixture {
	t.Helper()
	cfg := config.Default()
	cfg.InputPath = in
	cfg.OutputPath = filepath.Join(t.TempDir(), "out")
	cfg.Workers = 3
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	ctx := context.Background()
	src, err := source.Open(ctx, cfg.InputPath, cfg.FPS)
	if err != nil {
		t.Fatalf("source.Open: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	info := src.Info()
	sink, err := video.NewPNGSink(cfg.OutputPath, video.Format{Width: info.Width, Height: info.Height, FPS: info.FPS})
	if err != nil {
		t.Fatalf("NewPNGSink: %v", err)
	}

	backend, err := NewBackend(cfg.Backend, cfg)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	return &fixture{
		cfg:  cfg,
		src:  src,
		sink: sink,
		out:  cfg.OutputPath,
		stab: NewStabilizer(cfg, src, sink, backend),
	}
}

func readFrame(t *testing.T, dir string, k int) *image.RGBA {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, fmt.Sprintf("frame_%06d.png", k)))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok {
		b := img.Bounds()
		rgba = image.NewRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				rgba.Set(x, y, img.At(x, y))
			}
		}
	}
	return rgba
}

func TestRunPreservesFrameCountAndSize(t *testing.T) {
	const n = 8
	in := writeFrames(t, n, func(k int) *image.RGBA {
		return testsupport.RGBAFrame(frameW, frameH, 1.5*float64(k), 0.5*float64(k))
	})
	fx := newFixture(t, in, nil)

	res, err := fx.stab.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Frames != n || res.Written != n {
		t.Fatalf("Expected %d frames in and out, got %d / %d", n, res.Frames, res.Written)
	}
	if res.Sequence.Len() != n-1 {
		t.Errorf("Expected %d transforms, got %d", n-1, res.Sequence.Len())
	}
	if fx.sink.Written() != n {
		t.Errorf("Sink received %d frames", fx.sink.Written())
	}
	for k := 0; k < n; k++ {
		if b := readFrame(t, fx.out, k).Bounds(); b.Dx() != frameW || b.Dy() != frameH {
			t.Errorf("Frame %d has size %v", k, b)
		}
	}
}

func TestAnalyzeMeasuresDrift(t *testing.T) {
	const n = 6
	in := writeFrames(t, n, func(k int) *image.RGBA {
		return testsupport.RGBAFrame(frameW, frameH, 2*float64(k), -float64(k))
	})
	fx := newFixture(t, in, nil)

	seq, frames, err := fx.stab.Analyze(context.Background())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if frames != n {
		t.Fatalf("Expected %d frames, got %d", n, frames)
	}

	want := motion.Translation(2, -1)
	for i := 0; i < seq.Len(); i++ {
		est := seq.At(i)
		if est.IsFallback() {
			t.Fatalf("Pair %d fell back: %v", i, est.Reason)
		}
		if !est.Transform.ApproxEqual(want, 0.2) {
			t.Errorf("Pair %d: expected %v, got %v", i, want, est.Transform)
		}
	}

	// Uniform drift survives smoothing unchanged.
	for i := 0; i < n; i++ {
		if got := seq.Smoothed(i, fx.cfg.Radius); !got.ApproxEqual(want, 0.2) {
			t.Errorf("Frame %d: smoothed %v", i, got)
		}
	}
}

func TestRunStopsAtUndecodableFrame(t *testing.T) {
	const n = 6
	in := writeFrames(t, n, func(k int) *image.RGBA {
		return testsupport.RGBAFrame(frameW, frameH, float64(k), 0)
	})
	if err := os.WriteFile(filepath.Join(in, "in_004.png"), []byte("junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	fx := newFixture(t, in, nil)

	res, err := fx.stab.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Frames != 4 || res.Written != 4 {
		t.Errorf("Expected 4 frames in and out, got %d / %d", res.Frames, res.Written)
	}
	if fx.sink.Written() != 4 {
		t.Errorf("Sink received %d frames", fx.sink.Written())
	}
}

// Camera shake alternating between two positions is removed by smoothing.
func TestAlternatingJitterIsCancelled(t *testing.T) {
	const n = 10
	in := writeFrames(t, n, func(k int) *image.RGBA {
		return testsupport.RGBAFrame(frameW, frameH, 2*float64(k%2), 0)
	})
	fx := newFixture(t, in, nil)

	seq, _, err := fx.stab.Analyze(context.Background())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for i := 0; i < seq.Len(); i++ {
		want := motion.Translation(2, 0)
		if i%2 == 1 {
			want = motion.Translation(-2, 0)
		}
		if est := seq.At(i); est.IsFallback() || !est.Transform.ApproxEqual(want, 0.2) {
			t.Errorf("Pair %d: expected %v, got %v (%v)", i, want, est.Transform, est.Reason)
		}
	}

	// With radius 2 the window holds 5 alternating steps in the interior, so
	// all but one cancel out.
	for i := 2; i < seq.Len()-2; i++ {
		got := seq.Smoothed(i, 2)
		if !got.ApproxEqual(motion.Identity(), 0.7) {
			t.Errorf("Frame %d: smoothed %v, want near identity", i, got)
		}
	}
}

func TestStaticSceneIsUntouched(t *testing.T) {
	const n = 4
	in := writeFrames(t, n, func(int) *image.RGBA {
		return testsupport.RGBAFrame(frameW, frameH, 0, 0)
	})
	fx := newFixture(t, in, func(c *config.Config) { c.Enhance.Enabled = false })

	if _, err := fx.stab.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := testsupport.RGBAFrame(frameW, frameH, 0, 0)
	for k := 0; k < n; k++ {
		got := readFrame(t, fx.out, k)
		for y := 2; y < frameH-2; y++ {
			for x := 2; x < frameW-2; x++ {
				a, b := got.RGBAAt(x, y), want.RGBAAt(x, y)
				if diff(a.R, b.R) > 1 || diff(a.G, b.G) > 1 || diff(a.B, b.B) > 1 {
					t.Fatalf("Frame %d pixel (%d,%d): %v, want %v", k, x, y, a, b)
				}
			}
		}
	}
}

func TestFeaturelessVideoFallsBack(t *testing.T) {
	const n = 5
	in := writeFrames(t, n, func(int) *image.RGBA {
		return testsupport.Uniform(64, 48, color.RGBA{90, 120, 150, 255})
	})
	reportPath := filepath.Join(t.TempDir(), "report.yaml")
	fx := newFixture(t, in, func(c *config.Config) { c.ReportPath = reportPath })

	res, err := fx.stab.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Fallback != n-1 || res.Measured != 0 {
		t.Errorf("Expected %d fallbacks, got %d measured / %d fallback", n-1, res.Measured, res.Fallback)
	}
	if res.Written != n {
		t.Errorf("Expected %d frames written, got %d", n, res.Written)
	}

	r, err := report.Read(reportPath)
	if err != nil {
		t.Fatalf("report.Read: %v", err)
	}
	if r.RunID != fx.stab.RunID() || len(r.Frames) != n || r.Summary.Fallback != n-1 {
		t.Errorf("Unexpected report: run %s, %d frames, %+v", r.RunID, len(r.Frames), r.Summary)
	}
	for _, f := range r.Frames {
		if !f.SmoothedTransform().IsIdentity() {
			t.Errorf("Frame %d: expected identity, got %v", f.Index, f.SmoothedTransform())
		}
	}
}

func TestSingleFrameVideo(t *testing.T) {
	in := writeFrames(t, 1, func(int) *image.RGBA {
		return testsupport.RGBAFrame(frameW, frameH, 0, 0)
	})
	fx := newFixture(t, in, nil)

	res, err := fx.stab.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Frames != 1 || res.Written != 1 || res.Sequence.Len() != 0 {
		t.Errorf("Unexpected result %+v", res)
	}
}

func TestProgressReportsBothPhases(t *testing.T) {
	const n = 5
	in := writeFrames(t, n, func(k int) *image.RGBA {
		return testsupport.RGBAFrame(frameW, frameH, float64(k), 0)
	})
	fx := newFixture(t, in, nil)
	rec := &recorder{}
	fx.stab.Progress = rec

	if _, err := fx.stab.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rec.phases) != 2 || rec.phases[0] != "analyze" || rec.phases[1] != "render" {
		t.Errorf("Unexpected phases %v", rec.phases)
	}
	if rec.added != 2*n {
		t.Errorf("Expected %d progress steps, got %d", 2*n, rec.added)
	}
	if rec.finished != 2 {
		t.Errorf("Expected 2 finished phases, got %d", rec.finished)
	}
}

func TestSinkErrorPropagates(t *testing.T) {
	in := writeFrames(t, 3, func(k int) *image.RGBA {
		return testsupport.RGBAFrame(frameW, frameH, float64(k), 0)
	})
	fx := newFixture(t, in, nil)
	fx.stab.Sink = failingSink{}

	if _, err := fx.stab.Run(context.Background()); !errors.Is(err, errSinkFull) {
		t.Errorf("Expected sink error, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	in := writeFrames(t, 3, func(k int) *image.RGBA {
		return testsupport.RGBAFrame(frameW, frameH, float64(k), 0)
	})
	fx := newFixture(t, in, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fx.stab.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestNewBackend(t *testing.T) {
	cfg := config.Default()

	b, err := NewBackend("native", cfg)
	if err != nil {
		t.Fatalf("native: %v", err)
	}
	if b.Name != "native" || b.Tracker == nil || b.Estimator == nil || b.Warper == nil || b.Enhancer == nil {
		t.Errorf("Incomplete native backend: %+v", b)
	}

	if _, err := NewBackend("nope", cfg); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Expected ErrUnknownBackend, got %v", err)
	}

	cfg.Enhance.ClipLimit = 0
	if _, err := NewBackend("native", cfg); err == nil {
		t.Error("Expected error for invalid enhancement settings")
	}
}

type recorder struct {
	mu       sync.Mutex
	phases   []string
	added    int
	finished int
}

func (r *recorder) Start(phase string, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, phase)
}

func (r *recorder) Add(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added += n
}

func (r *recorder) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished++
}

var errSinkFull = errors.New("sink full")

type failingSink struct{}

func (failingSink) WriteFrame(context.Context, *image.RGBA) error { return errSinkFull }
func (failingSink) Close() error { return nil }

func diff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
