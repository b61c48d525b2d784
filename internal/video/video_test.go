package video

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"

	"github.com/ivlev/vidstab/internal/testsupport"
)

func TestBuildFFmpegArgs(t *testing.T) {
	base := Format{Width: 64, Height: 48, FPS: 29.97}

	tests := []struct {
		codec   string
		quality int
		want    []string
	}{
		{"mpeg4", 5, []string{"-q:v", "5"}},
		{"libx264", 23, []string{"-crf", "23", "-preset", "medium"}},
		{"h264_nvenc", 28, []string{"-cq", "28"}},
		{"h264_videotoolbox", 75, []string{"-b:v", "7500k"}},
	}

	for _, tt := range tests {
		t.Run(tt.codec, func(t *testing.T) {
			f := base
			f.Codec, f.Quality = tt.codec, tt.quality
			args := buildFFmpegArgs("out.mp4", f)

			if args[len(args)-1] != "out.mp4" {
				t.Errorf("Output path must be last, got %v", args)
			}
			if !containsSeq(args, []string{"-video_size", "64x48"}) || !containsSeq(args, []string{"-framerate", "29.97"}) {
				t.Errorf("Missing geometry arguments: %v", args)
			}
			if !containsSeq(args, []string{"-c:v", tt.codec}) || !containsSeq(args, tt.want) {
				t.Errorf("Expected %v in %v", tt.want, args)
			}
		})
	}

	noQuality := buildFFmpegArgs("out.mp4", Format{Width: 2, Height: 2, FPS: 30, Codec: "mpeg4"})
	if slices.Contains(noQuality, "-q:v") {
		t.Errorf("Zero quality should keep encoder defaults: %v", noQuality)
	}
}

func TestWriteRawRGBARepacksSubImages(t *testing.T) {
	full := testsupport.RGBAFrame(8, 8, 0, 0)
	sub := full.SubImage(image.Rect(2, 2, 6, 5)).(*image.RGBA)

	var buf bytes.Buffer
	if err := writeRawRGBA(&buf, sub); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 4*3*4 {
		t.Fatalf("Expected %d bytes, got %d", 4*3*4, buf.Len())
	}
	if !bytes.Equal(buf.Bytes()[:4], full.Pix[full.PixOffset(2, 2):full.PixOffset(2, 2)+4]) {
		t.Error("First pixel does not match the sub-image origin")
	}
}

func TestPNGSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "frames")
	ctx := context.Background()

	sink, err := Open(ctx, dir, Format{Width: 16, Height: 12})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := sink.WriteFrame(ctx, testsupport.RGBAFrame(16, 12, float64(i), 0)); err != nil {
			t.Fatalf("WriteFrame %d: %v", i, err)
		}
	}
	if err := sink.WriteFrame(ctx, testsupport.RGBAFrame(10, 12, 0, 0)); !errors.Is(err, ErrSinkSize) {
		t.Errorf("Expected ErrSinkSize, got %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sink.WriteFrame(ctx, testsupport.RGBAFrame(16, 12, 0, 0)); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Expected ErrSinkClosed, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 files, got %d", len(entries))
	}

	f, err := os.Open(filepath.Join(dir, "frame_000002.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	want := testsupport.RGBAFrame(16, 12, 2, 0)
	r, g, b, _ := img.At(3, 3).RGBA()
	c := want.RGBAAt(3, 3)
	if uint8(r>>8) != c.R || uint8(g>>8) != c.G || uint8(b>>8) != c.B {
		t.Error("Stored frame does not match the written frame")
	}
}

func TestFFmpegSink(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not installed")
	}
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.mp4")

	sink, err := Open(ctx, path, Format{Width: 32, Height: 32, FPS: 10, Codec: "mpeg4", Quality: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := sink.WriteFrame(ctx, testsupport.RGBAFrame(32, 32, float64(i), 0)); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Fatalf("Output not written: %v", err)
	}
}

func containsSeq(args, seq []string) bool {
	for i := 0; i+len(seq) <= len(args); i++ {
		if slices.Equal(args[i:i+len(seq)], seq) {
			return true
		}
	}
	return false
}
