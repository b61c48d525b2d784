package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ivlev/vidstab/internal/config"
	"github.com/ivlev/vidstab/internal/engine"
	"github.com/ivlev/vidstab/internal/system"
)

func writeStats(ctx context.Context, w io.Writer, cfg *config.Config, res *engine.Result, codec string, total time.Duration) {
	fps := 0.0
	if total > 0 {
		fps = float64(res.Written) / total.Seconds()
	}

	mem := "unavailable"
	if snap, err := system.Snapshot(ctx); err == nil {
		mem = snap.String()
	}

	fmt.Fprintf(w,
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Run: %s\n"+
			"Total Time: %.2fs\n"+
			"Analysis: %.2fs\n"+
			"Rendering: %.2fs\n"+
			"Frames: %d (measured %d, fallback %d)\n"+
			"Throughput: %.1f frames/s\n"+
			"Backend: %s | Codec: %s | Workers: %d\n"+
			"Memory: %s\n"+
			"----------------------------\n",
		cfg.BuildVersion, res.RunID, total.Seconds(),
		res.AnalyzeTime.Seconds(), res.RenderTime.Seconds(),
		res.Written, res.Measured, res.Fallback, fps,
		cfg.Backend, codec, cfg.Workers, mem,
	)
}
