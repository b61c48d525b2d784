package system

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// DetectH264Encoder спрашивает у ffmpeg список собранных энкодеров и выбирает
// аппаратный H.264, если он есть, иначе libx264.
//
// Приоритеты:
// 1. MacOS (VideoToolbox)
// 2. NVIDIA (NVENC)
// 3. Software (libx264)
func DetectH264Encoder(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	return pickEncoder(string(out))
}

func pickEncoder(listing string) string {
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(listing, name) {
			return name
		}
	}
	return "libx264"
}

// Stats - снимок использования памяти на момент вызова.
type Stats struct {
	ProcessRSS  uint64
	SystemTotal uint64
	SystemUsed  uint64
	UsedPercent float64
}

// Snapshot читает потребление памяти процессом и системой в целом.
func Snapshot(ctx context.Context) (Stats, error) {
	var s Stats

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("system memory: %w", err)
	}
	s.SystemTotal = vm.Total
	s.SystemUsed = vm.Used
	s.UsedPercent = vm.UsedPercent

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return s, fmt.Errorf("process handle: %w", err)
	}
	info, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return s, fmt.Errorf("process memory: %w", err)
	}
	s.ProcessRSS = info.RSS
	return s, nil
}

func (s Stats) String() string {
	return fmt.Sprintf("rss %s, system %s / %s (%.1f%%)",
		formatBytes(s.ProcessRSS), formatBytes(s.SystemUsed), formatBytes(s.SystemTotal), s.UsedPercent)
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
