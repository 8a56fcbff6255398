package icon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/externos/hubd/internal/executor"
	"github.com/externos/hubd/internal/logger"
)

// CommandExtractor reads the icon with xprop, writes it as <pid>.pam into
// Dir and converts it to <pid>.png with ffmpeg. Both files are removed
// before Extract returns.
type CommandExtractor struct {
	exec *executor.Executor
	dir  string
	size int
}

// NewCommandExtractor creates the directory if needed
func NewCommandExtractor(exec *executor.Executor, dir string, size int) (*CommandExtractor, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create icon directory: %w", err)
	}
	return &CommandExtractor{exec: exec, dir: dir, size: size}, nil
}

// Name returns the extractor name
func (e *CommandExtractor) Name() string {
	return "command"
}

// Extract implements Extractor
func (e *CommandExtractor) Extract(ctx context.Context, req Request) (Icon, error) {
	log := logger.WithComponent("icon")

	res := e.exec.Run(ctx, executor.Cmd("xprop", "-id", req.WindowID, "-notype", "32c", "_NET_WM_ICON"))
	if res.Failed() {
		return Icon{}, fmt.Errorf("xprop failed for %s: %w", req.WindowID, res.Err)
	}

	data, err := parseXpropCardinals(res.Stdout)
	if err != nil {
		return Icon{}, err
	}
	raw, ok := pickIcon(parseIconData(data), e.size)
	if !ok {
		return Icon{}, ErrNoIcon
	}

	base := filepath.Join(e.dir, strconv.Itoa(req.PID))
	pamPath, pngPath := base+".pam", base+".png"
	defer func() {
		for _, p := range []string{pamPath, pngPath} {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				log.Warn().Err(err).Str("path", p).Msg("Failed to remove temp icon file")
			}
		}
	}()

	f, err := os.Create(pamPath)
	if err != nil {
		return Icon{}, fmt.Errorf("failed to create %s: %w", pamPath, err)
	}
	if err := writePAM(f, raw.toNRGBA()); err != nil {
		f.Close()
		return Icon{}, fmt.Errorf("failed to write %s: %w", pamPath, err)
	}
	if err := f.Close(); err != nil {
		return Icon{}, err
	}

	args := []string{"-y", "-loglevel", "error", "-i", pamPath}
	if e.size > 0 {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", e.size, e.size))
	}
	args = append(args, pngPath)
	if res := e.exec.Run(ctx, executor.Cmd("ffmpeg", args...)); res.Failed() {
		return Icon{}, fmt.Errorf("ffmpeg conversion failed: %w", res.Err)
	}

	png, err := os.ReadFile(pngPath)
	if err != nil {
		return Icon{}, fmt.Errorf("failed to read %s: %w", pngPath, err)
	}

	log.Debug().Int("pid", req.PID).Str("window", req.WindowID).Int("bytes", len(png)).Msg("Icon extracted")
	return Icon{PID: req.PID, WindowID: req.WindowID, PNG: png}, nil
}
