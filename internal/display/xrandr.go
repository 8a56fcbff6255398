// Package display lists monitors and sets software brightness via xrandr.
package display

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/externos/hubd/internal/config"
	"github.com/externos/hubd/internal/executor"
	"github.com/externos/hubd/internal/logger"
	"github.com/samber/lo"
)

// ErrUnknownOutput is returned for output names xrandr does not report
var ErrUnknownOutput = errors.New("unknown display output")

// Output is one xrandr output
type Output struct {
	Name       string  `json:"name"`
	Connected  bool    `json:"connected"`
	Primary    bool    `json:"primary"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Brightness float64 `json:"brightness"`
}

// Active reports whether the output is connected and has a mode set
func (o Output) Active() bool {
	return o.Connected && o.Width > 0 && o.Height > 0
}

var listCommand = executor.Cmd("xrandr", "--verbose")

func brightnessCommand(output string, level float64) executor.Command {
	return executor.Cmd("xrandr", "--output", output, "--brightness", strconv.FormatFloat(level, 'f', 2, 64))
}

// 1920x1080+0+0
var geometryRe = regexp.MustCompile(`^(\d+)x(\d+)\+(-?\d+)\+(-?\d+)$`)

// ParseVerbose parses `xrandr --verbose` output. Output header lines start
// in column zero; properties and modes are indented.
func ParseVerbose(output string) []Output {
	var outputs []Output
	var cur *Output

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if line[0] != ' ' && line[0] != '\t' {
			if cur != nil {
				outputs = append(outputs, *cur)
				cur = nil
			}
			if strings.HasPrefix(line, "Screen ") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			o := Output{Name: fields[0], Connected: fields[1] == "connected", Brightness: 1}
			for _, f := range fields[2:] {
				if f == "primary" {
					o.Primary = true
					continue
				}
				if m := geometryRe.FindStringSubmatch(f); m != nil {
					o.Width, _ = strconv.Atoi(m[1])
					o.Height, _ = strconv.Atoi(m[2])
					o.X, _ = strconv.Atoi(m[3])
					o.Y, _ = strconv.Atoi(m[4])
					break
				}
			}
			cur = &o
			continue
		}

		if cur == nil {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(trimmed, "Brightness:"); ok {
			if b, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				cur.Brightness = b
			}
		}
	}
	if cur != nil {
		outputs = append(outputs, *cur)
	}
	return outputs
}

// Controller wraps xrandr
type Controller struct {
	exec *executor.Executor
	cfg  config.DisplayConfig
}

// NewController creates a display controller
func NewController(exec *executor.Executor, cfg config.DisplayConfig) *Controller {
	return &Controller{exec: exec, cfg: cfg}
}

// Outputs lists every output xrandr knows about
func (c *Controller) Outputs(ctx context.Context) ([]Output, error) {
	out, err := c.exec.Output(ctx, listCommand)
	if err != nil {
		return nil, fmt.Errorf("xrandr query failed: %w", err)
	}
	return ParseVerbose(out), nil
}

// Clamp limits level to [MinBrightness, 1]
func (c *Controller) Clamp(level float64) float64 {
	if math.IsNaN(level) {
		return 1
	}
	return math.Min(1, math.Max(c.cfg.MinBrightness, level))
}

// SetBrightness sets the gamma brightness of a connected output and
// returns the level actually applied.
func (c *Controller) SetBrightness(ctx context.Context, name string, level float64) (float64, error) {
	outputs, err := c.Outputs(ctx)
	if err != nil {
		return 0, err
	}
	if _, ok := lo.Find(outputs, func(o Output) bool { return o.Name == name && o.Connected }); !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownOutput, name)
	}

	applied := c.Clamp(level)
	if _, err := c.exec.Output(ctx, brightnessCommand(name, applied)); err != nil {
		return 0, fmt.Errorf("set brightness on %s: %w", name, err)
	}

	logger.WithComponent("display").Info().
		Str("output", name).
		Float64("requested", level).
		Float64("applied", applied).
		Msg("Brightness set")
	return applied, nil
}
