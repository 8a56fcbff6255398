package window

import (
	"context"
	"fmt"

	"github.com/externos/hubd/internal/executor"
)

// Backend lists and activates windows through the windowing system
type Backend interface {
	// ListWindows returns one parsed snapshot of all managed windows
	ListWindows(ctx context.Context) (Snapshot, error)

	// Activate switches to the window's desktop and raises it
	Activate(ctx context.Context, id string) error

	// Name returns the backend name (e.g. "wmctrl")
	Name() string
}

// WmctrlBackend implements Backend by running wmctrl
type WmctrlBackend struct {
	exec *executor.Executor
}

// NewWmctrlBackend creates a wmctrl backend running commands through exec
func NewWmctrlBackend(exec *executor.Executor) *WmctrlBackend {
	return &WmctrlBackend{exec: exec}
}

// ListWindowsCommand is the window-list query
var ListWindowsCommand = executor.Cmd("wmctrl", "-l", "-p", "-G")

// ListWindows runs `wmctrl -l -p -G` and parses it
func (b *WmctrlBackend) ListWindows(ctx context.Context) (Snapshot, error) {
	res := b.exec.Run(ctx, ListWindowsCommand)
	if res.Failed() {
		return Snapshot{}, fmt.Errorf("wmctrl list failed: %w", res.Err)
	}
	return ParseWmctrl(res.Stdout), nil
}

// Activate runs `wmctrl -ia <id>`
func (b *WmctrlBackend) Activate(ctx context.Context, id string) error {
	res := b.exec.Run(ctx, executor.Cmd("wmctrl", "-ia", id))
	if res.Failed() {
		return fmt.Errorf("wmctrl activate %s failed: %w", id, res.Err)
	}
	return nil
}

// Name returns the backend name
func (b *WmctrlBackend) Name() string {
	return "wmctrl"
}
