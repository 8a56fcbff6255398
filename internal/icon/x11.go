package icon

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strconv"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
)

// X11Extractor reads _NET_WM_ICON straight from the X server and encodes
// PNG in process, without temp files or subprocesses.
type X11Extractor struct {
	conn     *xgb.Conn
	iconAtom xproto.Atom
	size     int
	mu       sync.Mutex
}

// NewX11Extractor connects to the X server named by $DISPLAY
func NewX11Extractor(size int) (*X11Extractor, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	name := "_NET_WM_ICON"
	reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to intern %s: %w", name, err)
	}

	return &X11Extractor{conn: conn, iconAtom: reply.Atom, size: size}, nil
}

// Name returns the extractor name
func (e *X11Extractor) Name() string {
	return "x11"
}

// Close closes the X connection
func (e *X11Extractor) Close() error {
	e.conn.Close()
	return nil
}

// Extract implements Extractor
func (e *X11Extractor) Extract(ctx context.Context, req Request) (Icon, error) {
	if err := ctx.Err(); err != nil {
		return Icon{}, err
	}

	win, err := parseWindowID(req.WindowID)
	if err != nil {
		return Icon{}, err
	}

	e.mu.Lock()
	reply, err := xproto.GetProperty(
		e.conn,
		false,
		win,
		e.iconAtom,
		xproto.AtomCardinal,
		0,
		(1<<32)-1,
	).Reply()
	e.mu.Unlock()
	if err != nil {
		return Icon{}, fmt.Errorf("failed to read _NET_WM_ICON of %s: %w", req.WindowID, err)
	}
	if reply.ValueLen == 0 {
		return Icon{}, ErrNoIcon
	}

	raw, ok := pickIcon(parseIconData(decodeCardinals(reply.Value)), e.size)
	if !ok {
		return Icon{}, ErrNoIcon
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, scale(raw.toNRGBA(), e.size)); err != nil {
		return Icon{}, fmt.Errorf("failed to encode icon: %w", err)
	}

	return Icon{PID: req.PID, WindowID: req.WindowID, PNG: buf.Bytes()}, nil
}

// decodeCardinals reads little-endian 32-bit values as the X server sends them
func decodeCardinals(value []byte) []uint32 {
	out := make([]uint32, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		out = append(out, uint32(value[i])|
			uint32(value[i+1])<<8|
			uint32(value[i+2])<<16|
			uint32(value[i+3])<<24)
	}
	return out
}

func parseWindowID(id string) (xproto.Window, error) {
	v, err := strconv.ParseUint(id, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid window id %q: %w", id, err)
	}
	return xproto.Window(v), nil
}
