// Package icon extracts per-process window icons as PNG images.
package icon

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"
)

// ErrNoIcon is returned when a window exposes no _NET_WM_ICON data
var ErrNoIcon = errors.New("window has no icon")

// Request asks for the icon of a process, read from one of its windows
type Request struct {
	PID      int    `json:"pid"`
	WindowID string `json:"window_id"`
}

// Icon is an extracted PNG
type Icon struct {
	PID      int
	WindowID string
	PNG      []byte
}

// Extractor turns a window into an icon
type Extractor interface {
	Extract(ctx context.Context, req Request) (Icon, error)
	Name() string
}

// rawIcon is one image from a _NET_WM_ICON property: ARGB pixels, row major
type rawIcon struct {
	Width, Height int
	Pixels        []uint32
}

// parseIconData splits the CARDINAL array of _NET_WM_ICON, which holds
// width, height and width*height pixels for each size, back to back.
func parseIconData(data []uint32) []rawIcon {
	var icons []rawIcon
	for i := 0; i+2 <= len(data); {
		w, h := int(data[i]), int(data[i+1])
		i += 2
		n := w * h
		if w <= 0 || h <= 0 || i+n > len(data) {
			break
		}
		icons = append(icons, rawIcon{Width: w, Height: h, Pixels: data[i : i+n]})
		i += n
	}
	return icons
}

// pickIcon returns the smallest icon at least size wide, or the largest
// one if none is big enough.
func pickIcon(icons []rawIcon, size int) (rawIcon, bool) {
	if len(icons) == 0 {
		return rawIcon{}, false
	}
	best := -1
	for i, ic := range icons {
		if ic.Width >= size && (best < 0 || ic.Width < icons[best].Width) {
			best = i
		}
	}
	if best >= 0 {
		return icons[best], true
	}
	largest := icons[0]
	for _, ic := range icons[1:] {
		if ic.Width > largest.Width {
			largest = ic
		}
	}
	return largest, true
}

// toNRGBA converts ARGB cardinals to a non-premultiplied image
func (r rawIcon) toNRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i, p := range r.Pixels {
		img.SetNRGBA(i%r.Width, i/r.Width, color.NRGBA{
			A: uint8(p >> 24),
			R: uint8(p >> 16),
			G: uint8(p >> 8),
			B: uint8(p),
		})
	}
	return img
}

// scale resizes src to size x size. A non-positive size returns src.
func scale(src image.Image, size int) image.Image {
	if size <= 0 || (src.Bounds().Dx() == size && src.Bounds().Dy() == size) {
		return src
	}
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// writePAM writes img as a netpbm PAM RGB_ALPHA file
func writePAM(w io.Writer, img *image.NRGBA) error {
	b := img.Bounds()
	header := fmt.Sprintf("P7\nWIDTH %d\nHEIGHT %d\nDEPTH 4\nMAXVAL 255\nTUPLTYPE RGB_ALPHA\nENDHDR\n", b.Dx(), b.Dy())
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// parseXpropCardinals parses `xprop -notype 32c _NET_WM_ICON` output
func parseXpropCardinals(out string) ([]uint32, error) {
	idx := strings.Index(out, "=")
	if idx < 0 {
		return nil, ErrNoIcon
	}
	parts := strings.Split(out[idx+1:], ",")
	data := make([]uint32, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("bad _NET_WM_ICON value %q: %w", p, err)
		}
		data = append(data, uint32(v))
	}
	if len(data) < 3 {
		return nil, ErrNoIcon
	}
	return data, nil
}
