package window

import "testing"

func TestParseWmctrl(t *testing.T) {
	out := `0x03a00007  0 2714   0    0    1920 1080 host eXtern OS Desktop
0x04400003  0 3120   120  80   800  600  host Terminal  -  ~/src
0x04600001 -1 3301   10   10   300  200  host Sticky Note

garbage line
0xzz 0 1 2 3 4 5 host Bad numbers
0x04800004  1 abc    0    0    10   10   host Bad pid
`
	snap := ParseWmctrl(out)

	if snap.RawCount != 6 {
		t.Errorf("expected raw count 6, got %d", snap.RawCount)
	}
	if len(snap.Lines) != 4 {
		t.Fatalf("expected 4 parsed lines, got %d: %+v", len(snap.Lines), snap.Lines)
	}

	first := snap.Lines[0]
	if first.ID != "0x03a00007" || first.PID != 2714 || first.Title != "eXtern OS Desktop" {
		t.Errorf("unexpected first line %+v", first)
	}
	if first.Geometry != (Geometry{X: 0, Y: 0, Width: 1920, Height: 1080}) {
		t.Errorf("unexpected geometry %+v", first.Geometry)
	}

	if snap.Lines[1].Title != "Terminal  -  ~/src" {
		t.Errorf("title spacing should be preserved, got %q", snap.Lines[1].Title)
	}
	if snap.Lines[2].Desktop != -1 {
		t.Errorf("expected sticky desktop -1, got %d", snap.Lines[2].Desktop)
	}
	if snap.Lines[3].ID != "0xzz" {
		t.Errorf("ids are opaque and must not be validated numerically, got %q", snap.Lines[3].ID)
	}
}

func TestParseWmctrl_EmptyTitle(t *testing.T) {
	snap := ParseWmctrl("0x01 0 10 0 0 5 5 host\n")
	if len(snap.Lines) != 1 || snap.Lines[0].Title != "" {
		t.Errorf("expected one untitled line, got %+v", snap.Lines)
	}
}

func TestParseWmctrl_Empty(t *testing.T) {
	snap := ParseWmctrl("")
	if snap.RawCount != 0 || len(snap.Lines) != 0 {
		t.Errorf("expected empty snapshot, got %+v", snap)
	}
}
