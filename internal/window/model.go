package window

// Geometry represents window geometry
type Geometry struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// TrackedWindow is a user window discovered by a poll. ID is the opaque
// handle assigned by the window system and is never compared numerically.
type TrackedWindow struct {
	ID       string   `json:"id"`
	Desktop  int      `json:"desktop"` // -1 means sticky (all desktops)
	PID      int      `json:"pid"`
	Geometry Geometry `json:"geometry"`
	Host     string   `json:"host,omitempty"`
	Title    string   `json:"title"`
	AppName  string   `json:"app_name,omitempty"`
	HasIcon  bool     `json:"has_icon"`
}

// ProcessRecord remembers one window per known process so that icon
// extraction is requested once per process.
type ProcessRecord struct {
	PID            int    `json:"pid"`
	SampleWindowID string `json:"sample_window_id"`
	Name           string `json:"name,omitempty"`
}

// Line is one parsed row of `wmctrl -l -p -G`
type Line struct {
	ID       string
	Desktop  int
	PID      int
	Geometry Geometry
	Host     string
	Title    string
}

func (l Line) window() TrackedWindow {
	return TrackedWindow{
		ID:       l.ID,
		Desktop:  l.Desktop,
		PID:      l.PID,
		Geometry: l.Geometry,
		Host:     l.Host,
		Title:    l.Title,
	}
}

// Snapshot is the parsed result of one poll
type Snapshot struct {
	Lines []Line
	// RawCount is the number of non-empty output lines before any
	// filtering, including malformed and shell lines.
	RawCount int
}
