package window

import (
	"github.com/samber/lo"
)

// Trend compares the raw line count of a poll with the previous poll
type Trend int

const (
	TrendSame Trend = iota
	TrendGrew
	TrendShrank
)

func (t Trend) String() string {
	switch t {
	case TrendGrew:
		return "grew"
	case TrendShrank:
		return "shrank"
	default:
		return "same"
	}
}

// State is everything the tracker knows between polls. It is owned by a
// single Tracker and only replaced wholesale by Diff.
type State struct {
	Windows   []TrackedWindow
	Processes map[int]ProcessRecord
	LineCount int
	// ShellPID is the process of the desktop shell window, 0 if unseen
	ShellPID int
}

// NewState returns an empty state
func NewState() State {
	return State{Processes: make(map[int]ProcessRecord)}
}

// Clone returns a deep copy
func (s State) Clone() State {
	out := State{
		Windows:   append([]TrackedWindow(nil), s.Windows...),
		Processes: make(map[int]ProcessRecord, len(s.Processes)),
		LineCount: s.LineCount,
		ShellPID:  s.ShellPID,
	}
	for pid, rec := range s.Processes {
		out.Processes[pid] = rec
	}
	return out
}

// Changes lists what a poll changed
type Changes struct {
	Trend   Trend
	Added   []TrackedWindow
	Removed []TrackedWindow
	Updated []TrackedWindow
	// IconRequests holds one record per process seen for the first time
	IconRequests []ProcessRecord
	// ShellPID is set when the shell window was seen in this poll
	ShellPID int
}

// Empty reports whether nothing changed
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Updated) == 0
}

// Diff reconciles prev against a new snapshot and returns the next state.
// It has no side effects: prev is not modified.
//
// Windows are keyed by id. New ids are appended in output order, vanished
// ids are removed exactly once, and ids present in both have their title,
// desktop and geometry refreshed. The window titled shellTitle, and any
// other window of its process, is never tracked.
func Diff(prev State, snap Snapshot, shellTitle string) (State, Changes) {
	next := prev.Clone()
	next.LineCount = snap.RawCount

	changes := Changes{Trend: trend(prev.LineCount, snap.RawCount)}

	for _, l := range snap.Lines {
		if shellTitle != "" && l.Title == shellTitle && l.PID > 0 {
			next.ShellPID = l.PID
			changes.ShellPID = l.PID
		}
	}

	current := make([]Line, 0, len(snap.Lines))
	seen := make(map[string]bool, len(snap.Lines))
	for _, l := range snap.Lines {
		if seen[l.ID] {
			continue
		}
		seen[l.ID] = true
		if isShell(l, shellTitle, next.ShellPID) {
			continue
		}
		current = append(current, l)
	}
	currentByID := lo.KeyBy(current, func(l Line) string { return l.ID })

	// Removals and in-place updates, preserving previous order
	kept := make([]TrackedWindow, 0, len(next.Windows))
	for _, w := range next.Windows {
		l, ok := currentByID[w.ID]
		if !ok {
			changes.Removed = append(changes.Removed, w)
			continue
		}
		if l.Title != w.Title || l.Geometry != w.Geometry || l.Desktop != w.Desktop || l.PID != w.PID {
			w.Title = l.Title
			w.Geometry = l.Geometry
			w.Desktop = l.Desktop
			w.PID = l.PID
			changes.Updated = append(changes.Updated, w)
		}
		kept = append(kept, w)
	}

	// Additions
	known := lo.SliceToMap(kept, func(w TrackedWindow) (string, bool) { return w.ID, true })
	for _, l := range current {
		if known[l.ID] {
			continue
		}
		w := l.window()
		if rec, ok := next.Processes[w.PID]; ok {
			w.AppName = rec.Name
		}
		kept = append(kept, w)
		known[w.ID] = true
		changes.Added = append(changes.Added, w)
	}
	next.Windows = kept

	// Any tracked window whose process is unknown gets it recorded and
	// requested, including kept windows whose earlier request was dropped.
	for _, w := range kept {
		if w.PID <= 0 {
			continue
		}
		if _, ok := next.Processes[w.PID]; !ok {
			rec := ProcessRecord{PID: w.PID, SampleWindowID: w.ID}
			next.Processes[w.PID] = rec
			changes.IconRequests = append(changes.IconRequests, rec)
		}
	}

	// Forget processes that no longer own a window so a relaunch is picked up
	alive := lo.SliceToMap(kept, func(w TrackedWindow) (int, bool) { return w.PID, true })
	for pid := range next.Processes {
		if !alive[pid] {
			delete(next.Processes, pid)
		}
	}

	return next, changes
}

func isShell(l Line, shellTitle string, shellPID int) bool {
	if shellTitle != "" && l.Title == shellTitle {
		return true
	}
	return shellPID > 0 && l.PID == shellPID
}

func trend(prev, cur int) Trend {
	switch {
	case cur > prev:
		return TrendGrew
	case cur < prev:
		return TrendShrank
	default:
		return TrendSame
	}
}
