package window

import (
	"bufio"
	"strconv"
	"strings"
)

// wmctrl -l -p -G columns: id desktop pid x y width height host title...
const wmctrlMinFields = 8

// ParseWmctrl parses the output of `wmctrl -l -p -G`. Malformed lines are
// skipped; they still count towards Snapshot.RawCount.
func ParseWmctrl(output string) Snapshot {
	var snap Snapshot

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		snap.RawCount++

		line, ok := parseWmctrlLine(raw)
		if !ok {
			continue
		}
		snap.Lines = append(snap.Lines, line)
	}

	return snap
}

func parseWmctrlLine(raw string) (Line, bool) {
	fields := strings.Fields(raw)
	if len(fields) < wmctrlMinFields {
		return Line{}, false
	}
	if !strings.HasPrefix(fields[0], "0x") {
		return Line{}, false
	}

	nums := make([]int, 6)
	for i := range nums {
		n, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return Line{}, false
		}
		nums[i] = n
	}

	return Line{
		ID:      fields[0],
		Desktop: nums[0],
		PID:     nums[1],
		Geometry: Geometry{
			X:      nums[2],
			Y:      nums[3],
			Width:  nums[4],
			Height: nums[5],
		},
		Host:  fields[7],
		Title: titleAfter(raw, wmctrlMinFields),
	}, true
}

// titleAfter returns the remainder of raw after skipping n whitespace
// separated fields, preserving the spacing inside the title.
func titleAfter(raw string, n int) string {
	s := raw
	for i := 0; i < n; i++ {
		s = strings.TrimLeft(s, " \t")
		idx := strings.IndexAny(s, " \t")
		if idx < 0 {
			return ""
		}
		s = s[idx:]
	}
	return strings.TrimSpace(s)
}
