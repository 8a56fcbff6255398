package network

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/externos/hubd/internal/executor"
)

// Commands issued to NetworkManager. Terse (-t) output separates fields
// with ':' and escapes literal colons and backslashes with a backslash.
var (
	scanCommand = executor.Cmd("nmcli", "-t", "-f", "SSID,BSSID,SECURITY,SIGNAL", "dev", "wifi", "list")

	activeCommand = executor.Cmd("nmcli", "-t", "-f", "ACTIVE,DEVICE,SSID,BSSID,FREQ,SIGNAL,SECURITY", "dev", "wifi")
)

func connectCommand(ssid, password string) executor.Command {
	if password == "" {
		return executor.Cmd("nmcli", "dev", "wifi", "connect", ssid)
	}
	return executor.Cmd("nmcli", "dev", "wifi", "connect", ssid, "password", password)
}

func disconnectCommand(iface string) executor.Command {
	return executor.Cmd("nmcli", "dev", "disconnect", iface)
}

// splitTerse splits one line of nmcli terse output into fields
func splitTerse(line string) []string {
	var fields []string
	var cur strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}

func terseLines(output string, fields int) [][]string {
	var rows [][]string
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		f := splitTerse(line)
		if len(f) != fields {
			continue
		}
		rows = append(rows, f)
	}
	return rows
}

// ParseScan parses the scan command output. Hidden networks (empty SSID)
// cannot be joined by name and are skipped.
func ParseScan(output string) []WifiNetwork {
	var networks []WifiNetwork
	for _, f := range terseLines(output, 4) {
		if f[0] == "" {
			continue
		}
		networks = append(networks, WifiNetwork{
			SSID:     f[0],
			MAC:      strings.ToUpper(f[1]),
			Security: normalizeSecurity(f[2]),
			Signal:   atoi(f[3]),
		})
	}
	return networks
}

// ParseActive parses the active-connection command output, keeping only
// rows nmcli marks active.
func ParseActive(output string) []ActiveConnection {
	var conns []ActiveConnection
	for _, f := range terseLines(output, 7) {
		if f[0] != "yes" {
			continue
		}
		conns = append(conns, ActiveConnection{
			Interface: f[1],
			SSID:      f[2],
			MAC:       strings.ToUpper(f[3]),
			Frequency: atoi(strings.TrimSuffix(strings.TrimSpace(f[4]), " MHz")),
			Signal:    atoi(f[5]),
			Security:  normalizeSecurity(f[6]),
		})
	}
	return conns
}

func normalizeSecurity(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "--" {
		return ""
	}
	return s
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
