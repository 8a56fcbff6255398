package network

// WifiNetwork is one access point from a scan
type WifiNetwork struct {
	SSID      string `json:"ssid"`
	MAC       string `json:"mac"`
	Security  string `json:"security"` // empty for open networks
	Signal    int    `json:"signal"`   // 0-100
	Connected bool   `json:"connected"`
}

// Open reports whether the network needs no password
func (n WifiNetwork) Open() bool {
	return n.Security == ""
}

// ActiveConnection is a Wi-Fi link currently up on an interface
type ActiveConnection struct {
	Interface string `json:"interface"`
	SSID      string `json:"ssid"`
	MAC       string `json:"mac"`
	Frequency int    `json:"frequency"` // MHz
	Signal    int    `json:"signal"`
	Security  string `json:"security"`
}

// EventKind describes a controller event
type EventKind string

const (
	// EventNetworks carries the full, replaced network list
	EventNetworks EventKind = "wifi.networks"
	// EventActive carries freshly polled active connections
	EventActive        EventKind = "wifi.active"
	EventConnecting    EventKind = "wifi.connecting"
	EventConnected     EventKind = "wifi.connected"
	EventConnectFailed EventKind = "wifi.connect_failed"
	// EventReverted tells the UI to reset its connect affordance after a failure
	EventReverted     EventKind = "wifi.reverted"
	EventDisconnected EventKind = "wifi.disconnected"
)

// Event is sent to subscribers
type Event struct {
	Kind     EventKind          `json:"kind"`
	SSID     string             `json:"ssid,omitempty"`
	Message  string             `json:"message,omitempty"`
	Networks []WifiNetwork      `json:"networks,omitempty"`
	Active   []ActiveConnection `json:"active,omitempty"`
}
