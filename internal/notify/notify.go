// Package notify shows desktop notifications through the freedesktop
// notification service on the session bus.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/externos/hubd/internal/logger"
	"github.com/godbus/dbus/v5"
)

// D-Bus constants
const (
	notificationsService   = "org.freedesktop.Notifications"
	notificationsPath      = "/org/freedesktop/Notifications"
	notificationsInterface = "org.freedesktop.Notifications"
)

// Notifier shows a short message to the user
type Notifier interface {
	Notify(ctx context.Context, summary, body string) error
}

// Nop discards notifications
type Nop struct{}

// Notify implements Notifier
func (Nop) Notify(ctx context.Context, summary, body string) error {
	return nil
}

// DBusNotifier sends org.freedesktop.Notifications.Notify calls
type DBusNotifier struct {
	conn    *dbus.Conn
	appName string
	icon    string
	timeout int32 // milliseconds, -1 lets the server decide

	mu     sync.Mutex
	lastID uint32
}

// NewDBusNotifier connects to the session bus
func NewDBusNotifier(appName string) (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &DBusNotifier{
		conn:    conn,
		appName: appName,
		icon:    "network-wireless",
		timeout: -1,
	}, nil
}

// Notify implements Notifier. A new notification replaces the previous
// one so repeated connect attempts do not stack.
func (n *DBusNotifier) Notify(ctx context.Context, summary, body string) error {
	n.mu.Lock()
	replaces := n.lastID
	n.mu.Unlock()

	obj := n.conn.Object(notificationsService, dbus.ObjectPath(notificationsPath))
	call := obj.CallWithContext(ctx, notificationsInterface+".Notify", 0,
		n.appName,
		replaces,
		n.icon,
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{},
		n.timeout,
	)
	if call.Err != nil {
		return fmt.Errorf("notify failed: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify reply: %w", err)
	}

	n.mu.Lock()
	n.lastID = id
	n.mu.Unlock()

	logger.WithComponent("notify").Debug().Uint32("id", id).Str("summary", summary).Msg("Notification sent")
	return nil
}

// Close closes the bus connection
func (n *DBusNotifier) Close() error {
	return n.conn.Close()
}

// New returns a DBusNotifier, or Nop when no session bus is reachable
func New(appName string) Notifier {
	n, err := NewDBusNotifier(appName)
	if err != nil {
		logger.WithComponent("notify").Info().Err(err).Msg("Desktop notifications disabled")
		return Nop{}
	}
	return n
}
