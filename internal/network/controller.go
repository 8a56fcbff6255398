// Package network scans, joins and leaves Wi-Fi networks through nmcli and
// keeps the last scan and active connections in memory.
package network

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/externos/hubd/internal/config"
	"github.com/externos/hubd/internal/executor"
	"github.com/externos/hubd/internal/logger"
	"github.com/externos/hubd/internal/notify"
	"github.com/samber/lo"
	"golang.org/x/sync/singleflight"
)

// ErrConnectFailed wraps every unsuccessful connect attempt
var ErrConnectFailed = errors.New("wifi connect failed")

// ErrNotConnected is returned by Disconnect when no Wi-Fi link is up
var ErrNotConnected = errors.New("no active wifi connection")

// failureMarker is matched in nmcli output when the exit status is zero
// but activation still failed.
const failureMarker = "failed"

// Controller wraps nmcli scan, connect and disconnect
type Controller struct {
	exec     *executor.Executor
	cfg      config.NetworkConfig
	notifier notify.Notifier

	// afterFunc schedules the post-failure revert; tests replace it
	afterFunc func(d time.Duration, f func())

	scans singleflight.Group

	mu        sync.RWMutex
	networks  []WifiNetwork
	active    []ActiveConnection
	listeners []chan Event
}

// NewController creates a controller. A nil notifier disables notifications.
func NewController(exec *executor.Executor, cfg config.NetworkConfig, notifier notify.Notifier) *Controller {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Controller{
		exec:     exec,
		cfg:      cfg,
		notifier: notifier,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Scan replaces the whole network list with a fresh scan. Concurrent
// callers share one nmcli run.
func (c *Controller) Scan(ctx context.Context) ([]WifiNetwork, error) {
	v, err, shared := c.scans.Do("scan", func() (interface{}, error) {
		res := c.exec.Run(ctx, scanCommand)
		if res.Failed() {
			return nil, fmt.Errorf("wifi scan failed: %w", res.Err)
		}
		networks := ParseScan(res.Stdout)

		c.mu.Lock()
		c.networks = markConnected(networks, c.active)
		out := append([]WifiNetwork(nil), c.networks...)
		c.mu.Unlock()

		c.notify(Event{Kind: EventNetworks, Networks: out})
		return out, nil
	})
	if err != nil {
		logger.WithComponent("network").Warn().Err(err).Msg("Scan failed")
		return nil, err
	}

	networks := v.([]WifiNetwork)
	logger.WithComponent("network").Debug().
		Int("networks", len(networks)).
		Bool("shared", shared).
		Msg("Scan finished")
	return append([]WifiNetwork(nil), networks...), nil
}

// ActiveConnections polls the active links and marks matching networks
// connected by hardware address.
func (c *Controller) ActiveConnections(ctx context.Context) ([]ActiveConnection, error) {
	res := c.exec.Run(ctx, activeCommand)
	if res.Failed() {
		return nil, fmt.Errorf("active connection poll failed: %w", res.Err)
	}
	active := ParseActive(res.Stdout)

	c.mu.Lock()
	c.active = active
	c.networks = markConnected(c.networks, active)
	c.mu.Unlock()

	c.notify(Event{Kind: EventActive, Active: append([]ActiveConnection(nil), active...)})
	return append([]ActiveConnection(nil), active...), nil
}

// Connect joins ssid. On success the network list is rescanned; on
// failure a revert event follows after the configured delay.
func (c *Controller) Connect(ctx context.Context, ssid, password string) error {
	log := logger.WithComponent("network")

	if strings.TrimSpace(ssid) == "" {
		return fmt.Errorf("%w: empty ssid", ErrConnectFailed)
	}

	c.notify(Event{Kind: EventConnecting, SSID: ssid})
	log.Info().Str("ssid", ssid).Msg("Connecting")

	res := c.runConnect(ctx, connectCommand(ssid, password))
	if err := classifyConnect(ssid, res); err != nil {
		log.Warn().Err(err).Str("ssid", ssid).Msg("Connect failed")
		c.notify(Event{Kind: EventConnectFailed, SSID: ssid, Message: err.Error()})
		c.sendNotification(ctx, "Wi-Fi", fmt.Sprintf("Could not connect to %s", ssid))

		c.afterFunc(c.cfg.RevertDelay, func() {
			c.notify(Event{Kind: EventReverted, SSID: ssid})
		})
		return err
	}

	log.Info().Str("ssid", ssid).Msg("Connected")
	c.notify(Event{Kind: EventConnected, SSID: ssid})
	c.sendNotification(ctx, "Wi-Fi", fmt.Sprintf("Connected to %s", ssid))

	if _, err := c.ActiveConnections(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to refresh active connections")
	}
	if _, err := c.Scan(ctx); err != nil {
		log.Warn().Err(err).Msg("Rescan after connect failed")
	}
	return nil
}

// runConnect runs the connect command in the background so a cancelled
// request returns at once. A result arriving after that is dropped.
func (c *Controller) runConnect(ctx context.Context, cmd executor.Command) executor.Result {
	results := make(chan executor.Result, 1)
	c.exec.Go(ctx, cmd, func(res executor.Result) { results <- res })

	select {
	case res := <-results:
		return res
	case <-ctx.Done():
		return executor.Result{ExitCode: -1, Err: fmt.Errorf("%s: %w", cmd.Name, ctx.Err())}
	}
}

// classifyConnect decides whether a connect attempt failed. A spawn error
// or non-zero exit is a failure. With a zero exit, "failed" in the output
// is still treated as one unless it only appears inside the SSID.
func classifyConnect(ssid string, res executor.Result) error {
	if res.Failed() {
		return fmt.Errorf("%w: %v", ErrConnectFailed, res.Err)
	}

	out := strings.ToLower(res.Stdout + "\n" + res.Stderr)
	if reportsFailure(out, strings.ToLower(ssid)) {
		msg := strings.TrimSpace(res.Stdout)
		if msg == "" {
			msg = strings.TrimSpace(res.Stderr)
		}
		return fmt.Errorf("%w: %s", ErrConnectFailed, msg)
	}
	return nil
}

type span struct{ start, end int }

// reportsFailure looks for failureMarker outside every occurrence of ssid.
// An SSID no longer than the marker only masks it when nmcli quoted it.
func reportsFailure(out, ssid string) bool {
	var masks []span
	for _, s := range occurrences(out, ssid) {
		if len(ssid) > len(failureMarker) || quoted(out, s) {
			masks = append(masks, s)
		}
	}
	for _, m := range occurrences(out, failureMarker) {
		inside := lo.ContainsBy(masks, func(s span) bool { return s.start <= m.start && m.end <= s.end })
		if !inside {
			return true
		}
	}
	return false
}

// occurrences returns every, possibly overlapping, match of sub in s
func occurrences(s, sub string) []span {
	if sub == "" {
		return nil
	}
	var out []span
	for i := 0; i < len(s); {
		j := strings.Index(s[i:], sub)
		if j < 0 {
			break
		}
		start := i + j
		out = append(out, span{start: start, end: start + len(sub)})
		i = start + 1
	}
	return out
}

func quoted(s string, sp span) bool {
	if sp.start == 0 || sp.end >= len(s) {
		return false
	}
	q := s[sp.start-1]
	return (q == '\'' || q == '"') && s[sp.end] == q
}

// Disconnect takes down every active Wi-Fi interface and re-polls
func (c *Controller) Disconnect(ctx context.Context) error {
	active, err := c.ActiveConnections(ctx)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return ErrNotConnected
	}

	var errs []error
	for _, iface := range lo.Uniq(lo.Map(active, func(a ActiveConnection, _ int) string { return a.Interface })) {
		res := c.exec.Run(ctx, disconnectCommand(iface))
		if res.Failed() {
			errs = append(errs, fmt.Errorf("disconnect %s: %w", iface, res.Err))
			continue
		}
		logger.WithComponent("network").Info().Str("interface", iface).Msg("Disconnected")
	}

	if _, err := c.ActiveConnections(ctx); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.notify(Event{Kind: EventDisconnected})
	return nil
}

// Networks returns the last scan result
func (c *Controller) Networks() []WifiNetwork {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]WifiNetwork(nil), c.networks...)
}

// Active returns the last polled active connections
func (c *Controller) Active() []ActiveConnection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]ActiveConnection(nil), c.active...)
}

// Run scans once if configured and then polls active connections on the
// status interval until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	log := logger.WithComponent("network")

	if _, err := c.ActiveConnections(ctx); err != nil {
		log.Debug().Err(err).Msg("Initial status poll failed")
	}
	if c.cfg.ScanOnStart {
		if _, err := c.Scan(ctx); err != nil {
			log.Debug().Err(err).Msg("Initial scan failed")
		}
	}
	if c.cfg.StatusInterval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(c.cfg.StatusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.ActiveConnections(ctx); err != nil {
				log.Debug().Err(err).Msg("Status poll failed")
			}
		}
	}
}

func (c *Controller) sendNotification(ctx context.Context, summary, body string) {
	if !c.cfg.Notify {
		return
	}
	if err := c.notifier.Notify(ctx, summary, body); err != nil {
		logger.WithComponent("network").Debug().Err(err).Msg("Notification failed")
	}
}

// markConnected returns networks with Connected set by MAC match
func markConnected(networks []WifiNetwork, active []ActiveConnection) []WifiNetwork {
	macs := lo.SliceToMap(active, func(a ActiveConnection) (string, bool) { return a.MAC, true })
	out := make([]WifiNetwork, len(networks))
	for i, n := range networks {
		n.Connected = macs[n.MAC]
		out[i] = n
	}
	return out
}

// Subscribe adds a listener for controller events
func (c *Controller) Subscribe() chan Event {
	ch := make(chan Event, 32)
	c.mu.Lock()
	c.listeners = append(c.listeners, ch)
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener
func (c *Controller) Unsubscribe(ch chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, listener := range c.listeners {
		if listener == ch {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (c *Controller) notify(ev Event) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, listener := range c.listeners {
		select {
		case listener <- ev:
		default:
			// Skip if channel is full
		}
	}
}
