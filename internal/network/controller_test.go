package network

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/externos/hubd/internal/config"
	"github.com/externos/hubd/internal/executor"
)

const scanLine = "nmcli -t -f SSID,BSSID,SECURITY,SIGNAL dev wifi list"
const activeLine = "nmcli -t -f ACTIVE,DEVICE,SSID,BSSID,FREQ,SIGNAL,SECURITY dev wifi"

const scanOutput = `MySSID:AA\:BB\:CC\:DD\:EE\:01:WPA2:72
Cafe\:Guest:AA\:BB\:CC\:DD\:EE\:02::40
:AA\:BB\:CC\:DD\:EE\:03:WPA2:10
`

const activeOutput = `no:wlan0:Cafe\:Guest:AA\:BB\:CC\:DD\:EE\:02:2437 MHz:40:
yes:wlan0:MySSID:aa\:bb\:cc\:dd\:ee\:01:5180 MHz:72:WPA2
`

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeNotifier) Notify(ctx context.Context, summary, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, body)
	return nil
}

type scheduled struct {
	delay time.Duration
	fn    func()
}

func newTestController(fake *executor.FakeRunner) (*Controller, *[]scheduled, *fakeNotifier) {
	n := &fakeNotifier{}
	c := NewController(executor.New(fake), config.NetworkConfig{
		RevertDelay: 3 * time.Second,
		Notify:      true,
	}, n)
	var timers []scheduled
	c.afterFunc = func(d time.Duration, f func()) {
		timers = append(timers, scheduled{delay: d, fn: f})
	}
	return c, &timers, n
}

func drain(ch chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func kinds(evs []Event) []EventKind {
	out := make([]EventKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

func TestSplitTerse(t *testing.T) {
	got := splitTerse(`a\:b:c\\d::e`)
	want := []string{"a:b", `c\d`, "", "e"}
	if len(got) != len(want) {
		t.Fatalf("expected %q, got %q", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("field %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestParseScan(t *testing.T) {
	networks := ParseScan(scanOutput)
	if len(networks) != 2 {
		t.Fatalf("expected 2 networks (hidden skipped), got %+v", networks)
	}
	if networks[0].SSID != "MySSID" || networks[0].MAC != "AA:BB:CC:DD:EE:01" || networks[0].Signal != 72 {
		t.Errorf("unexpected first network %+v", networks[0])
	}
	if networks[1].SSID != "Cafe:Guest" || !networks[1].Open() {
		t.Errorf("unexpected second network %+v", networks[1])
	}
}

func TestParseActive(t *testing.T) {
	conns := ParseActive(activeOutput)
	if len(conns) != 1 {
		t.Fatalf("expected 1 active connection, got %+v", conns)
	}
	c := conns[0]
	if c.Interface != "wlan0" || c.SSID != "MySSID" || c.MAC != "AA:BB:CC:DD:EE:01" || c.Frequency != 5180 || c.Security != "WPA2" {
		t.Errorf("unexpected connection %+v", c)
	}
}

func TestController_ScanMarksConnected(t *testing.T) {
	fake := executor.NewFakeRunner().
		OnStdout(activeLine, activeOutput).
		OnStdout(scanLine, scanOutput)
	c, _, _ := newTestController(fake)
	ctx := context.Background()

	if _, err := c.ActiveConnections(ctx); err != nil {
		t.Fatal(err)
	}
	networks, err := c.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !networks[0].Connected || networks[1].Connected {
		t.Errorf("expected only MySSID connected, got %+v", networks)
	}
}

func TestController_ScanReplacesList(t *testing.T) {
	fake := executor.NewFakeRunner().
		OnStdout(scanLine, scanOutput).
		OnStdout(scanLine, "Other:AA\\:BB\\:CC\\:DD\\:EE\\:09:WPA2:50\n")
	c, _, _ := newTestController(fake)
	ctx := context.Background()

	if _, err := c.Scan(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Scan(ctx); err != nil {
		t.Fatal(err)
	}
	networks := c.Networks()
	if len(networks) != 1 || networks[0].SSID != "Other" {
		t.Errorf("expected list to be replaced, got %+v", networks)
	}
}

func TestController_ConnectFailureReverts(t *testing.T) {
	fake := executor.NewFakeRunner().
		OnStdout("nmcli dev wifi connect MySSID password pw1",
			"Error: Connection activation failed: Secrets were required, but not provided.\n")
	c, timers, notifier := newTestController(fake)
	events := c.Subscribe()

	err := c.Connect(context.Background(), "MySSID", "pw1")
	if !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}
	if fake.CallCount(scanLine) != 0 {
		t.Error("failed connect must not trigger a scan")
	}

	got := kinds(drain(events))
	if len(got) != 2 || got[0] != EventConnecting || got[1] != EventConnectFailed {
		t.Errorf("unexpected events %v", got)
	}

	if len(*timers) != 1 || (*timers)[0].delay != 3000*time.Millisecond {
		t.Fatalf("expected one revert scheduled after 3000ms, got %+v", *timers)
	}
	(*timers)[0].fn()
	got = kinds(drain(events))
	if len(got) != 1 || got[0] != EventReverted {
		t.Errorf("expected revert event, got %v", got)
	}
	if len(notifier.msgs) != 1 {
		t.Errorf("expected a failure notification, got %v", notifier.msgs)
	}
}

func TestController_ConnectSuccessRescans(t *testing.T) {
	fake := executor.NewFakeRunner().
		OnStdout("nmcli dev wifi connect MySSID password pw1",
			"Device 'wlan0' successfully activated with 'c0ffee00-1234'.\n").
		OnStdout(activeLine, activeOutput).
		OnStdout(scanLine, scanOutput)
	c, timers, _ := newTestController(fake)
	events := c.Subscribe()

	if err := c.Connect(context.Background(), "MySSID", "pw1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if fake.CallCount(scanLine) != 1 {
		t.Errorf("expected one scan after success, got %d", fake.CallCount(scanLine))
	}
	if len(*timers) != 0 {
		t.Error("success must not schedule a revert")
	}

	got := kinds(drain(events))
	want := []EventKind{EventConnecting, EventConnected, EventActive, EventNetworks}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if !c.Networks()[0].Connected {
		t.Error("joined network should be marked connected")
	}
}

func TestController_ConnectNonZeroExit(t *testing.T) {
	fake := executor.NewFakeRunner().
		On("nmcli dev wifi connect MySSID password pw1", executor.Result{
			Stderr:   "Error: No network with SSID 'MySSID' found.\n",
			ExitCode: 10,
			Err:      &executor.ExitError{Command: "nmcli", Code: 10},
		})
	c, timers, _ := newTestController(fake)

	if err := c.Connect(context.Background(), "MySSID", "pw1"); !errors.Is(err, ErrConnectFailed) {
		t.Fatalf("expected ErrConnectFailed, got %v", err)
	}
	if len(*timers) != 1 {
		t.Error("expected revert to be scheduled")
	}
}

func TestClassifyConnect_SSIDContainingFailed(t *testing.T) {
	res := executor.Result{Stdout: "Device 'wlan0' successfully activated with 'FailedNet'.\n"}
	if err := classifyConnect("FailedNet", res); err != nil {
		t.Errorf("ssid text must not count as failure, got %v", err)
	}
	res = executor.Result{Stdout: "Error: Connection activation failed: FailedNet\n"}
	if err := classifyConnect("FailedNet", res); !errors.Is(err, ErrConnectFailed) {
		t.Errorf("expected failure, got %v", err)
	}

	// Short SSIDs made of letters of "failed" must not hide the marker
	res = executor.Result{Stdout: "Error: Connection activation failed: (7) Secrets were required, but not provided.\n"}
	for _, ssid := range []string{"e", "a", "ai", "ail", "Home", "failed"} {
		if err := classifyConnect(ssid, res); !errors.Is(err, ErrConnectFailed) {
			t.Errorf("ssid %q: expected ErrConnectFailed, got %v", ssid, err)
		}
	}

	res = executor.Result{Stdout: "Device 'wlan0' successfully activated with 'failed'.\n"}
	if err := classifyConnect("failed", res); err != nil {
		t.Errorf("quoted ssid must not count as failure, got %v", err)
	}
}

func TestController_ConnectOpenNetwork(t *testing.T) {
	fake := executor.NewFakeRunner().
		OnStdout("nmcli dev wifi connect Cafe", "Device 'wlan0' successfully activated.\n").
		OnStdout(activeLine, "").
		OnStdout(scanLine, "")
	c, _, _ := newTestController(fake)

	if err := c.Connect(context.Background(), "Cafe", ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if fake.CallCount("nmcli dev wifi connect Cafe") != 1 {
		t.Error("open networks connect without a password argument")
	}
}

func TestController_Disconnect(t *testing.T) {
	fake := executor.NewFakeRunner().
		OnStdout(activeLine, activeOutput).
		OnStdout(activeLine, "").
		OnStdout("nmcli dev disconnect wlan0", "Device 'wlan0' successfully disconnected.\n")
	c, _, _ := newTestController(fake)
	ctx := context.Background()

	if err := c.Disconnect(ctx); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if fake.CallCount(activeLine) != 2 {
		t.Errorf("expected active connections polled before and after, got %d", fake.CallCount(activeLine))
	}
	if len(c.Active()) != 0 {
		t.Errorf("expected no active connections, got %+v", c.Active())
	}

	if err := c.Disconnect(ctx); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

type slowRunner struct {
	mu    sync.Mutex
	calls int
	gate  chan struct{}
}

func (s *slowRunner) Run(ctx context.Context, cmd executor.Command) executor.Result {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	<-s.gate
	return executor.Result{Stdout: scanOutput}
}

func TestController_ConcurrentScansShareOneRun(t *testing.T) {
	r := &slowRunner{gate: make(chan struct{})}
	c := NewController(executor.New(r), config.NetworkConfig{}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Scan(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(r.gate)
	wg.Wait()

	if r.calls > 2 {
		t.Errorf("expected concurrent scans to collapse, got %d runs", r.calls)
	}
}

type blockingRunner struct {
	started chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, cmd executor.Command) executor.Result {
	close(b.started)
	<-ctx.Done()
	return executor.Result{ExitCode: -1, Err: ctx.Err()}
}

func TestController_ConnectReturnsOnCancel(t *testing.T) {
	r := &blockingRunner{started: make(chan struct{})}
	c := NewController(executor.New(r), config.NetworkConfig{RevertDelay: time.Second}, nil)
	var timers int
	c.afterFunc = func(time.Duration, func()) { timers++ }

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- c.Connect(ctx, "MySSID", "pw1") }()

	<-r.started
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrConnectFailed) || !strings.Contains(err.Error(), "canceled") {
			t.Errorf("expected cancelled connect failure, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Connect did not return after cancel")
	}
	if timers != 1 {
		t.Errorf("expected revert scheduled once, got %d", timers)
	}
}
