package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/externos/hubd/internal/config"
	"github.com/externos/hubd/internal/display"
	"github.com/externos/hubd/internal/executor"
	"github.com/externos/hubd/internal/icon"
	"github.com/externos/hubd/internal/network"
	"github.com/externos/hubd/internal/window"
	"github.com/gorilla/websocket"
)

const wmctrlOutput = "0x0a 0 500 0 0 1920 1080 host eXtern OS Desktop\n0x01 0 10 0 0 800 600 host Files\n"

const scanOutput = "MySSID:AA\\:BB\\:CC\\:DD\\:EE\\:01:WPA2:72\n"

type testEnv struct {
	server  *Server
	fake    *executor.FakeRunner
	tracker *window.Tracker
	wifi    *network.Controller
	store   *icon.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mgr, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	cfg := mgr.Get()

	fake := executor.NewFakeRunner().
		OnStdout("wmctrl -l -p -G", wmctrlOutput).
		OnStdout("wmctrl -ia 0x01", "").
		OnStdout("nmcli -t -f SSID,BSSID,SECURITY,SIGNAL dev wifi list", scanOutput).
		OnStdout("xrandr --verbose", "eDP-1 connected primary 1920x1080+0+0 (0x4a) normal\n\tBrightness: 1.00\n").
		OnStdout("xrandr --output eDP-1 --brightness 0.50", "")
	exec := executor.New(fake)

	store := icon.NewStore()
	tracker := window.NewTracker(window.NewWmctrlBackend(exec), cfg.Tracker, window.WithIconStore(store))
	wifi := network.NewController(exec, cfg.Network, nil)
	displays := display.NewController(exec, cfg.Display)

	return &testEnv{
		server:  NewServer(mgr, tracker, wifi, displays, store),
		fake:    fake,
		tracker: tracker,
		wifi:    wifi,
		store:   store,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, r)
	return w
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header")
	}
}

func TestWindowsAndActivate(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.tracker.PollOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	w := env.do(t, "GET", "/api/windows", "")
	var windows []window.TrackedWindow
	if err := json.Unmarshal(w.Body.Bytes(), &windows); err != nil {
		t.Fatal(err)
	}
	if len(windows) != 1 || windows[0].ID != "0x01" {
		t.Fatalf("expected only the Files window, got %+v", windows)
	}

	if w := env.do(t, "POST", "/api/windows/0x01/activate", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := env.do(t, "POST", "/api/windows/0x99/activate", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown window, got %d", w.Code)
	}
}

func TestIcons(t *testing.T) {
	env := newTestEnv(t)
	env.store.Put(10, []byte("\x89PNG"))

	w := env.do(t, "GET", "/api/icons/10", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("expected png, got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if w := env.do(t, "GET", "/api/icons/11", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestWifiScanAndConnectErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "POST", "/api/wifi/scan", "")
	var networks []network.WifiNetwork
	if err := json.Unmarshal(w.Body.Bytes(), &networks); err != nil {
		t.Fatal(err)
	}
	if len(networks) != 1 || networks[0].SSID != "MySSID" {
		t.Errorf("unexpected scan result %+v", networks)
	}

	if w := env.do(t, "POST", "/api/wifi/connect", `{"password":"x"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without ssid, got %d", w.Code)
	}
	// No scripted nmcli connect response: the spawn fails
	if w := env.do(t, "POST", "/api/wifi/connect", `{"ssid":"MySSID","password":"pw1"}`); w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 on failed connect, got %d", w.Code)
	}
}

func TestBrightness(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "PUT", "/api/displays/eDP-1/brightness", `{"level":0.5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.fake.CallCount("xrandr --output eDP-1 --brightness 0.50") != 1 {
		t.Error("expected xrandr to be called")
	}

	if w := env.do(t, "PUT", "/api/displays/VGA-1/brightness", `{"level":0.5}`); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := env.do(t, "PUT", "/api/displays/eDP-1/brightness", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without level, got %d", w.Code)
	}
}

func TestUpdateConfigValidates(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]interface{}{"server_port": 9090})
	if w := env.do(t, "PUT", "/api/config", string(body)); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if env.server.configMgr.Get().ServerPort != 9090 {
		t.Error("expected port to be updated")
	}

	body, _ = json.Marshal(map[string]interface{}{"server_port": -1})
	if w := env.do(t, "PUT", "/api/config", string(body)); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid port, got %d", w.Code)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if snap := readEnvelope(t, conn); snap.Type != "snapshot" || snap.ID == "" {
		t.Fatalf("expected snapshot envelope, got %+v", snap)
	}

	wait := env.server.Forward(ctx)
	if _, err := env.tracker.PollOnce(ctx); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	var added Envelope
	for time.Now().Before(deadline) {
		added = readEnvelope(t, conn)
		if added.Type == string(window.EventAdded) {
			break
		}
	}
	if added.Type != string(window.EventAdded) {
		t.Fatalf("expected window.added, got %+v", added)
	}
	payload, _ := json.Marshal(added.Payload)
	if !bytes.Contains(payload, []byte(`"0x01"`)) {
		t.Errorf("expected window 0x01 in payload, got %s", payload)
	}

	cancel()
	wait()
}

func TestHubDropsForSlowClients(t *testing.T) {
	h := NewHub(1)
	ch := h.register()
	defer h.unregister(ch)

	for i := 0; i < 3; i++ {
		if err := h.Publish("test", i); err != nil {
			t.Fatal(err)
		}
	}
	if len(ch) != 1 {
		t.Errorf("expected buffered message count 1, got %d", len(ch))
	}

	h.Close()
	if h.Clients() != 0 {
		t.Errorf("expected no clients after close, got %d", h.Clients())
	}
}
