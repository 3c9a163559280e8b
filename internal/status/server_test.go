package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/geolink/internal/connection"
)

type fakeLink struct {
	mu         sync.Mutex
	state      connection.State
	connectErr error
	connErr    error
	last       *connection.Envelope
	locations  [][2]float64
	photos     []any
	disconnect int
	stats      connection.Stats
}

func (f *fakeLink) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.state = connection.StateConnected
	return nil
}

func (f *fakeLink) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnect++
	f.state = connection.StateDisconnected
}

func (f *fakeLink) SendLocation(lat, lon float64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != connection.StateConnected {
		return false
	}
	f.locations = append(f.locations, [2]float64{lat, lon})
	return true
}

func (f *fakeLink) NotifyPhotoCapture(photoID any, metadata map[string]any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != connection.StateConnected {
		return false
	}
	f.photos = append(f.photos, photoID)
	return true
}

func (f *fakeLink) State() connection.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeLink) Stats() connection.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stats
	s.State = f.state
	return s
}

func (f *fakeLink) LastMessage() (connection.Envelope, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last == nil {
		return connection.Envelope{}, false
	}
	return *f.last, true
}

func (f *fakeLink) ConnectionError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	link := &fakeLink{}
	h := NewServer(link, discardLogger()).Routes()

	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("disconnected status = %d, want 503", rec.Code)
	}

	link.state = connection.StateConnected
	rec = do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("connected status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Connected || resp.State != "connected" {
		t.Errorf("resp = %+v", resp)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestStatus(t *testing.T) {
	env, err := connection.ParseEnvelope([]byte(`{"type":"ack","timestamp":"2024-01-15T12:00:00.000Z","id":7}`))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	link := &fakeLink{
		state:   connection.StateConnected,
		connErr: errors.New("dial refused"),
		last:    &env,
		stats: connection.Stats{
			Attempts:         2,
			SessionID:        "sess-1",
			MessagesSent:     4,
			MessagesReceived: 9,
		},
	}

	rec := do(t, NewServer(link, discardLogger()).Routes(), http.MethodGet, "/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.State != "connected" || resp.Attempts != 2 || resp.SessionID != "sess-1" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.MessagesSent != 4 || resp.MessagesReceived != 9 {
		t.Errorf("counters = %d/%d", resp.MessagesSent, resp.MessagesReceived)
	}
	if resp.ConnectionError != "dial refused" {
		t.Errorf("ConnectionError = %q", resp.ConnectionError)
	}

	var last map[string]any
	if err := json.Unmarshal(resp.LastMessage, &last); err != nil {
		t.Fatalf("last_message: %v", err)
	}
	if last["type"] != "ack" || last["id"] != float64(7) {
		t.Errorf("last_message = %v", last)
	}
	if resp.Version.GoVersion == "" {
		t.Error("version not populated")
	}
}

func TestStatus_NoLastMessage(t *testing.T) {
	rec := do(t, NewServer(&fakeLink{}, discardLogger()).Routes(), http.MethodGet, "/status", "")

	var raw map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := raw["last_message"]; ok {
		t.Error("last_message present without a message")
	}
	if _, ok := raw["connection_error"]; ok {
		t.Error("connection_error present without an error")
	}
}

func TestLocation(t *testing.T) {
	tests := []struct {
		name      string
		connected bool
		body      string
		want      int
	}{
		{"sent", true, `{"latitude":37.7749,"longitude":-122.4194}`, http.StatusAccepted},
		{"not connected", false, `{"latitude":1,"longitude":2}`, http.StatusConflict},
		{"bad json", true, `{"latitude":`, http.StatusBadRequest},
		{"missing longitude", true, `{"latitude":1}`, http.StatusBadRequest},
		{"out of range", true, `{"latitude":91,"longitude":0}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			link := &fakeLink{}
			if tt.connected {
				link.state = connection.StateConnected
			}
			rec := do(t, NewServer(link, discardLogger()).Routes(), http.MethodPost, "/location", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusAccepted && len(link.locations) != 1 {
				t.Errorf("locations = %v", link.locations)
			}
		})
	}
}

func TestPhotos(t *testing.T) {
	link := &fakeLink{state: connection.StateConnected}
	h := NewServer(link, discardLogger()).Routes()

	rec := do(t, h, http.MethodPost, "/photos", `{"photoId":"p-1","metadata":{"w":640}}`)
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/photos", `{"photoId":42}`)
	if rec.Code != http.StatusAccepted {
		t.Errorf("numeric id status = %d, want 202", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/photos", `{"metadata":{}}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing id status = %d, want 400", rec.Code)
	}

	if len(link.photos) != 2 || link.photos[0] != "p-1" || link.photos[1] != float64(42) {
		t.Errorf("photos = %v", link.photos)
	}
}

func TestConnectDisconnect(t *testing.T) {
	link := &fakeLink{}
	h := NewServer(link, discardLogger()).Routes()

	rec := do(t, h, http.MethodPost, "/connect", "")
	if rec.Code != http.StatusOK || link.State() != connection.StateConnected {
		t.Errorf("connect status = %d, state = %v", rec.Code, link.State())
	}

	rec = do(t, h, http.MethodPost, "/disconnect", "")
	if rec.Code != http.StatusOK || link.disconnect != 1 {
		t.Errorf("disconnect status = %d, calls = %d", rec.Code, link.disconnect)
	}
}

func TestConnect_Errors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{connection.ErrNetworkUnavailable, http.StatusServiceUnavailable},
		{errors.New("handshake failed"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		link := &fakeLink{connectErr: tt.err}
		rec := do(t, NewServer(link, discardLogger()).Routes(), http.MethodPost, "/connect", "")
		if rec.Code != tt.want {
			t.Errorf("Connect(%v) status = %d, want %d", tt.err, rec.Code, tt.want)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, NewServer(&fakeLink{}, discardLogger()).Routes(), http.MethodGet, "/location", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestListenAndServe_Shutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(&fakeLink{state: connection.StateConnected}, discardLogger()).ListenAndServe(ctx, addr)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + addr + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("health = %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ListenAndServe = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestManagerIsLink(t *testing.T) {
	var _ Link = (*connection.Manager)(nil)
}
