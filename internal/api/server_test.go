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

	"github.com/gorilla/websocket"

	"gametools/internal/config"
	"gametools/internal/event"
	"gametools/internal/overlay"
)

type idleEvent struct {
	event.Base
}

func newIdleEvent() *idleEvent {
	ev := &idleEvent{}
	ev.Base = event.NewBase(event.PriorityLast, event.Group1,
		func(ctx context.Context, _ event.Event) (event.Status, error) {
			return event.StatusSameStep, nil
		})
	return ev
}

func newTestServer(t *testing.T) (*Server, *event.Manager, *overlay.Manager) {
	t.Helper()

	configMgr, err := config.NewManager(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	events := event.NewManager(nil)
	overlayMgr := overlay.NewManager(1920, 1080, nil)
	return NewServer(events, configMgr, overlayMgr, nil), events, overlayMgr
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestStatusReportsLiveEvents(t *testing.T) {
	s, events, _ := newTestServer(t)
	if err := events.Add(context.Background(), newIdleEvent()); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var status struct {
		LiveEvents int    `json:"live_events"`
		State      string `json:"state"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if status.LiveEvents != 1 {
		t.Fatalf("expected 1 live event, got %d", status.LiveEvents)
	}
	if !strings.Contains(status.State, "IdleState") {
		t.Fatalf("expected idle state name, got %q", status.State)
	}
}

func TestEventsEndpointListsSnapshot(t *testing.T) {
	s, events, _ := newTestServer(t)
	if err := events.Add(context.Background(), newIdleEvent()); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/events", nil))

	var infos []event.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(infos) != 1 || infos[0].Step != 0 {
		t.Fatalf("expected one event at step 0, got %+v", infos)
	}
}

func TestUpdateElementMovesAndToggles(t *testing.T) {
	s, _, overlayMgr := newTestServer(t)
	if err := overlayMgr.Add(overlay.NewTextElement("hp", "HP", 1, 2)); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	body := bytes.NewBufferString(`{"x": 30, "y": 40, "enabled": false}`)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("PUT", "/api/overlay/elements/hp", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	el, ok := overlayMgr.Get("hp")
	if !ok {
		t.Fatalf("expected element to exist")
	}
	x, y := el.Position()
	if x != 30 || y != 40 {
		t.Fatalf("expected moved position (30, 40), got (%d, %d)", x, y)
	}
	if el.IsEnabled() {
		t.Fatalf("expected element disabled")
	}
}

func TestUpdateUnknownElementReturns404(t *testing.T) {
	s, _, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"x": 1}`)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("PUT", "/api/overlay/elements/nope", body))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestEventStreamPushesLifecycleNotices(t *testing.T) {
	s, events, _ := newTestServer(t)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("unexpected dial error: %v", err)
	}
	defer conn.Close()

	// The subscription happens inside the handler goroutine; give it a
	// moment before triggering the notice.
	time.Sleep(100 * time.Millisecond)
	if err := events.Add(context.Background(), newIdleEvent()); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var notice event.Notice
	if err := conn.ReadJSON(&notice); err != nil {
		t.Fatalf("expected a notice on the stream: %v", err)
	}
	if notice.Kind != "added" {
		t.Fatalf("expected an added notice, got %+v", notice)
	}
}
