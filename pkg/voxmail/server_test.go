package voxmail

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"log/slog"

	"github.com/voxmail/voxmail/pkg/transports/daily"
	mocktransport "github.com/voxmail/voxmail/pkg/transports/mock"
)

func newTestControlServer(t *testing.T, rooms *daily.Client) *ControlServer {
	t.Helper()
	eng, err := NewEngine(EngineOptions{
		Config:    testEngineConfig(),
		Transport: mocktransport.New(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	srv := NewControlServer(eng, slog.Default())
	srv.rooms = rooms
	return srv
}

func fakeDaily(t *testing.T) *daily.Client {
	t.Helper()
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/rooms":
			_, _ = w.Write([]byte(`{"id":"r1","name":"room-1","url":"https://x.daily.co/room-1","privacy":"public"}`))
		case r.Method == http.MethodPost && r.URL.Path == "/meeting-tokens":
			_, _ = w.Write([]byte(`{"token":"tok-1"}`))
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/rooms/"):
			_, _ = w.Write([]byte(`{}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(api.Close)
	client := daily.NewClient("dk-test")
	client.BaseURL = api.URL
	return client
}

func TestControlServerStartProvisionsRoom(t *testing.T) {
	srv := newTestControlServer(t, fakeDaily(t))

	rec := httptest.NewRecorder()
	srv.handleStart(rec, httptest.NewRequest(http.MethodPost, "/start", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp startResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.RoomURL != "https://x.daily.co/room-1" || resp.Token != "tok-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestControlServerGetTokenRequiresRoomName(t *testing.T) {
	srv := newTestControlServer(t, fakeDaily(t))

	rec := httptest.NewRecorder()
	srv.handleGetToken(rec, httptest.NewRequest(http.MethodPost, "/get-token", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.handleGetToken(rec, httptest.NewRequest(http.MethodPost, "/get-token", strings.NewReader(`{"room_name":"room-1"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestControlServerStartWithoutRoomsIsUnavailable(t *testing.T) {
	srv := newTestControlServer(t, nil)

	rec := httptest.NewRecorder()
	srv.handleStart(rec, httptest.NewRequest(http.MethodPost, "/start", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestControlServerHealth(t *testing.T) {
	srv := newTestControlServer(t, nil)

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
