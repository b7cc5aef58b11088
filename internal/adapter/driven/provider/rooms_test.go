package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Wyydra/huddle/internal/core/domain"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
)

const secret = "s3cret"

// fakeProvider is an in-memory room backend speaking the provider's HTTP
// contract.
type fakeProvider struct {
	mu          sync.Mutex
	rooms       map[string]int // name -> participants
	capacity    int
	credentials string
	credStatus  int
	authFails   int
}

func newFakeProvider(t *testing.T) (*fakeProvider, *Client) {
	t.Helper()
	p := &fakeProvider{rooms: map[string]int{}, capacity: 2, credStatus: http.StatusOK}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+secret {
				p.mu.Lock()
				p.authFails++
				p.mu.Unlock()
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Post("/room", p.create)
	r.Post("/room/{name}/join", p.join)
	r.Get("/room/{name}", p.get)
	r.Delete("/room/{name}", p.end)
	r.Get("/turn/credentials", p.turn)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return p, NewClient(srv.URL, secret, time.Second)
}

func (p *fakeProvider) AuthFails() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authFails
}

func roomName(r *http.Request) string {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		return ""
	}
	return name
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (p *fakeProvider) create(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RoomName == "" {
		reply(w, http.StatusBadRequest, map[string]string{"error": "roomName required"})
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.rooms[req.RoomName]; ok {
		reply(w, http.StatusConflict, map[string]string{"error": "room already exists"})
		return
	}
	p.rooms[req.RoomName] = 0
	reply(w, http.StatusCreated, map[string]any{"roomName": req.RoomName, "maxParticipants": p.capacity})
}

func (p *fakeProvider) join(w http.ResponseWriter, r *http.Request) {
	name := roomName(r)
	p.mu.Lock()
	defer p.mu.Unlock()
	n, ok := p.rooms[name]
	switch {
	case !ok:
		reply(w, http.StatusNotFound, map[string]string{"error": "room not found"})
	case n >= p.capacity:
		reply(w, http.StatusForbidden, map[string]string{"message": "room is full"})
	default:
		p.rooms[name] = n + 1
		reply(w, http.StatusOK, map[string]any{
			"roomName":   name,
			"iceServers": []map[string]any{{"urls": []string{"stun:a.example", "stun:b.example"}}},
		})
	}
}

func (p *fakeProvider) get(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	_, ok := p.rooms[roomName(r)]
	p.mu.Unlock()
	if !ok {
		reply(w, http.StatusNotFound, map[string]bool{"exists": false})
		return
	}
	reply(w, http.StatusOK, map[string]bool{"exists": true})
}

func (p *fakeProvider) end(w http.ResponseWriter, r *http.Request) {
	name := roomName(r)
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.rooms[name]; !ok {
		reply(w, http.StatusNotFound, map[string]bool{"success": false})
		return
	}
	delete(p.rooms, name)
	reply(w, http.StatusOK, map[string]bool{"success": true})
}

func (p *fakeProvider) turn(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	body, status := p.credentials, p.credStatus
	p.mu.Unlock()
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func (p *fakeProvider) setCredentials(status int, body string) {
	p.mu.Lock()
	p.credStatus, p.credentials = status, body
	p.mu.Unlock()
}

func TestRoomLifecycle(t *testing.T) {
	_, c := newFakeProvider(t)
	ctx := context.Background()

	room, err := c.CreateRoom(ctx, "standup")
	if err != nil {
		t.Fatal(err)
	}
	if room.Name != "standup" || !room.Exists || room.MaxParticipants != 2 {
		t.Fatalf("created %+v", room)
	}
	if !c.ValidateRoom(ctx, "standup") {
		t.Fatalf("new room does not validate")
	}

	joined, err := c.JoinRoom(ctx, "standup")
	if err != nil {
		t.Fatal(err)
	}
	if len(joined.ICEServers) != 2 || joined.ICEServers[1].URL != "stun:b.example" {
		t.Fatalf("joined %+v", joined)
	}

	if !c.EndRoom(ctx, "standup") {
		t.Fatalf("end failed")
	}
	if c.ValidateRoom(ctx, "standup") {
		t.Fatalf("ended room still validates")
	}
	if c.EndRoom(ctx, "standup") {
		t.Fatalf("ending a missing room reported success")
	}
}

func TestCreateRoomPassesProviderReason(t *testing.T) {
	_, c := newFakeProvider(t)
	ctx := context.Background()

	if _, err := c.CreateRoom(ctx, "dup"); err != nil {
		t.Fatal(err)
	}
	_, err := c.CreateRoom(ctx, "dup")
	if !errors.Is(err, domain.ErrRoomCreateFailed) {
		t.Fatalf("expected ErrRoomCreateFailed, got %v", err)
	}
	var perr *domain.ProviderError
	if !errors.As(err, &perr) || perr.Status != http.StatusConflict || perr.Reason != "room already exists" {
		t.Fatalf("unexpected provider error %#v", err)
	}
}

func TestJoinRoomFailures(t *testing.T) {
	_, c := newFakeProvider(t)
	ctx := context.Background()

	tests := []struct {
		room   string
		status int
		reason string
	}{
		{"missing", http.StatusNotFound, "room not found"},
		{"full", http.StatusForbidden, "room is full"},
	}

	if _, err := c.CreateRoom(ctx, "full"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := c.JoinRoom(ctx, "full"); err != nil {
			t.Fatal(err)
		}
	}

	for _, tt := range tests {
		t.Run(tt.room, func(t *testing.T) {
			_, err := c.JoinRoom(ctx, tt.room)
			var perr *domain.ProviderError
			if !errors.Is(err, domain.ErrRoomJoinFailed) || !errors.As(err, &perr) {
				t.Fatalf("expected ErrRoomJoinFailed, got %v", err)
			}
			if perr.Status != tt.status || perr.Reason != tt.reason {
				t.Fatalf("got %d %q", perr.Status, perr.Reason)
			}
		})
	}
}

func TestLongPlainTextReasonIsPassedThrough(t *testing.T) {
	body := strings.Repeat("é", 700) + " room is closed"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, body, http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.URL, secret, time.Second).JoinRoom(context.Background(), "r")
	var perr *domain.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if perr.Reason != body {
		t.Fatalf("reason was altered: got %d bytes, want %d", len(perr.Reason), len(body))
	}
}

func TestBlankRoomNameFailsLocally(t *testing.T) {
	p, c := newFakeProvider(t)
	ctx := context.Background()

	if _, err := c.CreateRoom(ctx, "  "); !errors.Is(err, domain.ErrRoomCreateFailed) {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.JoinRoom(ctx, ""); !errors.Is(err, domain.ErrRoomJoinFailed) {
		t.Fatalf("join: %v", err)
	}
	if c.ValidateRoom(ctx, "") || c.EndRoom(ctx, "") {
		t.Fatalf("blank room reported success")
	}
	if p.AuthFails() != 0 {
		t.Fatalf("blank names reached the provider")
	}
}

func TestRequestsAreAuthenticated(t *testing.T) {
	p, c := newFakeProvider(t)
	c.Secret = "wrong"

	_, err := c.CreateRoom(context.Background(), "standup")
	var perr *domain.ProviderError
	if !errors.As(err, &perr) || perr.Status != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if c.ValidateRoom(context.Background(), "standup") {
		t.Fatalf("unauthenticated validate succeeded")
	}
	if p.AuthFails() != 2 {
		t.Fatalf("auth failures = %d", p.AuthFails())
	}
}

func TestRoomNamesAreEscaped(t *testing.T) {
	_, c := newFakeProvider(t)
	ctx := context.Background()

	if _, err := c.CreateRoom(ctx, "team a/b"); err != nil {
		t.Fatal(err)
	}
	if !c.ValidateRoom(ctx, "team a/b") {
		t.Fatalf("escaped name did not round trip")
	}
}

func TestICEServers(t *testing.T) {
	p, c := newFakeProvider(t)
	ctx := context.Background()

	p.setCredentials(http.StatusOK, `[{"url":"turn:t.example:3478","username":"u","credential":"c","protocol":"udp"}]`)
	got := c.ICEServers(ctx)
	if len(got) != 1 || got[0] != (domain.ICEServer{URL: "turn:t.example:3478", Username: "u", Credential: "c", Protocol: "udp"}) {
		t.Fatalf("bare array: %+v", got)
	}

	p.setCredentials(http.StatusOK, `{"iceServers":[{"urls":"stun:s.example"},{"urls":["turn:a.example","turn:b.example"],"username":"x","credential":"y"}]}`)
	got = c.ICEServers(ctx)
	if len(got) != 3 || got[0].URL != "stun:s.example" || got[2].URL != "turn:b.example" || got[2].Username != "x" {
		t.Fatalf("wrapped: %+v", got)
	}
}

func TestICEServersFallBack(t *testing.T) {
	p, c := newFakeProvider(t)
	ctx := context.Background()

	cases := map[string]func(){
		"server error": func() { p.setCredentials(http.StatusInternalServerError, `boom`) },
		"garbage":      func() { p.setCredentials(http.StatusOK, `<html>`) },
		"empty list":   func() { p.setCredentials(http.StatusOK, `[]`) },
		"empty body":   func() { p.setCredentials(http.StatusOK, ``) },
	}
	for name, setup := range cases {
		t.Run(name, func(t *testing.T) {
			setup()
			assertFallback(t, c.ICEServers(ctx))
		})
	}

	t.Run("unreachable", func(t *testing.T) {
		down := NewClient("http://127.0.0.1:1", secret, 200*time.Millisecond)
		assertFallback(t, down.ICEServers(ctx))
	})
}

func assertFallback(t *testing.T, got []domain.ICEServer) {
	t.Helper()
	if len(got) == 0 || len(got) != len(FallbackICEServers) {
		t.Fatalf("got %+v", got)
	}
	got[0].URL = "mutated"
	if FallbackICEServers[0].URL == "mutated" {
		t.Fatalf("fallback list shared with caller")
	}
}
