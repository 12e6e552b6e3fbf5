package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wayfinder-proxy/wayfinder/internal/journal"
	"github.com/wayfinder-proxy/wayfinder/internal/observe"
	"github.com/wayfinder-proxy/wayfinder/internal/route"
	"github.com/wayfinder-proxy/wayfinder/internal/track"
)

type testDeps struct {
	tracker  *track.Tracker
	registry *route.Registry
	observer *observe.Observer
	repo     *journal.Repo
}

func newTestServer(t *testing.T) (*Server, testDeps) {
	t.Helper()

	tracker := track.New(track.Config{})
	registry := route.NewRegistry(nil)
	observer := observe.New(observe.Config{
		TrackerStats:  tracker.Stats,
		RegistryStats: registry.Stats,
	})

	repo := journal.NewRepo(t.TempDir(), 1<<20, 3)
	if err := repo.Open(); err != nil {
		t.Fatalf("open journal repo: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	srv := NewServer("127.0.0.1", 0, tracker, registry, observer, repo)
	return srv, testDeps{tracker: tracker, registry: registry, observer: observer, repo: repo}
}

func doGet(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("unmarshal %q: %v", rec.Body.String(), err)
	}
}

func mustRegister(t *testing.T, reg *route.Registry, id string, kind route.Kind, weight int) {
	t.Helper()
	if _, err := reg.Register(route.Definition{
		ID:        id,
		Name:      id,
		Kind:      kind,
		Endpoints: []string{"203.0.113.1:1080"},
		Weight:    weight,
	}); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

// --- /healthz ---

func TestHealthz_OK(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doGet(t, srv, "/healthz")

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" {
		t.Errorf("status field: got %q, want %q", body["status"], "ok")
	}
}

// --- /api/v1/snapshot ---

func TestSnapshot_OK(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.tracker.Create("example.com", 443, track.ProtocolHTTPS, track.KindDirect)
	mustRegister(t, deps.registry, "r1", route.KindDirect, 50)

	rec := doGet(t, srv, "/api/v1/snapshot")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]any
	decodeBody(t, rec, &body)

	conns, ok := body["connections"].(map[string]any)
	if !ok {
		t.Fatalf("missing connections object: %v", body)
	}
	if got := conns["total_connections"].(float64); got != 1 {
		t.Errorf("total_connections: got %v, want 1", got)
	}
	routes, ok := body["routes"].(map[string]any)
	if !ok {
		t.Fatalf("missing routes object: %v", body)
	}
	if got := routes["route_count"].(float64); got != 1 {
		t.Errorf("route_count: got %v, want 1", got)
	}
	if _, ok := body["at"]; !ok {
		t.Error("missing at field")
	}
}

// --- /api/v1/recommendations ---

func TestRecommendations_EmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doGet(t, srv, "/api/v1/recommendations")

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string][]string
	decodeBody(t, rec, &body)
	recs, ok := body["recommendations"]
	if !ok {
		t.Fatal("missing recommendations field")
	}
	if recs == nil {
		t.Error("recommendations should be an empty array, not null")
	}
}

// --- /api/v1/routes ---

func TestListRoutes_RegistrationOrder(t *testing.T) {
	srv, deps := newTestServer(t)
	mustRegister(t, deps.registry, "r1", route.KindDirect, 50)
	mustRegister(t, deps.registry, "r2", route.KindProxy, 70)

	rec := doGet(t, srv, "/api/v1/routes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}

	var body ListResponse[route.View]
	decodeBody(t, rec, &body)
	if body.Total != 2 {
		t.Fatalf("total: got %d, want 2", body.Total)
	}
	if body.Items[0].ID != "r1" || body.Items[1].ID != "r2" {
		t.Errorf("order: got [%s %s], want [r1 r2]", body.Items[0].ID, body.Items[1].ID)
	}
	if !body.Items[0].Healthy {
		t.Error("new route should start healthy")
	}
}

func TestListRoutes_Empty(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doGet(t, srv, "/api/v1/routes")

	var body ListResponse[route.View]
	decodeBody(t, rec, &body)
	if body.Total != 0 {
		t.Errorf("total: got %d, want 0", body.Total)
	}
	if body.Items == nil {
		t.Error("items should be an empty array, not null")
	}
}

func TestGetRoute_OK(t *testing.T) {
	srv, deps := newTestServer(t)
	mustRegister(t, deps.registry, "r1", route.KindTunnel, 40)

	rec := doGet(t, srv, "/api/v1/routes/r1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var view route.View
	decodeBody(t, rec, &view)
	if view.ID != "r1" || view.Kind != route.KindTunnel || view.Weight != 40 {
		t.Errorf("view: got %+v", view)
	}
}

func TestGetRoute_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doGet(t, srv, "/api/v1/routes/missing")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusNotFound)
	}
	var body ErrorResponse
	decodeBody(t, rec, &body)
	if body.Error.Code != "NOT_FOUND" {
		t.Errorf("error code: got %q, want NOT_FOUND", body.Error.Code)
	}
}

func TestRouteStats_OK(t *testing.T) {
	srv, deps := newTestServer(t)
	mustRegister(t, deps.registry, "r1", route.KindDirect, 50)
	mustRegister(t, deps.registry, "r2", route.KindDirect, 50)

	rec := doGet(t, srv, "/api/v1/routes/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if got := body["route_count"].(float64); got != 2 {
		t.Errorf("route_count: got %v, want 2", got)
	}
	byKind := body["count_by_kind"].(map[string]any)
	if got := byKind["direct"].(float64); got != 2 {
		t.Errorf("count_by_kind[direct]: got %v, want 2", got)
	}
}

// --- /api/v1/connections ---

func TestListConnections_ActiveOnly(t *testing.T) {
	srv, deps := newTestServer(t)
	id1 := deps.tracker.Create("a.example.com", 443, track.ProtocolHTTPS, track.KindDirect)
	id2 := deps.tracker.Create("b.example.com", 443, track.ProtocolHTTPS, track.KindProxy)
	deps.tracker.Close(id2, "done")

	rec := doGet(t, srv, "/api/v1/connections")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var body ListResponse[ConnectionView]
	decodeBody(t, rec, &body)
	if body.Total != 1 {
		t.Fatalf("total: got %d, want 1", body.Total)
	}
	if body.Items[0].ID != id1 {
		t.Errorf("id: got %q, want %q", body.Items[0].ID, id1)
	}
	if body.Items[0].State != "connecting" {
		t.Errorf("state: got %q, want connecting", body.Items[0].State)
	}
}

func TestListConnections_KindFilter(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.tracker.Create("a.example.com", 443, track.ProtocolHTTPS, track.KindDirect)
	idProxy := deps.tracker.Create("b.example.com", 443, track.ProtocolHTTPS, track.KindProxy)

	rec := doGet(t, srv, "/api/v1/connections?kind=proxy")
	var body ListResponse[ConnectionView]
	decodeBody(t, rec, &body)
	if body.Total != 1 {
		t.Fatalf("total: got %d, want 1", body.Total)
	}
	if body.Items[0].ID != idProxy || body.Items[0].Kind != "proxy" {
		t.Errorf("item: got %+v", body.Items[0])
	}
}

func TestGetConnection_OK(t *testing.T) {
	srv, deps := newTestServer(t)
	id := deps.tracker.Create("api.example.com", 443, track.ProtocolHTTPS, track.KindProxy)
	connected := track.StateConnected
	lat := 120 * time.Millisecond
	deps.tracker.Update(id, track.Patch{
		State:      &connected,
		Latency:    &lat,
		ProxyChain: []string{"hop1", "hop2"},
		Geo:        &track.GeoInfo{Country: "NL"},
	})

	rec := doGet(t, srv, "/api/v1/connections/"+id)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var view ConnectionView
	decodeBody(t, rec, &view)
	if view.State != "connected" {
		t.Errorf("state: got %q, want connected", view.State)
	}
	if view.LatencyNs != lat.Nanoseconds() {
		t.Errorf("latency_ns: got %d, want %d", view.LatencyNs, lat.Nanoseconds())
	}
	if len(view.ProxyChain) != 2 {
		t.Errorf("proxy_chain: got %v", view.ProxyChain)
	}
	if view.Country != "NL" {
		t.Errorf("country: got %q, want NL", view.Country)
	}
	if !view.ClosedAt.IsZero() {
		t.Error("closed_at should be zero for an open connection")
	}
}

func TestGetConnection_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doGet(t, srv, "/api/v1/connections/nope")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusNotFound)
	}
	var body ErrorResponse
	decodeBody(t, rec, &body)
	if body.Error.Code != "NOT_FOUND" {
		t.Errorf("error code: got %q, want NOT_FOUND", body.Error.Code)
	}
}

func TestConnectionStats_OK(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.tracker.Create("example.com", 443, track.ProtocolHTTPS, track.KindDirect)

	rec := doGet(t, srv, "/api/v1/connections/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]any
	decodeBody(t, rec, &body)
	if got := body["total_connections"].(float64); got != 1 {
		t.Errorf("total_connections: got %v, want 1", got)
	}
	if _, ok := body["by_state"]; !ok {
		t.Error("missing by_state field")
	}
	if _, ok := body["top_destinations"]; !ok {
		t.Error("missing top_destinations field")
	}
}

// --- /api/v1/alerts and /api/v1/events ---

func TestEvents_LimitAndFilter(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.observer.Start()
	t.Cleanup(deps.observer.Stop)

	id := deps.tracker.Create("example.com", 443, track.ProtocolHTTPS, track.KindDirect)
	fn := deps.observer.TrackerEventFunc()
	recd, _ := deps.tracker.Get(id)
	fn(track.Event{Type: track.EventCreated, At: time.Now(), Record: recd})
	fn(track.Event{Type: track.EventClosed, At: time.Now(), Record: recd})

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := doGet(t, srv, "/api/v1/events")
		var body ListResponse[observe.Entry]
		decodeBody(t, rec, &body)
		if body.Total == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("events never arrived, total=%d", body.Total)
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec := doGet(t, srv, "/api/v1/events?limit=1")
	var limited ListResponse[observe.Entry]
	decodeBody(t, rec, &limited)
	if limited.Total != 1 {
		t.Errorf("limited total: got %d, want 1", limited.Total)
	}

	rec = doGet(t, srv, "/api/v1/events?type=connection_created")
	var filtered ListResponse[observe.Entry]
	decodeBody(t, rec, &filtered)
	if filtered.Total != 1 || filtered.Items[0].Type != "connection_created" {
		t.Errorf("filtered: got %+v", filtered.Items)
	}
}

func TestEvents_InvalidLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, q := range []string{"limit=abc", "limit=-1", "limit=99999"} {
		rec := doGet(t, srv, "/api/v1/events?"+q)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status got %d, want %d", q, rec.Code, http.StatusBadRequest)
			continue
		}
		var body ErrorResponse
		decodeBody(t, rec, &body)
		if body.Error.Code != "INVALID_ARGUMENT" {
			t.Errorf("%s: error code got %q, want INVALID_ARGUMENT", q, body.Error.Code)
		}
	}
}

func TestAlerts_CategoryFilter(t *testing.T) {
	srv, deps := newTestServer(t)

	// A route health drop raises a performance alert. The event sits in
	// the buffered queue until Start drains it.
	mustRegister(t, deps.registry, "r1", route.KindProxy, 50)
	rt, _ := deps.registry.Get("r1")
	fn := deps.observer.RegistryEventFunc()
	fn(route.Event{
		Type:       route.EventHealthChanged,
		Route:      rt.View(),
		WasHealthy: true,
		IsHealthy:  false,
		At:         time.Now(),
	})
	deps.observer.Start()
	t.Cleanup(deps.observer.Stop)

	deadline := time.Now().Add(2 * time.Second)
	for {
		rec := doGet(t, srv, "/api/v1/alerts")
		var body ListResponse[observe.Alert]
		decodeBody(t, rec, &body)
		if body.Total == 1 {
			if body.Items[0].Category != observe.CategoryPerformance {
				t.Fatalf("category: got %q, want performance", body.Items[0].Category)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("alert never raised, total=%d", body.Total)
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec := doGet(t, srv, "/api/v1/alerts?category=security")
	var security ListResponse[observe.Alert]
	decodeBody(t, rec, &security)
	if security.Total != 0 {
		t.Errorf("security alerts: got %d, want 0", security.Total)
	}
}

// --- /api/v1/journal ---

func TestQueryJournal_FiltersAndPaging(t *testing.T) {
	srv, deps := newTestServer(t)

	base := time.Now().Add(-time.Minute).UnixNano()
	rows := []journal.Row{
		{ID: "c1", ClosedAtNs: base + 1, Destination: "a.example.com", Port: 443, Protocol: "https", Kind: "direct", State: "closed"},
		{ID: "c2", ClosedAtNs: base + 2, Destination: "b.example.com", Port: 443, Protocol: "https", Kind: "proxy", State: "closed"},
		{ID: "c3", ClosedAtNs: base + 3, Destination: "a.example.com", Port: 443, Protocol: "https", Kind: "direct", State: "error"},
	}
	if err := deps.repo.Insert(rows); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rec := doGet(t, srv, "/api/v1/journal")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	var body ListResponse[JournalRowView]
	decodeBody(t, rec, &body)
	if body.Total != 3 {
		t.Fatalf("total: got %d, want 3", body.Total)
	}
	// Newest first.
	if body.Items[0].ID != "c3" {
		t.Errorf("first row: got %q, want c3", body.Items[0].ID)
	}

	rec = doGet(t, srv, "/api/v1/journal?destination=a.example.com")
	decodeBody(t, rec, &body)
	if body.Total != 2 {
		t.Errorf("destination filter: got %d rows, want 2", body.Total)
	}

	rec = doGet(t, srv, "/api/v1/journal?kind=proxy")
	decodeBody(t, rec, &body)
	if body.Total != 1 || body.Items[0].ID != "c2" {
		t.Errorf("kind filter: got %+v", body.Items)
	}

	rec = doGet(t, srv, "/api/v1/journal?limit=1&offset=1")
	decodeBody(t, rec, &body)
	if body.Total != 1 || body.Items[0].ID != "c2" {
		t.Errorf("paging: got %+v", body.Items)
	}
}

func TestQueryJournal_InvalidOffset(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doGet(t, srv, "/api/v1/journal?offset=-2")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
	var body ErrorResponse
	decodeBody(t, rec, &body)
	if body.Error.Code != "INVALID_ARGUMENT" {
		t.Errorf("error code: got %q, want INVALID_ARGUMENT", body.Error.Code)
	}
}

func TestJournalDisabled_RouteAbsent(t *testing.T) {
	tracker := track.New(track.Config{})
	registry := route.NewRegistry(nil)
	observer := observe.New(observe.Config{})

	srv := NewServer("127.0.0.1", 0, tracker, registry, observer, nil)
	rec := doGet(t, srv, "/api/v1/journal")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}
