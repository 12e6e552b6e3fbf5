package api

import (
	"net/http"
	"time"

	"github.com/wayfinder-proxy/wayfinder/internal/track"
)

// ConnectionView is the wire shape of one tracked connection.
type ConnectionView struct {
	ID             string    `json:"id"`
	Destination    string    `json:"destination"`
	Port           int       `json:"port"`
	Protocol       string    `json:"protocol"`
	Kind           string    `json:"kind"`
	State          string    `json:"state"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ClosedAt       time.Time `json:"closed_at,omitzero"`
	BytesIn        int64     `json:"bytes_in"`
	BytesOut       int64     `json:"bytes_out"`
	LatencyNs      int64     `json:"latency_ns"`
	ProxyChain     []string  `json:"proxy_chain,omitempty"`
	Country        string    `json:"country,omitempty"`
	CloseReason    string    `json:"close_reason,omitempty"`
}

func connectionView(rec track.Record) ConnectionView {
	v := ConnectionView{
		ID:             rec.ID,
		Destination:    rec.Destination,
		Port:           rec.Port,
		Protocol:       string(rec.Protocol),
		Kind:           string(rec.Kind),
		State:          string(rec.State),
		StartedAt:      rec.StartedAt,
		LastActivityAt: rec.LastActivityAt,
		ClosedAt:       rec.ClosedAt,
		BytesIn:        rec.BytesIn,
		BytesOut:       rec.BytesOut,
		LatencyNs:      rec.Latency.Nanoseconds(),
		ProxyChain:     rec.ProxyChain,
		CloseReason:    rec.CloseReason,
	}
	if rec.Geo != nil {
		v.Country = rec.Geo.Country
	}
	return v
}

// HandleListConnections returns a handler for GET /api/v1/connections.
// Lists active connections; an optional kind query parameter filters by
// route kind instead.
func HandleListConnections(t *track.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var recs []track.Record
		if kind := r.URL.Query().Get("kind"); kind != "" {
			recs = t.ListByKind(track.Kind(kind))
		} else {
			recs = t.ListActive()
		}
		views := make([]ConnectionView, 0, len(recs))
		for _, rec := range recs {
			views = append(views, connectionView(rec))
		}
		WriteList(w, http.StatusOK, views)
	}
}

// HandleGetConnection returns a handler for GET /api/v1/connections/{id}.
func HandleGetConnection(t *track.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, ok := t.Get(r.PathValue("id"))
		if !ok {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "connection not found")
			return
		}
		WriteJSON(w, http.StatusOK, connectionView(rec))
	}
}

// HandleConnectionStats returns a handler for GET /api/v1/connections/stats.
func HandleConnectionStats(t *track.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, t.DetailedStats())
	}
}
