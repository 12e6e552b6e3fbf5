package api

import (
	"net/http"

	"github.com/wayfinder-proxy/wayfinder/internal/observe"
)

// HandleSnapshot returns a handler for GET /api/v1/snapshot.
func HandleSnapshot(o *observe.Observer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, o.Snapshot())
	}
}

// HandleRecommendations returns a handler for GET /api/v1/recommendations.
func HandleRecommendations(o *observe.Observer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs := o.Recommendations()
		if recs == nil {
			recs = []string{}
		}
		WriteJSON(w, http.StatusOK, map[string][]string{"recommendations": recs})
	}
}

// HandleAlerts returns a handler for GET /api/v1/alerts. An optional
// category query parameter filters to performance or security alerts.
func HandleAlerts(o *observe.Observer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		alerts := o.ActiveAlerts()
		if category := r.URL.Query().Get("category"); category != "" {
			filtered := alerts[:0]
			for _, a := range alerts {
				if string(a.Category) == category {
					filtered = append(filtered, a)
				}
			}
			alerts = filtered
		}
		WriteList(w, http.StatusOK, alerts)
	}
}

// HandleEvents returns a handler for GET /api/v1/events, newest first.
// Optional query parameters: type, limit.
func HandleEvents(o *observe.Observer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := ParseLimit(r)
		if err != nil {
			writeInvalidArgument(w, err)
			return
		}
		var entries []observe.Entry
		if eventType := r.URL.Query().Get("type"); eventType != "" {
			entries = o.EventsByType(eventType, limit)
		} else {
			entries = o.RecentEvents(limit)
		}
		WriteList(w, http.StatusOK, entries)
	}
}
