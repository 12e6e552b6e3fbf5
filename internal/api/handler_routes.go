package api

import (
	"net/http"

	"github.com/wayfinder-proxy/wayfinder/internal/route"
)

// HandleListRoutes returns a handler for GET /api/v1/routes. An optional
// healthy=true query parameter restricts the list to healthy routes.
func HandleListRoutes(reg *route.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var routes []*route.Route
		if r.URL.Query().Get("healthy") == "true" {
			routes = reg.HealthyRoutes()
		} else {
			routes = reg.All()
		}
		views := make([]route.View, 0, len(routes))
		for _, rt := range routes {
			views = append(views, rt.View())
		}
		WriteList(w, http.StatusOK, views)
	}
}

// HandleGetRoute returns a handler for GET /api/v1/routes/{id}.
func HandleGetRoute(reg *route.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt, ok := reg.Get(r.PathValue("id"))
		if !ok {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "route not found")
			return
		}
		WriteJSON(w, http.StatusOK, rt.View())
	}
}

// HandleRouteStats returns a handler for GET /api/v1/routes/stats.
func HandleRouteStats(reg *route.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, reg.Stats())
	}
}
