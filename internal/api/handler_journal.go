package api

import (
	"net/http"
	"time"

	"github.com/wayfinder-proxy/wayfinder/internal/journal"
)

// JournalRowView is the wire shape of one journal row.
type JournalRowView struct {
	ID          string    `json:"id"`
	ClosedAt    time.Time `json:"closed_at"`
	Destination string    `json:"destination"`
	Port        int       `json:"port"`
	Protocol    string    `json:"protocol"`
	Kind        string    `json:"kind"`
	State       string    `json:"state"`
	DurationNs  int64     `json:"duration_ns"`
	BytesIn     int64     `json:"bytes_in"`
	BytesOut    int64     `json:"bytes_out"`
	LatencyNs   int64     `json:"latency_ns"`
	CloseReason string    `json:"close_reason,omitempty"`
	Country     string    `json:"country,omitempty"`
}

// HandleQueryJournal returns a handler for GET /api/v1/journal.
// Optional query parameters: destination, kind, limit, offset.
func HandleQueryJournal(repo *journal.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := ParseLimit(r)
		if err != nil {
			writeInvalidArgument(w, err)
			return
		}
		offset, err := ParseOffset(r)
		if err != nil {
			writeInvalidArgument(w, err)
			return
		}
		rows, err := repo.Query(journal.Filter{
			Destination: r.URL.Query().Get("destination"),
			Kind:        r.URL.Query().Get("kind"),
			Limit:       limit,
			Offset:      offset,
		})
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "INTERNAL", "journal query failed")
			return
		}
		views := make([]JournalRowView, 0, len(rows))
		for _, row := range rows {
			views = append(views, JournalRowView{
				ID:          row.ID,
				ClosedAt:    time.Unix(0, row.ClosedAtNs).UTC(),
				Destination: row.Destination,
				Port:        row.Port,
				Protocol:    row.Protocol,
				Kind:        row.Kind,
				State:       row.State,
				DurationNs:  row.DurationNs,
				BytesIn:     row.BytesIn,
				BytesOut:    row.BytesOut,
				LatencyNs:   row.LatencyNs,
				CloseReason: row.CloseReason,
				Country:     row.Country,
			})
		}
		WriteList(w, http.StatusOK, views)
	}
}
