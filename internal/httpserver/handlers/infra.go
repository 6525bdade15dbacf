package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/feed"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/importer"
)

type componentStatus struct {
	OK     bool   `json:"ok"`
	Mode   string `json:"mode,omitempty"`
	Impact string `json:"impact,omitempty"`
	Error  string `json:"error,omitempty"`
}

type sessionsStatus struct {
	Open       int            `json:"open"`
	Identities map[string]int `json:"identities"`
	Listening  map[string]int `json:"listening"` // broadcast listeners per identity
}

type importStatus struct {
	Enabled    bool             `json:"enabled"`
	LastImport string           `json:"last_import,omitempty"`
	LastResult *importer.Result `json:"last_result,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Components map[string]componentStatus `json:"components"`
	Sessions   sessionsStatus             `json:"sessions"`
	Import     importStatus               `json:"import"`
}

// Infra reports the store, the open sessions and the importer.
func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		components := map[string]componentStatus{
			"store": checkBackend(r.Context(), d),
		}

		resp := infraResponse{
			Mode:       determineMode(components),
			Components: components,
			Sessions:   sessionsStatus{Identities: map[string]int{}, Listening: map[string]int{}},
			Import:     importStatus{Enabled: d.ImportReloader != nil},
		}
		if d.Sessions != nil {
			resp.Sessions.Open = d.Sessions.Len()
			resp.Sessions.Identities = d.Sessions.ByIdentity()
		}
		if d.Hub != nil {
			for identity := range resp.Sessions.Identities {
				resp.Sessions.Listening[identity] = d.Hub.Subscribers(feed.ChannelName(identity))
			}
		}
		if d.ImportReloader != nil {
			resp.Import.LastImport = "never"
			if at := d.ImportReloader.LastRun(); !at.IsZero() {
				last := d.ImportReloader.Last()
				resp.Import.LastImport = at.UTC().Format(time.RFC3339)
				resp.Import.LastResult = &last
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func determineMode(components map[string]componentStatus) string {
	if s, ok := components["store"]; ok && !s.OK {
		// Sessions keep their last collection and resubscribe once the store is back.
		return "degraded"
	}
	return "live"
}

func checkBackend(ctx context.Context, d deps.Deps) componentStatus {
	if d.Backend == nil {
		return componentStatus{OK: false, Impact: "writes-disabled", Error: "store not initialized"}
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := d.Backend.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   d.Backend.Name(),
			Impact: "writes-disabled",
			Error:  err.Error(),
		}
	}
	return componentStatus{OK: true, Mode: d.Backend.Name()}
}
