package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/feed"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/deps"
	"github.com/MrSnakeDoc/linkvault/internal/httpserver/mw"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

const maxLinkBody = 16 << 10

type createLinkRequest struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type listLinksResponse struct {
	Count int           `json:"count"`
	Links []domain.Item `json:"links"`
}

// ListLinks returns the caller's links, newest first.
func ListLinks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := mw.IdentityFrom(r.Context())

		items, err := d.Backend.ListByOwner(r.Context(), owner)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		if items == nil {
			items = []domain.Item{}
		}
		writeJSON(w, http.StatusOK, listLinksResponse{Count: len(items), Links: items})
	}
}

// CreateLink saves a link for the caller. Open sessions of the same
// identity in this process are told right away; others converge through
// the change feed.
func CreateLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := mw.IdentityFrom(r.Context())

		var req createLinkRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLinkBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid body: %v", err)})
			return
		}
		if err := domain.ValidateLink(req.URL, req.Title); err != nil {
			writeError(w, d.Logger, err)
			return
		}

		item, err := d.Backend.Create(r.Context(), owner, req.URL, req.Title)
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidLink) {
				err = &domain.WriteError{Op: "create", Err: err}
			}
			writeError(w, d.Logger, err)
			return
		}

		if d.Hub != nil {
			d.Hub.Publish(feed.ChannelName(owner), feed.Broadcast{Event: feed.EventLinkAdded, Item: item})
		}
		d.Logger.Debug("link created",
			logger.String("owner", owner),
			logger.String("id", item.ID))

		w.Header().Set("Location", "/api/links/"+item.ID)
		writeJSON(w, http.StatusCreated, item)
	}
}

// DeleteLink removes one of the caller's links.
func DeleteLink(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := mw.IdentityFrom(r.Context())
		id := chi.URLParam(r, "id")

		if err := d.Backend.Delete(r.Context(), owner, id); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				err = &domain.WriteError{Op: "delete", ID: id, Err: err}
			}
			writeError(w, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
