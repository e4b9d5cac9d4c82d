// Package api exposes the inventory service over HTTP JSON. The adapter maps
// payloads and errors onto the wire contract and carries no domain rules.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"stockcore/internal/adapters/backup"
	"stockcore/internal/core"
	"stockcore/pkg/domain"
)

// Handler routes inventory and snapshot requests. Snapshots is optional:
// when nil the snapshot endpoints report not found.
type Handler struct {
	Service   *core.Service
	Snapshots backup.Scheduler
}

// NewHandler constructs an HTTP handler over the service.
func NewHandler(service *core.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		writeError(w, http.StatusInternalServerError, "inventory service not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/healthz":
		h.handleHealth(w, r)
	case path == "/api/v1/items":
		h.handleItems(w, r)
	case strings.HasPrefix(path, "/api/v1/items/"):
		h.handleItem(w, r, strings.TrimPrefix(path, "/api/v1/items/"))
	case path == "/api/v1/snapshots" || strings.HasPrefix(path, "/api/v1/snapshots/"):
		if h.Snapshots == nil {
			http.NotFound(w, r)
			return
		}
		h.handleSnapshots(w, r, path)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) handleItems(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := h.Service.ListItems(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		payload, ok := decodePayload(w, r)
		if !ok {
			return
		}
		item, err := h.Service.AddItem(r.Context(), payload)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"item": item})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request, remainder string) {
	id, err := strconv.ParseUint(remainder, 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "item id must be an unsigned integer")
		return
	}
	switch r.Method {
	case http.MethodGet:
		item, err := h.Service.GetItem(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
	case http.MethodPut:
		payload, ok := decodePayload(w, r)
		if !ok {
			return
		}
		item, err := h.Service.UpdateItem(r.Context(), id, payload)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
	case http.MethodDelete:
		item, err := h.Service.DeleteItem(r.Context(), id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"item": item})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type snapshotRequest struct {
	RequestedBy string `json:"requested_by"`
	Reason      string `json:"reason"`
}

func (h *Handler) handleSnapshots(w http.ResponseWriter, r *http.Request, path string) {
	if path == "/api/v1/snapshots" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"snapshots": h.Snapshots.ListSnapshots()})
		case http.MethodPost:
			var req snapshotRequest
			// an empty body is a valid ad-hoc trigger
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, "invalid snapshot request payload")
				return
			}
			record, err := h.Snapshots.EnqueueSnapshot(r.Context(), backup.SnapshotInput{
				RequestedBy: req.RequestedBy,
				Reason:      req.Reason,
			})
			if err != nil {
				writeError(w, http.StatusServiceUnavailable, err.Error())
				return
			}
			writeJSON(w, http.StatusAccepted, map[string]any{"snapshot": record})
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	id := strings.TrimPrefix(path, "/api/v1/snapshots/")
	if id == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	record, ok := h.Snapshots.GetSnapshot(id)
	if !ok {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshot": record})
}

// decodePayload reads the create/update body. A malformed body is reported as
// a 400 before the service is consulted.
func decodePayload(w http.ResponseWriter, r *http.Request) (domain.ItemPayload, bool) {
	var payload domain.ItemPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid item payload")
		return domain.ItemPayload{}, false
	}
	return payload, true
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var notFound domain.ErrNotFound
	var invalid domain.ErrInvalidInput
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
