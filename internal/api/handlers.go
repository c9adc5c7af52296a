package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"wadispatch/internal/repo"
	"wadispatch/internal/service"
	"wadispatch/internal/session"
)

// SessionControl is the slice of the connection supervisor the API needs.
type SessionControl interface {
	Connect(ctx context.Context, fresh bool) (bool, error)
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) session.Status
}

// Dispatcher is the slice of the dispatch worker the API needs.
type Dispatcher interface {
	Submit(ownerID, message, contacts string) error
	Report() service.StatusReport
}

type Handler struct {
	sess SessionControl
	disp Dispatcher
	repo repo.CampaignRepository
}

func NewHandler(s SessionControl, d Dispatcher, r repo.CampaignRepository) *Handler {
	return &Handler{sess: s, disp: d, repo: r}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type connectRequest struct {
	Fresh bool `json:"fresh"`
}

func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	started, err := h.sess.Connect(r.Context(), req.Fresh)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "session_start_failed"})
		return
	}

	msg := "connection already in progress or established"
	if started {
		msg = "starting new connection"
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": msg})
}

func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	_ = h.sess.Disconnect(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Status(r.Context()))
}

type sendRequest struct {
	Message  string `json:"message"`
	Contacts string `json:"contacts"`
	OwnerID  string `json:"ownerId"`
}

func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing_fields"})
		return
	}

	if err := h.disp.Submit(req.OwnerID, req.Message, req.Contacts); err != nil {
		status, code := rejectionCode(err)
		writeJSON(w, status, map[string]any{"error": code})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.disp.Report())
}

func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)
	ownerID := r.URL.Query().Get("ownerId")

	items, err := h.repo.ListCampaigns(r.Context(), ownerID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) ListCampaignLogs(w http.ResponseWriter, r *http.Request) {
	campaignID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_campaign_id"})
		return
	}

	limit := parseInt(r.URL.Query().Get("limit"), 200)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.repo.ListLogs(r.Context(), campaignID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func rejectionCode(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrMissingFields):
		return http.StatusBadRequest, "missing_fields"
	case errors.Is(err, service.ErrNoValidRecipients):
		return http.StatusBadRequest, "no_valid_recipients"
	case errors.Is(err, service.ErrNotConnected):
		return http.StatusConflict, "not_connected"
	case errors.Is(err, service.ErrAlreadySending):
		return http.StatusConflict, "already_sending"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
