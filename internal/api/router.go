package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("POST /v1/connect", h.Connect)
	mux.HandleFunc("POST /v1/disconnect", h.Disconnect)
	mux.HandleFunc("GET /v1/status", h.Status)

	mux.HandleFunc("POST /v1/send", h.Send)
	mux.HandleFunc("GET /v1/report", h.Report)

	mux.HandleFunc("GET /v1/campaigns", h.ListCampaigns)
	mux.HandleFunc("GET /v1/campaigns/{id}/logs", h.ListCampaignLogs)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("wadispatch"))
	})

	return mux
}
