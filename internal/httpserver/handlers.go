package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"marketwatch/internal/alerts"
	"marketwatch/internal/model"
	"marketwatch/internal/report"
)

type healthzResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	ActiveAlerts  int     `json:"active_alerts"`
}

type alertResponse struct {
	Term        string `json:"term"`
	Active      bool   `json:"active"`
	Running     bool   `json:"running"`
	Destination int64  `json:"destination"`
	HistorySize int    `json:"history_size"`
}

type historyResponse struct {
	Term     string          `json:"term"`
	Listings []model.Listing `json:"listings"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func healthz(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, healthzResponse{
			Status:        "ok",
			UptimeSeconds: time.Since(d.StartTime).Seconds(),
			ActiveAlerts:  len(d.Registry.Active()),
		})
	}
}

func subscriberParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "subscriber"), 10, 64)
	return id, err == nil
}

// alertKey resolves the subscriber and ?term= of r to an existing alert.
func alertKey(w http.ResponseWriter, r *http.Request, d Deps) (model.Key, bool) {
	subscriber, ok := subscriberParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid subscriber id")
		return model.Key{}, false
	}
	key, err := alerts.KeyFor(subscriber, r.URL.Query().Get("term"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid term")
		return model.Key{}, false
	}
	if _, err := d.Registry.Get(key); err != nil {
		if errors.Is(err, alerts.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return model.Key{}, false
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return model.Key{}, false
	}
	return key, true
}

func listAlerts(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subscriber, ok := subscriberParam(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid subscriber id")
			return
		}

		list := d.Registry.List(subscriber)
		out := make([]alertResponse, 0, len(list))
		for _, a := range list {
			out = append(out, alertResponse{
				Term:        a.Term,
				Active:      a.Active,
				Running:     d.Supervisor.Running(a.Key()),
				Destination: a.Destination,
				HistorySize: d.History.Len(a.Key()),
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func alertHistory(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := alertKey(w, r, d)
		if !ok {
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		listings := d.History.Snapshot(key, limit)
		if listings == nil {
			listings = []model.Listing{}
		}
		writeJSON(w, http.StatusOK, historyResponse{Term: key.Term, Listings: listings})
	}
}

func exportHistory(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := alertKey(w, r, d)
		if !ok {
			return
		}

		page, err := report.HTML(key.Term, d.History.Snapshot(key, 0))
		if err != nil {
			d.Logger.Error("render report", "term", key.Term, "error", err)
			writeError(w, http.StatusInternalServerError, "render failed")
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(key.Term)+`"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(page)
	}
}
