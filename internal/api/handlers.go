package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
	"github.com/t77yq/careops-alerts/internal/monitor"
	"github.com/t77yq/careops-alerts/internal/storage"
)

// Engine is the part of the alert manager exposed over HTTP
type Engine interface {
	GetRules() []*model.AlertRule
	GetRule(id string) (*model.AlertRule, error)
	CreateRule(req model.CreateRuleRequest) (*model.AlertRule, error)
	UpdateRule(req model.UpdateRuleRequest) (*model.AlertRule, error)
	DeleteRule(id string) error
	GetNotifications(filters model.NotificationFilters) []model.AlertNotification
	GetNotification(id string) (*model.AlertNotification, error)
	MarkAsRead(id string) error
	MarkAllAsRead() int
	MarkAsResolved(id, resolvedBy string) error
	GetStats() model.NotificationStats
	GetMetrics() []model.MetricDescriptor
	CheckAlerts(ctx context.Context) int
	IsMonitoring() bool
	AddListener(listener monitor.Listener) (unsubscribe func())
}

type Handler struct {
	Engine  Engine
	History storage.NotificationHistoryStorage // optional
	Logger  *zap.Logger
	Timeout time.Duration
}

type errorResponse struct {
	Message string `json:"message"`
}

type resolveRequest struct {
	ResolvedBy string `json:"resolvedBy"`
}

// NewRouter builds the HTTP router. The event stream is mounted outside the
// request timeout.
func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/notifications/stream", h.handleNotificationStream)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if h.Timeout > 0 {
			r.Use(middleware.Timeout(h.Timeout))
		}
		h.RegisterRoutes(r)
	})
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rules", func(r chi.Router) {
		r.Get("/", h.handleRulesList)
		r.Post("/", h.handleRulesCreate)
		r.Get("/{id}", h.handleRuleGet)
		r.Put("/{id}", h.handleRuleUpdate)
		r.Delete("/{id}", h.handleRuleDelete)
	})
	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.handleNotificationsList)
		r.Post("/read-all", h.handleNotificationsReadAll)
		r.Get("/{id}", h.handleNotificationGet)
		r.Post("/{id}/read", h.handleNotificationRead)
		r.Post("/{id}/resolve", h.handleNotificationResolve)
	})
	r.Get("/history", h.handleHistoryList)
	r.Get("/stats", h.handleStats)
	r.Get("/catalog/metrics", h.handleMetricCatalog)
	r.Get("/monitor/status", h.handleMonitorStatus)
	r.Post("/monitor/check", h.handleMonitorCheck)
}

func (h *Handler) handleRulesList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.GetRules())
}

func (h *Handler) handleRulesCreate(w http.ResponseWriter, r *http.Request) {
	var req model.CreateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}
	rule, err := h.Engine.CreateRule(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rule)
}

func (h *Handler) handleRuleGet(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Engine.GetRule(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) handleRuleUpdate(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}
	req.ID = chi.URLParam(r, "id")
	rule, err := h.Engine.UpdateRule(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (h *Handler) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteRule(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleNotificationsList(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, h.Engine.GetNotifications(filters))
}

func (h *Handler) handleNotificationGet(w http.ResponseWriter, r *http.Request) {
	n, err := h.Engine.GetNotification(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) handleNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.MarkAsRead(chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleNotificationsReadAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "updated": h.Engine.MarkAllAsRead()})
}

func (h *Handler) handleNotificationResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
			return
		}
	}
	if err := h.Engine.MarkAsResolved(chi.URLParam(r, "id"), strings.TrimSpace(req.ResolvedBy)); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "notification history is disabled"})
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}
	limit, err := intParam(r, "limit", 50)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	items, err := h.History.List(r.Context(), filters, offset, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	total, err := h.History.Count(r.Context(), filters)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if items == nil {
		items = []*model.AlertNotification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": total})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.GetStats())
}

func (h *Handler) handleMetricCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.GetMetrics())
}

func (h *Handler) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"running": h.Engine.IsMonitoring()})
}

func (h *Handler) handleMonitorCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"triggered": h.Engine.CheckAlerts(r.Context())})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, monitor.ErrRuleNotFound), errors.Is(err, monitor.ErrNotificationNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: err.Error()})
	case errors.Is(err, monitor.ErrInvalidRule):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
	default:
		h.Logger.Error("Request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
	}
}

// parseFilters reads severity, type, isRead, isResolved, from and to. List
// parameters accept repeated keys or comma separated values.
func parseFilters(r *http.Request) (model.NotificationFilters, error) {
	q := r.URL.Query()
	var f model.NotificationFilters

	for _, s := range splitList(q["severity"]) {
		severity := model.AlertSeverity(s)
		if !severity.IsValid() {
			return f, errors.New("unknown severity: " + s)
		}
		f.Severity = append(f.Severity, severity)
	}
	for _, t := range splitList(q["type"]) {
		f.Type = append(f.Type, model.AlertType(t))
	}

	var err error
	if f.IsRead, err = boolParam(q.Get("isRead"), "isRead"); err != nil {
		return f, err
	}
	if f.IsResolved, err = boolParam(q.Get("isResolved"), "isResolved"); err != nil {
		return f, err
	}
	if f.From, err = timeParam(q.Get("from"), "from"); err != nil {
		return f, err
	}
	if f.To, err = timeParam(q.Get("to"), "to"); err != nil {
		return f, err
	}
	return f, nil
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func boolParam(raw, name string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errors.New(name + " must be a boolean")
	}
	return &v, nil
}

func timeParam(raw, name string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.New(name + " must be an RFC3339 timestamp")
	}
	return &t, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return v, nil
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
