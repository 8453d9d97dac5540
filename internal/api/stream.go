package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
)

// handleNotificationStream pushes the notification list as server-sent
// events, once on connect and again after every change. Slow clients only
// see the latest list.
func (h *Handler) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "streaming unsupported"})
		return
	}

	updates := make(chan []model.AlertNotification, 1)
	push := func(notifications []model.AlertNotification) {
		select {
		case updates <- notifications:
		default:
			// replace the pending snapshot
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- notifications:
			default:
			}
		}
	}

	unsubscribe := h.Engine.AddListener(push)
	defer unsubscribe()
	push(h.Engine.GetNotifications(model.NotificationFilters{}))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case notifications := <-updates:
			data, err := json.Marshal(notifications)
			if err != nil {
				h.Logger.Error("Failed to encode notifications", zap.Error(err))
				return
			}
			if _, err := fmt.Fprintf(w, "event: notifications\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
