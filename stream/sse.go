package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultKeepAlive is the interval between SSE comment lines that keep
// idle connections open through proxies.
const DefaultKeepAlive = 15 * time.Second

// Handler serves the broker as a Server-Sent Events stream. Clients choose
// topics with repeated ?topic= parameters; none means the firehose.
type Handler struct {
	broker    *Broker
	keepAlive time.Duration
}

// NewHandler returns an SSE handler over b.
func NewHandler(b *Broker, keepAlive time.Duration) *Handler {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	return &Handler{broker: b, keepAlive: keepAlive}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topics := r.URL.Query()["topic"]
	if len(topics) == 0 {
		topics = []string{TopicFirehose}
	}
	for _, t := range topics {
		if err := ValidateTopic(t); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream: response writer does not support flushing", http.StatusInternalServerError)
		return
	}

	sub := h.broker.Subscribe(topics...)
	defer h.broker.Remove(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	var seq int64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			seq++
			if err := writeEvent(w, seq, evt); err != nil {
				h.broker.logger.Debug("stream: client write failed",
					slog.String("subscriber_id", sub.ID()),
					slog.String("error", err.Error()),
				)
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, seq int64, evt *Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", seq, evt.Type, body)
	return err
}
