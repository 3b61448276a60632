package v1

import (
	"fmt"
	"net/http"

	"github.com/resalt-dev/resalt/pkg/errors"
	"github.com/resalt-dev/resalt/pkg/pipeline"
)

// pipelineRoutes streams live change notifications to browser clients.
type pipelineRoutes struct {
	broadcaster *pipeline.Broadcaster
}

// stream serves a server-sent-events feed of pipeline messages. It holds
// the connection open until the client disconnects or the broadcaster
// drops the subscription for falling behind.
func (p *pipelineRoutes) stream(w http.ResponseWriter, r *http.Request) error {
	status, err := callerStatus(r)
	if err != nil {
		return err
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		return errors.NewInternalError("response writer does not support streaming", nil)
	}

	sub := p.broadcaster.Subscribe(status.UserID)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return nil
		case msg, open := <-sub.Messages():
			if !open {
				return nil
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}
