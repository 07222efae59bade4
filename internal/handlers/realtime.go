package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crewline/internal/realtime"
	"github.com/charlesng35/crewline/pkg/errors"
	"github.com/charlesng35/crewline/pkg/response"
)

// RealtimeHandler upgrades authenticated requests into websocket streams.
type RealtimeHandler struct {
	hub     *realtime.Hub
	allowed map[string]struct{}
}

// NewRealtimeHandler constructs a realtime handler limited to the notification streams.
func NewRealtimeHandler(hub *realtime.Hub) (*RealtimeHandler, error) {
	if hub == nil {
		return nil, errors.New("HANDLER_CONFIG", "realtime hub is required", http.StatusInternalServerError)
	}
	return &RealtimeHandler{hub: hub, allowed: realtime.AllowedStreams()}, nil
}

// Stream subscribes the caller to the requested streams, or the defaults when ?streams= is empty.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	actor := requireActor(c)
	if actor == nil {
		return
	}

	streams := realtime.DefaultStreams
	if raw := strings.TrimSpace(c.Query("streams")); raw != "" {
		streams = nil
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, ok := h.allowed[strings.ToLower(name)]; !ok {
				response.Error(c, errors.NewBadRequest("unknown stream: "+name))
				return
			}
			streams = append(streams, name)
		}
	}

	h.hub.Serve(actor.ID, streams, h.allowed, c.Writer, c.Request)
}
