package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/bedwards/sonnet/internal/observe"
	"github.com/bedwards/sonnet/internal/scansion"
)

// liveRequest is one live-scansion message: the whole draft so far.
type liveRequest struct {
	Lines []string `json:"lines"`
}

// liveResponse answers one liveRequest. Exactly one field is set.
type liveResponse struct {
	Report *scansion.Report `json:"report,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// handleLive upgrades to a WebSocket and answers every {"lines": [...]}
// text message with a scansion report. A bad message gets an error reply
// and the socket stays open. The socket closes on a read error or when the
// request context ends.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("api: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	s.metrics.ActiveSockets.Add(ctx, 1)
	defer s.metrics.ActiveSockets.Add(context.WithoutCancel(ctx), -1)

	log := observe.Logger(ctx)
	log.Debug("api: live socket opened")

	for {
		var req liveRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway:
				log.Debug("api: live socket closed by peer")
			case errors.Is(err, context.Canceled):
				// server shutdown
			default:
				log.Debug("api: live socket read failed", "err", err)
			}
			return
		}

		var resp liveResponse
		if rep, err := s.pipeline.Scan(ctx, req.Lines); err != nil {
			resp.Error = err.Error()
		} else {
			resp.Report = rep
		}
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			log.Debug("api: live socket write failed", "err", err)
			return
		}
	}
}
