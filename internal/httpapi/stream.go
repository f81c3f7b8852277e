package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/aiact-go/internal/workflow"
)

// emitFunc delivers one event to the client.
type emitFunc func(workflow.Event) error

// FormatSSE renders one server-sent event frame.
func FormatSSE(w io.Writer, event string, data []byte) error {
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if !s.decode(w, r, &req) {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, err := s.chat.AskStream(ctx, req.ChatID, req.UserInput)
	if err != nil {
		s.writeError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	s.relay(ctx, events, func(ev workflow.Event) error {
		data, err := json.Marshal(ev.Value)
		if err != nil {
			return err
		}
		if err := FormatSSE(w, string(ev.Type), data); err != nil {
			return err
		}
		return rc.Flush()
	})
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	requests := make(chan InvokeRequest)
	go func() {
		defer cancel()
		for {
			var req InvokeRequest
			if err := conn.ReadJSON(&req); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.logger.Debug("websocket read ended", "error", err)
				}
				return
			}
			select {
			case requests <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	emit := func(ev workflow.Event) error {
		return conn.WriteJSON(ev)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-requests:
			if !s.websocketTurn(ctx, req, emit) {
				return
			}
		}
	}
}

// websocketTurn runs one streamed turn. It reports false once the
// connection can no longer be written to.
func (s *Server) websocketTurn(ctx context.Context, req InvokeRequest, emit emitFunc) bool {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := s.chat.AskStream(turnCtx, req.ChatID, req.UserInput)
	if err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("websocket turn failed", "error", err)
		}
		return emit(workflow.Event{Type: workflow.EventError, Value: workflow.ErrorInfo{Message: msg}}) == nil
	}
	return s.relay(turnCtx, events, emit)
}

// relay forwards events until the stream closes. Error events are reduced
// to a client-safe message. It reports false if the client went away.
func (s *Server) relay(ctx context.Context, events <-chan workflow.Event, emit emitFunc) bool {
	for ev := range events {
		if info, ok := ev.Value.(workflow.ErrorInfo); ok && ev.Type == workflow.EventError {
			s.logger.Error("streamed turn failed", "stage", info.Stage, "error", info.Message)
			ev.Value = workflow.ErrorInfo{Stage: info.Stage, Message: internalErrorMessage}
		}
		if err := emit(ev); err != nil {
			s.logger.Debug("stream client gone", "error", err)
			return false
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return true
}
