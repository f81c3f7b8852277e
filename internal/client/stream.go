package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/aiact-go/internal/httpapi"
	"github.com/raphaelgruber/aiact-go/internal/workflow"
)

// StreamEvent is one event of a streamed turn with its payload still encoded.
type StreamEvent struct {
	Type workflow.EventType `json:"type"`
	Data json.RawMessage    `json:"value"`
}

// Decode unmarshals the event payload into v.
func (e StreamEvent) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Chunk returns the text of an answer_chunk event.
func (e StreamEvent) Chunk() (string, bool) {
	if e.Type != workflow.EventAnswerChunk {
		return "", false
	}
	var c workflow.Chunk
	if err := e.Decode(&c); err != nil {
		return "", false
	}
	return c.Text, true
}

// StreamError is a turn failure reported inside a stream.
type StreamError struct {
	Stage   workflow.Stage
	Message string
}

func (e *StreamError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("stream error in stage %s: %s", e.Stage, e.Message)
	}
	return "stream error: " + e.Message
}

// EventFunc receives stream events in order. Returning an error aborts the stream.
type EventFunc func(StreamEvent) error

// handle dispatches ev and reports whether the stream has ended.
func handle(ev StreamEvent, onEvent EventFunc) (*workflow.Result, bool, error) {
	if onEvent != nil {
		if err := onEvent(ev); err != nil {
			return nil, true, err
		}
	}
	switch ev.Type {
	case workflow.EventTurnComplete:
		var res workflow.Result
		if err := ev.Decode(&res); err != nil {
			return nil, true, fmt.Errorf("decode turn_complete: %w", err)
		}
		return &res, true, nil
	case workflow.EventError:
		var info workflow.ErrorInfo
		if err := ev.Decode(&info); err != nil {
			return nil, true, fmt.Errorf("decode error event: %w", err)
		}
		return nil, true, &StreamError{Stage: info.Stage, Message: info.Message}
	}
	return nil, false, nil
}

// AskStream runs one turn over the websocket endpoint and returns the
// completed turn. onEvent sees every event, including the terminal one.
func (c *Client) AskStream(ctx context.Context, chatID, input string, onEvent EventFunc) (*workflow.Result, error) {
	wsEndpoint := c.baseURL
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/chatbot/ws")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	// Track connection state for proper cleanup
	var mu sync.Mutex
	closed := false
	closeConn := func() {
		mu.Lock()
		defer mu.Unlock()
		if !closed {
			closed = true
			conn.Close()
		}
	}
	defer closeConn()

	if err := conn.WriteJSON(httpapi.InvokeRequest{ChatID: chatID, UserInput: input}); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	// Handle context cancellation in a separate goroutine
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn()
		case <-done:
		}
	}()

	for {
		var ev StreamEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("read message: %w", err)
		}
		res, end, err := handle(ev, onEvent)
		if end {
			if err == nil {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			return res, err
		}
	}
}

// AskSSE runs one turn over the server-sent events endpoint.
func (c *Client) AskSSE(ctx context.Context, chatID, input string, onEvent EventFunc) (*workflow.Result, error) {
	payload, err := json.Marshal(httpapi.InvokeRequest{ChatID: chatID, UserInput: input})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chatbot/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body bytes.Buffer
		_, _ = body.ReadFrom(resp.Body)
		return nil, decodeAPIError(resp.StatusCode, body.Bytes())
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var ev StreamEvent
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				continue
			}
			ev.Data = json.RawMessage(strings.Join(data, "\n"))
			res, end, err := handle(ev, onEvent)
			if end {
				return res, err
			}
			ev, data = StreamEvent{}, nil
		case strings.HasPrefix(line, "event:"):
			ev.Type = workflow.EventType(strings.TrimSpace(strings.TrimPrefix(line, "event:")))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return nil, errors.New("stream closed before the turn completed")
}
