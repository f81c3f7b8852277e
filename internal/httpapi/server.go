// Package httpapi exposes the chat service over HTTP: JSON endpoints for
// conversations, passages and index jobs, and SSE and websocket endpoints
// for streamed turns.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/aiact-go/internal/metrics"
	"github.com/raphaelgruber/aiact-go/internal/models"
	"github.com/raphaelgruber/aiact-go/internal/service"
	"github.com/raphaelgruber/aiact-go/internal/workflow"
)

const (
	maxBodyBytes   = 1 << 20
	defaultSearchK = 10
)

// InvokeRequest is the body of POST /chatbot and the websocket messages.
type InvokeRequest struct {
	ChatID    string `json:"chat_id,omitempty"`
	UserInput string `json:"user_input"`
}

// InvokeResponse is the result of a synchronous turn.
type InvokeResponse struct {
	ChatID            string            `json:"chat_id"`
	Name              string            `json:"name"`
	Created           bool              `json:"created"`
	UserInput         string            `json:"user_input"`
	Answer            string            `json:"answer"`
	RelevantPartTexts []models.Citation `json:"relevant_part_texts"`
	Path              []workflow.Stage  `json:"path"`
}

// RenameRequest is the body of PUT /chats/{id}.
type RenameRequest struct {
	Name string `json:"name"`
}

// MessageResponse acknowledges deletions.
type MessageResponse struct {
	Message string `json:"message"`
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	metrics.Snapshot
	Index *service.IndexStats `json:"index,omitempty"`
}

// Server serves the HTTP API.
type Server struct {
	chat     *service.ChatService
	index    *service.IndexService
	metrics  *metrics.Collector
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a server. index and collector may be nil.
func New(chat *service.ChatService, index *service.IndexService, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		chat:    chat,
		index:   index,
		metrics: collector,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for local dev
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chatbot", s.handleInvoke)
	mux.HandleFunc("POST /chatbot/invoke", s.handleInvoke)
	mux.HandleFunc("POST /chatbot/stream", s.handleStream)
	mux.HandleFunc("GET /chatbot/ws", s.handleWebsocket)

	mux.HandleFunc("GET /chats", s.handleListChats)
	mux.HandleFunc("GET /chats/{id}", s.handleGetChat)
	mux.HandleFunc("PUT /chats/{id}", s.handleRenameChat)
	mux.HandleFunc("DELETE /chats/{id}", s.handleDeleteChat)
	mux.HandleFunc("GET /chat-history/{id}", s.handleHistory)
	mux.HandleFunc("DELETE /chat-history/{id}", s.handleClearHistory)

	mux.HandleFunc("GET /ai-act/parts/{id}", s.handlePart)
	mux.HandleFunc("GET /search", s.handleSearch)

	mux.HandleFunc("POST /index/rebuild", s.handleRebuild)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /stats", s.handleStats)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	return LoggingMiddleware(s.logger, mux)
}

// NewHTTPServer wraps handler with the timeouts used by aiact-server.
// WriteTimeout is left unset so streamed turns are not cut off.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.chat.Ask(r.Context(), req.ChatID, req.UserInput)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newInvokeResponse(res))
}

func newInvokeResponse(res *workflow.Result) InvokeResponse {
	citations := res.Turn.Assistant.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	return InvokeResponse{
		ChatID:            res.Conversation.ID,
		Name:              res.Conversation.Name,
		Created:           res.Created,
		UserInput:         res.Turn.User.Content,
		Answer:            res.Turn.Assistant.Content,
		RelevantPartTexts: citations,
		Path:              res.Path,
	}
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chat.Conversations(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if chats == nil {
		chats = []models.Conversation{}
	}
	s.writeJSON(w, http.StatusOK, chats)
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.chat.Conversation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if !s.decode(w, r, &req) {
		return
	}
	chat, err := s.chat.Rename(r.Context(), r.PathValue("id"), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, chat)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, MessageResponse{Message: "Deleted"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.chat.Turns(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, turns)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.ClearHistory(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, MessageResponse{Message: "Deleted"})
}

func (s *Server) handlePart(w http.ResponseWriter, r *http.Request) {
	part, err := s.chat.Part(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, part)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	k := defaultSearchK
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Detail: "k must be a non-negative integer"})
			return
		}
		k = n
	}
	hits, err := s.chat.Search(r.Context(), r.URL.Query().Get("q"), k)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if hits == nil {
		hits = []models.ScoredPassage{}
	}
	s.writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if s.index == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Detail: "index rebuilds are not available"})
		return
	}
	job := s.index.StartRebuild("api")
	s.writeJSON(w, http.StatusAccepted, job.Snapshot())
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	out := []*service.Job{}
	if s.index != nil {
		for _, job := range s.index.Jobs().ListJobs() {
			out = append(out, job.Snapshot())
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	var job *service.Job
	if s.index != nil {
		job = s.index.Jobs().GetJob(r.PathValue("id"))
	}
	if job == nil {
		s.writeJSON(w, http.StatusNotFound, ErrorResponse{Detail: "Job not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, job.Snapshot())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Snapshot: s.metrics.Snapshot()}
	if s.index != nil {
		stats, err := s.index.Stats(r.Context())
		if err != nil {
			s.logger.Warn("index stats unavailable", "error", err)
		} else {
			resp.Index = &stats
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Detail: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request error", "error", err)
	}
	s.writeJSON(w, status, ErrorResponse{Detail: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("write response failed", "error", err)
	}
}

// Shutdown stops srv gracefully within timeout.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
