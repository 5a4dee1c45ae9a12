package gateway

import (
	"context"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/clipscope/clipscope/internal/orchestrator"
	"github.com/clipscope/clipscope/internal/worker"
)

// TaskRequest is one inbound task message on the socket.
type TaskRequest struct {
	SessionID   string `json:"session_id"`
	Description string `json:"description"`
	MediaPath   string `json:"media_path,omitempty"`
}

// TaskResponse answers one TaskRequest.
type TaskResponse struct {
	RunID           string   `json:"run_id,omitempty"`
	Final           string   `json:"final"`
	Clarification   bool     `json:"clarification"`
	Workers         []string `json:"workers,omitempty"`
	GenerativeCalls int      `json:"generative_calls,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Runner is the orchestration surface the gateway drives.
type Runner interface {
	Run(ctx context.Context, task worker.Task) *orchestrator.Outcome
}

// Server speaks JSON over WebSocket: one orchestration run per message,
// plus plain HTTP health and metrics endpoints.
type Server struct {
	runner  Runner
	metrics http.Handler
}

func New(runner Runner, metricsHandler http.Handler) *Server {
	return &Server{runner: runner, metrics: metricsHandler}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	mux.HandleFunc("/ws", s.serveWS)
	return mux
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Printf("gateway: accept: %v", err)
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()

	for {
		var req TaskRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			// normal closure or a dead peer, either way we're done
			return
		}
		resp := s.handle(ctx, req)
		if err := wsjson.Write(ctx, conn, resp); err != nil {
			log.Printf("gateway: write: %v", err)
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, req TaskRequest) TaskResponse {
	if req.Description == "" {
		return TaskResponse{Error: "description is required"}
	}
	out := s.runner.Run(ctx, worker.Task{
		SessionID:   req.SessionID,
		Description: req.Description,
		MediaPath:   req.MediaPath,
	})
	return TaskResponse{
		RunID:           out.RunID,
		Final:           out.Final,
		Clarification:   out.Clarification,
		Workers:         out.Selected,
		GenerativeCalls: out.TotalCalls(),
	}
}
