// Package simserver exposes the consultation API over HTTP from a canned
// script, so the client can be exercised end to end without the real
// multi-agent service. No LLM is involved; sessions replay consult.Script
// steps on a configurable time scale.
package simserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mzhao/medcouncil/internal/consult"
)

// Server simulates the consultation backend.
type Server struct {
	script consult.Script
	// speed divides the script's nominal step durations; 10 makes a
	// ~90 second consultation finish in ~9 seconds.
	speed float64

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id       string
	question string

	mu       sync.Mutex
	progress float64
	step     string
	status   consult.Status
	result   json.RawMessage
}

// Option customizes a Server.
type Option func(*Server)

// WithSpeed sets the playback speed multiplier.
func WithSpeed(speed float64) Option {
	return func(s *Server) {
		if speed > 0 {
			s.speed = speed
		}
	}
}

// WithScript replaces the default demo script.
func WithScript(script consult.Script) Option {
	return func(s *Server) { s.script = script }
}

// New creates a simulator over the demo script at normal speed.
func New(opts ...Option) *Server {
	s := &Server{
		script:   consult.DemoScript(),
		speed:    1,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Router returns the HTTP surface:
//
//	POST /api/consultation/start
//	GET  /api/consultation/{sessionID}/progress
//	GET  /api/consultation/{sessionID}/stream
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Post("/api/consultation/start", s.handleStart)
	r.Get("/api/consultation/{sessionID}/progress", s.handleProgress)
	r.Get("/api/consultation/{sessionID}/stream", s.handleStream)
	return r
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req consult.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sess := &session{
		id:       uuid.NewString(),
		question: req.Question,
		status:   consult.StatusRunning,
		step:     "开始会诊...",
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	go s.play(sess)

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sess.id,
		"status":     "started",
	})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(chi.URLParam(r, "sessionID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		return
	}
	writeJSON(w, http.StatusOK, sess.snapshot())
}

// handleStream pushes progress as Server-Sent Events until the session
// reaches a terminal status.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookup(chi.URLParam(r, "sessionID"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Session not found"})
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		snap := sess.snapshot()
		data, err := json.Marshal(snap)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		if snap.Status.Terminal() {
			return
		}
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// play walks one session through the script on the configured time scale.
func (s *Server) play(sess *session) {
	for i, step := range s.script.Steps {
		sess.mu.Lock()
		sess.progress = step.Progress
		sess.step = step.Step
		last := i == len(s.script.Steps)-1
		if last {
			result := s.script.Result
			result.SessionID = sess.id
			if sess.question != "" {
				result.Question = sess.question
			}
			if payload, err := json.Marshal(result); err == nil {
				sess.status = consult.StatusCompleted
				sess.result = payload
			} else {
				sess.status = consult.StatusError
				sess.result = mustErrorPayload("模拟会诊结果编码失败")
			}
		}
		sess.mu.Unlock()
		if last {
			return
		}
		time.Sleep(time.Duration(float64(step.Nominal) / s.speed))
	}
}

func (s *Server) lookup(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (sess *session) snapshot() consult.Snapshot {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return consult.Snapshot{
		Progress:    sess.progress,
		CurrentStep: sess.step,
		Status:      sess.status,
		Result:      sess.result,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func mustErrorPayload(message string) json.RawMessage {
	data, _ := json.Marshal(map[string]string{"error": message})
	return data
}
