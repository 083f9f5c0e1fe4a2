package adminhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/cuemby/raftd/pkg/control"
	"github.com/cuemby/raftd/pkg/errs"
	"github.com/rs/zerolog"
)

// Server serves the control surface over HTTP.
type Server struct {
	ctrl   *control.Controller
	http   *http.Server
	logger zerolog.Logger
}

// New builds a Server bound to addr. Call Start to begin serving.
func New(addr string, ctrl *control.Controller, logger zerolog.Logger) *Server {
	s := &Server{ctrl: ctrl, logger: logger.With().Str("component", "adminhttp").Logger()}
	s.http = &http.Server{Addr: addr, Handler: s.routes()}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/init", s.handleInit)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/nodes", s.handleGetNodes)
	mux.HandleFunc("POST /v1/nodes", s.handleAddNode)
	mux.HandleFunc("DELETE /v1/nodes/{id}", s.handleRemoveNode)
	mux.HandleFunc("GET /v1/kv/{key}", s.handleKVGet)
	mux.HandleFunc("PUT /v1/kv/{key}", s.handleKVPut)
	mux.HandleFunc("DELETE /v1/kv/{key}", s.handleKVDelete)
	mux.HandleFunc("POST /v1/replicate", s.handleReplicate)
	mux.HandleFunc("POST /v1/debug", s.handleSetDebug)
	mux.HandleFunc("GET /v1/worker-state", s.handleWorkerState)
	return mux
}

// Start begins serving in a background goroutine. Start does not block;
// bind failures are logged and the server simply never accepts.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("admin http server stopped unexpectedly")
		}
	}()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrNotLeader):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrPendingConfChange), errors.Is(err, errs.ErrDuplicateNode), errors.Is(err, errs.ErrUnknownNode):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrQueueFull), errors.Is(err, errs.ErrCommandTimeout):
		status = http.StatusServiceUnavailable
	case errors.Is(err, errs.ErrShutdown), errors.Is(err, errs.ErrNotInitialized):
		status = http.StatusServiceUnavailable
	}
	body := errorBody{Error: err.Error()}
	if hint, ok := errs.LeaderHint(err); ok {
		body.LeaderHint = &hint
	}
	writeJSON(w, status, body)
}

type errorBody struct {
	Error      string  `json:"error"`
	LeaderHint *uint64 `json:"leader_hint,omitempty"`
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Init(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

type okBody struct {
	OK bool `json:"ok"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.GetClusterStatus())
}

func (s *Server) handleGetNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.GetNodes())
}

type addNodeRequest struct {
	ID   uint64 `json:"id"`
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := s.ctrl.AddNode(req.ID, req.Host, req.Port); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	id, err := parseNodeID(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := s.ctrl.RemoveNode(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

type kvGetResponse struct {
	Value []byte `json:"value"`
	Found bool   `json:"found"`
}

func (s *Server) handleKVGet(w http.ResponseWriter, r *http.Request) {
	value, ok := s.ctrl.KVGet(r.PathValue("key"))
	writeJSON(w, http.StatusOK, kvGetResponse{Value: value, Found: ok})
}

func (s *Server) handleKVPut(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value []byte `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := s.ctrl.KVPut(r.PathValue("key"), req.Value); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handleKVDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.KVDelete(r.PathValue("key")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handleReplicate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload []byte `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := s.ctrl.ReplicateEntry(req.Payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handleSetDebug(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	if err := s.ctrl.SetDebug(req.Enabled); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okBody{OK: true})
}

func (s *Server) handleWorkerState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		State string `json:"state"`
	}{State: s.ctrl.GetWorkerState()})
}
