package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"esplink/internal/device"
	"esplink/internal/telemetry"
)

// CommandSender is the slice of the device service the API needs.
type CommandSender interface {
	Send(cmd device.Command) (string, error)
}

// Server exposes connection status, the telemetry snapshot, and command
// submission to HTTP collaborators (UI, recognition pipeline).
type Server struct {
	logger *slog.Logger
	status *device.StatusStore
	store  *telemetry.Store
	sender CommandSender
	mux    *http.ServeMux
}

func NewServer(logger *slog.Logger, status *device.StatusStore, store *telemetry.Store, sender CommandSender) *Server {
	s := &Server{
		logger: logger,
		status: status,
		store:  store,
		sender: sender,
		mux:    http.NewServeMux(),
	}
	s.routes()

	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /telemetry", s.handleTelemetry)
	s.mux.HandleFunc("POST /api/command", s.handleCommand)
	s.mux.HandleFunc("POST /api/light", s.handleLight)
	s.mux.HandleFunc("POST /api/led", s.handleSwitch(device.KindLED))
	s.mux.HandleFunc("POST /api/fan", s.handleSwitch(device.KindFan))
	s.mux.HandleFunc("POST /api/door", s.handleSwitch(device.KindDoor))
	s.mux.HandleFunc("POST /api/servo", s.handleServo)
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start(addr string) error {
	s.logger.Info("http api listening", "addr", addr)

	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status.Snapshot())
}

func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.Snapshot())
}

type commandResponse struct {
	OK   bool   `json:"ok"`
	Msg  string `json:"msg"`
	Wire string `json:"wire,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd device.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		s.writeJSON(w, http.StatusBadRequest, commandResponse{Msg: "invalid json body"})

		return
	}
	s.dispatch(w, cmd)
}

func (s *Server) handleLight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index int    `json:"index"`
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, commandResponse{Msg: "invalid json body"})

		return
	}
	if req.Index == 0 {
		req.Index = 1
	}
	s.dispatch(w, device.Command{Kind: device.KindLight, Value: req.State, Index: req.Index})
}

func (s *Server) handleSwitch(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			State string `json:"state"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSON(w, http.StatusBadRequest, commandResponse{Msg: "invalid json body"})

			return
		}
		s.dispatch(w, device.Command{Kind: kind, Value: req.State})
	}
}

func (s *Server) handleServo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Angle any `json:"angle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, commandResponse{Msg: "invalid json body"})

		return
	}
	s.dispatch(w, device.Command{Kind: device.KindServo, Value: req.Angle})
}

// dispatch maps the send outcome onto the HTTP contract: validation
// failures are the caller's fault (400), a missing or broken link is a
// temporary upstream condition (503).
func (s *Server) dispatch(w http.ResponseWriter, cmd device.Command) {
	if _, err := device.Encode(cmd); err != nil {
		s.writeJSON(w, http.StatusBadRequest, commandResponse{Msg: err.Error()})

		return
	}
	wire, err := s.sender.Send(cmd)
	if err != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, commandResponse{Msg: err.Error()})

		return
	}
	s.writeJSON(w, http.StatusOK, commandResponse{OK: true, Msg: "sent", Wire: wire})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("encode response failed", "error", err)
	}
}
