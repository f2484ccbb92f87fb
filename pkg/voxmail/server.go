package voxmail

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/voxmail/voxmail/pkg/transports/daily"
)

// ControlServer is the HTTP surface for browser-based calls. It mints
// Daily rooms and tokens so a web client can join a session, and exposes
// engine health. Phone calls bypass it entirely and arrive over the
// telephony transport's own webhooks.
type ControlServer struct {
	engine *Engine
	rooms  *daily.Client
	server *http.Server
	logger *slog.Logger
}

type startResponse struct {
	RoomURL string `json:"room_url"`
	Token   string `json:"token"`
}

type tokenRequest struct {
	RoomName string `json:"room_name"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type stopRequest struct {
	CallSID  string `json:"call_sid,omitempty"`
	RoomName string `json:"room_name,omitempty"`
}

func NewControlServer(engine *Engine, logger *slog.Logger) *ControlServer {
	cfg := engine.Config().Server
	s := &ControlServer{
		engine: engine,
		logger: logger.With("component", "control_server"),
	}
	if cfg.DailyAPIKey != "" {
		s.rooms = daily.NewClient(cfg.DailyAPIKey)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/start", s.handleStart)
	mux.HandleFunc("/get-token", s.handleGetToken)
	mux.HandleFunc("/stop", s.handleStop)
	mux.HandleFunc("/health", s.handleHealth)

	addr := cfg.Addr
	if addr == "" {
		addr = ":7860"
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *ControlServer) Start() error {
	s.logger.Info("control server listening", "addr", s.server.Addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *ControlServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// handleStart creates a fresh room plus an owner token and hands both to
// the caller. The web client joins the room; the bot side joins with the
// same credentials out of band.
func (s *ControlServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.rooms == nil {
		http.Error(w, "room provisioning not configured", http.StatusServiceUnavailable)
		return
	}
	cfg := s.engine.Config().Server
	roomTTL := time.Duration(cfg.RoomTTLMinutes) * time.Minute
	tokenTTL := time.Duration(cfg.TokenTTLMinutes) * time.Minute

	room, token, err := s.rooms.CreateRoomAndToken(r.Context(), roomTTL, tokenTTL)
	if err != nil {
		s.logger.Error("room create failed", "error", err.Error())
		http.Error(w, "failed to provision room", http.StatusBadGateway)
		return
	}
	s.logger.Info("room created", "room", room.Name)
	writeJSON(w, http.StatusOK, startResponse{RoomURL: room.URL, Token: token.Token})
}

// handleGetToken mints a non-owner token for an existing room, for
// late joiners.
func (s *ControlServer) handleGetToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.rooms == nil {
		http.Error(w, "room provisioning not configured", http.StatusServiceUnavailable)
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.RoomName) == "" {
		http.Error(w, "room_name required", http.StatusBadRequest)
		return
	}
	cfg := s.engine.Config().Server
	tokenTTL := time.Duration(cfg.TokenTTLMinutes) * time.Minute

	token, err := s.rooms.CreateToken(r.Context(), req.RoomName, false, tokenTTL)
	if err != nil {
		s.logger.Error("token create failed", "room", req.RoomName, "error", err.Error())
		http.Error(w, "failed to mint token", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token.Token})
}

// handleStop tears down a session and, when a room name is given,
// deletes the room so stragglers are disconnected.
func (s *ControlServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.CallSID == "" && req.RoomName == "" {
		http.Error(w, "call_sid or room_name required", http.StatusBadRequest)
		return
	}
	if req.CallSID != "" {
		s.engine.persist(r.Context(), req.CallSID)
		s.engine.forgetManager(req.CallSID)
		s.engine.Registry().Remove(req.CallSID)
		s.logger.Info("session stopped", "call_sid", req.CallSID)
	}
	if req.RoomName != "" && s.rooms != nil {
		if err := s.rooms.DeleteRoom(r.Context(), req.RoomName); err != nil {
			s.logger.Warn("room delete failed", "room", req.RoomName, "error", err.Error())
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *ControlServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Health(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": s.engine.Registry().Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
