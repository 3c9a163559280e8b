package status

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rickgao/geolink/internal/connection"
	"github.com/rickgao/geolink/internal/version"
)

const maxBodyBytes = 64 << 10

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State               string          `json:"state"`
	Attempts            int             `json:"attempts"`
	SessionID           string          `json:"session_id,omitempty"`
	MessagesSent        int64           `json:"messages_sent"`
	MessagesReceived    int64           `json:"messages_received"`
	ParseErrors         int64           `json:"parse_errors"`
	ListenerErrors      int64           `json:"listener_errors"`
	ReconnectsScheduled int64           `json:"reconnects_scheduled"`
	ConnectionError     string          `json:"connection_error,omitempty"`
	LastMessage         json.RawMessage `json:"last_message,omitempty"`
	Version             version.Info    `json:"version"`
}

// SendResponse is the body of the send routes.
type SendResponse struct {
	Sent  bool   `json:"sent"`
	State string `json:"state"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.link.State()
	resp := HealthResponse{
		Connected: state == connection.StateConnected,
		State:     state.String(),
	}

	status := http.StatusOK
	if !resp.Connected {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.link.Stats()
	resp := StatusResponse{
		State:               stats.State.String(),
		Attempts:            stats.Attempts,
		SessionID:           stats.SessionID,
		MessagesSent:        stats.MessagesSent,
		MessagesReceived:    stats.MessagesReceived,
		ParseErrors:         stats.ParseErrors,
		ListenerErrors:      stats.ListenerErrors,
		ReconnectsScheduled: stats.ReconnectsScheduled,
		Version:             s.version,
	}
	if err := s.link.ConnectionError(); err != nil {
		resp.ConnectionError = err.Error()
	}
	if env, ok := s.link.LastMessage(); ok {
		if data, err := json.Marshal(env); err == nil {
			resp.LastMessage = data
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, http.StatusBadRequest, "latitude and longitude are required")
		return
	}
	if *req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180 {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}

	s.writeSend(w, s.link.SendLocation(*req.Latitude, *req.Longitude))
}

type photoRequest struct {
	PhotoID  any            `json:"photoId"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handlePhoto(w http.ResponseWriter, r *http.Request) {
	var req photoRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch req.PhotoID.(type) {
	case string, float64:
	default:
		writeError(w, http.StatusBadRequest, "photoId must be a string or a number")
		return
	}

	s.writeSend(w, s.link.NotifyPhotoCapture(req.PhotoID, req.Metadata))
}

func (s *Server) writeSend(w http.ResponseWriter, sent bool) {
	status := http.StatusAccepted
	if !sent {
		status = http.StatusConflict
	}
	writeJSON(w, status, SendResponse{Sent: sent, State: s.link.State().String()})
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if err := s.link.Connect(r.Context()); err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, connection.ErrNetworkUnavailable) {
			status = http.StatusServiceUnavailable
		}
		s.logger.Warn("connect via status api failed", "error", err)
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Connected: s.link.State() == connection.StateConnected,
		State:     s.link.State().String(),
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	s.link.Disconnect()
	writeJSON(w, http.StatusOK, HealthResponse{State: s.link.State().String()})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
