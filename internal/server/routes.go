package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zsiec/playout/internal/errors"
	"github.com/zsiec/playout/internal/rational"
	"github.com/zsiec/playout/pkg/version"
)

// SeekRequest is the body of POST /api/v1/seek
type SeekRequest struct {
	PTS string `json:"pts"` // "num/den" seconds
}

// SeekResponse reports whether any output found content at the target
type SeekResponse struct {
	PTS   string `json:"pts"`
	Found bool   `json:"found"`
}

// GainRequest is the body of PUT /api/v1/layers/{id}/gain
type GainRequest struct {
	Gain float32 `json:"gain"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	s.writeJSON(w, r, http.StatusOK, version.GetInfo())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.player.Status())
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorHandler.HandleError(w, r, errors.NewValidationError("invalid seek request body"))
		return
	}
	pts, err := rational.Parse(req.PTS)
	if err != nil {
		s.errorHandler.HandleError(w, r, errors.NewValidationError(err.Error()))
		return
	}
	if pts.Sign() < 0 {
		s.errorHandler.HandleError(w, r, errors.NewValidationError("seek target must not be negative"))
		return
	}

	found := s.player.Seek(pts)
	s.writeJSON(w, r, http.StatusOK, SeekResponse{PTS: pts.String(), Found: found})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.player.Clear()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearLayer(w http.ResponseWriter, r *http.Request) {
	s.player.ClearLayer(mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLayerGain(w http.ResponseWriter, r *http.Request) {
	var req GainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorHandler.HandleError(w, r, errors.NewValidationError("invalid gain request body"))
		return
	}
	if req.Gain < 0 {
		s.errorHandler.HandleError(w, r, errors.NewValidationError("gain must not be negative"))
		return
	}

	s.player.SetLayerGain(mux.Vars(r)["id"], req.Gain)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithField("path", r.URL.Path).WithError(err).Error("Failed to encode response")
	}
}
