package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/auditrack/internal/common"
	"github.com/dmitrijs2005/auditrack/internal/server/models"
	"github.com/dmitrijs2005/auditrack/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, msgAPIRunning)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: msgInvalidData})
		return
	}

	if !s.limiter.Allow(req.Username) {
		s.metrics.LoginFailed("throttled")
		s.writeServiceError(w, r, common.ErrTooManyAttempts, "")
		return
	}

	res, err := s.users.Login(r.Context(), req.Username, []byte(req.Password))
	if err != nil {
		if errors.Is(err, common.ErrAuthentication) {
			s.metrics.LoginFailed("credentials")
		}
		s.writeServiceError(w, r, err, "")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in services.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: msgInvalidData})
		return
	}

	u, err := s.users.Register(r.Context(), currentUser(r), in)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	s.logger.Info(r.Context(), "user registered", "id", u.ID, "role", string(u.Role))
	writeJSON(w, http.StatusCreated, messageBody{Message: msgUserRegistered, ID: u.ID})
}

func (s *Server) handleSubmitAudit(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeAudit(w, r)
	if !ok {
		return
	}

	a, err := s.audits.Create(r.Context(), currentUser(r), in)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}

	s.metrics.AuditCreated()
	writeJSON(w, http.StatusCreated, messageBody{Message: msgAuditRegistered, ID: a.ID})
}

func (s *Server) handleListAudits(w http.ResponseWriter, r *http.Request) {
	docs, err := s.audits.List(r.Context(), currentUser(r))
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleUpdateAudit(w http.ResponseWriter, r *http.Request) {
	in, ok := s.decodeAudit(w, r)
	if !ok {
		return
	}

	if err := s.audits.Update(r.Context(), currentUser(r), chi.URLParam(r, "id"), in); err != nil {
		s.writeServiceError(w, r, err, msgAuditNotFound)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msgAuditUpdated})
}

func (s *Server) handleDeleteAudit(w http.ResponseWriter, r *http.Request) {
	if err := s.audits.Delete(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err, msgAuditNotFound)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msgAuditDeleted})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	docs, err := s.audits.Export(r.Context(), currentUser(r))
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.audits.Snapshot(r.Context(), currentUser(r))
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	s.logger.Info(r.Context(), "export snapshot stored", "key", snap.Key, "count", snap.Count)
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.ListUsers(r.Context(), currentUser(r))
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.DeleteUser(r.Context(), currentUser(r), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err, msgUserNotFound)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: msgUserDeleted})
}

// decodeAudit reads an audit body. On failure the response has been written.
func (s *Server) decodeAudit(w http.ResponseWriter, r *http.Request) (*models.AuditInput, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageBody{Message: msgInvalidData})
		return nil, false
	}
	in, err := models.DecodeAuditInput(body)
	if err != nil {
		s.writeServiceError(w, r, err, "")
		return nil, false
	}
	return in, true
}

// writeServiceError writes the contract response for err. Unexpected errors
// are logged and answered with a generic 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	status, body, known := statusFor(err, notFound)
	if !known {
		s.logger.Error(r.Context(), "request failed",
			"error", err,
			"route", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
		)
	}
	if body.Message == "" {
		body.Message = http.StatusText(status)
	}
	writeJSON(w, status, body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
