package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jbrandtmse/iris-table-editor-sub000/internal/auth"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/fault"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/lifecycle"
	"github.com/jbrandtmse/iris-table-editor-sub000/internal/log"
)

// startSessionRequest is the POST /api/v1/session body. The password
// travels only here; it is never echoed back.
type startSessionRequest struct {
	Target   string `json:"target"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type startSessionResponse struct {
	Token     string `json:"token"`
	Target    string `json:"target"`
	Namespace string `json:"namespace,omitempty"`
}

type sessionStatusResponse struct {
	Target       string    `json:"target"`
	Namespace    string    `json:"namespace,omitempty"`
	Table        string    `json:"table,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	AgeSeconds   int64     `json:"ageSeconds"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Target == "" || req.Username == "" {
		writeError(w, http.StatusBadRequest, "target and username are required")
		return
	}

	target, ok := s.cfg.Get().TargetByName(req.Target)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown target")
		return
	}

	token, err := s.sessions.Start(r.Context(), req.Target,
		lifecycle.Target{
			Name:       target.Name,
			Host:       target.Host,
			Port:       target.Port,
			Namespace:  target.Namespace,
			UseTLS:     target.UseTLS,
			PathPrefix: target.PathPrefix,
		},
		lifecycle.Credentials{Username: req.Username, Secret: []byte(req.Password)},
	)
	if err != nil {
		code := fault.CodeOf(err)
		s.logger.Warn().
			Str(log.FieldTarget, req.Target).
			Str("code", string(code)).
			Msg("session start rejected")
		writeFault(w, code)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   r.TLS != nil,
	})
	writeJSON(w, http.StatusCreated, startSessionResponse{
		Token:     token,
		Target:    target.Name,
		Namespace: target.Namespace,
	})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractToken(r)
	snap, err := s.sessions.Validate(token)
	if err != nil {
		writeFault(w, fault.CodeNotConnected)
		return
	}
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		Target:       snap.Target,
		Namespace:    snap.Namespace,
		Table:        snap.Table,
		CreatedAt:    snap.CreatedAt,
		LastActivity: snap.LastActivity,
		AgeSeconds:   int64(snap.LastActivity.Sub(snap.CreatedAt).Seconds()),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	token := auth.ExtractToken(r)
	if token == "" {
		writeFault(w, fault.CodeNotConnected)
		return
	}
	s.sessions.End(token)
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFault maps a stable fault code to an HTTP status and a JSON body
// carrying the code, so clients branch on the code rather than on
// message text.
func writeFault(w http.ResponseWriter, code fault.Code) {
	status := http.StatusInternalServerError
	switch code {
	case fault.CodeCredentialRejected, fault.CodeNotConnected:
		status = http.StatusUnauthorized
	case fault.CodeUnreachable:
		status = http.StatusBadGateway
	case fault.CodeTimeout:
		status = http.StatusGatewayTimeout
	case fault.CodeCancelled:
		status = http.StatusConflict
	case fault.CodeProtocolViolation:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"code": string(code)})
}
