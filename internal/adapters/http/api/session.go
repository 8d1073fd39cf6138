package api

import "net/http"

// SessionHandler reports who the caller is.
type SessionHandler struct{}

// NewSessionHandler creates a new session handler.
func NewSessionHandler() *SessionHandler { return &SessionHandler{} }

type sessionResponse struct {
	Message string `json:"message"`
	UserID  string `json:"userId"`
}

// HandleSession handles GET /session requests.
func (h *SessionHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionResponse{Message: "User is logged in", UserID: UserID(r.Context())})
}
