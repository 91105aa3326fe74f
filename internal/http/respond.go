package httpx

import (
	"encoding/json"
	"net/http"
)

type apiError struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// respond encodes payload before touching w, so an encoding failure still
// turns into a clean 500 instead of a truncated 200.
func (r *Router) respond(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("encode response", "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(apiError{Error: "internal error", Status: status})
	}
	headers := w.Header()
	headers.Set("Content-Type", "application/json")
	headers.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func (r *Router) fail(w http.ResponseWriter, status int, msg string) {
	r.respond(w, status, apiError{Error: msg, Status: status})
}

// encodeView snapshots the session once. The same bytes serve GET
// /api/state and the first frame of every push stream.
func (r *Router) encodeView() ([]byte, error) {
	body, err := json.Marshal(r.state.View())
	if err != nil {
		r.logger.Error("encode view", "error", err)
		return nil, err
	}
	return body, nil
}

func (r *Router) writeView(w http.ResponseWriter) {
	body, err := r.encodeView()
	if err != nil {
		r.fail(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}
