package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"deptcms/internal/api"
	"deptcms/internal/store"
)

const maxJSONBody = 1 << 20

// writeErrorReq logs err at a level that fits status and writes the error
// envelope. 5xx messages are replaced with "internal error".
func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	status, code, errCode := describeError(status, err)
	message := err.Error()

	fields := []any{"status", status, "code", code, "error_code", errCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		s.log().Warn("request rejected", fields...)
	default:
		if status >= 500 {
			s.log().Error("request error", fields...)
			message = "internal error"
		} else {
			s.log().Debug("request rejected", fields...)
		}
	}

	s.writeJSON(w, status, api.ErrorResponse{Success: false, Message: message, Code: code, ErrorCode: errCode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

func (s *Server) writeOK(w http.ResponseWriter, status int, message string, data any) {
	s.writeJSON(w, status, api.Envelope{Success: true, Message: message, Data: data})
}

// writeServiceError classifies err. A request whose client disconnected gets no reply.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		s.log().Debug("client went away", "method", r.Method, "path", r.URL.Path)
		return
	}
	s.writeErrorReq(w, r, http.StatusInternalServerError, classifyError(err))
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, http.StatusInternalServerError, makeAPIError(http.StatusInternalServerError, "internal", ErrCodeStoreFailure, err))
}

// decodeJSONReq decodes a bounded JSON body into dst, writing a 400 on failure.
func (s *Server) decodeJSONReq(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		err = badRequestCode(fmt.Errorf("request body too large"), ErrCodeRequestTooLarge)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		err = badRequestCode(fmt.Errorf("invalid JSON payload"), ErrCodeInvalidJSON)
	default:
		err = badRequestCode(err, ErrCodeInvalidJSON)
	}
	s.writeErrorReq(w, r, http.StatusBadRequest, err)
	return false
}

// queryIDOrBadRequest reads the required ?id= parameter.
func (s *Server) queryIDOrBadRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("id is required"), ErrCodeMissingRequired))
		return "", false
	}
	if !store.ValidID(id) {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid id"), ErrCodeInvalidID))
		return "", false
	}
	return id, true
}
