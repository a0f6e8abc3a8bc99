package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/brickd/internal/script"
)

// requireScripts answers 503 when no script repository is configured.
func (s *Server) requireScripts(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.scripts == nil {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "script storage is not configured")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	files, err := s.scripts.List(r.Context())
	if err != nil {
		s.writeScriptError(w, err)
		return
	}
	if files == nil {
		files = []script.File{}
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	f, err := s.scripts.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.writeScriptError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

type putScriptRequest struct {
	Content string `json:"content"`
}

// handlePutScript stores the request body as the script content. A JSON
// body of the form {"content": "..."} is also accepted.
func (s *Server) handlePutScript(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "script too large")
			return
		}
		writeBadRequest(w, "could not read body")
		return
	}

	content := string(body)
	if mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); mediaType == "application/json" {
		var req putScriptRequest
		if err := json.Unmarshal(body, &req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		content = req.Content
	}

	if err := s.scripts.Save(r.Context(), name, content); err != nil {
		s.writeScriptError(w, err)
		return
	}
	f, err := s.scripts.Get(r.Context(), name)
	if err != nil {
		s.writeScriptError(w, err)
		return
	}
	f.Content = ""
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	if err := s.scripts.Delete(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.writeScriptError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeScriptError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, script.ErrInvalidName):
		writeBadRequest(w, err.Error())
	case errors.Is(err, script.ErrReadOnly):
		writeForbidden(w, err.Error())
	case errors.Is(err, script.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, script.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, err.Error())
	default:
		s.logger.Error("script storage error", "error", err)
		writeInternalError(w, "script storage error")
	}
}
