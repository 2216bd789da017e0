package api

import (
	"net/http"

	"github.com/dunamismax/webpress/internal/domain"
)

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	obj, rc, err := s.artifacts.Open(r.Context(), name)
	if err != nil {
		if isNotFound(err) {
			writeJSON(w, http.StatusNotFound, domain.NewErrorResponse(msgFileNotFound))
			return
		}
		s.logger.Error().Err(err).Str("artifact", name).Msg("open artifact for download failed")
		writeJSON(w, http.StatusInternalServerError, domain.NewErrorResponse(msgReadFailed))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Type", domain.ArtifactContentType)
	http.ServeContent(w, r, name, obj.ModTime, rc)
}

// handleStatic serves artifacts inline. Names are unique per conversion, so
// responses are cacheable indefinitely.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")

	obj, rc, err := s.artifacts.Open(r.Context(), name)
	if err != nil {
		if isNotFound(err) {
			http.NotFound(w, r)
			return
		}
		s.logger.Error().Err(err).Str("artifact", name).Msg("open artifact for static serving failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, name, obj.ModTime, rc)
}
