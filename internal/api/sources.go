package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/starford/tether/internal/companion"
)

const maxUploadBytes = 50 << 20 // 50 MB

// UploadSource handles POST /api/sources (multipart/form-data, field "file",
// optional field "folder").
//
//	@Summary		Upload a source file into the vault
//	@Tags			sources
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"Source file"
//	@Param			folder	formData	string	false	"Target folder"
//	@Success		201		{object}	SourceUploadResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sources [post]
func (h *Handler) UploadSource(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read file"))
		return
	}

	up, err := h.svc.AddSource(r.Context(), r.FormValue("folder"), header.Filename, data)
	if up == nil {
		writeErr(w, "upload source "+header.Filename, err)
		return
	}
	if err != nil {
		// The source is stored; only its note failed.
		slog.Warn("upload source: note not created", slog.String("source", up.Source.Path), slog.String("error", err.Error()))
	}

	writeJSON(w, http.StatusCreated, uploadResponse(up, int64(len(data))))
}

func uploadResponse(up *companion.Upload, size int64) SourceUploadResponse {
	resp := SourceUploadResponse{Path: up.Source.Path, Size: size}
	if up.Note != nil {
		resp.Note = up.Note.Path
	}
	return resp
}
