package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-chi/chi/v5"

	"github.com/starford/tether/internal/apperr"
	"github.com/starford/tether/internal/companion"
	"github.com/starford/tether/internal/models"
	"github.com/starford/tether/internal/visibility"
)

const maxJSONBytes = 1 << 20

// BacklinkIndex reports the notes linking to or embedding a target.
type BacklinkIndex interface {
	Backlinks(target string) ([]string, error)
}

// Handler holds API route handlers.
type Handler struct {
	svc   *companion.Service
	links BacklinkIndex
	tree  *visibility.FileTree
}

// NewHandler creates a new Handler. links and tree may be nil.
func NewHandler(svc *companion.Service, links BacklinkIndex, tree *visibility.FileTree) *Handler {
	return &Handler{svc: svc, links: links, tree: tree}
}

// sourcePath extracts the source path from the URL (everything after /api/companions/).
// Supports encoded slashes from OpenAPI clients (e.g. Media%2Fclip.mp4).
func sourcePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// FindCompanion handles GET /api/companions/*.
//
//	@Summary		Find the companion note of a source file
//	@Tags			companions
//	@Produce		json
//	@Param			path	path		string	true	"Source path"
//	@Success		200		{object}	CompanionResponse
//	@Failure		404		{object}	MissingCompanionResponse
//	@Security		BearerAuth
//	@Router			/companions/{path} [get]
func (h *Handler) FindCompanion(w http.ResponseWriter, r *http.Request) {
	p := sourcePath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	src := models.NewSourceFile(p)
	note, err := h.svc.FindNote(r.Context(), src)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, MissingCompanionResponse{
				Error:    "not found",
				NotePath: h.svc.NotePath(r.Context(), src),
			})
		} else {
			writeErr(w, "find companion "+p, err)
		}
		return
	}
	writeJSON(w, http.StatusOK, CompanionResponse{
		Source:   src.Path,
		Note:     note.Path,
		Declared: note.Source == src.Path,
		Embeds:   h.embeds(src),
	})
}

// embeds lists notes linking to src by name or by full path.
func (h *Handler) embeds(src models.SourceFile) []string {
	out := []string{}
	if h.links == nil {
		return out
	}
	seen := mapset.NewThreadUnsafeSet[string]()
	for _, target := range []string{src.Path, src.Name} {
		bl, err := h.links.Backlinks(target)
		if err != nil {
			slog.Warn("backlinks failed", slog.String("target", target), slog.String("error", err.Error()))
			continue
		}
		seen.Append(bl...)
	}
	out = append(out, seen.ToSlice()...)
	sort.Strings(out)
	return out
}

// CreateCompanions handles POST /api/companions.
//
//	@Summary		Create companion notes for sources or a whole folder
//	@Tags			companions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BatchRequest	true	"Sources to bind"
//	@Success		200		{object}	BatchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/companions [post]
func (h *Handler) CreateCompanions(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Paths) == 0 && req.Folder == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("paths or folder is required"))
		return
	}

	var (
		srcs    []models.SourceFile
		missing int
	)
	if req.Folder != "" {
		eligible, err := h.svc.EligibleSources(r.Context(), strings.Trim(req.Folder, "/"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorBody("folder not found"))
			return
		}
		srcs = eligible
	}
	for _, p := range req.Paths {
		src, err := h.svc.Source(p)
		if err != nil {
			missing++
			continue
		}
		srcs = append(srcs, src)
	}

	res := h.svc.CreateNotes(r.Context(), srcs)
	res.Failed += missing
	writeJSON(w, http.StatusOK, res)
}

// RemoveCompanions handles DELETE /api/companions.
//
//	@Summary		Move the companion notes of sources to the trash
//	@Tags			companions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathsRequest	true	"Sources to unbind"
//	@Success		200		{object}	BatchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/companions [delete]
func (h *Handler) RemoveCompanions(w http.ResponseWriter, r *http.Request) {
	var req PathsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Paths) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("paths is required"))
		return
	}
	res := h.svc.RemoveNotes(r.Context(), toSources(req.Paths))
	writeJSON(w, http.StatusOK, res)
}

// ExistingCompanions handles POST /api/companions/existing.
//
//	@Summary		Filter sources down to those that have a companion note
//	@Tags			companions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathsRequest	true	"Sources to check"
//	@Success		200		{object}	PathsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/companions/existing [post]
func (h *Handler) ExistingCompanions(w http.ResponseWriter, r *http.Request) {
	var req PathsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	existing := h.svc.ExistingNotes(r.Context(), toSources(req.Paths))
	out := make([]string, 0, len(existing))
	for _, src := range existing {
		out = append(out, src.Path)
	}
	writeJSON(w, http.StatusOK, PathsResponse{Paths: out})
}

// Tree handles GET /api/tree.
//
//	@Summary		Get the presentable file tree
//	@Tags			tree
//	@Produce		json
//	@Param			all	query		bool	false	"Include hidden entries"
//	@Success		200	{object}	TreeResponse
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	if h.tree == nil {
		writeJSON(w, http.StatusOK, TreeResponse{Entries: []visibility.Entry{}})
		return
	}
	all, _ := strconv.ParseBool(r.URL.Query().Get("all"))
	writeJSON(w, http.StatusOK, TreeResponse{
		Entries: h.tree.Snapshot(all),
		Hidden:  h.tree.HiddenCount(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func toSources(paths []string) []models.SourceFile {
	out := make([]models.SourceFile, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, models.NewSourceFile(p))
		}
	}
	return out
}
