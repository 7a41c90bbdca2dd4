package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tether/internal/companion"
	"github.com/starford/tether/internal/visibility"
)

// Deps groups the collaborators behind the API routes.
type Deps struct {
	Companions *companion.Service
	// Links reports notes linking to a target. Optional.
	Links BacklinkIndex
	// Tree is the presentable file tree. Optional.
	Tree *visibility.FileTree
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
func NewRouter(d Deps, authEnabled bool, token string) chi.Router {
	h := NewHandler(d.Companions, d.Links, d.Tree)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Companion notes.
	r.Get("/companions/*", h.FindCompanion)
	r.Post("/companions", h.CreateCompanions)
	r.Delete("/companions", h.RemoveCompanions)
	r.Post("/companions/existing", h.ExistingCompanions)

	// Presentation tree.
	r.Get("/tree", h.Tree)

	// Source upload.
	r.Post("/sources", h.UploadSource)

	if d.Events != nil {
		r.Get("/events", d.Events.ServeHTTP)
	}

	return r
}
