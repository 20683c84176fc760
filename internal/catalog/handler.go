package catalog

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/locallibrary/locallibrary/internal/platform/httpx"
	"github.com/locallibrary/locallibrary/internal/shared"
	"github.com/locallibrary/locallibrary/internal/view"
)

// Handler serves the catalog pages. Access control is applied by the
// authorization middleware in front of the router, not per route.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountRoutes registers catalog routes below /catalog.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.index)

	r.Get("/authors", h.listAuthors)
	r.Get("/books", h.listBooks)
	r.Get("/genres", h.listGenres)
	r.Get("/bookinstances", h.listInstances)

	r.Route("/author", func(r chi.Router) {
		r.Get("/create", h.showAuthorForm)
		r.Post("/create", h.saveAuthor)
		r.Get("/{id}", h.showAuthor)
		r.Get("/{id}/update", h.showAuthorForm)
		r.Post("/{id}/update", h.saveAuthor)
		r.Get("/{id}/delete", h.showAuthorDelete)
		r.Post("/{id}/delete", h.deleteAuthor)
	})
	r.Route("/book", func(r chi.Router) {
		r.Get("/create", h.showBookForm)
		r.Post("/create", h.saveBook)
		r.Get("/{id}", h.showBook)
		r.Get("/{id}/update", h.showBookForm)
		r.Post("/{id}/update", h.saveBook)
		r.Get("/{id}/delete", h.showBookDelete)
		r.Post("/{id}/delete", h.deleteBook)
	})
	r.Route("/genre", func(r chi.Router) {
		r.Get("/create", h.showGenreForm)
		r.Post("/create", h.saveGenre)
		r.Get("/{id}", h.showGenre)
		r.Get("/{id}/update", h.showGenreForm)
		r.Post("/{id}/update", h.saveGenre)
		r.Get("/{id}/delete", h.showGenreDelete)
		r.Post("/{id}/delete", h.deleteGenre)
	})
	r.Route("/bookinstance", func(r chi.Router) {
		r.Get("/create", h.showInstanceForm)
		r.Post("/create", h.saveInstance)
		r.Get("/{id}", h.showInstance)
		r.Get("/{id}/update", h.showInstanceForm)
		r.Post("/{id}/update", h.saveInstance)
		r.Get("/{id}/delete", h.showInstanceDelete)
		r.Post("/{id}/delete", h.deleteInstance)
	})
}

// Link is a named reference to a catalog page.
type Link struct {
	Name string
	URL  string
}

type deletePage struct {
	Kind       string
	Name       string
	URL        string
	Dependants []Link
	// DependantKind names what Dependants are, e.g. "books".
	DependantKind string
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/catalog/index.html", "Local Library Home", summary)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	if err := h.templates.RenderStatus(w, status, name, view.NewTemplateData(r, h.csrf, title, data)); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) renderDelete(w http.ResponseWriter, r *http.Request, status int, page deletePage) {
	h.render(w, r, status, "pages/catalog/delete.html", "Delete "+page.Kind, page)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("catalog request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	h.render(w, r, status, "pages/error.html", http.StatusText(status), map[string]any{"Message": shared.UserSafeMessage(err)})
}

func parseForm(w http.ResponseWriter, r *http.Request) bool {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}
