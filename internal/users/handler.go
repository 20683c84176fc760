package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/locallibrary/locallibrary/internal/authz"
	"github.com/locallibrary/locallibrary/internal/platform/httpx"
	"github.com/locallibrary/locallibrary/internal/shared"
	"github.com/locallibrary/locallibrary/internal/view"
)

// Handler manages account endpoints under /users.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	templates *view.Engine
	csrf      *shared.CSRFManager
	authz     authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, csrf *shared.CSRFManager, mw authz.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, authz: mw}
}

// MountRoutes registers account routes. Login and logout live in
// internal/auth and are mounted on the same router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stop", h.warning)

	r.Group(func(r chi.Router) {
		r.Use(h.authz.RedirectAuthenticated("/"))
		r.Get("/register", h.showRegister)
		r.Post("/register", h.register)
		r.Get("/reset", h.showReset)
		r.Post("/reset", h.beginReset)
		r.Post("/resetfinal", h.finishReset)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRole(authz.RoleAdmin))
		r.Get("/", h.list)
		r.Post("/", h.list)
	})

	r.Route("/{id}", func(r chi.Router) {
		r.Use(h.authz.RequireOwner("id"))
		r.Get("/", h.profile)
		r.Get("/update_user", h.showUpdate)
		r.Post("/update_user", h.update)
		r.Get("/delete", h.showDelete)
		r.Post("/delete", h.delete)
	})
}

type formPage struct {
	User     authz.Principal
	IsUpdate bool
	Errors   FieldErrors
}

type resetPage struct {
	SecondStep bool
	Username   string
	Email      string
	Token      string
	Errors     FieldErrors
}

type deletePage struct {
	User       authz.Principal
	AdminCount int
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.List(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/users/list.html", "Users List", map[string]any{"Users": all})
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/users/profile.html", "User Profile", map[string]any{"User": p})
}

func (h *Handler) warning(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/users/warning.html", "Sorry!", nil)
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/users/form.html", "Create User", formPage{})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := RegisterInput{
		Username:        r.PostFormValue("username"),
		FullName:        r.PostFormValue("fullname"),
		Email:           r.PostFormValue("email"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
		Role:            r.PostFormValue("role"),
	}
	_, errs, err := h.service.Register(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(errs) > 0 {
		page := formPage{User: authz.Principal{Username: in.Username, FullName: in.FullName, Email: in.Email}, Errors: errs}
		h.render(w, r, http.StatusBadRequest, "pages/users/form.html", "Create User", page)
		return
	}
	shared.RedirectWithFlash(w, r, authz.LoginPath, shared.FlashSuccess, MsgRegistered)
}

func (h *Handler) showUpdate(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/users/form.html", "Update User", formPage{User: p, IsUpdate: true})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	actor := authz.FromContext(r.Context()).Principal()
	if actor == nil {
		authz.Deny(w, r, authz.DenyAuthRequired)
		return
	}
	in := UpdateInput{
		Username:        r.PostFormValue("username"),
		FullName:        r.PostFormValue("fullname"),
		Email:           r.PostFormValue("email"),
		Role:            r.PostFormValue("role"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	}
	p, errs, err := h.service.Update(r.Context(), *actor, chi.URLParam(r, "id"), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(errs) > 0 {
		h.render(w, r, http.StatusBadRequest, "pages/users/form.html", "Update User", formPage{User: p, IsUpdate: true, Errors: errs})
		return
	}
	http.Redirect(w, r, p.URL(), http.StatusSeeOther)
}

func (h *Handler) showDelete(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	admins, err := h.service.AdminCount(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/users/delete.html", "Delete User", deletePage{User: p, AdminCount: admins})
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	admins, err := h.service.Delete(r.Context(), id)
	if errors.Is(err, ErrLastAdmin) {
		p, gerr := h.service.Get(r.Context(), id)
		if gerr != nil {
			h.fail(w, r, gerr)
			return
		}
		h.logger.Info("refused to delete last admin", slog.String("principal", id))
		h.render(w, r, http.StatusOK, "pages/users/delete.html", "Delete User", deletePage{User: p, AdminCount: admins})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	location := "/"
	if actor := authz.FromContext(r.Context()).Principal(); actor != nil && actor.IsAdmin() {
		location = "/users"
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (h *Handler) showReset(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "pages/users/reset.html", "Reset Password", resetPage{})
}

func (h *Handler) beginReset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := ResetRequest{Username: r.PostFormValue("username"), Email: r.PostFormValue("email")}
	token, p, errs, err := h.service.BeginReset(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(errs) > 0 {
		page := resetPage{Username: in.Username, Email: in.Email, Errors: errs}
		h.render(w, r, http.StatusBadRequest, "pages/users/reset.html", "Reset Password", page)
		return
	}
	page := resetPage{SecondStep: true, Username: p.Username, Token: token}
	h.render(w, r, http.StatusOK, "pages/users/reset.html", "Reset Password", page)
}

func (h *Handler) finishReset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	in := ResetFinal{
		Token:           r.PostFormValue("token"),
		Password:        r.PostFormValue("password"),
		PasswordConfirm: r.PostFormValue("password_confirm"),
	}
	errs, err := h.service.FinishReset(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(errs) > 0 {
		page := resetPage{SecondStep: true, Token: in.Token, Errors: errs}
		if _, expired := errs["general"]; expired || errs["Token"] != "" {
			page = resetPage{Errors: errs}
		}
		h.render(w, r, http.StatusBadRequest, "pages/users/reset.html", "Reset Password", page)
		return
	}
	shared.RedirectWithFlash(w, r, authz.LoginPath, shared.FlashSuccess, MsgPasswordChanged)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	if err := h.templates.RenderStatus(w, status, name, view.NewTemplateData(r, h.csrf, title, data)); err != nil {
		h.logger.Error("render template", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := httpx.StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("users request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	h.render(w, r, status, "pages/error.html", http.StatusText(status), map[string]any{"Message": shared.UserSafeMessage(err)})
}
