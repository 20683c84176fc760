package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type instanceForm struct {
	Input    BookInstanceInput
	Books    []Book
	Statuses []string
	IsUpdate bool
	Errors   FieldErrors
}

func (h *Handler) listInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.service.ListInstances(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/catalog/instance_list.html", "Book Instance List", instances)
}

func (h *Handler) showInstance(w http.ResponseWriter, r *http.Request) {
	bi, err := h.service.Instance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/catalog/instance_detail.html", "Book: "+bi.BookTitle, bi)
}

func (h *Handler) showInstanceForm(w http.ResponseWriter, r *http.Request) {
	form := instanceForm{Input: BookInstanceInput{BookID: r.URL.Query().Get("book"), Status: StatusMaintenance}}
	title := "Create BookInstance"
	if id := chi.URLParam(r, "id"); id != "" {
		bi, err := h.service.Instance(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		form.IsUpdate = true
		form.Input = BookInstanceInput{BookID: bi.BookID, Imprint: bi.Imprint, Status: bi.Status, DueBack: InputDate(bi.DueBack)}
		title = "Update BookInstance"
	}
	h.renderInstanceForm(w, r, http.StatusOK, title, form)
}

func (h *Handler) saveInstance(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	in := BookInstanceInput{
		BookID:  r.PostFormValue("book"),
		Imprint: r.PostFormValue("imprint"),
		Status:  r.PostFormValue("status"),
		DueBack: r.PostFormValue("due_back"),
	}
	bi, errs, err := h.service.SaveInstance(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(errs) > 0 {
		title := "Create BookInstance"
		if id != "" {
			title = "Update BookInstance"
		}
		h.renderInstanceForm(w, r, http.StatusBadRequest, title, instanceForm{Input: in, IsUpdate: id != "", Errors: errs})
		return
	}
	http.Redirect(w, r, bi.URL(), http.StatusSeeOther)
}

func (h *Handler) renderInstanceForm(w http.ResponseWriter, r *http.Request, status int, title string, form instanceForm) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	form.Books = books
	form.Statuses = Statuses()
	h.render(w, r, status, "pages/catalog/instance_form.html", title, form)
}

func (h *Handler) showInstanceDelete(w http.ResponseWriter, r *http.Request) {
	bi, err := h.service.Instance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page := deletePage{Kind: "BookInstance", Name: bi.BookTitle + ": " + bi.Imprint, URL: bi.URL()}
	h.renderDelete(w, r, http.StatusOK, page)
}

func (h *Handler) deleteInstance(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteInstance(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/catalog/bookinstances", http.StatusSeeOther)
}
