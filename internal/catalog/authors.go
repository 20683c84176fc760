package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type authorPage struct {
	Author Author
	Books  []Book
}

type authorForm struct {
	Input    AuthorInput
	IsUpdate bool
	Errors   FieldErrors
}

func (h *Handler) listAuthors(w http.ResponseWriter, r *http.Request) {
	authors, err := h.service.ListAuthors(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/catalog/author_list.html", "Author List", authors)
}

func (h *Handler) showAuthor(w http.ResponseWriter, r *http.Request) {
	author, books, err := h.service.Author(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/catalog/author_detail.html", "Author Detail", authorPage{Author: author, Books: books})
}

func (h *Handler) showAuthorForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.render(w, r, http.StatusOK, "pages/catalog/author_form.html", "Create Author", authorForm{})
		return
	}
	author, _, err := h.service.Author(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	in := AuthorInput{
		FirstName:   author.FirstName,
		FamilyName:  author.FamilyName,
		DateOfBirth: InputDate(author.DateOfBirth),
		DateOfDeath: InputDate(author.DateOfDeath),
	}
	h.render(w, r, http.StatusOK, "pages/catalog/author_form.html", "Update Author", authorForm{Input: in, IsUpdate: true})
}

func (h *Handler) saveAuthor(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	in := AuthorInput{
		FirstName:   r.PostFormValue("first_name"),
		FamilyName:  r.PostFormValue("family_name"),
		DateOfBirth: r.PostFormValue("date_of_birth"),
		DateOfDeath: r.PostFormValue("date_of_death"),
	}
	author, errs, err := h.service.SaveAuthor(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(errs) > 0 {
		title := "Create Author"
		if id != "" {
			title = "Update Author"
		}
		h.render(w, r, http.StatusBadRequest, "pages/catalog/author_form.html", title, authorForm{Input: in, IsUpdate: id != "", Errors: errs})
		return
	}
	http.Redirect(w, r, author.URL(), http.StatusSeeOther)
}

func (h *Handler) showAuthorDelete(w http.ResponseWriter, r *http.Request) {
	author, books, err := h.service.Author(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderDelete(w, r, http.StatusOK, authorDeletePage(author, books))
}

func (h *Handler) deleteAuthor(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	books, err := h.service.DeleteAuthor(r.Context(), id)
	if errors.Is(err, ErrInUse) {
		author, _, gerr := h.service.Author(r.Context(), id)
		if gerr != nil {
			h.fail(w, r, gerr)
			return
		}
		h.renderDelete(w, r, http.StatusConflict, authorDeletePage(author, books))
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/catalog/authors", http.StatusSeeOther)
}

func authorDeletePage(a Author, books []Book) deletePage {
	page := deletePage{Kind: "Author", Name: a.Name(), URL: a.URL(), DependantKind: "books"}
	for _, b := range books {
		page.Dependants = append(page.Dependants, Link{Name: b.Title, URL: b.URL()})
	}
	return page
}
