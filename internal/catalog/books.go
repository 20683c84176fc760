package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type bookPage struct {
	Book      Book
	Instances []BookInstance
}

type bookForm struct {
	Input    BookInput
	Authors  []Author
	Genres   []Genre
	IsUpdate bool
	Errors   FieldErrors
}

// Checked reports whether genre id is selected on the form.
func (f bookForm) Checked(id string) bool {
	for _, gid := range f.Input.GenreIDs {
		if gid == id {
			return true
		}
	}
	return false
}

func (h *Handler) listBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/catalog/book_list.html", "Book List", books)
}

func (h *Handler) showBook(w http.ResponseWriter, r *http.Request) {
	book, instances, err := h.service.Book(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/catalog/book_detail.html", book.Title, bookPage{Book: book, Instances: instances})
}

func (h *Handler) showBookForm(w http.ResponseWriter, r *http.Request) {
	form := bookForm{}
	title := "Create Book"
	if id := chi.URLParam(r, "id"); id != "" {
		book, _, err := h.service.Book(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		form.IsUpdate = true
		form.Input = BookInput{Title: book.Title, AuthorID: book.AuthorID, Summary: book.Summary, ISBN: book.ISBN}
		for _, g := range book.Genres {
			form.Input.GenreIDs = append(form.Input.GenreIDs, g.ID)
		}
		title = "Update Book"
	}
	h.renderBookForm(w, r, http.StatusOK, title, form)
}

func (h *Handler) saveBook(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	in := BookInput{
		Title:    r.PostFormValue("title"),
		AuthorID: r.PostFormValue("author"),
		Summary:  r.PostFormValue("summary"),
		ISBN:     r.PostFormValue("isbn"),
		GenreIDs: r.PostForm["genre"],
	}
	book, errs, err := h.service.SaveBook(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(errs) > 0 {
		title := "Create Book"
		if id != "" {
			title = "Update Book"
		}
		h.renderBookForm(w, r, http.StatusBadRequest, title, bookForm{Input: in, IsUpdate: id != "", Errors: errs})
		return
	}
	http.Redirect(w, r, book.URL(), http.StatusSeeOther)
}

func (h *Handler) renderBookForm(w http.ResponseWriter, r *http.Request, status int, title string, form bookForm) {
	authors, genres, err := h.service.BookOptions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	form.Authors, form.Genres = authors, genres
	h.render(w, r, status, "pages/catalog/book_form.html", title, form)
}

func (h *Handler) showBookDelete(w http.ResponseWriter, r *http.Request) {
	book, instances, err := h.service.Book(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderDelete(w, r, http.StatusOK, bookDeletePage(book, instances))
}

func (h *Handler) deleteBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	instances, err := h.service.DeleteBook(r.Context(), id)
	if errors.Is(err, ErrInUse) {
		book, _, gerr := h.service.Book(r.Context(), id)
		if gerr != nil {
			h.fail(w, r, gerr)
			return
		}
		h.renderDelete(w, r, http.StatusConflict, bookDeletePage(book, instances))
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/catalog/books", http.StatusSeeOther)
}

func bookDeletePage(b Book, instances []BookInstance) deletePage {
	page := deletePage{Kind: "Book", Name: b.Title, URL: b.URL(), DependantKind: "copies"}
	for _, bi := range instances {
		page.Dependants = append(page.Dependants, Link{Name: bi.Imprint + " (" + bi.Status + ")", URL: bi.URL()})
	}
	return page
}
