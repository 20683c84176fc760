package catalog

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type genrePage struct {
	Genre Genre
	Books []Book
}

type genreForm struct {
	Input    GenreInput
	IsUpdate bool
	Errors   FieldErrors
}

func (h *Handler) listGenres(w http.ResponseWriter, r *http.Request) {
	genres, err := h.service.ListGenres(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/catalog/genre_list.html", "Genre List", genres)
}

func (h *Handler) showGenre(w http.ResponseWriter, r *http.Request) {
	genre, books, err := h.service.Genre(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/catalog/genre_detail.html", "Genre Detail", genrePage{Genre: genre, Books: books})
}

func (h *Handler) showGenreForm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.render(w, r, http.StatusOK, "pages/catalog/genre_form.html", "Create Genre", genreForm{})
		return
	}
	genre, _, err := h.service.Genre(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, "pages/catalog/genre_form.html", "Update Genre", genreForm{Input: GenreInput{Name: genre.Name}, IsUpdate: true})
}

func (h *Handler) saveGenre(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	id := chi.URLParam(r, "id")
	in := GenreInput{Name: r.PostFormValue("name")}
	genre, errs, err := h.service.SaveGenre(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if len(errs) > 0 {
		title := "Create Genre"
		if id != "" {
			title = "Update Genre"
		}
		h.render(w, r, http.StatusBadRequest, "pages/catalog/genre_form.html", title, genreForm{Input: in, IsUpdate: id != "", Errors: errs})
		return
	}
	http.Redirect(w, r, genre.URL(), http.StatusSeeOther)
}

func (h *Handler) showGenreDelete(w http.ResponseWriter, r *http.Request) {
	genre, books, err := h.service.Genre(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.renderDelete(w, r, http.StatusOK, genreDeletePage(genre, books))
}

func (h *Handler) deleteGenre(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	books, err := h.service.DeleteGenre(r.Context(), id)
	if errors.Is(err, ErrInUse) {
		genre, _, gerr := h.service.Genre(r.Context(), id)
		if gerr != nil {
			h.fail(w, r, gerr)
			return
		}
		h.renderDelete(w, r, http.StatusConflict, genreDeletePage(genre, books))
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/catalog/genres", http.StatusSeeOther)
}

func genreDeletePage(g Genre, books []Book) deletePage {
	page := deletePage{Kind: "Genre", Name: g.Name, URL: g.URL(), DependantKind: "books"}
	for _, b := range books {
		page.Dependants = append(page.Dependants, Link{Name: b.Title, URL: b.URL()})
	}
	return page
}
