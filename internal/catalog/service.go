package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/locallibrary/locallibrary/internal/shared"
)

var fieldMessages = map[string]string{
	"FirstName":   "First name must be specified.",
	"FamilyName":  "Family name must be specified.",
	"DateOfBirth": "Invalid date of birth.",
	"DateOfDeath": "Invalid date of death.",
	"Name":        "Genre name must contain at least 3 characters.",
	"Title":       "Title must not be empty.",
	"AuthorID":    "Author must be selected.",
	"Summary":     "Summary must not be empty.",
	"ISBN":        "ISBN must not be empty.",
	"BookID":      "Book must be specified.",
	"Imprint":     "Imprint must be specified.",
	"Status":      "Status must be one of the listed values.",
	"DueBack":     "Invalid date.",
}

// Service holds catalog business rules.
type Service struct {
	repo      Repository
	logger    *slog.Logger
	validator *validator.Validate
}

// NewService builds Service instance.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, validator: validator.New(validator.WithRequiredStructEnabled())}
}

// Summary counts every record kind concurrently.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	targets := map[CountTarget]*int{
		CountBooks:     &out.Books,
		CountInstances: &out.BookInstances,
		CountAvailable: &out.AvailableInstances,
		CountAuthors:   &out.Authors,
		CountGenres:    &out.Genres,
	}
	g, gctx := errgroup.WithContext(ctx)
	for target, dst := range targets {
		target, dst := target, dst
		g.Go(func() error {
			n, err := s.repo.Counts(gctx, target)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return out, nil
}

// ListAuthors returns every author.
func (s *Service) ListAuthors(ctx context.Context) ([]Author, error) {
	return s.repo.ListAuthors(ctx)
}

// Author returns an author with their books.
func (s *Service) Author(ctx context.Context, id string) (Author, []Book, error) {
	var (
		author Author
		books  []Book
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		author, err = s.repo.GetAuthor(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		books, err = s.repo.ListBooks(gctx, BookFilter{AuthorID: id})
		return err
	})
	if err := g.Wait(); err != nil {
		return Author{}, nil, err
	}
	return author, books, nil
}

// SaveAuthor validates in and creates the author, or updates it when id is set.
func (s *Service) SaveAuthor(ctx context.Context, id string, in AuthorInput) (Author, FieldErrors, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.FamilyName = strings.TrimSpace(in.FamilyName)
	errs := s.validate(in)

	a := Author{ID: id, FirstName: in.FirstName, FamilyName: in.FamilyName}
	var err error
	if a.DateOfBirth, err = parseDate(in.DateOfBirth); err != nil {
		errs.add("DateOfBirth", fieldMessages["DateOfBirth"])
	}
	if a.DateOfDeath, err = parseDate(in.DateOfDeath); err != nil {
		errs.add("DateOfDeath", fieldMessages["DateOfDeath"])
	}
	if a.DateOfBirth != nil && a.DateOfDeath != nil && a.DateOfDeath.Before(*a.DateOfBirth) {
		errs.add("DateOfDeath", "Date of death must not precede date of birth.")
	}
	if len(errs) > 0 {
		return a, errs, nil
	}

	if id != "" {
		if _, err := s.repo.GetAuthor(ctx, id); err != nil {
			return Author{}, nil, err
		}
	} else {
		a.ID = shared.NewID()
	}
	if err := s.repo.SaveAuthor(ctx, a); err != nil {
		return Author{}, nil, err
	}
	return a, nil, nil
}

// DeleteAuthor removes an author. When books still reference the author it
// returns ErrInUse together with those books.
func (s *Service) DeleteAuthor(ctx context.Context, id string) ([]Book, error) {
	books, err := s.repo.ListBooks(ctx, BookFilter{AuthorID: id})
	if err != nil {
		return nil, err
	}
	if len(books) > 0 {
		return books, ErrInUse
	}
	return nil, s.repo.DeleteAuthor(ctx, id)
}

// ListGenres returns every genre.
func (s *Service) ListGenres(ctx context.Context) ([]Genre, error) {
	return s.repo.ListGenres(ctx)
}

// Genre returns a genre with its books.
func (s *Service) Genre(ctx context.Context, id string) (Genre, []Book, error) {
	var (
		genre Genre
		books []Book
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		genre, err = s.repo.GetGenre(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		books, err = s.repo.ListBooks(gctx, BookFilter{GenreID: id})
		return err
	})
	if err := g.Wait(); err != nil {
		return Genre{}, nil, err
	}
	return genre, books, nil
}

// SaveGenre validates in and creates or updates a genre. Creating a genre
// whose name already exists returns the existing one.
func (s *Service) SaveGenre(ctx context.Context, id string, in GenreInput) (Genre, FieldErrors, error) {
	in.Name = strings.TrimSpace(in.Name)
	g := Genre{ID: id, Name: in.Name}
	if errs := s.validate(in); len(errs) > 0 {
		return g, errs, nil
	}

	existing, err := s.repo.ListGenres(ctx)
	if err != nil {
		return Genre{}, nil, err
	}
	for _, e := range existing {
		if !strings.EqualFold(e.Name, in.Name) || e.ID == id {
			continue
		}
		if id == "" {
			return e, nil, nil
		}
		return g, FieldErrors{"Name": "A genre with this name already exists."}, nil
	}

	if id != "" {
		if _, err := s.repo.GetGenre(ctx, id); err != nil {
			return Genre{}, nil, err
		}
	} else {
		g.ID = shared.NewID()
	}
	if err := s.repo.SaveGenre(ctx, g); err != nil {
		return Genre{}, nil, err
	}
	return g, nil, nil
}

// DeleteGenre removes a genre not attached to any book.
func (s *Service) DeleteGenre(ctx context.Context, id string) ([]Book, error) {
	books, err := s.repo.ListBooks(ctx, BookFilter{GenreID: id})
	if err != nil {
		return nil, err
	}
	if len(books) > 0 {
		return books, ErrInUse
	}
	return nil, s.repo.DeleteGenre(ctx, id)
}

// ListBooks returns every book.
func (s *Service) ListBooks(ctx context.Context) ([]Book, error) {
	return s.repo.ListBooks(ctx, BookFilter{})
}

// Book returns a book with its copies.
func (s *Service) Book(ctx context.Context, id string) (Book, []BookInstance, error) {
	var (
		book      Book
		instances []BookInstance
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		book, err = s.repo.GetBook(gctx, id)
		return err
	})
	g.Go(func() (err error) {
		instances, err = s.repo.ListInstances(gctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		return Book{}, nil, err
	}
	return book, instances, nil
}

// BookOptions returns the authors and genres offered on the book form.
func (s *Service) BookOptions(ctx context.Context) ([]Author, []Genre, error) {
	var (
		authors []Author
		genres  []Genre
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		authors, err = s.repo.ListAuthors(gctx)
		return err
	})
	g.Go(func() (err error) {
		genres, err = s.repo.ListGenres(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return authors, genres, nil
}

// SaveBook validates in and creates or updates a book.
func (s *Service) SaveBook(ctx context.Context, id string, in BookInput) (Book, FieldErrors, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Summary = strings.TrimSpace(in.Summary)
	in.ISBN = strings.TrimSpace(in.ISBN)
	b := Book{ID: id, Title: in.Title, AuthorID: in.AuthorID, Summary: in.Summary, ISBN: in.ISBN}
	for _, gid := range in.GenreIDs {
		if gid != "" && !b.HasGenre(gid) {
			b.Genres = append(b.Genres, Genre{ID: gid})
		}
	}

	errs := s.validate(in)
	if in.AuthorID != "" {
		if _, err := s.repo.GetAuthor(ctx, in.AuthorID); errors.Is(err, shared.ErrNotFound) {
			errs.add("AuthorID", fieldMessages["AuthorID"])
		} else if err != nil {
			return Book{}, nil, err
		}
	}
	if len(errs) > 0 {
		return b, errs, nil
	}

	if id != "" {
		if _, err := s.repo.GetBook(ctx, id); err != nil {
			return Book{}, nil, err
		}
	} else {
		b.ID = shared.NewID()
	}
	if err := s.repo.SaveBook(ctx, b); err != nil {
		if errors.Is(err, ErrInUse) {
			return b, FieldErrors{"GenreIDs": "Selected genre no longer exists."}, nil
		}
		return Book{}, nil, err
	}
	return b, nil, nil
}

// DeleteBook removes a book without copies.
func (s *Service) DeleteBook(ctx context.Context, id string) ([]BookInstance, error) {
	instances, err := s.repo.ListInstances(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(instances) > 0 {
		return instances, ErrInUse
	}
	return nil, s.repo.DeleteBook(ctx, id)
}

// ListInstances returns every copy.
func (s *Service) ListInstances(ctx context.Context) ([]BookInstance, error) {
	return s.repo.ListInstances(ctx, "")
}

// Instance returns one copy.
func (s *Service) Instance(ctx context.Context, id string) (BookInstance, error) {
	return s.repo.GetInstance(ctx, id)
}

// SaveInstance validates in and creates or updates a copy.
func (s *Service) SaveInstance(ctx context.Context, id string, in BookInstanceInput) (BookInstance, FieldErrors, error) {
	in.Imprint = strings.TrimSpace(in.Imprint)
	bi := BookInstance{ID: id, BookID: in.BookID, Imprint: in.Imprint, Status: in.Status}
	errs := s.validate(in)
	var err error
	if bi.DueBack, err = parseDate(in.DueBack); err != nil {
		errs.add("DueBack", fieldMessages["DueBack"])
	}
	if in.BookID != "" {
		if _, err := s.repo.GetBook(ctx, in.BookID); errors.Is(err, shared.ErrNotFound) {
			errs.add("BookID", fieldMessages["BookID"])
		} else if err != nil {
			return BookInstance{}, nil, err
		}
	}
	if len(errs) > 0 {
		return bi, errs, nil
	}

	if id != "" {
		if _, err := s.repo.GetInstance(ctx, id); err != nil {
			return BookInstance{}, nil, err
		}
	} else {
		bi.ID = shared.NewID()
	}
	if err := s.repo.SaveInstance(ctx, bi); err != nil {
		return BookInstance{}, nil, err
	}
	return bi, nil, nil
}

// DeleteInstance removes a copy.
func (s *Service) DeleteInstance(ctx context.Context, id string) error {
	return s.repo.DeleteInstance(ctx, id)
}

func (s *Service) validate(form any) FieldErrors {
	errs := FieldErrors{}
	err := s.validator.Struct(form)
	if err == nil {
		return errs
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.add("general", fmt.Sprintf("invalid form: %v", err))
		return errs
	}
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Field()]
		if !ok {
			msg = fe.Error()
		}
		errs.add(fe.Field(), msg)
	}
	return errs
}

func (e FieldErrors) add(field, msg string) {
	if _, exists := e[field]; !exists {
		e[field] = msg
	}
}
