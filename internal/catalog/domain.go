package catalog

import (
	"errors"
	"strings"
	"time"
)

// ErrInUse is returned when a record still has dependants.
var ErrInUse = errors.New("catalog: record has dependants")

// Book instance statuses.
const (
	StatusAvailable   = "Available"
	StatusMaintenance = "Maintenance"
	StatusLoaned      = "Loaned"
	StatusReserved    = "Reserved"
)

// Statuses lists the valid book instance statuses.
func Statuses() []string {
	return []string{StatusAvailable, StatusMaintenance, StatusLoaned, StatusReserved}
}

const dateLayout = "2006-01-02"

// Author writes books.
type Author struct {
	ID          string
	FirstName   string
	FamilyName  string
	DateOfBirth *time.Time
	DateOfDeath *time.Time
}

// Name is "Family, First".
func (a Author) Name() string {
	if a.FamilyName == "" || a.FirstName == "" {
		return strings.TrimSpace(a.FamilyName + " " + a.FirstName)
	}
	return a.FamilyName + ", " + a.FirstName
}

// Lifespan renders the birth and death dates.
func (a Author) Lifespan() string {
	return formatDate(a.DateOfBirth) + " - " + formatDate(a.DateOfDeath)
}

// URL is the detail page.
func (a Author) URL() string { return "/catalog/author/" + a.ID }

// Genre groups books.
type Genre struct {
	ID   string
	Name string
}

// URL is the detail page.
func (g Genre) URL() string { return "/catalog/genre/" + g.ID }

// Book is a title in the catalog.
type Book struct {
	ID         string
	Title      string
	AuthorID   string
	AuthorName string
	Summary    string
	ISBN       string
	Genres     []Genre
}

// URL is the detail page.
func (b Book) URL() string { return "/catalog/book/" + b.ID }

// HasGenre reports whether the book is tagged with genre id.
func (b Book) HasGenre(id string) bool {
	for _, g := range b.Genres {
		if g.ID == id {
			return true
		}
	}
	return false
}

// BookInstance is a physical copy of a book.
type BookInstance struct {
	ID        string
	BookID    string
	BookTitle string
	Imprint   string
	Status    string
	DueBack   *time.Time
}

// URL is the detail page.
func (bi BookInstance) URL() string { return "/catalog/bookinstance/" + bi.ID }

// DueBackFormatted renders the due date.
func (bi BookInstance) DueBackFormatted() string { return formatDate(bi.DueBack) }

// Summary holds the record counts shown on the catalog home page.
type Summary struct {
	Books              int
	BookInstances      int
	AvailableInstances int
	Authors            int
	Genres             int
}

// AuthorInput is the author form.
type AuthorInput struct {
	FirstName   string `validate:"required,max=100"`
	FamilyName  string `validate:"required,max=100"`
	DateOfBirth string `validate:"omitempty,datetime=2006-01-02"`
	DateOfDeath string `validate:"omitempty,datetime=2006-01-02"`
}

// GenreInput is the genre form.
type GenreInput struct {
	Name string `validate:"required,min=3,max=100"`
}

// BookInput is the book form.
type BookInput struct {
	Title    string `validate:"required"`
	AuthorID string `validate:"required"`
	Summary  string `validate:"required"`
	ISBN     string `validate:"required"`
	GenreIDs []string
}

// BookInstanceInput is the book instance form.
type BookInstanceInput struct {
	BookID  string `validate:"required"`
	Imprint string `validate:"required"`
	Status  string `validate:"required,oneof=Available Maintenance Loaned Reserved"`
	DueBack string `validate:"omitempty,datetime=2006-01-02"`
}

// FieldErrors maps a form field to a user facing message.
type FieldErrors map[string]string

func formatDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("Jan 2, 2006")
}

// InputDate renders t for an <input type="date">.
func InputDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
