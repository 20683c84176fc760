package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/locallibrary/locallibrary/internal/platform/db"
	"github.com/locallibrary/locallibrary/internal/shared"
)

// Repository is the catalog store.
type Repository interface {
	Counts(ctx context.Context, table CountTarget) (int, error)

	ListAuthors(ctx context.Context) ([]Author, error)
	GetAuthor(ctx context.Context, id string) (Author, error)
	SaveAuthor(ctx context.Context, a Author) error
	DeleteAuthor(ctx context.Context, id string) error

	ListGenres(ctx context.Context) ([]Genre, error)
	GetGenre(ctx context.Context, id string) (Genre, error)
	SaveGenre(ctx context.Context, g Genre) error
	DeleteGenre(ctx context.Context, id string) error

	ListBooks(ctx context.Context, filter BookFilter) ([]Book, error)
	GetBook(ctx context.Context, id string) (Book, error)
	SaveBook(ctx context.Context, b Book) error
	DeleteBook(ctx context.Context, id string) error

	ListInstances(ctx context.Context, bookID string) ([]BookInstance, error)
	GetInstance(ctx context.Context, id string) (BookInstance, error)
	SaveInstance(ctx context.Context, bi BookInstance) error
	DeleteInstance(ctx context.Context, id string) error
}

// CountTarget selects what Counts counts.
type CountTarget int

const (
	CountBooks CountTarget = iota
	CountInstances
	CountAvailable
	CountAuthors
	CountGenres
)

var countQueries = map[CountTarget]string{
	CountBooks:     `SELECT count(*) FROM books`,
	CountInstances: `SELECT count(*) FROM book_instances`,
	CountAvailable: `SELECT count(*) FROM book_instances WHERE status = 'Available'`,
	CountAuthors:   `SELECT count(*) FROM authors`,
	CountGenres:    `SELECT count(*) FROM genres`,
}

// BookFilter narrows ListBooks; empty fields match everything.
type BookFilter struct {
	AuthorID string
	GenreID  string
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Counts returns a record count.
func (r *PGRepository) Counts(ctx context.Context, target CountTarget) (int, error) {
	query, ok := countQueries[target]
	if !ok {
		return 0, fmt.Errorf("catalog: unknown count target %d", target)
	}
	var n int
	if err := r.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count: %w", err)
	}
	return n, nil
}

// ListAuthors returns authors ordered by family name.
func (r *PGRepository) ListAuthors(ctx context.Context) ([]Author, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, first_name, family_name, date_of_birth, date_of_death FROM authors ORDER BY family_name, first_name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list authors: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Author, error) {
		var a Author
		err := row.Scan(&a.ID, &a.FirstName, &a.FamilyName, &a.DateOfBirth, &a.DateOfDeath)
		return a, err
	})
}

// GetAuthor fetches one author.
func (r *PGRepository) GetAuthor(ctx context.Context, id string) (Author, error) {
	var a Author
	err := r.pool.QueryRow(ctx, `SELECT id, first_name, family_name, date_of_birth, date_of_death FROM authors WHERE id = $1`, id).
		Scan(&a.ID, &a.FirstName, &a.FamilyName, &a.DateOfBirth, &a.DateOfDeath)
	return a, mapReadError("get author", err)
}

// SaveAuthor inserts or updates an author.
func (r *PGRepository) SaveAuthor(ctx context.Context, a Author) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO authors (id, first_name, family_name, date_of_birth, date_of_death)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET first_name = EXCLUDED.first_name, family_name = EXCLUDED.family_name,
			date_of_birth = EXCLUDED.date_of_birth, date_of_death = EXCLUDED.date_of_death`,
		a.ID, a.FirstName, a.FamilyName, a.DateOfBirth, a.DateOfDeath)
	return mapWriteError("save author", err)
}

// DeleteAuthor removes an author without books.
func (r *PGRepository) DeleteAuthor(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "delete author", `DELETE FROM authors WHERE id = $1`, id)
}

// ListGenres returns genres ordered by name.
func (r *PGRepository) ListGenres(ctx context.Context) ([]Genre, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name FROM genres ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list genres: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Genre, error) {
		var g Genre
		err := row.Scan(&g.ID, &g.Name)
		return g, err
	})
}

// GetGenre fetches one genre.
func (r *PGRepository) GetGenre(ctx context.Context, id string) (Genre, error) {
	var g Genre
	err := r.pool.QueryRow(ctx, `SELECT id, name FROM genres WHERE id = $1`, id).Scan(&g.ID, &g.Name)
	return g, mapReadError("get genre", err)
}

// SaveGenre inserts or updates a genre.
func (r *PGRepository) SaveGenre(ctx context.Context, g Genre) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO genres (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, g.ID, g.Name)
	return mapWriteError("save genre", err)
}

// DeleteGenre removes a genre not attached to any book.
func (r *PGRepository) DeleteGenre(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "delete genre", `DELETE FROM genres WHERE id = $1`, id)
}

const bookSelect = `SELECT b.id, b.title, b.author_id, a.family_name || ', ' || a.first_name, b.summary, b.isbn
	FROM books b JOIN authors a ON a.id = b.author_id`

// ListBooks returns books ordered by title.
func (r *PGRepository) ListBooks(ctx context.Context, filter BookFilter) ([]Book, error) {
	rows, err := r.pool.Query(ctx, bookSelect+`
		WHERE ($1 = '' OR b.author_id = $1)
		  AND ($2 = '' OR EXISTS (SELECT 1 FROM book_genres bg WHERE bg.book_id = b.id AND bg.genre_id = $2))
		ORDER BY b.title`, filter.AuthorID, filter.GenreID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list books: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Book, error) { return scanBook(row) })
}

// GetBook fetches one book with its genres.
func (r *PGRepository) GetBook(ctx context.Context, id string) (Book, error) {
	b, err := scanBook(r.pool.QueryRow(ctx, bookSelect+` WHERE b.id = $1`, id))
	if err != nil {
		return Book{}, mapReadError("get book", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT g.id, g.name FROM genres g
		JOIN book_genres bg ON bg.genre_id = g.id WHERE bg.book_id = $1 ORDER BY g.name`, id)
	if err != nil {
		return Book{}, fmt.Errorf("catalog: book genres: %w", err)
	}
	b.Genres, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Genre, error) {
		var g Genre
		err := row.Scan(&g.ID, &g.Name)
		return g, err
	})
	if err != nil {
		return Book{}, fmt.Errorf("catalog: book genres: %w", err)
	}
	return b, nil
}

// SaveBook inserts or updates a book and replaces its genre links.
func (r *PGRepository) SaveBook(ctx context.Context, b Book) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO books (id, title, author_id, summary, isbn) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, author_id = EXCLUDED.author_id,
				summary = EXCLUDED.summary, isbn = EXCLUDED.isbn`,
			b.ID, b.Title, b.AuthorID, b.Summary, b.ISBN); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM book_genres WHERE book_id = $1`, b.ID); err != nil {
			return err
		}
		for _, g := range b.Genres {
			if _, err := tx.Exec(ctx, `INSERT INTO book_genres (book_id, genre_id) VALUES ($1, $2)`, b.ID, g.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return mapWriteError("save book", err)
}

// DeleteBook removes a book without copies.
func (r *PGRepository) DeleteBook(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "delete book", `DELETE FROM books WHERE id = $1`, id)
}

const instanceSelect = `SELECT bi.id, bi.book_id, b.title, bi.imprint, bi.status, bi.due_back
	FROM book_instances bi JOIN books b ON b.id = bi.book_id`

// ListInstances returns copies, optionally of a single book.
func (r *PGRepository) ListInstances(ctx context.Context, bookID string) ([]BookInstance, error) {
	rows, err := r.pool.Query(ctx, instanceSelect+` WHERE ($1 = '' OR bi.book_id = $1) ORDER BY b.title, bi.imprint`, bookID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list instances: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (BookInstance, error) { return scanInstance(row) })
}

// GetInstance fetches one copy.
func (r *PGRepository) GetInstance(ctx context.Context, id string) (BookInstance, error) {
	bi, err := scanInstance(r.pool.QueryRow(ctx, instanceSelect+` WHERE bi.id = $1`, id))
	return bi, mapReadError("get instance", err)
}

// SaveInstance inserts or updates a copy.
func (r *PGRepository) SaveInstance(ctx context.Context, bi BookInstance) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO book_instances (id, book_id, imprint, status, due_back) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET book_id = EXCLUDED.book_id, imprint = EXCLUDED.imprint,
			status = EXCLUDED.status, due_back = EXCLUDED.due_back`,
		bi.ID, bi.BookID, bi.Imprint, bi.Status, bi.DueBack)
	return mapWriteError("save instance", err)
}

// DeleteInstance removes a copy.
func (r *PGRepository) DeleteInstance(ctx context.Context, id string) error {
	return r.deleteByID(ctx, "delete instance", `DELETE FROM book_instances WHERE id = $1`, id)
}

// CountOverdue returns how many loaned copies were due before asOf.
func (r *PGRepository) CountOverdue(ctx context.Context, asOf time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM book_instances WHERE status = $1 AND due_back < $2`,
		StatusLoaned, asOf).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("catalog: count overdue: %w", err)
	}
	return n, nil
}

func (r *PGRepository) deleteByID(ctx context.Context, op, query, id string) error {
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return mapWriteError(op, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanBook(row pgx.Row) (Book, error) {
	var b Book
	err := row.Scan(&b.ID, &b.Title, &b.AuthorID, &b.AuthorName, &b.Summary, &b.ISBN)
	return b, err
}

func scanInstance(row pgx.Row) (BookInstance, error) {
	var bi BookInstance
	err := row.Scan(&bi.ID, &bi.BookID, &bi.BookTitle, &bi.Imprint, &bi.Status, &bi.DueBack)
	return bi, err
}

func mapReadError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return fmt.Errorf("catalog: %s: %w", op, err)
}

// mapWriteError turns foreign key violations into ErrInUse.
func mapWriteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return ErrInUse
	}
	return fmt.Errorf("catalog: %s: %w", op, err)
}

var _ Repository = (*PGRepository)(nil)
