package script

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Domain errors for script files.
var (
	// ErrNotFound is returned when a script file does not exist.
	ErrNotFound = errors.New("script: not found")

	// ErrReadOnly is returned when modifying a built-in ("__" prefixed) file.
	ErrReadOnly = errors.New("script: read-only")

	// ErrInvalidName is returned when a file name is empty, too long or
	// contains characters outside [A-Za-z0-9_.-].
	ErrInvalidName = errors.New("script: invalid name")

	// ErrTooLarge is returned when content exceeds the configured maximum.
	ErrTooLarge = errors.New("script: too large")
)

// readOnlyPrefix marks built-in example files.
const readOnlyPrefix = "__"

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ValidateName checks a script file name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// IsReadOnly reports whether name is a built-in file that cannot be changed
// or deleted.
func IsReadOnly(name string) bool {
	return strings.HasPrefix(name, readOnlyPrefix)
}

// File is a stored script.
type File struct {
	Name      string    `json:"name"`
	Content   string    `json:"content,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Repository stores script files.
type Repository interface {
	// List returns every file without content, sorted by name.
	List(ctx context.Context) ([]File, error)

	// Get returns one file. Returns ErrNotFound if it does not exist.
	Get(ctx context.Context, name string) (*File, error)

	// Save creates or replaces a file. Returns ErrReadOnly for built-in
	// files and ErrTooLarge when content exceeds the limit.
	Save(ctx context.Context, name, content string) error

	// Delete removes a file. Returns ErrReadOnly or ErrNotFound.
	Delete(ctx context.Context, name string) error
}

// SQLiteRepository implements Repository on the scripts table.
type SQLiteRepository struct {
	db      *sql.DB
	maxSize int
}

// NewSQLiteRepository creates a repository. maxSize caps content length in
// bytes; zero means unlimited.
func NewSQLiteRepository(db *sql.DB, maxSize int) *SQLiteRepository {
	return &SQLiteRepository{db: db, maxSize: maxSize}
}

// List implements Repository.
func (r *SQLiteRepository) List(ctx context.Context) ([]File, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name, updated_at FROM scripts ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying scripts: %w", err)
	}
	defer rows.Close()

	files := []File{}
	for rows.Next() {
		var f File
		var updated string
		if err := rows.Scan(&f.Name, &updated); err != nil {
			return nil, fmt.Errorf("scanning script row: %w", err)
		}
		f.UpdatedAt = parseTime(updated)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scripts: %w", err)
	}
	return files, nil
}

// Get implements Repository.
func (r *SQLiteRepository) Get(ctx context.Context, name string) (*File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	var f File
	var updated string
	err := r.db.QueryRowContext(ctx,
		"SELECT name, content, updated_at FROM scripts WHERE name = ?", name,
	).Scan(&f.Name, &f.Content, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("querying script %s: %w", name, err)
	}
	f.UpdatedAt = parseTime(updated)
	return &f, nil
}

// Save implements Repository.
func (r *SQLiteRepository) Save(ctx context.Context, name, content string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if IsReadOnly(name) {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}
	if r.maxSize > 0 && len(content) > r.maxSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(content), r.maxSize)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scripts (name, content, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET content = excluded.content, updated_at = excluded.updated_at`,
		name, content, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving script %s: %w", name, err)
	}
	return nil
}

// Delete implements Repository.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if IsReadOnly(name) {
		return fmt.Errorf("%w: %s", ErrReadOnly, name)
	}

	res, err := r.db.ExecContext(ctx, "DELETE FROM scripts WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting script %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s) //nolint:errcheck // written by Save or the seed migration
	return t
}
