package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/get2b/get2b-go/internal/domain"
	"github.com/get2b/get2b-go/internal/repo"
)

type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const (
	codeRaiseException  = "P0001"
	codeUniqueViolation = "23505"
	codeForeignKey      = "23503"
	codeCheckViolation  = "23514"
)

// classify maps driver errors onto the repository/domain taxonomy.
// what names the missing entity for foreign key failures.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, repo.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeForeignKey:
		return fmt.Errorf("%s: %w", what, repo.ErrNotFound)
	case codeRaiseException, codeUniqueViolation, codeCheckViolation:
		return domain.NewStoreError(pgErr.Message, err)
	default:
		return err
	}
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func encodeManualData(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	return json.Marshal(data)
}

func decodeManualData(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

type fileJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

func encodeFiles(files []domain.UploadedFile) ([]byte, error) {
	out := make([]fileJSON, 0, len(files))
	for _, f := range files {
		out = append(out, fileJSON(f))
	}
	return json.Marshal(out)
}

func decodeFiles(raw []byte) ([]domain.UploadedFile, error) {
	out := []domain.UploadedFile{}
	if len(raw) == 0 {
		return out, nil
	}
	var files []fileJSON
	if err := json.Unmarshal(raw, &files); err != nil {
		return nil, err
	}
	for _, f := range files {
		out = append(out, domain.UploadedFile(f))
	}
	return out, nil
}
