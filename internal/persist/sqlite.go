package persist

import (
	"context"
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"github.com/formflow-labs/formflow/pkg/formflow/v1/persist"
)

// SQLiteAdapter persists form values in a local SQLite database, one row
// per form keyed by the opaque form ID, with the values map serialized as
// JSON. It is suitable for desktop-style deployments where drafts must
// survive process restarts.
type SQLiteAdapter struct {
	db *sql.DB
}

const createTableStmt = `
CREATE TABLE IF NOT EXISTS form_values (
	form_id TEXT PRIMARY KEY,
	payload BLOB NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

// NewSQLiteAdapter opens (creating if necessary) the database at path and
// ensures the form_values table exists. The caller owns the adapter and
// must Close it when done.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite adapter: database path cannot be empty")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite adapter: failed to open database '%s': %w", path, err)
	}
	if _, err := db.Exec(createTableStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite adapter: failed to initialize schema: %w", err)
	}
	return &SQLiteAdapter{db: db}, nil
}

// Save upserts the serialized values for formID.
func (a *SQLiteAdapter) Save(ctx context.Context, formID string, values map[string]interface{}) error {
	payload, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("sqlite adapter: failed to serialize values for form '%s': %w", formID, err)
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO form_values (form_id, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(form_id) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP`,
		formID, payload)
	if err != nil {
		return fmt.Errorf("sqlite adapter: failed to save form '%s': %w", formID, err)
	}
	return nil
}

// Load reads and deserializes the stored values for formID. The second
// return is false when no row exists.
func (a *SQLiteAdapter) Load(ctx context.Context, formID string) (map[string]interface{}, bool, error) {
	var payload []byte
	err := a.db.QueryRowContext(ctx,
		`SELECT payload FROM form_values WHERE form_id = ?`, formID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite adapter: failed to load form '%s': %w", formID, err)
	}
	var values map[string]interface{}
	if err := json.Unmarshal(payload, &values); err != nil {
		return nil, false, fmt.Errorf("sqlite adapter: failed to deserialize values for form '%s': %w", formID, err)
	}
	return values, true, nil
}

// Clear deletes the stored row for formID. Clearing an absent form is not
// an error.
func (a *SQLiteAdapter) Clear(ctx context.Context, formID string) error {
	if _, err := a.db.ExecContext(ctx,
		`DELETE FROM form_values WHERE form_id = ?`, formID); err != nil {
		return fmt.Errorf("sqlite adapter: failed to clear form '%s': %w", formID, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}

var _ persist.Adapter = (*SQLiteAdapter)(nil)
