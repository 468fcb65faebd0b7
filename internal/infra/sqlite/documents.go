package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"reflect"
	"regexp"
	"strings"

	"github.com/splitpal/splitpal/internal/domain"
)

// ─── Document Schema ────────────────────────────────────────────────────────

// DocumentMigrations returns the document store schema.
func DocumentMigrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now')),
			PRIMARY KEY (collection, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection)`,
	}
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ─── Reads ──────────────────────────────────────────────────────────────────

// Query returns every document in collection matching all clauses,
// in insertion order.
func (db *DB) Query(ctx context.Context, collection string, where ...domain.Clause) ([]domain.Document, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)
	args := []any{collection}
	for _, c := range where {
		if !fieldName.MatchString(c.Field) {
			return nil, fmt.Errorf("%w: bad field name %q", domain.ErrValidation, c.Field)
		}
		sb.WriteString(` AND json_extract(data, ?) = ?`)
		args = append(args, "$."+c.Field, bindValue(c.Value))
	}
	sb.WriteString(` ORDER BY rowid`)

	rows, err := db.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, unavailable(err)
		}
		doc, err := decodeDocument(id, data)
		if err != nil {
			log.Printf("[sqlite] skipping undecodable document %s/%s: %v", collection, id, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, unavailable(rows.Err())
}

// Get returns a single document or domain.ErrNotFound.
func (db *DB) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	return getDocument(ctx, db.db, collection, id)
}

func getDocument(ctx context.Context, q execer, collection, id string) (domain.Document, error) {
	var data string
	err := q.QueryRowContext(ctx, `
		SELECT data FROM documents WHERE collection = ? AND id = ?
	`, collection, id).Scan(&data)
	if err == sql.ErrNoRows {
		return domain.Document{}, fmt.Errorf("%s/%s: %w", collection, id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Document{}, unavailable(err)
	}
	doc, err := decodeDocument(id, data)
	if err != nil {
		return domain.Document{}, unavailable(err)
	}
	return doc, nil
}

// ─── Writes ─────────────────────────────────────────────────────────────────

// Put creates or replaces a document.
func (db *DB) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	return db.Batch(ctx, domain.PutOp(collection, id, fields))
}

// Update merges fields into an existing document.
func (db *DB) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	return db.Batch(ctx, domain.UpdateOp(collection, id, fields))
}

// Delete removes an existing document.
func (db *DB) Delete(ctx context.Context, collection, id string) error {
	return db.Batch(ctx, domain.DeleteOp(collection, id))
}

// Batch applies ops inside one SQL transaction. Any failing op rolls back
// the whole batch; subscribers are woken only after a successful commit.
func (db *DB) Batch(ctx context.Context, ops ...domain.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	touched := make(map[string]bool)
	for _, op := range ops {
		if err := applyOp(ctx, tx, op); err != nil {
			return err
		}
		touched[op.Collection] = true
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	db.hub.notify(touched)
	return nil
}

func applyOp(ctx context.Context, tx *sql.Tx, op domain.WriteOp) error {
	if op.Collection == "" || op.ID == "" {
		return fmt.Errorf("%w: write needs a collection and an id", domain.ErrValidation)
	}

	switch op.Kind {
	case domain.OpPut:
		data, err := encodeFields(mergeFields(nil, op.Fields))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data, created_at, updated_at)
			VALUES (?, ?, ?, datetime('now'), datetime('now'))
			ON CONFLICT(collection, id) DO UPDATE SET
				data       = excluded.data,
				updated_at = datetime('now')
		`, op.Collection, op.ID, data)
		return unavailable(err)

	case domain.OpCreate:
		data, err := encodeFields(mergeFields(nil, op.Fields))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, data, created_at, updated_at)
			VALUES (?, ?, ?, datetime('now'), datetime('now'))
			ON CONFLICT(collection, id) DO NOTHING
		`, op.Collection, op.ID, data)
		return unavailable(err)

	case domain.OpUpdate:
		doc, err := getDocument(ctx, tx, op.Collection, op.ID)
		if err != nil {
			return err
		}
		data, err := encodeFields(mergeFields(doc.Data, op.Fields))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE documents SET data = ?, updated_at = datetime('now')
			WHERE collection = ? AND id = ?
		`, data, op.Collection, op.ID)
		return unavailable(err)

	case domain.OpDelete:
		res, err := tx.ExecContext(ctx, `
			DELETE FROM documents WHERE collection = ? AND id = ?
		`, op.Collection, op.ID)
		if err != nil {
			return unavailable(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return unavailable(err)
		}
		if n == 0 {
			return fmt.Errorf("%s/%s: %w", op.Collection, op.ID, domain.ErrNotFound)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown write op %d", domain.ErrValidation, op.Kind)
}

// ─── Encoding ───────────────────────────────────────────────────────────────

// mergeFields overlays update onto base. ArrayUnion values extend the
// existing array, skipping ids that are already present.
func mergeFields(base, update map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(update))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range update {
		union, ok := v.(domain.ArrayUnion)
		if !ok {
			out[k] = v
			continue
		}
		arr, _ := out[k].([]any)
		seen := make(map[any]bool, len(arr))
		for _, x := range arr {
			seen[x] = true
		}
		for _, id := range union {
			if !seen[id] {
				seen[id] = true
				arr = append(arr, id)
			}
		}
		if arr == nil {
			arr = []any{}
		}
		out[k] = arr
	}
	return out
}

func encodeFields(fields map[string]any) (string, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("%w: encode document: %v", domain.ErrValidation, err)
	}
	return string(b), nil
}

// decodeDocument keeps numbers as json.Number so stored amounts are not
// rounded on the way out.
func decodeDocument(id, data string) (domain.Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	fields := make(map[string]any)
	if err := dec.Decode(&fields); err != nil {
		return domain.Document{}, err
	}
	return domain.Document{ID: id, Data: fields}, nil
}

// bindValue converts a clause value to something json_extract compares equal.
func bindValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case string, int, int64, float64:
		return x
	}
	// Named string types such as domain.RequestStatus.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}
