package domain

import "context"

// ─── Data Backend ───────────────────────────────────────────────────────────
// These types define the boundary between the engines and storage.
// Infrastructure implements DocumentStore; the app layer depends on it.

// Document is a stored record: an id plus schemaless fields.
type Document struct {
	ID   string
	Data map[string]any
}

// Clause is a single equality predicate on a top-level field.
type Clause struct {
	Field string
	Value any
}

// Where builds an equality clause.
func Where(field string, value any) Clause {
	return Clause{Field: field, Value: value}
}

// ArrayUnion is an update value that adds ids to an array field,
// skipping ids that are already present.
type ArrayUnion []string

// OpKind is the kind of a batched write.
type OpKind int

const (
	OpPut OpKind = iota
	OpUpdate
	OpDelete
	OpCreate
)

// WriteOp is one write inside an atomic batch.
type WriteOp struct {
	Kind       OpKind
	Collection string
	ID         string
	Fields     map[string]any // unused for OpDelete
}

// PutOp creates or replaces a document.
func PutOp(collection, id string, fields map[string]any) WriteOp {
	return WriteOp{Kind: OpPut, Collection: collection, ID: id, Fields: fields}
}

// UpdateOp merges fields into an existing document.
func UpdateOp(collection, id string, fields map[string]any) WriteOp {
	return WriteOp{Kind: OpUpdate, Collection: collection, ID: id, Fields: fields}
}

// CreateOp inserts a document only if none exists under id. An existing
// document is left untouched and the op is not an error.
func CreateOp(collection, id string, fields map[string]any) WriteOp {
	return WriteOp{Kind: OpCreate, Collection: collection, ID: id, Fields: fields}
}

// DeleteOp removes an existing document.
func DeleteOp(collection, id string) WriteOp {
	return WriteOp{Kind: OpDelete, Collection: collection, ID: id}
}

// DocumentStore abstracts the document backend.
type DocumentStore interface {
	// Query returns documents matching every clause.
	Query(ctx context.Context, collection string, where ...Clause) ([]Document, error)

	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Put creates or replaces a document.
	Put(ctx context.Context, collection, id string, fields map[string]any) error

	// Update merges fields into an existing document. ArrayUnion values
	// are applied as add-to-set. Returns ErrNotFound for a missing document.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete returns ErrNotFound for a missing document.
	Delete(ctx context.Context, collection, id string) error

	// Batch applies all ops or none. Update and delete ops require the
	// target to exist.
	Batch(ctx context.Context, ops ...WriteOp) error

	// Subscribe streams the complete matching result set, once immediately
	// and again after every committed change to the collection. The channel
	// closes when ctx is done or cancel is called.
	Subscribe(ctx context.Context, collection string, where ...Clause) (snapshots <-chan []Document, cancel func())
}
