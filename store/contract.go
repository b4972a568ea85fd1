package store

import (
	"context"
	"iter"
)

// Store is the full-arity document store: documents are addressed by
// partition key and id.
//
// Get returns (nil, nil) for a missing document and Delete of a missing
// document is a no-op, so callers never special-case "not found".
// Query sequences are lazy and single-pass; backend paging is hidden. A
// sequence yields at most one non-nil error, as its last element.
type Store[PK comparable, ID comparable, D any] interface {
	// CreateStoreIfNotExists provisions the backing database and container.
	CreateStoreIfNotExists(ctx context.Context) error

	// Upsert derives the document's key, validates it and writes it.
	// Last write wins.
	Upsert(ctx context.Context, doc D) error

	// Exists reports whether Get would return a document.
	Exists(ctx context.Context, pk PK, id ID) (bool, error)

	// Get returns the document stored under the key, or nil.
	Get(ctx context.Context, pk PK, id ID) (*D, error)

	// Delete validates and removes the document stored under the key.
	Delete(ctx context.Context, pk PK, id ID) error

	// GetKey derives the key of doc without I/O.
	GetKey(doc D) (Key[PK, ID], error)

	// Query runs q over every document. A nil q yields all documents.
	Query(ctx context.Context, q Query[D]) iter.Seq2[D, error]

	// QueryPartition runs q over the documents of one partition.
	QueryPartition(ctx context.Context, pk PK, q Query[D]) iter.Seq2[D, error]

	// QueryText runs a backend query string with named parameters.
	QueryText(ctx context.Context, text string, params ...Param) iter.Seq2[D, error]

	// QueryPartitionText runs a backend query string scoped to one partition.
	QueryPartitionText(ctx context.Context, pk PK, text string, params ...Param) iter.Seq2[D, error]
}

// IDStore is the id-partitioned arity: the partition key is inferred from the id.
type IDStore[ID comparable, D any] interface {
	CreateStoreIfNotExists(ctx context.Context) error
	Upsert(ctx context.Context, doc D) error
	Exists(ctx context.Context, id ID) (bool, error)
	Get(ctx context.Context, id ID) (*D, error)
	Delete(ctx context.Context, id ID) error
	GetKey(doc D) (ID, error)
	Query(ctx context.Context, q Query[D]) iter.Seq2[D, error]
	QueryText(ctx context.Context, text string, params ...Param) iter.Seq2[D, error]
}

// SingletonStore is the single-document arity: the key is always ("0", "0").
type SingletonStore[D any] interface {
	CreateStoreIfNotExists(ctx context.Context) error
	Upsert(ctx context.Context, doc D) error
	Exists(ctx context.Context) (bool, error)
	Get(ctx context.Context) (*D, error)
	Delete(ctx context.Context) error
	GetKey(doc D) (Key[string, string], error)
	Query(ctx context.Context, q Query[D]) iter.Seq2[D, error]
	QueryText(ctx context.Context, text string, params ...Param) iter.Seq2[D, error]
}
