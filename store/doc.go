// Package store provides a generic document store with one contract and two
// backends: DynamoDB and an in-memory store for tests.
//
// Callers describe a document's shape once (where its partition key and id
// live, and optionally how to validate it) and receive a store bound to a
// backend. Key derivation, validation and construction behave the same on
// both backends, so the in-memory store can stand in for DynamoDB in tests.
//
// # Key Features
//
//   - Keys derived from slash-separated field paths such as /Customer/Region
//   - Three key arities: [Store], [IDStore] and [SingletonStore]
//   - Validation hooks run before every write and delete
//   - Lazy, paged query sequences (iter.Seq2) with composable [Query] values
//   - PartiQL text queries with @name parameters on DynamoDB
//   - Diagnosis of connectivity failures (bad connection string, unreachable
//     host, missing database, missing container)
//   - A [Registry] that shares one store per distinct description
//
// # Describing a Store
//
// Descriptions are built in stages, starting from [Describe]:
//
//	desc := store.KeyPaths[string, uuid.UUID](
//	    store.Document[Person](store.Describe().MockInMemory()),
//	    "/LastName", "/PersonId",
//	)
//	people, err := desc.Build()
//
// Bind keys with [KeyPaths] or [KeyFields] for the full arity, [KeyID],
// [KeyIDPartitioned] or [KeyIDField] for the id arity, or build the result of
// [Document] directly for a singleton. Partition keys must be int32, string
// or uuid.UUID.
//
// # Keys
//
// A blank partition path means /id. A key path that does not resolve keys the
// document under "0" unless the description asks for StrictKeys, in which
// case [ErrKeyPathNotFound] is returned. See [DeriveKey].
//
// # DynamoDB Layout
//
// The database is a catalog table named after it. Each container is a table
// named "<database>.<container>" with hash key _pk and range key _id, holding
// the canonical partition and id strings. _ts records the last write. These
// attributes are removed before documents are decoded.
//
// # Errors
//
// Misses are not errors: Get returns nil and Delete does nothing. The
// package defines:
//
//   - [ErrConnectionStringInvalid] - the client could not be opened
//   - [ErrHostUnreachable] - the endpoint did not answer
//   - [ErrDatabaseNotFound] - the catalog table is missing
//   - [ErrContainerNotFound] - the container table is missing
//   - [ErrValidationFailed] - matched by every [*ValidationError]
//   - [ErrUnsupportedPartitionKeyType] - returned by Build
//   - [ErrMissingDocument] - a nil document was given
//   - [ErrNotImplemented] - text queries on the in-memory store
//   - [ErrPartitionNotSelected] - a partition text query did not select _pk
package store
