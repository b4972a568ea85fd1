package store

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sync"
)

// MemoryStore is an in-memory Store with the same observable behavior as
// the DynamoDB store, for tests and local development. Text queries are not
// supported.
type MemoryStore[PK comparable, ID comparable, D any] struct {
	schema[PK, ID, D]

	mu    sync.RWMutex
	items map[Key[PK, ID]]Item
}

func newMemoryStore[PK comparable, ID comparable, D any](s schema[PK, ID, D], seed []D) (*MemoryStore[PK, ID, D], error) {
	s.setDefaults()
	m := &MemoryStore[PK, ID, D]{
		schema: s,
		items:  make(map[Key[PK, ID]]Item),
	}
	for _, doc := range seed {
		key, tree, err := m.derive(doc)
		if err != nil {
			return nil, err
		}
		m.items[key] = tree
	}
	return m, nil
}

// CreateStoreIfNotExists is a no-op.
func (m *MemoryStore[PK, ID, D]) CreateStoreIfNotExists(context.Context) error {
	return nil
}

func (m *MemoryStore[PK, ID, D]) Upsert(ctx context.Context, doc D) error {
	key, tree, err := m.preparePut(ctx, doc)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.items[key] = tree
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore[PK, ID, D]) Exists(ctx context.Context, pk PK, id ID) (bool, error) {
	doc, err := m.Get(ctx, pk, id)
	return doc != nil, err
}

func (m *MemoryStore[PK, ID, D]) Get(_ context.Context, pk PK, id ID) (*D, error) {
	m.mu.RLock()
	item, ok := m.items[Key[PK, ID]{PartitionKey: pk, ID: id}]
	m.mu.RUnlock()

	if !ok {
		return nil, nil
	}
	doc, err := m.decode(item)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (m *MemoryStore[PK, ID, D]) Delete(ctx context.Context, pk PK, id ID) error {
	if err := m.checkDelete(ctx, pk, id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.items, Key[PK, ID]{PartitionKey: pk, ID: id})
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore[PK, ID, D]) GetKey(doc D) (Key[PK, ID], error) {
	return m.getKey(doc)
}

func (m *MemoryStore[PK, ID, D]) Query(_ context.Context, q Query[D]) iter.Seq2[D, error] {
	return applyQuery(m.scan(nil), q)
}

func (m *MemoryStore[PK, ID, D]) QueryPartition(_ context.Context, pk PK, q Query[D]) iter.Seq2[D, error] {
	return applyQuery(m.scan(&pk), q)
}

// QueryText fails with ErrNotImplemented: there is no query engine to emulate.
func (m *MemoryStore[PK, ID, D]) QueryText(context.Context, string, ...Param) iter.Seq2[D, error] {
	return errSeq[D](ErrNotImplemented)
}

// QueryPartitionText fails with ErrNotImplemented.
func (m *MemoryStore[PK, ID, D]) QueryPartitionText(context.Context, PK, string, ...Param) iter.Seq2[D, error] {
	return errSeq[D](ErrNotImplemented)
}

// Len returns the number of stored documents.
func (m *MemoryStore[PK, ID, D]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

type memoryEntry[PK comparable, ID comparable] struct {
	key  Key[PK, ID]
	item Item
}

// scan decodes a snapshot of the stored documents, optionally restricted to
// one partition, ordered by canonical partition and id strings.
func (m *MemoryStore[PK, ID, D]) scan(pk *PK) iter.Seq2[D, error] {
	return func(yield func(D, error) bool) {
		m.mu.RLock()
		entries := make([]memoryEntry[PK, ID], 0, len(m.items))
		for key, item := range m.items {
			if pk != nil && key.PartitionKey != *pk {
				continue
			}
			entries = append(entries, memoryEntry[PK, ID]{key: key, item: item})
		}
		m.mu.RUnlock()

		slices.SortFunc(entries, func(a, b memoryEntry[PK, ID]) int {
			return cmp.Or(
				cmp.Compare(IDString(a.key.PartitionKey), IDString(b.key.PartitionKey)),
				cmp.Compare(IDString(a.key.ID), IDString(b.key.ID)),
			)
		})

		for _, e := range entries {
			doc, err := m.decode(e.item)
			if err != nil {
				var zero D
				yield(zero, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
	}
}

var _ Store[string, string, Item] = (*MemoryStore[string, string, Item])(nil)
