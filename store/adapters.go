package store

import (
	"context"
	"iter"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// idStore projects a full store onto the id arity.
type idStore[PK comparable, ID comparable, D any] struct {
	inner Store[PK, ID, D]
}

// NewIDStore adapts inner to the id arity. When PK and ID are the same type
// the id is the partition key; otherwise the partition key is the id's
// canonical string coerced to PK.
func NewIDStore[PK comparable, ID comparable, D any](inner Store[PK, ID, D]) IDStore[ID, D] {
	return &idStore[PK, ID, D]{inner: inner}
}

// PartitionFor returns the partition key the id arity uses for id.
func PartitionFor[PK comparable, ID comparable](id ID) (PK, error) {
	if pk, ok := any(id).(PK); ok {
		return pk, nil
	}
	return Coerce[PK](&types.AttributeValueMemberS{Value: IDString(id)})
}

func (s *idStore[PK, ID, D]) CreateStoreIfNotExists(ctx context.Context) error {
	return s.inner.CreateStoreIfNotExists(ctx)
}

func (s *idStore[PK, ID, D]) Upsert(ctx context.Context, doc D) error {
	return s.inner.Upsert(ctx, doc)
}

func (s *idStore[PK, ID, D]) Exists(ctx context.Context, id ID) (bool, error) {
	pk, err := PartitionFor[PK](id)
	if err != nil {
		return false, err
	}
	return s.inner.Exists(ctx, pk, id)
}

func (s *idStore[PK, ID, D]) Get(ctx context.Context, id ID) (*D, error) {
	pk, err := PartitionFor[PK](id)
	if err != nil {
		return nil, err
	}
	return s.inner.Get(ctx, pk, id)
}

func (s *idStore[PK, ID, D]) Delete(ctx context.Context, id ID) error {
	pk, err := PartitionFor[PK](id)
	if err != nil {
		return err
	}
	return s.inner.Delete(ctx, pk, id)
}

func (s *idStore[PK, ID, D]) GetKey(doc D) (ID, error) {
	key, err := s.inner.GetKey(doc)
	return key.ID, err
}

func (s *idStore[PK, ID, D]) Query(ctx context.Context, q Query[D]) iter.Seq2[D, error] {
	return s.inner.Query(ctx, q)
}

func (s *idStore[PK, ID, D]) QueryText(ctx context.Context, text string, params ...Param) iter.Seq2[D, error] {
	return s.inner.QueryText(ctx, text, params...)
}

// singletonStore projects a full store onto the single-document arity.
type singletonStore[PK comparable, ID comparable, D any] struct {
	inner Store[PK, ID, D]
	key   Key[PK, ID]
}

// NewSingletonStore adapts inner to the singleton arity. Both keys are the
// literal "0" coerced to PK and ID.
func NewSingletonStore[PK comparable, ID comparable, D any](inner Store[PK, ID, D]) (SingletonStore[D], error) {
	zero := &types.AttributeValueMemberS{Value: fallbackKey}
	pk, err := Coerce[PK](zero)
	if err != nil {
		return nil, err
	}
	id, err := Coerce[ID](zero)
	if err != nil {
		return nil, err
	}
	return &singletonStore[PK, ID, D]{inner: inner, key: Key[PK, ID]{PartitionKey: pk, ID: id}}, nil
}

func (s *singletonStore[PK, ID, D]) CreateStoreIfNotExists(ctx context.Context) error {
	return s.inner.CreateStoreIfNotExists(ctx)
}

func (s *singletonStore[PK, ID, D]) Upsert(ctx context.Context, doc D) error {
	return s.inner.Upsert(ctx, doc)
}

func (s *singletonStore[PK, ID, D]) Exists(ctx context.Context) (bool, error) {
	return s.inner.Exists(ctx, s.key.PartitionKey, s.key.ID)
}

func (s *singletonStore[PK, ID, D]) Get(ctx context.Context) (*D, error) {
	return s.inner.Get(ctx, s.key.PartitionKey, s.key.ID)
}

func (s *singletonStore[PK, ID, D]) Delete(ctx context.Context) error {
	return s.inner.Delete(ctx, s.key.PartitionKey, s.key.ID)
}

// GetKey is ("0", "0") for every document, including nil ones.
func (s *singletonStore[PK, ID, D]) GetKey(D) (Key[string, string], error) {
	return Key[string, string]{PartitionKey: fallbackKey, ID: fallbackKey}, nil
}

func (s *singletonStore[PK, ID, D]) Query(ctx context.Context, q Query[D]) iter.Seq2[D, error] {
	return s.inner.Query(ctx, q)
}

func (s *singletonStore[PK, ID, D]) QueryText(ctx context.Context, text string, params ...Param) iter.Seq2[D, error] {
	return s.inner.QueryText(ctx, text, params...)
}
