package store

import (
	"context"
	"fmt"
	"log/slog"
)

// schema is the backend-independent half of a store: how documents are
// encoded, keyed and validated.
type schema[PK comparable, ID comparable, D any] struct {
	codec         Codec[D]
	partitionPath string
	idPath        string
	mode          KeyMode
	singleton     bool
	validator     Validator[PK, ID, D]
	logger        *slog.Logger
}

func (s *schema[PK, ID, D]) setDefaults() {
	if s.codec == nil {
		s.codec = DefaultCodec[D]()
	}
	if s.validator == nil {
		s.validator = NopValidator[PK, ID, D]{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
}

// derive encodes doc and derives its key. Singleton schemas key every
// document under ("0", "0") regardless of content.
func (s *schema[PK, ID, D]) derive(doc D) (Key[PK, ID], Item, error) {
	if !s.singleton {
		return keyOf[PK, ID](s.codec, s.partitionPath, s.idPath, s.mode, doc)
	}
	if isNil(doc) {
		return Key[PK, ID]{}, nil, ErrMissingDocument
	}
	tree, err := s.codec.Encode(doc)
	if err != nil {
		return Key[PK, ID]{}, nil, err
	}
	key, err := DeriveKey[PK, ID](Item{}, "", "", KeyModeLenient)
	return key, tree, err
}

func (s *schema[PK, ID, D]) getKey(doc D) (Key[PK, ID], error) {
	key, _, err := s.derive(doc)
	return key, err
}

// preparePut keys, encodes and validates doc for writing.
func (s *schema[PK, ID, D]) preparePut(ctx context.Context, doc D) (Key[PK, ID], Item, error) {
	key, tree, err := s.derive(doc)
	if err != nil {
		return key, nil, err
	}
	errs, err := s.validator.ValidatePut(ctx, key.PartitionKey, key.ID, doc)
	if err != nil {
		return key, nil, fmt.Errorf("validate put: %w", err)
	}
	if !errs.Empty() {
		s.logger.Debug("put rejected by validator", "key", key.String(), "errors", errs.String())
		return key, nil, &ValidationError{Errors: errs}
	}
	return key, tree, nil
}

func (s *schema[PK, ID, D]) checkDelete(ctx context.Context, pk PK, id ID) error {
	errs, err := s.validator.ValidateDelete(ctx, pk, id)
	if err != nil {
		return fmt.Errorf("validate delete: %w", err)
	}
	if !errs.Empty() {
		s.logger.Debug("delete rejected by validator", "pk", IDString(pk), "id", IDString(id), "errors", errs.String())
		return &ValidationError{Errors: errs}
	}
	return nil
}

// decode converts a stored item back into a document.
func (s *schema[PK, ID, D]) decode(item Item) (D, error) {
	var doc D
	if err := s.codec.Decode(StripMetadata(item), &doc); err != nil {
		return doc, err
	}
	return doc, nil
}
