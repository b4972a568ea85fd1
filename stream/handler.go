// Package stream turns DynamoDB Streams records of a container table into
// typed document events.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jacentio/docstore/store"
)

// Stream event names.
const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

// ErrNoImage is returned for a write record that carries no new image. The
// table's stream must use the NEW_IMAGE or NEW_AND_OLD_IMAGES view type.
var ErrNoImage = errors.New("stream: record has no new image")

// Listener receives document changes.
type Listener[PK comparable, ID comparable, D any] interface {
	OnUpsert(ctx context.Context, key store.Key[PK, ID], doc D) error
	OnDelete(ctx context.Context, key store.Key[PK, ID]) error
}

// ListenerFuncs adapts plain functions to a Listener. A nil function ignores
// its events.
type ListenerFuncs[PK comparable, ID comparable, D any] struct {
	Upsert func(ctx context.Context, key store.Key[PK, ID], doc D) error
	Delete func(ctx context.Context, key store.Key[PK, ID]) error
}

func (l ListenerFuncs[PK, ID, D]) OnUpsert(ctx context.Context, key store.Key[PK, ID], doc D) error {
	if l.Upsert == nil {
		return nil
	}
	return l.Upsert(ctx, key, doc)
}

func (l ListenerFuncs[PK, ID, D]) OnDelete(ctx context.Context, key store.Key[PK, ID]) error {
	if l.Delete == nil {
		return nil
	}
	return l.Delete(ctx, key)
}

// Handler processes DynamoDB stream events of one container table.
type Handler[PK comparable, ID comparable, D any] struct {
	listener Listener[PK, ID, D]
	codec    store.Codec[D]
	logger   *slog.Logger
}

// NewHandler creates a stream handler delivering to listener.
func NewHandler[PK comparable, ID comparable, D any](listener Listener[PK, ID, D], logger *slog.Logger) *Handler[PK, ID, D] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler[PK, ID, D]{
		listener: listener,
		codec:    store.DefaultCodec[D](),
		logger:   logger,
	}
}

// WithCodec returns a copy of the handler decoding documents with codec. It
// should match the codec the store was built with.
func (h *Handler[PK, ID, D]) WithCodec(codec store.Codec[D]) *Handler[PK, ID, D] {
	clone := *h
	clone.codec = codec
	return &clone
}

// HandleEvent delivers every record of event in order. The first failure
// stops the batch so the Lambda runtime retries it.
func (h *Handler[PK, ID, D]) HandleEvent(ctx context.Context, event events.DynamoDBEvent) error {
	for _, record := range event.Records {
		if err := h.processRecord(ctx, record); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"eventName", record.EventName,
				"error", err,
			)
			return err
		}
	}
	return nil
}

func (h *Handler[PK, ID, D]) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	switch record.EventName {
	case EventInsert, EventModify:
		if len(record.Change.NewImage) == 0 {
			return ErrNoImage
		}
		image := ConvertImage(record.Change.NewImage)
		key, err := store.KeyFromItem[PK, ID](image)
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		var doc D
		if err := h.codec.Decode(store.StripMetadata(image), &doc); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		h.logger.Debug("document upserted", "key", key.String(), "eventName", record.EventName)
		return h.listener.OnUpsert(ctx, key, doc)

	case EventRemove:
		keys := record.Change.Keys
		if len(keys) == 0 {
			keys = record.Change.OldImage
		}
		key, err := store.KeyFromItem[PK, ID](ConvertImage(keys))
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
		h.logger.Debug("document removed", "key", key.String())
		return h.listener.OnDelete(ctx, key)

	default:
		h.logger.Warn("ignoring stream record", "eventID", record.EventID, "eventName", record.EventName)
		return nil
	}
}
