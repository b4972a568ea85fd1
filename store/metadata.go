package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Bookkeeping attributes written next to every stored document.
const (
	// PartitionAttribute holds the canonical partition key string. It is the
	// hash key of every container table.
	PartitionAttribute = "_pk"

	// IDAttribute holds the canonical id string. It is the range key of every
	// container table.
	IDAttribute = "_id"

	// TimestampAttribute holds the unix time of the last write.
	TimestampAttribute = "_ts"
)

var bookkeepingAttributes = []string{PartitionAttribute, IDAttribute, TimestampAttribute}

// StripMetadata returns item without bookkeeping attributes.
// The input is not modified.
func StripMetadata(item Item) Item {
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = v
	}
	for _, name := range bookkeepingAttributes {
		delete(out, name)
	}
	return out
}

// HasMetadata reports whether item carries the key bookkeeping attributes.
func HasMetadata(item Item) bool {
	_, hasPK := item[PartitionAttribute]
	_, hasID := item[IDAttribute]
	return hasPK && hasID
}

// KeyFromItem reads a document key from the bookkeeping attributes of a
// stored item, such as a DynamoDB stream image.
func KeyFromItem[PK comparable, ID comparable](item Item) (Key[PK, ID], error) {
	var key Key[PK, ID]
	pk, ok := item[PartitionAttribute]
	if !ok {
		return key, fmt.Errorf("%w: %s missing", ErrInvalidKey, PartitionAttribute)
	}
	id, ok := item[IDAttribute]
	if !ok {
		return key, fmt.Errorf("%w: %s missing", ErrInvalidKey, IDAttribute)
	}

	var err error
	if key.PartitionKey, err = Coerce[PK](pk); err != nil {
		return key, err
	}
	if key.ID, err = Coerce[ID](id); err != nil {
		return key, err
	}
	return key, nil
}

// Timestamp returns the last-write time recorded on item, if any.
func Timestamp(item Item) (time.Time, bool) {
	attr, ok := item[TimestampAttribute].(*types.AttributeValueMemberN)
	if !ok {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

// keyAttributes returns the primary key of a container table item.
func keyAttributes(pk, id any) Item {
	return Item{
		PartitionAttribute: &types.AttributeValueMemberS{Value: IDString(pk)},
		IDAttribute:        &types.AttributeValueMemberS{Value: IDString(id)},
	}
}

// stamp adds bookkeeping attributes to tree in place.
func stamp(tree Item, pk, id any, now time.Time) Item {
	for k, v := range keyAttributes(pk, id) {
		tree[k] = v
	}
	tree[TimestampAttribute] = &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)}
	return tree
}
