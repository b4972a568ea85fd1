package store

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Item is the field-tree form of a document: a DynamoDB attribute map.
// Stores can be built over Item directly when documents have no Go type.
type Item = map[string]types.AttributeValue

// Key is the composite identity of a stored document.
type Key[PK comparable, ID comparable] struct {
	PartitionKey PK
	ID           ID
}

func (k Key[PK, ID]) String() string {
	return fmt.Sprintf("(%s, %s)", IDString(k.PartitionKey), IDString(k.ID))
}

// Param is a named parameter of a text query. Name may be given with or
// without its leading "@".
type Param struct {
	Name  string
	Value any
}

// Codec converts documents to and from their field-tree form.
type Codec[D any] interface {
	Encode(doc D) (Item, error)
	Decode(item Item, doc *D) error
}

// AttributeValueCodec encodes documents with the attributevalue package.
// Struct fields are named by their `dynamodbav` tags, or their Go names.
// Documents of type Item are deep-copied rather than marshalled.
type AttributeValueCodec[D any] struct{}

// DefaultCodec returns the attributevalue-backed codec for D.
func DefaultCodec[D any]() Codec[D] {
	return AttributeValueCodec[D]{}
}

// Encode implements Codec.
func (AttributeValueCodec[D]) Encode(doc D) (Item, error) {
	if item, ok := any(doc).(Item); ok {
		return cloneItem(item), nil
	}
	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if item == nil {
		item = Item{}
	}
	return item, nil
}

// Decode implements Codec.
func (AttributeValueCodec[D]) Decode(item Item, doc *D) error {
	if out, ok := any(doc).(*Item); ok {
		*out = cloneItem(item)
		return nil
	}
	if err := attributevalue.UnmarshalMap(item, doc); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// cloneItem deep-copies an attribute map so stored state never aliases caller state.
func cloneItem(item Item) Item {
	if item == nil {
		return nil
	}
	out := make(Item, len(item))
	for k, v := range item {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v types.AttributeValue) types.AttributeValue {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: tv.Value}
	case *types.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: tv.Value}
	case *types.AttributeValueMemberBOOL:
		return &types.AttributeValueMemberBOOL{Value: tv.Value}
	case *types.AttributeValueMemberNULL:
		return &types.AttributeValueMemberNULL{Value: tv.Value}
	case *types.AttributeValueMemberB:
		return &types.AttributeValueMemberB{Value: append([]byte(nil), tv.Value...)}
	case *types.AttributeValueMemberSS:
		return &types.AttributeValueMemberSS{Value: append([]string(nil), tv.Value...)}
	case *types.AttributeValueMemberNS:
		return &types.AttributeValueMemberNS{Value: append([]string(nil), tv.Value...)}
	case *types.AttributeValueMemberBS:
		bs := make([][]byte, len(tv.Value))
		for i, b := range tv.Value {
			bs[i] = append([]byte(nil), b...)
		}
		return &types.AttributeValueMemberBS{Value: bs}
	case *types.AttributeValueMemberL:
		list := make([]types.AttributeValue, len(tv.Value))
		for i, e := range tv.Value {
			list[i] = cloneValue(e)
		}
		return &types.AttributeValueMemberL{Value: list}
	case *types.AttributeValueMemberM:
		return &types.AttributeValueMemberM{Value: cloneItem(tv.Value)}
	default:
		return v
	}
}
