package store

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/docstore/internal/fieldpath"
)

// KeyMode controls what happens when a key path does not resolve.
type KeyMode int

const (
	// KeyModeLenient keys a document under "0" when a key path is missing.
	KeyModeLenient KeyMode = iota

	// KeyModeStrict fails with ErrKeyPathNotFound when a key path is missing.
	KeyModeStrict
)

func (m KeyMode) String() string {
	if m == KeyModeStrict {
		return "strict"
	}
	return "lenient"
}

const (
	// defaultPartitionPath is used when no partition path is configured.
	defaultPartitionPath = "/id"

	// fallbackKey is the key value used for unresolved paths and singletons.
	fallbackKey = "0"

	// idAttribute is the member the default partition path reads.
	idAttribute = "id"
)

var allowedPartitionKeyTypes = []reflect.Type{
	reflect.TypeFor[int32](),
	reflect.TypeFor[string](),
	reflect.TypeFor[uuid.UUID](),
}

// checkPartitionKeyType rejects partition key types outside the allow-list.
func checkPartitionKeyType[PK any]() error {
	t := reflect.TypeFor[PK]()
	for _, allowed := range allowedPartitionKeyTypes {
		if t == allowed {
			return nil
		}
	}
	names := make([]string, len(allowedPartitionKeyTypes))
	for i, allowed := range allowedPartitionKeyTypes {
		names[i] = allowed.String()
	}
	return fmt.Errorf("%w: %s (supported: %s)", ErrUnsupportedPartitionKeyType, t, strings.Join(names, ", "))
}

// DeriveKey reads the partition key and id of a document from its field tree.
//
// A blank partitionPath means "/id". In lenient mode a path that does not
// resolve is read as the string "0"; in strict mode it fails with
// ErrKeyPathNotFound. Resolved values are converted with Coerce.
//
// The id is derived first. The partition path is then resolved as if "id"
// held the canonical id string, replacing any "id" member of the document,
// so the default path partitions a document by its id.
func DeriveKey[PK comparable, ID comparable](tree Item, partitionPath, idPath string, mode KeyMode) (Key[PK, ID], error) {
	var key Key[PK, ID]

	if fieldpath.IsBlank(partitionPath) {
		partitionPath = defaultPartitionPath
	}

	idValue, err := resolveKeyValue(tree, idPath, mode)
	if err != nil {
		return key, err
	}
	if key.ID, err = Coerce[ID](idValue); err != nil {
		return key, fmt.Errorf("id at %q: %w", idPath, err)
	}

	view := make(Item, len(tree)+1)
	for k, v := range tree {
		view[k] = v
	}
	view[idAttribute] = &types.AttributeValueMemberS{Value: IDString(key.ID)}

	partitionValue, err := resolveKeyValue(view, partitionPath, mode)
	if err != nil {
		return key, err
	}
	if key.PartitionKey, err = Coerce[PK](partitionValue); err != nil {
		return key, fmt.Errorf("partition key at %q: %w", partitionPath, err)
	}
	return key, nil
}

func resolveKeyValue(tree Item, path string, mode KeyMode) (types.AttributeValue, error) {
	if v, ok := fieldpath.Resolve(tree, path); ok {
		return v, nil
	}
	if mode == KeyModeStrict {
		return nil, fmt.Errorf("%w: %q", ErrKeyPathNotFound, path)
	}
	return &types.AttributeValueMemberS{Value: fallbackKey}, nil
}

// Coerce converts a field-tree leaf to T.
//
// Strings accept S, N and BOOL leaves. Integer and float kinds accept N or
// numeric S. Booleans accept BOOL or S. uuid.UUID accepts a parseable S or a
// 16-byte B. Any other target is decoded with attributevalue.Unmarshal.
func Coerce[T any](av types.AttributeValue) (T, error) {
	var out T
	if av == nil {
		return out, fmt.Errorf("%w: no value", ErrInvalidKey)
	}

	if u, ok := any(&out).(*uuid.UUID); ok {
		parsed, err := coerceUUID(av)
		if err != nil {
			return out, err
		}
		*u = parsed
		return out, nil
	}

	rv := reflect.ValueOf(&out).Elem()
	switch rv.Kind() {
	case reflect.String:
		s, err := coerceString(av)
		if err != nil {
			return out, err
		}
		rv.SetString(s)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		text, err := numericText(av)
		if err != nil {
			return out, err
		}
		n, err := strconv.ParseInt(text, 10, rv.Type().Bits())
		if err != nil {
			return out, fmt.Errorf("%w: %q is not a %s: %w", ErrInvalidKey, text, rv.Type(), err)
		}
		rv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		text, err := numericText(av)
		if err != nil {
			return out, err
		}
		n, err := strconv.ParseUint(text, 10, rv.Type().Bits())
		if err != nil {
			return out, fmt.Errorf("%w: %q is not a %s: %w", ErrInvalidKey, text, rv.Type(), err)
		}
		rv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		text, err := numericText(av)
		if err != nil {
			return out, err
		}
		f, err := strconv.ParseFloat(text, rv.Type().Bits())
		if err != nil {
			return out, fmt.Errorf("%w: %q is not a %s: %w", ErrInvalidKey, text, rv.Type(), err)
		}
		rv.SetFloat(f)
	case reflect.Bool:
		b, err := coerceBool(av)
		if err != nil {
			return out, err
		}
		rv.SetBool(b)
	default:
		if err := attributevalue.Unmarshal(av, &out); err != nil {
			return out, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
	}
	return out, nil
}

func coerceString(av types.AttributeValue) (string, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return v.Value, nil
	case *types.AttributeValueMemberBOOL:
		return strconv.FormatBool(v.Value), nil
	case *types.AttributeValueMemberB:
		if len(v.Value) == 16 {
			return uuid.UUID(v.Value).String(), nil
		}
	}
	return "", fmt.Errorf("%w: cannot read %T as string", ErrInvalidKey, av)
}

func numericText(av types.AttributeValue) (string, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		return v.Value, nil
	case *types.AttributeValueMemberS:
		return strings.TrimSpace(v.Value), nil
	}
	return "", fmt.Errorf("%w: cannot read %T as number", ErrInvalidKey, av)
}

func coerceBool(av types.AttributeValue) (bool, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberBOOL:
		return v.Value, nil
	case *types.AttributeValueMemberS:
		b, err := strconv.ParseBool(v.Value)
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a bool", ErrInvalidKey, v.Value)
		}
		return b, nil
	}
	return false, fmt.Errorf("%w: cannot read %T as bool", ErrInvalidKey, av)
}

func coerceUUID(av types.AttributeValue) (uuid.UUID, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		u, err := uuid.Parse(v.Value)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: %q is not a uuid: %w", ErrInvalidKey, v.Value, err)
		}
		return u, nil
	case *types.AttributeValueMemberB:
		u, err := uuid.FromBytes(v.Value)
		if err != nil {
			return uuid.Nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
		}
		return u, nil
	}
	return uuid.Nil, fmt.Errorf("%w: cannot read %T as uuid", ErrInvalidKey, av)
}

// IDString returns the canonical string form of a key value.
// nil becomes "0", UUIDs use their hyphenated form, numbers their decimal form.
func IDString(v any) string {
	switch tv := v.(type) {
	case nil:
		return fallbackKey
	case string:
		return tv
	case uuid.UUID:
		return tv.String()
	case bool:
		return strconv.FormatBool(tv)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return fallbackKey
		}
		return IDString(rv.Elem().Interface())
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}

	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, rv.Type().Bits())
	}
	return fmt.Sprint(v)
}

// isNil reports whether doc is a nil reference.
func isNil(doc any) bool {
	if doc == nil {
		return true
	}
	rv := reflect.ValueOf(doc)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// keyOf encodes doc with codec and derives its key.
func keyOf[PK comparable, ID comparable, D any](codec Codec[D], partitionPath, idPath string, mode KeyMode, doc D) (Key[PK, ID], Item, error) {
	if isNil(doc) {
		return Key[PK, ID]{}, nil, ErrMissingDocument
	}
	tree, err := codec.Encode(doc)
	if err != nil {
		return Key[PK, ID]{}, nil, err
	}
	key, err := DeriveKey[PK, ID](tree, partitionPath, idPath, mode)
	return key, tree, err
}
