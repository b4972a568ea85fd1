package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/jacentio/docstore/store"
)

func str(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }
func num(v string) types.AttributeValue { return &types.AttributeValueMemberN{Value: v} }

var g1 = uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")

// --- DeriveKey Tests ---

func TestDeriveKey(t *testing.T) {
	tree := store.Item{
		"LastName": str("Smith"),
		"PersonId": str(g1.String()),
		"Customer": &types.AttributeValueMemberM{Value: store.Item{
			"Region": str("emea"),
		}},
	}

	key, err := store.DeriveKey[string, uuid.UUID](tree, "/LastName", "/PersonId", store.KeyModeLenient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.PartitionKey != "Smith" {
		t.Errorf("expected partition 'Smith', got %q", key.PartitionKey)
	}
	if key.ID != g1 {
		t.Errorf("expected id %s, got %s", g1, key.ID)
	}
}

func TestDeriveKey_NestedPartitionPath(t *testing.T) {
	tree := store.Item{
		"Customer": &types.AttributeValueMemberM{Value: store.Item{
			"Region": str("emea"),
		}},
		"OrderId": num("17"),
	}

	key, err := store.DeriveKey[string, int32](tree, "/Customer/Region", "/OrderId", store.KeyModeLenient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.PartitionKey != "emea" || key.ID != 17 {
		t.Errorf("expected (emea, 17), got %v", key)
	}
}

func TestDeriveKey_BlankPartitionPathUsesID(t *testing.T) {
	tests := []struct {
		name          string
		tree          store.Item
		partitionPath string
		expected      string
	}{
		{"canonical id", store.Item{"Name": str("x")}, "", "x"},
		{"whitespace path", store.Item{"Name": str("x")}, "   ", "x"},
		{"document id field is replaced", store.Item{"id": str("abc"), "Name": str("x")}, "", "x"},
		{"explicit id path", store.Item{"id": str("abc"), "Name": str("x")}, "/id", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := store.DeriveKey[string, string](tt.tree, tt.partitionPath, "/Name", store.KeyModeLenient)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if key.PartitionKey != tt.expected {
				t.Errorf("expected partition %q, got %q", tt.expected, key.PartitionKey)
			}
		})
	}
}

func TestDeriveKey_MissingFieldsFallBackToZero(t *testing.T) {
	key, err := store.DeriveKey[string, string](store.Item{"Name": str("x")}, "", "/PersonId", store.KeyModeLenient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := store.Key[string, string]{PartitionKey: "0", ID: "0"}
	if key != want {
		t.Errorf("expected %v, got %v", want, key)
	}
}

func TestDeriveKey_MissingFieldsIntKeys(t *testing.T) {
	key, err := store.DeriveKey[int32, int32](store.Item{}, "/Shard", "/Seq", store.KeyModeLenient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.PartitionKey != 0 || key.ID != 0 {
		t.Errorf("expected (0, 0), got %v", key)
	}
}

func TestDeriveKey_Strict(t *testing.T) {
	tree := store.Item{"LastName": str("Smith")}

	_, err := store.DeriveKey[string, string](tree, "/LastName", "/PersonId", store.KeyModeStrict)
	if !errors.Is(err, store.ErrKeyPathNotFound) {
		t.Errorf("expected ErrKeyPathNotFound for missing id, got %v", err)
	}

	_, err = store.DeriveKey[string, string](store.Item{"PersonId": str("1")}, "/LastName", "/PersonId", store.KeyModeStrict)
	if !errors.Is(err, store.ErrKeyPathNotFound) {
		t.Errorf("expected ErrKeyPathNotFound for missing partition, got %v", err)
	}
}

func TestDeriveKey_CoercionFailure(t *testing.T) {
	tree := store.Item{"LastName": str("Smith"), "PersonId": str("not-a-uuid")}

	_, err := store.DeriveKey[string, uuid.UUID](tree, "/LastName", "/PersonId", store.KeyModeLenient)
	if !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

// --- Coerce Tests ---

func TestCoerce_String(t *testing.T) {
	tests := []struct {
		name     string
		value    types.AttributeValue
		expected string
	}{
		{"string", str("Smith"), "Smith"},
		{"number", num("42"), "42"},
		{"bool", &types.AttributeValueMemberBOOL{Value: true}, "true"},
		{"uuid bytes", &types.AttributeValueMemberB{Value: g1[:]}, g1.String()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Coerce[string](tt.value)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCoerce_Int32(t *testing.T) {
	tests := []struct {
		name     string
		value    types.AttributeValue
		expected int32
		wantErr  bool
	}{
		{"number", num("42"), 42, false},
		{"negative", num("-7"), -7, false},
		{"numeric string", str(" 12 "), 12, false},
		{"zero fallback", str("0"), 0, false},
		{"fraction", num("1.5"), 0, true},
		{"overflow", num("3000000000"), 0, true},
		{"text", str("abc"), 0, true},
		{"bool", &types.AttributeValueMemberBOOL{Value: true}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Coerce[int32](tt.value)
			if tt.wantErr {
				if !errors.Is(err, store.ErrInvalidKey) {
					t.Errorf("expected ErrInvalidKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestCoerce_UUID(t *testing.T) {
	fromString, err := store.Coerce[uuid.UUID](str(g1.String()))
	if err != nil || fromString != g1 {
		t.Errorf("expected %s from string, got %s (err=%v)", g1, fromString, err)
	}

	fromBytes, err := store.Coerce[uuid.UUID](&types.AttributeValueMemberB{Value: g1[:]})
	if err != nil || fromBytes != g1 {
		t.Errorf("expected %s from bytes, got %s (err=%v)", g1, fromBytes, err)
	}

	if _, err := store.Coerce[uuid.UUID](str("0")); !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for \"0\", got %v", err)
	}
	if _, err := store.Coerce[uuid.UUID](num("1")); !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for number, got %v", err)
	}
}

func TestCoerce_OtherKinds(t *testing.T) {
	f, err := store.Coerce[float64](num("1.5"))
	if err != nil || f != 1.5 {
		t.Errorf("expected 1.5, got %v (err=%v)", f, err)
	}

	u, err := store.Coerce[uint16](str("65535"))
	if err != nil || u != 65535 {
		t.Errorf("expected 65535, got %v (err=%v)", u, err)
	}

	b, err := store.Coerce[bool](str("true"))
	if err != nil || !b {
		t.Errorf("expected true, got %v (err=%v)", b, err)
	}

	ts, err := store.Coerce[time.Time](str("2024-01-02T03:04:05Z"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ts.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)) {
		t.Errorf("unexpected time %v", ts)
	}
}

func TestCoerce_NamedStringType(t *testing.T) {
	type region string
	got, err := store.Coerce[region](str("emea"))
	if err != nil || got != "emea" {
		t.Errorf("expected emea, got %q (err=%v)", got, err)
	}
}

func TestCoerce_Nil(t *testing.T) {
	if _, err := store.Coerce[string](nil); !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestCoerce_UnsupportedLeaf(t *testing.T) {
	list := &types.AttributeValueMemberL{Value: []types.AttributeValue{str("a")}}
	if _, err := store.Coerce[string](list); !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

// --- IDString Tests ---

func TestIDString(t *testing.T) {
	var nilUUID *uuid.UUID
	seven := int32(7)

	tests := []struct {
		name     string
		value    any
		expected string
	}{
		{"nil", nil, "0"},
		{"string", "Smith", "Smith"},
		{"uuid", g1, g1.String()},
		{"int32", int32(-12), "-12"},
		{"int64", int64(1) << 40, "1099511627776"},
		{"uint", uint(3), "3"},
		{"float", 1.25, "1.25"},
		{"bool", true, "true"},
		{"nil pointer", nilUUID, "0"},
		{"pointer", &seven, "7"},
		{"stringer", time.Duration(0), "0s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := store.IDString(tt.value); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestKey_String(t *testing.T) {
	key := store.Key[string, int32]{PartitionKey: "Smith", ID: 7}
	if got := key.String(); got != "(Smith, 7)" {
		t.Errorf("expected (Smith, 7), got %q", got)
	}
}

func TestKeyMode_String(t *testing.T) {
	if store.KeyModeLenient.String() != "lenient" || store.KeyModeStrict.String() != "strict" {
		t.Error("unexpected KeyMode names")
	}
}

// --- KeyFromItem Tests ---

func TestKeyFromItem(t *testing.T) {
	item := store.Item{
		store.PartitionAttribute: str("42"),
		store.IDAttribute:        str(g1.String()),
	}

	key, err := store.KeyFromItem[int32, uuid.UUID](item)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.PartitionKey != 42 || key.ID != g1 {
		t.Errorf("expected (42, %s), got %v", g1, key)
	}

	if _, err := store.KeyFromItem[int32, uuid.UUID](store.Item{store.IDAttribute: str("1")}); !errors.Is(err, store.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for missing partition, got %v", err)
	}
}
