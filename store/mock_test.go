package store_test

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/docstore/store"
)

// mockDDBClient is an in-memory DynamoDB good enough for the store: tables
// keyed by their key schema, paged Scan and Query, conditional puts and
// scripted ExecuteStatement pages.
type mockDDBClient struct {
	mu     sync.Mutex
	tables map[string]*mockTable

	// Injected failures, returned instead of the normal result.
	getErr      error
	putErr      error
	deleteErr   error
	scanErr     error
	describeErr map[string]error

	// ExecuteStatement replays these outputs in order.
	statementPages []*dynamodb.ExecuteStatementOutput

	// Call recording.
	scanInputs      []dynamodb.ScanInput
	queryInputs     []dynamodb.QueryInput
	statementInputs []dynamodb.ExecuteStatementInput
	describeCalls   int
	factoryCalls    int
}

type mockTable struct {
	input *dynamodb.CreateTableInput
	keys  []string
	items map[string]store.Item
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{
		tables:      make(map[string]*mockTable),
		describeErr: make(map[string]error),
	}
}

// factory returns a ClientFactory that always opens m.
func (m *mockDDBClient) factory() store.ClientFactory {
	return func(context.Context, string) (store.Client, error) {
		m.mu.Lock()
		m.factoryCalls++
		m.mu.Unlock()
		return m, nil
	}
}

// createTable registers a table directly, as if it had been created earlier.
func (m *mockDDBClient) createTable(name string, keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[name] = &mockTable{keys: keys, items: make(map[string]store.Item)}
}

// table returns a snapshot of the items of a table, ordered by key.
func (m *mockDDBClient) table(name string) []store.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	if !ok {
		return nil
	}
	return t.sorted()
}

func (t *mockTable) itemKey(item store.Item) (string, error) {
	parts := make([]string, len(t.keys))
	for i, k := range t.keys {
		v, ok := item[k].(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("missing key attribute %s", k)
		}
		parts[i] = v.Value
	}
	return strings.Join(parts, "\x00"), nil
}

func (t *mockTable) sorted() []store.Item {
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]store.Item, len(keys))
	for i, k := range keys {
		out[i] = t.items[k]
	}
	return out
}

func notFound(table string) error {
	return &types.ResourceNotFoundException{Message: aws.String("Requested resource not found: Table: " + table + " not found")}
}

func (m *mockDDBClient) lookup(name *string) (*mockTable, error) {
	t, ok := m.tables[aws.ToString(name)]
	if !ok {
		return nil, notFound(aws.ToString(name))
	}
	return t, nil
}

func (m *mockDDBClient) GetItem(_ context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	t, err := m.lookup(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: t.items[k]}, nil
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return nil, m.putErr
	}
	t, err := m.lookup(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.itemKey(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil {
		if _, exists := t.items[k]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
		}
	}
	item := make(store.Item, len(params.Item))
	for name, v := range params.Item {
		item[name] = v
	}
	t.items[k] = item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	t, err := m.lookup(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := t.itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	delete(t.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

// page slices items after startKey into a page of at most limit items.
func (t *mockTable) page(items []store.Item, startKey store.Item, limit *int32) ([]store.Item, store.Item) {
	start := 0
	if len(startKey) > 0 {
		after, _ := t.itemKey(startKey)
		for i, item := range items {
			if k, _ := t.itemKey(item); k == after {
				start = i + 1
				break
			}
		}
	}
	items = items[start:]
	if limit == nil || int(*limit) >= len(items) {
		return items, nil
	}
	items = items[:*limit]
	last := items[len(items)-1]
	lastKey := make(store.Item, len(t.keys))
	for _, k := range t.keys {
		lastKey[k] = last[k]
	}
	return items, lastKey
}

func (m *mockDDBClient) Scan(_ context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scanInputs = append(m.scanInputs, *params)
	if m.scanErr != nil {
		return nil, m.scanErr
	}
	t, err := m.lookup(params.TableName)
	if err != nil {
		return nil, err
	}
	items, lastKey := t.page(t.sorted(), params.ExclusiveStartKey, params.Limit)
	return &dynamodb.ScanOutput{Items: items, Count: int32(len(items)), LastEvaluatedKey: lastKey}, nil
}

// Query supports the single "#pk = :pk" condition the store sends.
func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryInputs = append(m.queryInputs, *params)
	t, err := m.lookup(params.TableName)
	if err != nil {
		return nil, err
	}
	hashAttr := params.ExpressionAttributeNames["#pk"]
	want, _ := params.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS)

	var matching []store.Item
	for _, item := range t.sorted() {
		if v, ok := item[hashAttr].(*types.AttributeValueMemberS); ok && want != nil && v.Value == want.Value {
			matching = append(matching, item)
		}
	}
	items, lastKey := t.page(matching, params.ExclusiveStartKey, params.Limit)
	return &dynamodb.QueryOutput{Items: items, Count: int32(len(items)), LastEvaluatedKey: lastKey}, nil
}

func (m *mockDDBClient) ExecuteStatement(_ context.Context, params *dynamodb.ExecuteStatementInput, _ ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statementInputs = append(m.statementInputs, *params)
	if len(m.statementPages) == 0 {
		return &dynamodb.ExecuteStatementOutput{}, nil
	}
	out := m.statementPages[0]
	m.statementPages = m.statementPages[1:]
	return out, nil
}

func (m *mockDDBClient) DescribeTable(_ context.Context, params *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.describeCalls++
	if err := m.describeErr[aws.ToString(params.TableName)]; err != nil {
		return nil, err
	}
	if _, err := m.lookup(params.TableName); err != nil {
		return nil, err
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   params.TableName,
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

func (m *mockDDBClient) CreateTable(_ context.Context, params *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := aws.ToString(params.TableName)
	if _, ok := m.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}
	t := &mockTable{input: params, items: make(map[string]store.Item)}
	for _, k := range params.KeySchema {
		t.keys = append(t.keys, aws.ToString(k.AttributeName))
	}
	m.tables[name] = t
	return &dynamodb.CreateTableOutput{
		TableDescription: &types.TableDescription{
			TableName:   params.TableName,
			TableStatus: types.TableStatusCreating,
		},
	}, nil
}

var _ store.Client = (*mockDDBClient)(nil)
