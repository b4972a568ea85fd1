package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Client is the subset of the DynamoDB API the store uses.
// *dynamodb.Client satisfies it.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	ExecuteStatement(ctx context.Context, params *dynamodb.ExecuteStatementInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ExecuteStatementOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// DynamoStore is a Store backed by DynamoDB.
//
// Each container is a table named "<database>.<container>" keyed by the
// bookkeeping attributes _pk (hash) and _id (range). The database is a
// catalog table, named after it, with one item per container.
//
// Backend failures other than a clean miss are classified before they are
// returned; see classify.
type DynamoStore[PK comparable, ID comparable, D any] struct {
	schema[PK, ID, D]

	config  Config
	factory ClientFactory

	mu     sync.Mutex
	client Client

	now func() time.Time
}

func newDynamoStore[PK comparable, ID comparable, D any](s schema[PK, ID, D], config Config, factory ClientFactory) (*DynamoStore[PK, ID, D], error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		factory = NewClient
	}
	s.setDefaults()
	return &DynamoStore[PK, ID, D]{
		schema:  s,
		config:  config,
		factory: factory,
		now:     time.Now,
	}, nil
}

// Config returns the store's configuration.
func (s *DynamoStore[PK, ID, D]) Config() Config {
	return s.config
}

// getClient opens the client on first use. A failed open is not cached.
func (s *DynamoStore[PK, ID, D]) getClient(ctx context.Context) (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := s.factory(ctx, s.config.ConnectionString)
	if err != nil {
		if !errors.Is(err, ErrConnectionStringInvalid) {
			err = fmt.Errorf("%w: %w", ErrConnectionStringInvalid, err)
		}
		s.logger.Warn("failed to open client", "error", err)
		return nil, err
	}
	s.client = client
	return client, nil
}

// CreateStoreIfNotExists creates the catalog and container tables if they
// are missing, waits for both to become active and records the container
// in the catalog.
func (s *DynamoStore[PK, ID, D]) CreateStoreIfNotExists(ctx context.Context) error {
	client, err := s.getClient(ctx)
	if err != nil {
		return err
	}

	catalog := &dynamodb.CreateTableInput{
		TableName: aws.String(s.config.catalogTable()),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(catalogKeyAttribute), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(catalogKeyAttribute), KeyType: types.KeyTypeHash},
		},
		BillingMode: types.BillingModePayPerRequest,
	}
	if err := s.ensureTable(ctx, client, catalog); err != nil {
		return s.classify(ctx, err)
	}

	container := &dynamodb.CreateTableInput{
		TableName: aws.String(s.config.containerTable()),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(PartitionAttribute), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String(IDAttribute), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(PartitionAttribute), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String(IDAttribute), KeyType: types.KeyTypeRange},
		},
		BillingMode: types.BillingModePayPerRequest,
		StreamSpecification: &types.StreamSpecification{
			StreamEnabled:  aws.Bool(true),
			StreamViewType: types.StreamViewTypeNewAndOldImages,
		},
	}
	if err := s.ensureTable(ctx, client, container); err != nil {
		return s.classify(ctx, err)
	}

	partitionPath := s.config.PartitionPathHint
	if partitionPath == "" {
		partitionPath = s.partitionPath
	}
	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.catalogTable()),
		Item: map[string]types.AttributeValue{
			catalogKeyAttribute: &types.AttributeValueMemberS{Value: s.config.Container},
			"table":             &types.AttributeValueMemberS{Value: s.config.containerTable()},
			"partition_path":    &types.AttributeValueMemberS{Value: partitionPath},
			"created_at":        &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(#c)"),
		ExpressionAttributeNames: map[string]string{
			"#c": catalogKeyAttribute,
		},
	})
	var condErr *types.ConditionalCheckFailedException
	if err != nil && !errors.As(err, &condErr) {
		return s.classify(ctx, err)
	}
	return nil
}

// catalogKeyAttribute is the hash key of the catalog table.
const catalogKeyAttribute = "container"

// ensureTable creates a table unless it already exists, then waits for it.
func (s *DynamoStore[PK, ID, D]) ensureTable(ctx context.Context, client Client, input *dynamodb.CreateTableInput) error {
	_, err := client.CreateTable(ctx, input)
	var inUse *types.ResourceInUseException
	switch {
	case err == nil:
		s.logger.Info("created table", "table", aws.ToString(input.TableName))
	case errors.As(err, &inUse):
		// Already exists or is being created.
	default:
		return fmt.Errorf("create table %s: %w", aws.ToString(input.TableName), err)
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: input.TableName}, s.config.TableWaitTimeout); err != nil {
		return fmt.Errorf("wait for table %s: %w", aws.ToString(input.TableName), err)
	}
	return nil
}

// Upsert writes doc under its derived key. Last write wins.
func (s *DynamoStore[PK, ID, D]) Upsert(ctx context.Context, doc D) error {
	key, tree, err := s.preparePut(ctx, doc)
	if err != nil {
		return err
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return err
	}

	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.config.containerTable()),
		Item:      stamp(tree, key.PartitionKey, key.ID, s.now()),
	})
	if err != nil {
		return s.classify(ctx, fmt.Errorf("put %s: %w", key, err))
	}
	return nil
}

func (s *DynamoStore[PK, ID, D]) Exists(ctx context.Context, pk PK, id ID) (bool, error) {
	doc, err := s.Get(ctx, pk, id)
	return doc != nil, err
}

// Get returns the document stored under (pk, id), or nil.
func (s *DynamoStore[PK, ID, D]) Get(ctx context.Context, pk PK, id ID) (*D, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return nil, err
	}

	result, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.containerTable()),
		Key:            keyAttributes(pk, id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, s.classify(ctx, fmt.Errorf("get (%s, %s): %w", IDString(pk), IDString(id), err))
	}
	if result.Item == nil {
		return nil, nil
	}

	doc, err := s.decode(result.Item)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Delete removes the document stored under (pk, id). A missing document is
// not an error.
func (s *DynamoStore[PK, ID, D]) Delete(ctx context.Context, pk PK, id ID) error {
	if err := s.checkDelete(ctx, pk, id); err != nil {
		return err
	}
	client, err := s.getClient(ctx)
	if err != nil {
		return err
	}

	_, err = client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.config.containerTable()),
		Key:       keyAttributes(pk, id),
	})
	if err != nil {
		return s.classify(ctx, fmt.Errorf("delete (%s, %s): %w", IDString(pk), IDString(id), err))
	}
	return nil
}

func (s *DynamoStore[PK, ID, D]) GetKey(doc D) (Key[PK, ID], error) {
	return s.getKey(doc)
}

// Query scans the container and runs q over the decoded documents.
func (s *DynamoStore[PK, ID, D]) Query(ctx context.Context, q Query[D]) iter.Seq2[D, error] {
	return applyQuery(s.documents(ctx, func(client Client) itemPager {
		input := &dynamodb.ScanInput{
			TableName:      aws.String(s.config.containerTable()),
			ConsistentRead: aws.Bool(true),
		}
		if s.config.PageSize > 0 {
			input.Limit = aws.Int32(s.config.PageSize)
		}
		return scanPager{dynamodb.NewScanPaginator(client, input)}
	}), q)
}

// QueryPartition queries one partition and runs q over the decoded documents.
func (s *DynamoStore[PK, ID, D]) QueryPartition(ctx context.Context, pk PK, q Query[D]) iter.Seq2[D, error] {
	return applyQuery(s.documents(ctx, func(client Client) itemPager {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(s.config.containerTable()),
			KeyConditionExpression: aws.String("#pk = :pk"),
			ExpressionAttributeNames: map[string]string{
				"#pk": PartitionAttribute,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: IDString(pk)},
			},
			ConsistentRead: aws.Bool(true),
		}
		if s.config.PageSize > 0 {
			input.Limit = aws.Int32(s.config.PageSize)
		}
		return queryPager{dynamodb.NewQueryPaginator(client, input)}
	}), q)
}

// QueryText runs a PartiQL statement against the container. Parameters are
// referenced as @name. An empty statement selects every document.
func (s *DynamoStore[PK, ID, D]) QueryText(ctx context.Context, text string, params ...Param) iter.Seq2[D, error] {
	if strings.TrimSpace(text) == "" {
		text = fmt.Sprintf("SELECT * FROM %q", s.config.containerTable())
	}
	return s.statement(ctx, text, params, nil)
}

// QueryPartitionText runs a PartiQL statement and keeps the rows of one
// partition. An empty statement selects the whole partition. Other
// statements are filtered on _pk, so they must select it; a row without it
// fails the sequence with ErrPartitionNotSelected.
func (s *DynamoStore[PK, ID, D]) QueryPartitionText(ctx context.Context, pk PK, text string, params ...Param) iter.Seq2[D, error] {
	partition := IDString(pk)
	if strings.TrimSpace(text) == "" {
		text = fmt.Sprintf("SELECT * FROM %q WHERE %q = @%s", s.config.containerTable(), PartitionAttribute, partitionParam)
		params = append(params[:len(params):len(params)], Param{Name: partitionParam, Value: partition})
	}
	return s.statement(ctx, text, params, func(item Item) (bool, error) {
		v, ok := item[PartitionAttribute].(*types.AttributeValueMemberS)
		if !ok {
			return false, ErrPartitionNotSelected
		}
		return v.Value == partition, nil
	})
}

const partitionParam = "__partition"

func (s *DynamoStore[PK, ID, D]) statement(ctx context.Context, text string, params []Param, keep func(Item) (bool, error)) iter.Seq2[D, error] {
	statement, values, err := bindParams(text, params)
	if err != nil {
		return errSeq[D](err)
	}
	return s.documents(ctx, func(client Client) itemPager {
		input := &dynamodb.ExecuteStatementInput{
			Statement:      aws.String(statement),
			Parameters:     values,
			ConsistentRead: aws.Bool(true),
		}
		if s.config.PageSize > 0 {
			input.Limit = aws.Int32(s.config.PageSize)
		}
		return &statementPager{client: client, input: input, keep: keep}
	})
}

// itemPager is the common shape of the SDK paginators.
type itemPager interface {
	HasMorePages() bool
	NextPage(ctx context.Context) ([]Item, error)
}

type scanPager struct{ p *dynamodb.ScanPaginator }

func (p scanPager) HasMorePages() bool { return p.p.HasMorePages() }

func (p scanPager) NextPage(ctx context.Context) ([]Item, error) {
	out, err := p.p.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}

type queryPager struct{ p *dynamodb.QueryPaginator }

func (p queryPager) HasMorePages() bool { return p.p.HasMorePages() }

func (p queryPager) NextPage(ctx context.Context) ([]Item, error) {
	out, err := p.p.NextPage(ctx)
	if err != nil {
		return nil, err
	}
	return out.Items, nil
}

// statementPager pages ExecuteStatement by NextToken.
type statementPager struct {
	client Client
	input  *dynamodb.ExecuteStatementInput
	keep   func(Item) (bool, error)
	done   bool
}

func (p *statementPager) HasMorePages() bool { return !p.done }

func (p *statementPager) NextPage(ctx context.Context) ([]Item, error) {
	out, err := p.client.ExecuteStatement(ctx, p.input)
	if err != nil {
		return nil, err
	}
	if out.NextToken == nil || *out.NextToken == "" {
		p.done = true
	} else {
		p.input.NextToken = out.NextToken
	}
	if p.keep == nil {
		return out.Items, nil
	}
	items := make([]Item, 0, len(out.Items))
	for _, item := range out.Items {
		ok, err := p.keep(item)
		if err != nil {
			return nil, err
		}
		if ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// documents pages through a backend result and decodes every item. Paging
// starts when the sequence is ranged over; each range starts over.
func (s *DynamoStore[PK, ID, D]) documents(ctx context.Context, newPager func(Client) itemPager) iter.Seq2[D, error] {
	return func(yield func(D, error) bool) {
		var zero D
		client, err := s.getClient(ctx)
		if err != nil {
			yield(zero, err)
			return
		}

		pager := newPager(client)
		for pager.HasMorePages() {
			items, err := pager.NextPage(ctx)
			if err != nil {
				yield(zero, s.classify(ctx, fmt.Errorf("query %s: %w", s.config.containerTable(), err)))
				return
			}
			for _, item := range items {
				doc, err := s.decode(item)
				if err != nil {
					yield(zero, err)
					return
				}
				if !yield(doc, nil) {
					return
				}
			}
		}
	}
}

// bindParams rewrites @name references to positional ? markers and returns
// the parameter values in marker order. References inside quoted literals
// are left alone.
func bindParams(text string, params []Param) (string, []types.AttributeValue, error) {
	byName := make(map[string]any, len(params))
	for _, p := range params {
		byName[strings.TrimPrefix(p.Name, "@")] = p.Value
	}

	var (
		sb     strings.Builder
		values []types.AttributeValue
		quote  rune
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
			sb.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			sb.WriteRune(r)
		case r == '@':
			j := i + 1
			for j < len(runes) && isParamRune(runes[j]) {
				j++
			}
			name := string(runes[i+1 : j])
			if name == "" {
				sb.WriteRune(r)
				continue
			}
			value, ok := byName[name]
			if !ok {
				return "", nil, fmt.Errorf("query parameter @%s not supplied", name)
			}
			av, err := marshalParam(value)
			if err != nil {
				return "", nil, fmt.Errorf("query parameter @%s: %w", name, err)
			}
			values = append(values, av)
			sb.WriteRune('?')
			i = j - 1
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String(), values, nil
}

func isParamRune(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func marshalParam(v any) (types.AttributeValue, error) {
	switch tv := v.(type) {
	case types.AttributeValue:
		return tv, nil
	}
	return attributevalue.Marshal(v)
}

var _ Store[string, string, Item] = (*DynamoStore[string, string, Item])(nil)
