package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/antler/internal/keyspace"
)

// DynamoAPI is the subset of the DynamoDB client used by the Dynamo backend.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	dynamodb.QueryAPIClient
	dynamodb.ScanAPIClient
}

// DynamoConfig holds configuration for the Dynamo backend.
type DynamoConfig struct {
	// Table is the DynamoDB table name. It must have a string partition key
	// "pk" and a binary sort key "sk".
	// Default: "antler"
	Table string

	// Namespace isolates several stores sharing one table. It becomes the
	// first component of every partition key and must not contain '#'.
	// Default: "default"
	Namespace string

	// ConsistentRead enables strongly consistent reads and queries.
	ConsistentRead bool
}

// DefaultDynamoConfig returns sensible defaults.
func DefaultDynamoConfig() DynamoConfig {
	return DynamoConfig{
		Table:          "antler",
		Namespace:      "default",
		ConsistentRead: true,
	}
}

func (c *DynamoConfig) validate() error {
	if c.Table == "" {
		c.Table = "antler"
	}
	if c.Namespace == "" {
		c.Namespace = "default"
	}
	if strings.Contains(c.Namespace, "#") {
		return fmt.Errorf("kv: namespace %q must not contain '#'", c.Namespace)
	}
	return nil
}

// Key condition expressions used by Scan.
const (
	condPartition = "pk = :pk"
	condFrom      = "pk = :pk AND sk >= :lo"
	condBefore    = "pk = :pk AND sk < :hi"
	condBetween   = "pk = :pk AND sk BETWEEN :lo AND :hi"
)

// dynamoItem is the stored shape of one key-value pair.
type dynamoItem struct {
	PK string `dynamodbav:"pk"`
	SK []byte `dynamodbav:"sk"`
	V  []byte `dynamodbav:"v,omitempty"`
}

// Dynamo is a Backend storing every bucket as one partition of a DynamoDB
// table. Binary sort keys are ordered bytewise by DynamoDB, which gives the
// ordered scans the contract requires. Empty keys are rejected by DynamoDB.
type Dynamo struct {
	client DynamoAPI
	config DynamoConfig
}

// NewDynamo creates a Dynamo backend.
func NewDynamo(client DynamoAPI, config DynamoConfig) (*Dynamo, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &Dynamo{client: client, config: config}, nil
}

// Config returns the validated configuration.
func (d *Dynamo) Config() DynamoConfig {
	return d.config
}

// Bucket implements Backend.
func (d *Dynamo) Bucket(_ context.Context, name string) (Bucket, error) {
	if name == "" {
		return nil, ErrInvalidBucket
	}
	return &dynamoBucket{
		backend: d,
		name:    name,
		pk:      keyspace.PartitionKey(d.config.Namespace, name),
	}, nil
}

// Buckets implements Backend. It scans the whole table.
func (d *Dynamo) Buckets(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	paginator := dynamodb.NewScanPaginator(d.client, &dynamodb.ScanInput{
		TableName:                aws.String(d.config.Table),
		ProjectionExpression:     aws.String("#pk"),
		FilterExpression:         aws.String("begins_with(#pk, :ns)"),
		ExpressionAttributeNames: map[string]string{"#pk": "pk"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":ns": &types.AttributeValueMemberS{Value: d.config.Namespace + "#"},
		},
		ConsistentRead: aws.Bool(d.config.ConsistentRead),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			pk, ok := raw["pk"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			ns, bucket, ok := keyspace.SplitPartitionKey(pk.Value)
			if ok && ns == d.config.Namespace {
				seen[bucket] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close implements Backend. The client is owned by the caller.
func (d *Dynamo) Close() error {
	return nil
}

type dynamoBucket struct {
	backend *Dynamo
	name    string
	pk      string
}

func (b *dynamoBucket) Name() string { return b.name }

func (b *dynamoBucket) key(k []byte) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: b.pk},
		"sk": &types.AttributeValueMemberB{Value: k},
	}
}

func (b *dynamoBucket) Get(ctx context.Context, key []byte) ([]byte, error) {
	result, err := b.backend.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.backend.config.Table),
		Key:            b.key(key),
		ConsistentRead: aws.Bool(b.backend.config.ConsistentRead),
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	if item.V == nil {
		item.V = []byte{}
	}
	return item.V, nil
}

func (b *dynamoBucket) Put(ctx context.Context, key, value []byte) error {
	item, err := attributevalue.MarshalMap(dynamoItem{PK: b.pk, SK: key, V: value})
	if err != nil {
		return fmt.Errorf("marshal item: %w", err)
	}
	_, err = b.backend.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.backend.config.Table),
		Item:      item,
	})
	return err
}

func (b *dynamoBucket) Delete(ctx context.Context, key []byte) error {
	_, err := b.backend.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.backend.config.Table),
		Key:       b.key(key),
	})
	return err
}

func (b *dynamoBucket) Count(ctx context.Context) (int, error) {
	input := b.queryInput(condPartition, nil, nil, false)
	input.Select = types.SelectCount

	total := 0
	paginator := dynamodb.NewQueryPaginator(b.backend.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		total += int(page.Count)
	}
	return total, nil
}

// Scan implements Bucket. Pages are fetched lazily as iteration proceeds.
func (b *dynamoBucket) Scan(ctx context.Context, r Range) iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		lo, hi, ok := r.Bounds()
		if !ok {
			return
		}

		var cond string
		switch {
		case len(lo) == 0 && hi == nil:
			cond = condPartition
		case hi == nil:
			cond = condFrom
		case len(lo) == 0:
			cond = condBefore
		default:
			// BETWEEN is inclusive, the upper bound is dropped below.
			cond = condBetween
		}

		input := b.queryInput(cond, lo, hi, r.Reverse)
		if r.Limit > 0 {
			input.Limit = aws.Int32(int32(r.Limit + 1))
		}

		yielded := 0
		paginator := dynamodb.NewQueryPaginator(b.backend.client, input)
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			for _, raw := range page.Items {
				var item dynamoItem
				if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
					yield(Entry{}, fmt.Errorf("unmarshal item: %w", err))
					return
				}
				if hi != nil && bytes.Equal(item.SK, hi) {
					continue
				}
				if item.V == nil {
					item.V = []byte{}
				}
				if !yield(Entry{Key: item.SK, Value: item.V}, nil) {
					return
				}
				yielded++
				if r.Limit > 0 && yielded >= r.Limit {
					return
				}
			}
		}
	}
}

func (b *dynamoBucket) queryInput(cond string, lo, hi []byte, reverse bool) *dynamodb.QueryInput {
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: b.pk},
	}
	if cond == condFrom || cond == condBetween {
		values[":lo"] = &types.AttributeValueMemberB{Value: lo}
	}
	if cond == condBefore || cond == condBetween {
		values[":hi"] = &types.AttributeValueMemberB{Value: hi}
	}
	return &dynamodb.QueryInput{
		TableName:                 aws.String(b.backend.config.Table),
		KeyConditionExpression:    aws.String(cond),
		ExpressionAttributeValues: values,
		ScanIndexForward:          aws.Bool(!reverse),
		ConsistentRead:            aws.Bool(b.backend.config.ConsistentRead),
	}
}

// IsDynamoNotFound reports whether err is DynamoDB's missing-table error.
func IsDynamoNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &notFound)
}
