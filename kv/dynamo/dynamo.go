// Package dynamo is the production kv.Store backed by
// github.com/aws/aws-sdk-go-v2/service/dynamodb. It translates the
// generic condition/update expression strings in kv.ConditionalPutInput,
// kv.UpdateInput, and kv.ScanInput directly into DynamoDB's own expression
// language, since that language is exactly what those strings were modeled
// on in the first place.
package dynamo

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/justapithecus/flowstate/kv"
)

// Config configures the DynamoDB-backed Store.
type Config struct {
	// Region is the AWS region (optional, uses the default chain if empty).
	Region string
	// Endpoint overrides the DynamoDB endpoint, for local testing against
	// DynamoDB Local or a similar emulator.
	Endpoint string
}

// Store is a kv.Store backed by a DynamoDB client.
type Store struct {
	client *dynamodb.Client
}

// New creates a Store using AWS SDK default credential and config
// resolution (env vars, shared config, IAM role), with an optional region
// and endpoint override.
func New(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: failed to load AWS config: %w", err)
	}

	var ddbOpts []func(*dynamodb.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		ddbOpts = append(ddbOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = &endpoint
		})
	}

	return &Store{client: dynamodb.NewFromConfig(awsConfig, ddbOpts...)}, nil
}

func toDynamoValues(values map[string]kv.AttributeValue) (map[string]types.AttributeValue, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]types.AttributeValue, len(values))
	for k, v := range values {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("dynamo: marshal value %q: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func toDynamoKey(key kv.Key) (map[string]types.AttributeValue, error) {
	out := make(map[string]types.AttributeValue, len(key))
	for k, v := range key {
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("dynamo: marshal key %q: %w", k, err)
		}
		out[k] = av
	}
	return out, nil
}

func fromDynamoItem(item map[string]types.AttributeValue) (kv.Item, error) {
	if item == nil {
		return nil, nil
	}
	var out kv.Item
	if err := attributevalue.UnmarshalMap(item, &out); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshal item: %w", err)
	}
	return out, nil
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	var condFailed *types.ConditionalCheckFailedException
	if errors.As(err, &condFailed) {
		return kv.ErrConditionalCheckFailed
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return kv.ErrTableNotFound
	}
	return err
}

// ConditionalPut implements kv.Store.
func (s *Store) ConditionalPut(ctx context.Context, in kv.ConditionalPutInput) error {
	item, err := attributevalue.MarshalMap(in.Item)
	if err != nil {
		return fmt.Errorf("dynamo: marshal item: %w", err)
	}
	values, err := toDynamoValues(in.Values)
	if err != nil {
		return err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(in.Table),
		Item:                      item,
		ConditionExpression:       aws.String(in.Condition),
		ExpressionAttributeNames:  in.Names,
		ExpressionAttributeValues: values,
	})
	return classifyError(err)
}

// ConditionalUpdate implements kv.Store.
func (s *Store) ConditionalUpdate(ctx context.Context, in kv.UpdateInput) error {
	key, err := toDynamoKey(in.Key)
	if err != nil {
		return err
	}
	values, err := toDynamoValues(in.Values)
	if err != nil {
		return err
	}

	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(in.Table),
		Key:                       key,
		UpdateExpression:          aws.String(in.Update),
		ConditionExpression:       nonEmpty(in.Condition),
		ExpressionAttributeNames:  in.Names,
		ExpressionAttributeValues: values,
	})
	return classifyError(err)
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, in kv.GetInput) (kv.Item, error) {
	key, err := toDynamoKey(in.Key)
	if err != nil {
		return nil, err
	}

	var projection *string
	var names map[string]string
	if len(in.Projection) > 0 {
		expr, exprNames := buildProjection(in.Projection)
		projection = aws.String(expr)
		names = exprNames
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:                aws.String(in.Table),
		Key:                      key,
		ProjectionExpression:     projection,
		ExpressionAttributeNames: names,
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if out.Item == nil {
		return nil, kv.ErrItemNotFound
	}
	return fromDynamoItem(out.Item)
}

// Scan implements kv.Store.
func (s *Store) Scan(ctx context.Context, in kv.ScanInput) ([]kv.Item, error) {
	values, err := toDynamoValues(in.Values)
	if err != nil {
		return nil, err
	}

	var projection *string
	names := in.Names
	if len(in.Projection) > 0 {
		expr, exprNames := buildProjection(in.Projection)
		projection = aws.String(expr)
		if names == nil {
			names = exprNames
		} else {
			for k, v := range exprNames {
				names[k] = v
			}
		}
	}

	var items []kv.Item
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(in.Table),
			FilterExpression:          aws.String(in.Filter),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
			ProjectionExpression:      projection,
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, classifyError(err)
		}
		for _, rawItem := range out.Items {
			item, err := fromDynamoItem(rawItem)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return items, nil
}

// CreateTable implements kv.Store. Already-exists is treated as success,
// matching the idempotent registration contract.
func (s *Store) CreateTable(ctx context.Context, schema kv.TableSchema) error {
	attrs := []types.AttributeDefinition{
		{AttributeName: aws.String(schema.HashKey.Name), AttributeType: scalarType(schema.HashKey.Type)},
	}
	keys := []types.KeySchemaElement{
		{AttributeName: aws.String(schema.HashKey.Name), KeyType: types.KeyTypeHash},
	}
	if schema.RangeKey != nil {
		attrs = append(attrs, types.AttributeDefinition{
			AttributeName: aws.String(schema.RangeKey.Name),
			AttributeType: scalarType(schema.RangeKey.Type),
		})
		keys = append(keys, types.KeySchemaElement{
			AttributeName: aws.String(schema.RangeKey.Name),
			KeyType:       types.KeyTypeRange,
		})
	}

	_, err := s.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:            aws.String(schema.Table),
		AttributeDefinitions: attrs,
		KeySchema:            keys,
		BillingMode:          types.BillingModePayPerRequest,
	})
	if err == nil {
		return nil
	}
	var inUse *types.ResourceInUseException
	if errors.As(err, &inUse) {
		return nil
	}
	return err
}

// DescribeTableStatus implements kv.Store.
func (s *Store) DescribeTableStatus(ctx context.Context, table string) (kv.TableStatus, error) {
	out, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err != nil {
		return "", classifyError(err)
	}
	return kv.TableStatus(out.Table.TableStatus), nil
}

func scalarType(t kv.AttributeType) types.ScalarAttributeType {
	switch t {
	case kv.AttributeTypeNumber:
		return types.ScalarAttributeTypeN
	default:
		return types.ScalarAttributeTypeS
	}
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return aws.String(s)
}

func buildProjection(attrs []string) (string, map[string]string) {
	names := make(map[string]string, len(attrs))
	expr := ""
	for i, attr := range attrs {
		placeholder := fmt.Sprintf("#p%d", i)
		names[placeholder] = attr
		if i > 0 {
			expr += ", "
		}
		expr += placeholder
	}
	return expr, names
}

var _ kv.Store = (*Store)(nil)
