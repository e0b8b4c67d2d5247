package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// partitionKeyAttr is the table's partition key attribute. Every hash field
// is a top-level string attribute next to it.
const partitionKeyAttr = "k"

// DynamoAPI is the subset of *dynamodb.Client methods used by DynamoClient.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoClient implements Client over a single DynamoDB table.
type DynamoClient struct {
	api       DynamoAPI
	tableName string
}

// NewDynamoClient creates a DynamoClient on the given table.
func NewDynamoClient(api DynamoAPI, tableName string) *DynamoClient {
	return &DynamoClient{api: api, tableName: tableName}
}

func (c *DynamoClient) itemKey(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		partitionKeyAttr: &types.AttributeValueMemberS{Value: key},
	}
}

// GetHash returns all fields of the hash at key.
func (c *DynamoClient) GetHash(ctx context.Context, key string) (map[string]string, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(c.tableName),
		Key:            c.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get hash %q: %w", key, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	fields := make(map[string]string)
	if err := attributevalue.UnmarshalMap(out.Item, &fields); err != nil {
		return nil, fmt.Errorf("unmarshal hash %q: %w", key, err)
	}
	delete(fields, partitionKeyAttr)
	return fields, nil
}

// SetHashFields writes the given fields on the hash at key.
func (c *DynamoClient) SetHashFields(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	names := make(map[string]string, len(fields))
	values := make(map[string]types.AttributeValue, len(fields))
	expr := ""
	i := 0
	for field, value := range fields {
		namePH := fmt.Sprintf("#f%d", i)
		valuePH := fmt.Sprintf(":v%d", i)
		if expr == "" {
			expr = "SET "
		} else {
			expr += ", "
		}
		expr += namePH + " = " + valuePH
		names[namePH] = field
		values[valuePH] = &types.AttributeValueMemberS{Value: value}
		i++
	}

	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.tableName),
		Key:                       c.itemKey(key),
		UpdateExpression:          aws.String(expr),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return fmt.Errorf("set hash fields %q: %w", key, err)
	}
	return nil
}

// DeleteHashFields removes the named fields from the hash at key.
func (c *DynamoClient) DeleteHashFields(ctx context.Context, key string, fields ...string) error {
	if len(fields) == 0 {
		return nil
	}

	names := make(map[string]string, len(fields))
	expr := ""
	for i, field := range fields {
		namePH := fmt.Sprintf("#f%d", i)
		if expr == "" {
			expr = "REMOVE "
		} else {
			expr += ", "
		}
		expr += namePH
		names[namePH] = field
	}

	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(c.tableName),
		Key:                      c.itemKey(key),
		UpdateExpression:         aws.String(expr),
		ExpressionAttributeNames: names,
	})
	if err != nil {
		return fmt.Errorf("delete hash fields %q: %w", key, err)
	}
	return nil
}

// DeleteKey removes the whole hash at key.
func (c *DynamoClient) DeleteKey(ctx context.Context, key string) error {
	_, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key:       c.itemKey(key),
	})
	if err != nil {
		return fmt.Errorf("delete key %q: %w", key, err)
	}
	return nil
}

// CompareAndSwapHashField swaps the field value under a server-side
// condition, the same single-writer guarantee the refresh coordinator
// needs across worker processes.
func (c *DynamoClient) CompareAndSwapHashField(ctx context.Context, key, field, prev, next string) (bool, error) {
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(c.tableName),
		Key:                 c.itemKey(key),
		UpdateExpression:    aws.String("SET #f = :next"),
		ConditionExpression: aws.String("#f = :prev"),
		ExpressionAttributeNames: map[string]string{
			"#f": field,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":next": &types.AttributeValueMemberS{Value: next},
			":prev": &types.AttributeValueMemberS{Value: prev},
		},
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return false, nil
		}
		return false, fmt.Errorf("compare and swap %q/%q: %w", key, field, err)
	}
	return true, nil
}
