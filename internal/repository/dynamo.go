// Package repository persists the chat domain in a single DynamoDB table.
// All entity kinds share one composite primary key (HK, SK); keys.go derives
// and parses the per-kind key shapes, shard.go spreads the event log across
// fixed partitions, and the User/Conversation clients implement the store
// contracts over a narrow slice of the DynamoDB API.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamodbAPI is the minimal DynamoDB interface required by the clients.
// Defined here for testability; *dynamodb.Client satisfies it.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// isConditionalCheckFailed reports whether err is DynamoDB rejecting a write
// because its condition expression did not hold.
func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func formatDate(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}
