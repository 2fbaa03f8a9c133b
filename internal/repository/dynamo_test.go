package repository

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// fakeDynamo implements dynamodbAPI for tests, recording the last input of
// each call. Query supports per-partition outputs for shard fan-out tests.
type fakeDynamo struct {
	mu sync.Mutex

	getOut   *dynamodb.GetItemOutput
	getErr   error
	putErr   error
	delOut   *dynamodb.DeleteItemOutput
	delErr   error
	updOut   *dynamodb.UpdateItemOutput
	updErr   error
	queryOut *dynamodb.QueryOutput
	queryErr error

	// queryByHK, when set, overrides queryOut per partition key value.
	queryByHK map[string]*dynamodb.QueryOutput

	lastGetInput *dynamodb.GetItemInput
	lastPutInput *dynamodb.PutItemInput
	lastDelInput *dynamodb.DeleteItemInput
	lastUpdInput *dynamodb.UpdateItemInput
	lastQueryIn  *dynamodb.QueryInput
	queryCalls   int
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastGetInput = in
	if f.getOut == nil && f.getErr == nil {
		return &dynamodb.GetItemOutput{}, nil
	}
	return f.getOut, f.getErr
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastPutInput = in
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDelInput = in
	if f.delOut == nil && f.delErr == nil {
		return &dynamodb.DeleteItemOutput{}, nil
	}
	return f.delOut, f.delErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUpdInput = in
	if f.updOut == nil && f.updErr == nil {
		return &dynamodb.UpdateItemOutput{}, nil
	}
	return f.updOut, f.updErr
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQueryIn = in
	f.queryCalls++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.queryByHK != nil {
		hk := in.ExpressionAttributeValues[":hk"].(*types.AttributeValueMemberS).Value
		if out, ok := f.queryByHK[hk]; ok {
			return out, nil
		}
		return &dynamodb.QueryOutput{}, nil
	}
	if f.queryOut == nil {
		return &dynamodb.QueryOutput{}, nil
	}
	return f.queryOut, nil
}

func strVal(item map[string]types.AttributeValue, key string) string {
	v, ok := item[key].(*types.AttributeValueMemberS)
	if !ok {
		return ""
	}
	return v.Value
}

func dateStr(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}
