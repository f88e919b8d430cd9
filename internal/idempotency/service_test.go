package idempotency

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindmend/backend/internal/logging"
)

type fakeDynamo struct {
	items     map[string]map[string]types.AttributeValue
	updateErr error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(m map[string]types.AttributeValue) string {
	return m["key"].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	k := keyOf(in.Item)
	if _, ok := f.items[k]; ok && aws.ToString(in.ConditionExpression) != "" {
		return nil, &types.ConditionalCheckFailedException{}
	}
	f.items[k] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	item := f.items[keyOf(in.Key)]
	item["response"] = in.ExpressionAttributeValues[":response"]
	item["status"] = in.ExpressionAttributeValues[":status"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDoReplaysCompletedResponse(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeDynamo(), "idem")
	req := Request{Key: "k1", UserID: "user-1", Endpoint: "POST /subscriptions/create/", Body: `{"subscription_id":1}`}

	calls := 0
	fn := func() (any, error) {
		calls++
		return map[string]int{"call": calls}, nil
	}

	first, err := svc.Do(ctx, req, fn)
	require.NoError(t, err)
	second, err := svc.Do(ctx, req, fn)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.JSONEq(t, `{"call":1}`, string(first))
	assert.JSONEq(t, string(first), string(second))
}

func TestDoRejectsKeyReuseWithDifferentBody(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeDynamo(), "idem")
	req := Request{Key: "k1", UserID: "user-1", Endpoint: "e", Body: "a"}

	_, err := svc.Do(ctx, req, func() (any, error) { return "ok", nil })
	require.NoError(t, err)

	req.Body = "b"
	_, err = svc.Do(ctx, req, func() (any, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrKeyReused)
}

func TestDoReportsPendingAsInProgress(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeDynamo(), "idem")
	req := Request{Key: "k1", UserID: "user-1", Endpoint: "e", Body: "a"}

	_, err := svc.Do(ctx, req, func() (any, error) {
		_, inner := svc.Do(ctx, req, func() (any, error) { return nil, nil })
		return nil, inner
	})
	assert.ErrorIs(t, err, ErrInProgress)
}

func TestDoFailureAllowsRetry(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeDynamo(), "idem")
	req := Request{Key: "k1", UserID: "user-1", Endpoint: "e", Body: "a"}

	_, err := svc.Do(ctx, req, func() (any, error) { return nil, errors.New("db down") })
	require.Error(t, err)

	out, err := svc.Do(ctx, req, func() (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.JSONEq(t, `"ok"`, string(out))
}

func TestExpiredRecordIsIgnored(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newFakeDynamo(), "idem")
	start := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }
	req := Request{Key: "k1", UserID: "user-1", Endpoint: "e", Body: "a"}

	_, err := svc.Do(ctx, req, func() (any, error) { return 1, nil })
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(25 * time.Hour) }
	out, err := svc.Do(ctx, req, func() (any, error) { return 2, nil })
	require.NoError(t, err)
	assert.JSONEq(t, "2", string(out))
}

func TestSameKeyDifferentUsersAreIndependent(t *testing.T) {
	a := recordKey(Request{Key: "k", UserID: "u1", Endpoint: "e"})
	b := recordKey(Request{Key: "k", UserID: "u2", Endpoint: "e"})
	assert.NotEqual(t, a, b)
}

func TestDoReturnsResultWhenCompletionFails(t *testing.T) {
	ctx := context.Background()
	dynamo := newFakeDynamo()
	dynamo.updateErr = errors.New("throttled")

	var logs bytes.Buffer
	svc := NewService(dynamo, "idem").WithLogger(logging.NewWithOutput("test", "debug", "json", &logs))
	req := Request{Key: "k1", UserID: "user-1", Endpoint: "e", Body: "a"}

	calls := 0
	out, err := svc.Do(ctx, req, func() (any, error) {
		calls++
		return map[string]string{"id": "sub-1"}, nil
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"sub-1"}`, string(out))
	assert.Equal(t, 1, calls)
	assert.Contains(t, logs.String(), "failed to complete idempotency record")
	assert.Contains(t, logs.String(), "throttled")

	// The side effect is never repeated.
	_, err = svc.Do(ctx, req, func() (any, error) {
		calls++
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrInProgress)
	assert.Equal(t, 1, calls)
}
