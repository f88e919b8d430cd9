// Package idempotency replays the stored response of a request retried with
// the same Idempotency-Key, so a flaky mobile connection cannot create the
// same resource twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/mindmend/backend/internal/apierr"
	"github.com/mindmend/backend/internal/logging"
)

const (
	statusPending   = "pending"
	statusCompleted = "completed"

	recordTTL = 24 * time.Hour
)

var (
	ErrInProgress = apierr.Conflict("request is already being processed")
	ErrKeyReused  = apierr.Conflict("idempotency key conflict: same key used for different request")
)

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type record struct {
	Key         string    `dynamodbav:"key"`
	UserID      string    `dynamodbav:"user_id"`
	RequestHash string    `dynamodbav:"request_hash"`
	Response    string    `dynamodbav:"response"`
	Status      string    `dynamodbav:"status"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
	ExpiresAt   time.Time `dynamodbav:"expires_at"`
	TTL         int64     `dynamodbav:"ttl"`
}

// Request identifies one idempotent call.
type Request struct {
	Key      string // client supplied Idempotency-Key header
	UserID   string
	Endpoint string
	Body     string
}

type Service struct {
	client DynamoAPI
	table  string
	now    func() time.Time
	log    *logging.Logger
}

func NewService(client DynamoAPI, table string) *Service {
	return &Service{
		client: client,
		table:  table,
		now:    time.Now,
		log:    logging.New("idempotency", "info", "json"),
	}
}

// WithLogger replaces the default logger.
func (s *Service) WithLogger(l *logging.Logger) *Service {
	s.log = l
	return s
}

func recordKey(r Request) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%s", r.UserID, r.Endpoint, r.Key)))
	return hex.EncodeToString(hash[:])
}

func requestHash(body string) string {
	hash := sha256.Sum256([]byte(body))
	return hex.EncodeToString(hash[:])
}

// Do runs fn at most once per (user, endpoint, key) within a day and returns
// its JSON-encoded result. A retry with the same key and body gets the stored
// result; the same key with a different body is rejected.
func (s *Service) Do(ctx context.Context, req Request, fn func() (any, error)) (json.RawMessage, error) {
	key := recordKey(req)
	hash := requestHash(req.Body)

	existing, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.RequestHash != hash {
			return nil, ErrKeyReused
		}
		if existing.Status == statusCompleted {
			return json.RawMessage(existing.Response), nil
		}
		return nil, ErrInProgress
	}

	now := s.now()
	if err := s.put(ctx, &record{
		Key:         key,
		UserID:      req.UserID,
		RequestHash: hash,
		Status:      statusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(recordTTL),
		TTL:         now.Add(recordTTL).Unix(),
	}); err != nil {
		return nil, err
	}

	result, err := fn()
	if err != nil {
		// Failed attempts must not block a retry with the same key.
		_ = s.delete(ctx, key)
		return nil, err
	}

	body, err := json.Marshal(result)
	if err != nil {
		_ = s.delete(ctx, key)
		return nil, fmt.Errorf("marshal response: %w", err)
	}

	// fn has already committed, so its result is returned even when the
	// record cannot be completed. Retries see the pending record until TTL.
	if err := s.complete(ctx, key, string(body)); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("idempotency_key", req.Key).
			Error("failed to complete idempotency record")
	}
	return body, nil
}

func (s *Service) get(ctx context.Context, key string) (*record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var rec record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal idempotency record: %w", err)
	}
	if s.now().After(rec.ExpiresAt) {
		_ = s.delete(ctx, key)
		return nil, nil
	}
	return &rec, nil
}

func (s *Service) put(ctx context.Context, rec *record) error {
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal idempotency record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#key)"),
		ExpressionAttributeNames: map[string]string{
			"#key": "key",
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrInProgress
		}
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	return nil
}

func (s *Service) complete(ctx context.Context, key, response string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: aws.String("SET #response = :response, #status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#response": "response",
			"#status":   "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":response": &types.AttributeValueMemberS{Value: response},
			":status":   &types.AttributeValueMemberS{Value: statusCompleted},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to update idempotency record: %w", err)
	}
	return nil
}

func (s *Service) delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete idempotency record: %w", err)
	}
	return nil
}
