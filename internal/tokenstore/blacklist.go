// Package tokenstore keeps revoked refresh tokens in DynamoDB until they
// would have expired anyway.
package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrAlreadyRevoked is returned when a token id is blacklisted twice.
var ErrAlreadyRevoked = errors.New("token has already been blacklisted")

// DynamoAPI is the subset of the DynamoDB client used here.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type revokedToken struct {
	JTI       string    `dynamodbav:"jti"`
	UserID    string    `dynamodbav:"user_id"`
	RevokedAt time.Time `dynamodbav:"revoked_at"`
	TTL       int64     `dynamodbav:"ttl"`
}

type Blacklist struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

func NewBlacklist(client DynamoAPI, table string) *Blacklist {
	return &Blacklist{client: client, table: table, now: time.Now}
}

// Revoke blacklists jti. DynamoDB TTL removes the item once the token would
// have expired on its own.
func (b *Blacklist) Revoke(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	item, err := attributevalue.MarshalMap(revokedToken{
		JTI:       jti,
		UserID:    userID,
		RevokedAt: b.now().UTC(),
		TTL:       expiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal revoked token: %w", err)
	}

	_, err = b.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(b.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(#jti)"),
		ExpressionAttributeNames: map[string]string{
			"#jti": "jti",
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyRevoked
		}
		return fmt.Errorf("store revoked token: %w", err)
	}
	return nil
}

// IsRevoked reports whether jti has been blacklisted.
func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	out, err := b.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(b.table),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"jti": &types.AttributeValueMemberS{Value: jti},
		},
	})
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return out.Item != nil, nil
}
