package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/pkg/id"
)

// IdentityRepo provides typed DynamoDB operations for the identities table (PK: phone).
type IdentityRepo struct {
	client    API
	tableName string
}

func NewIdentityRepo(client API, tableName string) *IdentityRepo {
	return &IdentityRepo{client: client, tableName: tableName}
}

func (r *IdentityRepo) Get(ctx context.Context, phone string) (*domain.Identity, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldPhone, phone),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("identity not found: %w", domain.ErrNotFound)
	}
	var i domain.Identity
	if err := attributevalue.UnmarshalMap(out.Item, &i); err != nil {
		return nil, err
	}
	return &i, nil
}

// LookupOrCreate returns the identity for phone, creating it with name when absent.
// Concurrent creators converge on whichever put landed first.
func (r *IdentityRepo) LookupOrCreate(ctx context.Context, phone, name string) (*domain.Identity, error) {
	existing, err := r.Get(ctx, phone)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	ident := &domain.Identity{
		Phone:      phone,
		IdentityID: id.New(),
		Name:       name,
		CreatedAt:  time.Now().UTC(),
	}
	item, err := attributevalue.MarshalMap(ident)
	if err != nil {
		return nil, fmt.Errorf("marshal identity: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#ph)"),
		ExpressionAttributeNames: map[string]string{"#ph": fieldPhone},
	})
	if conditionFailed(err) {
		return r.Get(ctx, phone)
	}
	if err != nil {
		return nil, err
	}
	return ident, nil
}
