package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-redemption-api/internal/domain"
)

// DeliveryRepo records notifier outcomes in the deliveries table (PK: delivery_id).
type DeliveryRepo struct {
	client    API
	tableName string
}

func NewDeliveryRepo(client API, tableName string) *DeliveryRepo {
	return &DeliveryRepo{client: client, tableName: tableName}
}

// Put upserts the record; each retry of a task overwrites the previous outcome.
func (r *DeliveryRepo) Put(ctx context.Context, d *domain.DeliveryRecord) error {
	item, err := attributevalue.MarshalMap(d)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *DeliveryRepo) Get(ctx context.Context, deliveryID string) (*domain.DeliveryRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldDeliveryID, deliveryID),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("delivery not found: %w", domain.ErrNotFound)
	}
	var d domain.DeliveryRecord
	if err := attributevalue.UnmarshalMap(out.Item, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
