package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-redemption-api/internal/domain"
)

// LinkSlotRepo guards "one ISSUED link per (event, phone)" with one document per pair.
// PK: slot_key ("<event_id>#<phone>").
type LinkSlotRepo struct {
	client    API
	tableName string
}

func NewLinkSlotRepo(client API, tableName string) *LinkSlotRepo {
	return &LinkSlotRepo{client: client, tableName: tableName}
}

// Claim creates the slot. ErrConflict means some token already holds it.
func (r *LinkSlotRepo) Claim(ctx context.Context, s *domain.LinkSlot) error {
	item, err := attributevalue.MarshalMap(s)
	if err != nil {
		return fmt.Errorf("marshal slot: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#sk)"),
		ExpressionAttributeNames: map[string]string{"#sk": fieldSlotKey},
	})
	return mapConditional(err, "link slot taken")
}

func (r *LinkSlotRepo) Get(ctx context.Context, slotKey string) (*domain.LinkSlot, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldSlotKey, slotKey),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("link slot not found: %w", domain.ErrNotFound)
	}
	var s domain.LinkSlot
	if err := attributevalue.UnmarshalMap(out.Item, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Replace points the slot at newToken only if it still points at oldToken.
func (r *LinkSlotRepo) Replace(ctx context.Context, slotKey, oldToken, newToken string, at time.Time) error {
	atAV, err := attributevalue.Marshal(at.UTC())
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldSlotKey, slotKey),
		UpdateExpression:         aws.String("SET #tk = :new, #ca = :at"),
		ConditionExpression:      aws.String("#tk = :old"),
		ExpressionAttributeNames: map[string]string{"#tk": fieldToken, "#ca": fieldCreatedAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":old": strAV(oldToken),
			":new": strAV(newToken),
			":at":  atAV,
		},
	})
	return mapConditional(err, "link slot changed")
}

// Release frees the slot if token still holds it; otherwise it is a no-op.
func (r *LinkSlotRepo) Release(ctx context.Context, slotKey, token string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldSlotKey, slotKey),
		ConditionExpression:       aws.String("#tk = :t"),
		ExpressionAttributeNames:  map[string]string{"#tk": fieldToken},
		ExpressionAttributeValues: map[string]types.AttributeValue{":t": strAV(token)},
	})
	if conditionFailed(err) {
		return nil
	}
	return err
}
