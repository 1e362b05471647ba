package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-redemption-api/internal/domain"
)

// batchGetLimit is the DynamoDB cap on keys per BatchGetItem request.
const batchGetLimit = 100

// maxUnprocessedRounds bounds how often unprocessed keys are re-requested.
const maxUnprocessedRounds = 5

// AllocationRepo provides typed DynamoDB operations for the ticket_allocations table
// (PK: event_id, SK: phone).
type AllocationRepo struct {
	client    API
	tableName string
}

func NewAllocationRepo(client API, tableName string) *AllocationRepo {
	return &AllocationRepo{client: client, tableName: tableName}
}

// Create writes the allocation only if (event, phone) has none. ErrConflict means another
// path allocated that phone first.
func (r *AllocationRepo) Create(ctx context.Context, a *domain.TicketAllocation) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal allocation: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#ph)"),
		ExpressionAttributeNames: map[string]string{"#ph": fieldPhone},
	})
	return mapConditional(err, "phone already allocated for event")
}

func (r *AllocationRepo) Get(ctx context.Context, eventID, phone string) (*domain.TicketAllocation, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey(fieldEventID, eventID, fieldPhone, phone),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("allocation not found: %w", domain.ErrNotFound)
	}
	var a domain.TicketAllocation
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Delete removes the allocation only when it was written by attemptID. Deleting an
// allocation that is gone or owned by someone else is a no-op.
func (r *AllocationRepo) Delete(ctx context.Context, eventID, phone, attemptID string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey(fieldEventID, eventID, fieldPhone, phone),
		ConditionExpression:       aws.String("#aid = :a"),
		ExpressionAttributeNames:  map[string]string{"#aid": fieldAttemptID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":a": strAV(attemptID)},
	})
	if conditionFailed(err) {
		return nil
	}
	return err
}

// FindExisting returns the allocations that already exist for the given phones at eventID,
// keyed by phone. Lookups are batched; phones without an allocation are absent from the map.
func (r *AllocationRepo) FindExisting(ctx context.Context, eventID string, phones []string) (map[string]*domain.TicketAllocation, error) {
	found := make(map[string]*domain.TicketAllocation)
	for start := 0; start < len(phones); start += batchGetLimit {
		end := start + batchGetLimit
		if end > len(phones) {
			end = len(phones)
		}
		keys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, p := range phones[start:end] {
			keys = append(keys, compositeKey(fieldEventID, eventID, fieldPhone, p))
		}
		if err := r.batchGet(ctx, keys, found); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func (r *AllocationRepo) batchGet(ctx context.Context, keys []map[string]types.AttributeValue, into map[string]*domain.TicketAllocation) error {
	request := map[string]types.KeysAndAttributes{
		r.tableName: {Keys: keys, ConsistentRead: aws.Bool(true)},
	}
	for round := 0; len(request) > 0; round++ {
		if round == maxUnprocessedRounds {
			return fmt.Errorf("batch get %s: unprocessed keys left after %d rounds", r.tableName, round)
		}
		out, err := r.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{RequestItems: request})
		if err != nil {
			return err
		}
		var page []domain.TicketAllocation
		if err := attributevalue.UnmarshalListOfMaps(out.Responses[r.tableName], &page); err != nil {
			return err
		}
		for i := range page {
			a := page[i]
			into[a.Phone] = &a
		}
		request = out.UnprocessedKeys
	}
	return nil
}
