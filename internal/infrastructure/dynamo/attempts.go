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

const attemptStateIndex = "state-updated_at-index"

// AttemptRepo persists commit attempts (PK: attempt_id). State changes are conditional on
// the current state so two workers can never both advance the same attempt.
type AttemptRepo struct {
	client    API
	tableName string
}

func NewAttemptRepo(client API, tableName string) *AttemptRepo {
	return &AttemptRepo{client: client, tableName: tableName}
}

func (r *AttemptRepo) Create(ctx context.Context, a *domain.CommitAttempt) error {
	item, err := attributevalue.MarshalMap(a)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": fieldAttemptID},
	})
	return mapConditional(err, "attempt exists")
}

func (r *AttemptRepo) Get(ctx context.Context, attemptID string) (*domain.CommitAttempt, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldAttemptID, attemptID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("attempt not found: %w", domain.ErrNotFound)
	}
	var a domain.CommitAttempt
	if err := attributevalue.UnmarshalMap(out.Item, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Transition moves the attempt from -> to and writes the non-nil patch fields with it.
// ErrConflict means the attempt was no longer in `from`.
func (r *AttemptRepo) Transition(ctx context.Context, attemptID string, from, to domain.AttemptState, patch domain.AttemptPatch, at time.Time) error {
	if !domain.CanTransition(from, to) {
		return domain.ErrIllegalTransition(from, to)
	}
	updates := map[string]interface{}{
		fieldState:     to,
		fieldUpdatedAt: at.UTC(),
	}
	if patch.ReservedPhones != nil {
		updates[fieldReservedPhones] = patch.ReservedPhones
	}
	if patch.CreatedPhones != nil {
		updates[fieldCreatedPhones] = patch.CreatedPhones
	}
	if patch.Failures != nil {
		updates[fieldFailures] = patch.Failures
	}
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	ue.Names["#cur"] = fieldState
	ue.Values[":from"] = strAV(string(from))
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldAttemptID, attemptID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#cur = :from"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return mapConditional(err, fmt.Sprintf("attempt %s not in state %s", attemptID, from))
}

// RecordReservation stores the voucher phones reserved for a PENDING attempt so that
// compensation can release them even if the process dies before allocating.
func (r *AttemptRepo) RecordReservation(ctx context.Context, attemptID string, phones []string, at time.Time) error {
	atAV, err := attributevalue.Marshal(at.UTC())
	if err != nil {
		return err
	}
	phonesAV, err := attributevalue.Marshal(phones)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldAttemptID, attemptID),
		UpdateExpression:    aws.String("SET #rp = :p, #ua = :at"),
		ConditionExpression: aws.String("#st = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#rp": fieldReservedPhones,
			"#ua": fieldUpdatedAt,
			"#st": fieldState,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p":       phonesAV,
			":at":      atAV,
			":pending": strAV(string(domain.AttemptPending)),
		},
	})
	return mapConditional(err, fmt.Sprintf("attempt %s no longer pending", attemptID))
}

// ListStale returns attempts in any of states whose last update is older than before.
func (r *AttemptRepo) ListStale(ctx context.Context, states []domain.AttemptState, before time.Time) ([]domain.CommitAttempt, error) {
	cut, err := attributevalue.Marshal(before.UTC())
	if err != nil {
		return nil, err
	}
	var out []domain.CommitAttempt
	for _, st := range states {
		var startKey map[string]types.AttributeValue
		for {
			page, err := r.client.Query(ctx, &dynamodb.QueryInput{
				TableName:              aws.String(r.tableName),
				IndexName:              aws.String(attemptStateIndex),
				KeyConditionExpression: aws.String("#st = :s AND #ua < :cut"),
				ExpressionAttributeNames: map[string]string{
					"#st": fieldState,
					"#ua": fieldUpdatedAt,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":s":   strAV(string(st)),
					":cut": cut,
				},
				ExclusiveStartKey: startKey,
			})
			if err != nil {
				return nil, err
			}
			var items []domain.CommitAttempt
			if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
				return nil, err
			}
			out = append(out, items...)
			if len(page.LastEvaluatedKey) == 0 {
				break
			}
			startKey = page.LastEvaluatedKey
		}
	}
	return out, nil
}
