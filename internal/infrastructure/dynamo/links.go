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

// LinkRepo provides typed DynamoDB operations for the redemption_links table (PK: token).
type LinkRepo struct {
	client    API
	tableName string
}

func NewLinkRepo(client API, tableName string) *LinkRepo {
	return &LinkRepo{client: client, tableName: tableName}
}

// Create stores a new link. A token collision returns ErrConflict so the caller can regenerate.
func (r *LinkRepo) Create(ctx context.Context, l *domain.RedemptionLink) error {
	item, err := attributevalue.MarshalMap(l)
	if err != nil {
		return fmt.Errorf("marshal link: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#tk)"),
		ExpressionAttributeNames: map[string]string{"#tk": fieldToken},
	})
	return mapConditional(err, "link token taken")
}

// Get returns a visible link. Soft-deleted links are reported as not found.
func (r *LinkRepo) Get(ctx context.Context, token string) (*domain.RedemptionLink, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldToken, token),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("link not found: %w", domain.ErrNotFound)
	}
	var l domain.RedemptionLink
	if err := attributevalue.UnmarshalMap(out.Item, &l); err != nil {
		return nil, err
	}
	if !l.Visible() {
		return nil, fmt.Errorf("link not found: %w", domain.ErrNotFound)
	}
	return &l, nil
}

// AcquireLease marks attemptID as the only commit allowed to run against the link until
// `until`. It fails with ErrConflict when the link is not ISSUED or another live lease exists.
func (r *LinkRepo) AcquireLease(ctx context.Context, token, attemptID string, until, now time.Time) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.tableName),
		Key:              strKey(fieldToken, token),
		UpdateExpression: aws.String("SET #la = :a, #lu = :until"),
		ConditionExpression: aws.String("attribute_exists(#tk) AND #st = :issued AND " + notDeletedCond +
			" AND (attribute_not_exists(#la) OR #lu < :now)"),
		ExpressionAttributeNames: map[string]string{
			"#tk":  fieldToken,
			"#st":  fieldState,
			"#del": fieldDeleted,
			"#la":  fieldLeaseAttempt,
			"#lu":  fieldLeaseUntil,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a":      strAV(attemptID),
			":until":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", until.Unix())},
			":now":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
			":issued": strAV(string(domain.LinkIssued)),
			":false":  boolAV(false),
		},
	})
	return mapConditional(err, "link not available for commit")
}

// ReleaseLease drops attemptID's lease. Releasing a lease that is no longer held is a no-op.
func (r *LinkRepo) ReleaseLease(ctx context.Context, token, attemptID string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldToken, token),
		UpdateExpression:         aws.String("SET #lu = :zero REMOVE #la"),
		ConditionExpression:      aws.String("#la = :a"),
		ExpressionAttributeNames: map[string]string{"#la": fieldLeaseAttempt, "#lu": fieldLeaseUntil},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a":    strAV(attemptID),
			":zero": intAV(0),
		},
	})
	if conditionFailed(err) {
		return nil
	}
	return err
}

// MarkRedeemed flips ISSUED -> REDEEMED in one conditional write. Only the lease holder can
// flip; everyone else gets ErrConflict and must treat the link as consumed or busy.
func (r *LinkRepo) MarkRedeemed(ctx context.Context, token, attemptID string, at time.Time) error {
	atAV, err := attributevalue.Marshal(at.UTC())
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldToken, token),
		UpdateExpression:    aws.String("SET #st = :redeemed, #ra = :at, #rba = :a, #lu = :zero REMOVE #la"),
		ConditionExpression: aws.String("#st = :issued AND #la = :a"),
		ExpressionAttributeNames: map[string]string{
			"#st":  fieldState,
			"#ra":  fieldRedeemedAt,
			"#rba": fieldRedeemedByAttempt,
			"#la":  fieldLeaseAttempt,
			"#lu":  fieldLeaseUntil,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":redeemed": strAV(string(domain.LinkRedeemed)),
			":issued":   strAV(string(domain.LinkIssued)),
			":at":       atAV,
			":a":        strAV(attemptID),
			":zero":     intAV(0),
		},
	})
	return mapConditional(err, "link already redeemed or lease lost")
}

// SoftDelete hides an unredeemed link. Redeemed links are permanent records.
func (r *LinkRepo) SoftDelete(ctx context.Context, token string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldToken, token),
		UpdateExpression:         aws.String("SET #del = :true"),
		ConditionExpression:      aws.String("#st = :issued AND attribute_not_exists(#la)"),
		ExpressionAttributeNames: map[string]string{"#del": fieldDeleted, "#st": fieldState, "#la": fieldLeaseAttempt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":true":   boolAV(true),
			":issued": strAV(string(domain.LinkIssued)),
		},
	})
	return mapConditional(err, "only idle unredeemed links can be revoked")
}

// Delete hard-deletes a link record. Used only to undo a row of a bulk allocation whose
// ticket could not be created.
func (r *LinkRepo) Delete(ctx context.Context, token string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey(fieldToken, token),
	})
	return err
}
