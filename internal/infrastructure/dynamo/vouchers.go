package dynamo

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-redemption-api/internal/domain"
)

// VoucherRepo provides typed DynamoDB operations for the vouchers table (PK: code).
// Every capacity change is a single conditional UpdateItem on the counters.
type VoucherRepo struct {
	client    API
	tableName string
}

func NewVoucherRepo(client API, tableName string) *VoucherRepo {
	return &VoucherRepo{client: client, tableName: tableName}
}

func (r *VoucherRepo) Create(ctx context.Context, v *domain.Voucher) error {
	c := *v
	if c.Holders == nil {
		// Reserve sets holders.<phone>; the map has to exist for that path to resolve.
		c.Holders = map[string]string{}
	}
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal voucher: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#c)"),
		ExpressionAttributeNames: map[string]string{"#c": fieldCode},
	})
	return mapConditional(err, "voucher code taken")
}

func (r *VoucherRepo) Get(ctx context.Context, code string) (*domain.Voucher, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldCode, code),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("voucher not found: %w", domain.ErrNotFound)
	}
	var v domain.Voucher
	if err := attributevalue.UnmarshalMap(out.Item, &v); err != nil {
		return nil, err
	}
	if !v.Visible() {
		return nil, fmt.Errorf("voucher not found: %w", domain.ErrNotFound)
	}
	return &v, nil
}

// Reserve adds phones to the reserved set on behalf of holder and moves len(phones) slots
// from remaining to unconfirmed. The write only lands if the voucher is active, has that much
// capacity left, and none of the phones already holds or used it.
func (r *VoucherRepo) Reserve(ctx context.Context, code, holder string, phones []string) error {
	if len(phones) == 0 {
		return nil
	}
	names := map[string]string{
		"#act": fieldActive,
		"#del": fieldDeleted,
		"#rem": fieldRemaining,
		"#unc": fieldUnconfirmed,
		"#rs":  fieldReserved,
		"#rd":  fieldRedeemed,
		"#hd":  fieldHolders,
	}
	values := map[string]types.AttributeValue{
		":true":  boolAV(true),
		":false": boolAV(false),
		":n":     intAV(len(phones)),
		":set":   stringSetAV(phones),
		":h":     strAV(holder),
	}
	cond := []string{"#act = :true", notDeletedCond, "#rem >= :n"}
	sets := []string{"#rem = #rem - :n", "#unc = #unc + :n"}
	for i, p := range phones {
		k := fmt.Sprintf(":p%d", i)
		n := fmt.Sprintf("#k%d", i)
		values[k] = strAV(p)
		names[n] = p
		cond = append(cond, fmt.Sprintf("NOT contains(#rs, %s)", k), fmt.Sprintf("NOT contains(#rd, %s)", k))
		sets = append(sets, fmt.Sprintf("#hd.%s = :h", n))
	}
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey(fieldCode, code),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ") + " ADD #rs :set"),
		ConditionExpression:       aws.String(strings.Join(cond, " AND ")),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	return mapConditional(err, "voucher capacity changed")
}

// Confirm settles holder's n slots: unconfirmed -= n, confirmed += n, holder joins the
// settled set. A holder is settled at most once; a repeat comes back as ErrConflict.
func (r *VoucherRepo) Confirm(ctx context.Context, code, holder string, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldCode, code),
		UpdateExpression:    aws.String("SET #unc = #unc - :n, #cf = #cf + :n ADD #st :hs"),
		ConditionExpression: aws.String("#unc >= :n AND NOT contains(#st, :h)"),
		ExpressionAttributeNames: map[string]string{
			"#unc": fieldUnconfirmed,
			"#cf":  fieldConfirmed,
			"#st":  fieldSettled,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n":  intAV(n),
			":h":  strAV(holder),
			":hs": stringSetAV([]string{holder}),
		},
	})
	return mapConditional(err, "voucher reservations not confirmable")
}

// Release gives phone's unconfirmed slot back if holder owns it and has not settled. Anything
// else is a no-op, so compensation can be replayed without touching other holders.
func (r *VoucherRepo) Release(ctx context.Context, code, holder, phone string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldCode, code),
		UpdateExpression:    aws.String("SET #rem = #rem + :one, #unc = #unc - :one REMOVE #hd.#p DELETE #rs :set"),
		ConditionExpression: aws.String("#hd.#p = :h AND NOT contains(#st, :h) AND contains(#rs, :p) AND #unc >= :one"),
		ExpressionAttributeNames: map[string]string{
			"#rem": fieldRemaining,
			"#unc": fieldUnconfirmed,
			"#rs":  fieldReserved,
			"#hd":  fieldHolders,
			"#st":  fieldSettled,
			"#p":   phone,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": intAV(1),
			":h":   strAV(holder),
			":p":   strAV(phone),
			":set": stringSetAV([]string{phone}),
		},
	})
	if conditionFailed(err) {
		return nil
	}
	return err
}

// RedeemAtVenue moves phone from the reserved set to the redeemed set. Capacity and the
// confirmed counter are untouched; the slot stays held.
func (r *VoucherRepo) RedeemAtVenue(ctx context.Context, code, phone string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(r.tableName),
		Key:                      strKey(fieldCode, code),
		UpdateExpression:         aws.String("DELETE #rs :set ADD #rd :set"),
		ConditionExpression:      aws.String("contains(#rs, :p)"),
		ExpressionAttributeNames: map[string]string{"#rs": fieldReserved, "#rd": fieldRedeemed},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p":   strAV(phone),
			":set": stringSetAV([]string{phone}),
		},
	})
	return mapConditional(err, "phone holds no reservation")
}
