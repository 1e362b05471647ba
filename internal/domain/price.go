package domain

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Price is a decimal amount stored as a DynamoDB number attribute.
type Price struct {
	decimal.Decimal
}

// ParsePrice accepts an empty string as zero.
func ParsePrice(s string) (Price, error) {
	if s == "" {
		return Price{Decimal: decimal.Zero}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("invalid price %q: %w", s, ErrBadRequest)
	}
	if d.IsNegative() {
		return Price{}, fmt.Errorf("price must not be negative: %w", ErrBadRequest)
	}
	return Price{Decimal: d}, nil
}

func (p Price) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: p.Decimal.String()}, nil
}

func (p *Price) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		d, err := decimal.NewFromString(v.Value)
		if err != nil {
			return err
		}
		p.Decimal = d
	case *types.AttributeValueMemberS:
		d, err := decimal.NewFromString(v.Value)
		if err != nil {
			return err
		}
		p.Decimal = d
	case *types.AttributeValueMemberNULL:
		p.Decimal = decimal.Zero
	default:
		return fmt.Errorf("unsupported price attribute %T", av)
	}
	return nil
}
