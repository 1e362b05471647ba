package domain

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	p, err := ParsePrice("")
	require.NoError(t, err)
	assert.True(t, p.IsZero())

	p, err = ParsePrice("499.50")
	require.NoError(t, err)
	assert.Equal(t, "499.5", p.String())

	_, err = ParsePrice("-1")
	assert.ErrorIs(t, err, ErrBadRequest)

	_, err = ParsePrice("ten")
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestPrice_DynamoNumber(t *testing.T) {
	p, err := ParsePrice("12.75")
	require.NoError(t, err)

	av, err := p.MarshalDynamoDBAttributeValue()
	require.NoError(t, err)
	assert.Equal(t, &types.AttributeValueMemberN{Value: "12.75"}, av)

	var back Price
	require.NoError(t, back.UnmarshalDynamoDBAttributeValue(&types.AttributeValueMemberN{Value: "12.75"}))
	assert.True(t, back.Equal(p.Decimal))

	require.NoError(t, back.UnmarshalDynamoDBAttributeValue(&types.AttributeValueMemberNULL{Value: true}))
	assert.True(t, back.IsZero())

	assert.Error(t, back.UnmarshalDynamoDBAttributeValue(&types.AttributeValueMemberBOOL{Value: true}))
}
