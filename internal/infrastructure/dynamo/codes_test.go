package dynamo

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/go-api-accounts/internal/domain"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func newTestCodeStore(api *mockAPI) *CodeStore {
	s := NewCodeStore(api, "confirmation_codes")
	s.now = func() time.Time { return fixedNow }
	return s
}

func codeItem(key, code string, expiresAt int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"code_key":   &types.AttributeValueMemberS{Value: key},
		"code":       &types.AttributeValueMemberS{Value: code},
		"expires_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)},
	}
}

func TestCodeStore_Set(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("PutItem", ctx, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		code, _ := in.Item["code"].(*types.AttributeValueMemberS)
		exp, _ := in.Item["expires_at"].(*types.AttributeValueMemberN)
		return aws.ToString(in.TableName) == "confirmation_codes" &&
			code != nil && code.Value == "042042" &&
			exp != nil && exp.Value == strconv.FormatInt(fixedNow.Unix()+300, 10)
	})).Return(&dynamodb.PutItemOutput{}, nil)

	s := newTestCodeStore(api)
	require.NoError(t, s.Set(ctx, "confirm_code:u1", "042042", 300*time.Second))
	api.AssertExpectations(t)
}

func TestCodeStore_Set_Unavailable(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("PutItem", ctx, mock.Anything).Return(nil, errors.New("connection reset"))

	err := newTestCodeStore(api).Set(ctx, "k", "123456", time.Minute)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestCodeStore_Get_ExpiredItemIsAbsent(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("GetItem", ctx, mock.Anything).Return(&dynamodb.GetItemOutput{
		Item: codeItem("k", "123456", fixedNow.Unix()-1),
	}, nil).Once()
	api.On("GetItem", ctx, mock.Anything).Return(&dynamodb.GetItemOutput{
		Item: codeItem("k", "123456", fixedNow.Unix()+10),
	}, nil).Once()

	s := newTestCodeStore(api)
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123456", v)
}

func TestCodeStore_GetAndDelete(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("DeleteItem", ctx, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		return in.ReturnValues == types.ReturnValueAllOld
	})).Return(&dynamodb.DeleteItemOutput{
		Attributes: codeItem("k", "123456", fixedNow.Unix()+10),
	}, nil).Once()
	api.On("DeleteItem", ctx, mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil).Once()

	s := newTestCodeStore(api)
	v, ok, err := s.GetAndDelete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123456", v)

	_, ok, err = s.GetAndDelete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCodeStore_CompareAndDelete(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("DeleteItem", ctx, mock.MatchedBy(func(in *dynamodb.DeleteItemInput) bool {
		c, _ := in.ExpressionAttributeValues[":c"].(*types.AttributeValueMemberS)
		return c != nil && c.Value == "123456"
	})).Return(&dynamodb.DeleteItemOutput{}, nil)
	api.On("DeleteItem", ctx, mock.Anything).
		Return(nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")})

	s := newTestCodeStore(api)
	ok, err := s.CompareAndDelete(ctx, "k", "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.CompareAndDelete(ctx, "k", "123456")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCodeStore_Expire_MissingKeyIsNoop(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("UpdateItem", ctx, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

	assert.NoError(t, newTestCodeStore(api).Expire(ctx, "k", 2*time.Second))
}
