package dynamo

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/go-api-accounts/internal/domain"
)

// CodeStore keeps confirmation codes in a table with a TTL attribute.
// DynamoDB deletes expired items lazily, so every read checks expires_at too.
// PK: code_key
type CodeStore struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewCodeStore(client API, tableName string) *CodeStore {
	return &CodeStore{client: client, tableName: tableName, now: time.Now}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("dynamo %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

func (s *CodeStore) nowUnix() string {
	return strconv.FormatInt(s.now().Unix(), 10)
}

// live decodes item and reports whether it has not yet expired.
func (s *CodeStore) live(item map[string]types.AttributeValue) (*domain.ConfirmationCode, bool, error) {
	if item == nil {
		return nil, false, nil
	}
	var c domain.ConfirmationCode
	if err := attributevalue.UnmarshalMap(item, &c); err != nil {
		return nil, false, fmt.Errorf("unmarshal confirmation code: %w", err)
	}
	if c.ExpiresAt <= s.now().Unix() {
		return nil, false, nil
	}
	return &c, true, nil
}

func (s *CodeStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	item, err := attributevalue.MarshalMap(&domain.ConfirmationCode{
		Key:       key,
		Code:      value,
		ExpiresAt: s.now().Add(ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal confirmation code: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return unavailable("put", err)
	}
	return nil
}

func (s *CodeStore) Get(ctx context.Context, key string) (string, bool, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            strKey(fieldCodeKey, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", false, unavailable("get", err)
	}
	c, ok, err := s.live(out.Item)
	if !ok || err != nil {
		return "", false, err
	}
	return c.Code, true, nil
}

func (s *CodeStore) GetAndDelete(ctx context.Context, key string) (string, bool, error) {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.tableName),
		Key:          strKey(fieldCodeKey, key),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return "", false, unavailable("delete", err)
	}
	c, ok, err := s.live(out.Attributes)
	if !ok || err != nil {
		return "", false, err
	}
	return c.Code, true, nil
}

func (s *CodeStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       strKey(fieldCodeKey, key),
	})
	if err != nil {
		return unavailable("delete", err)
	}
	return nil
}

func (s *CodeStore) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *CodeStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      strKey(fieldCodeKey, key),
		UpdateExpression:         aws.String("SET #e = :e"),
		ConditionExpression:      aws.String("attribute_exists(code_key)"),
		ExpressionAttributeNames: map[string]string{"#e": fieldExpiresAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e": &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().Add(ttl).Unix(), 10)},
		},
	})
	if isConditionFailed(err) {
		return nil
	}
	if err != nil {
		return unavailable("update", err)
	}
	return nil
}

// CompareAndDelete deletes key only while it holds value and has not expired.
func (s *CodeStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.tableName),
		Key:                      strKey(fieldCodeKey, key),
		ConditionExpression:      aws.String("#c = :c AND #e > :now"),
		ExpressionAttributeNames: map[string]string{"#c": fieldCode, "#e": fieldExpiresAt},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":   &types.AttributeValueMemberS{Value: value},
			":now": &types.AttributeValueMemberN{Value: s.nowUnix()},
		},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("conditional delete", err)
	}
	return true, nil
}
