package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/go-api-accounts/internal/domain"
)

// UserRepo provides typed DynamoDB operations for users, their email
// uniqueness locks and their API tokens.
//
// Email uniqueness is enforced by a second table keyed by email that is
// written in the same transaction as the user item.
type UserRepo struct {
	client      API
	usersTable  string
	emailsTable string
	tokensTable string
}

func NewUserRepo(client API, usersTable, emailsTable, tokensTable string) *UserRepo {
	return &UserRepo{
		client:      client,
		usersTable:  usersTable,
		emailsTable: emailsTable,
		tokensTable: tokensTable,
	}
}

// Create writes the user and claims its email in one transaction.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           aws.String(r.usersTable),
				Item:                item,
				ConditionExpression: aws.String("attribute_not_exists(user_id)"),
			}},
			{Put: &types.Put{
				TableName: aws.String(r.emailsTable),
				Item: map[string]types.AttributeValue{
					fieldEmail:  &types.AttributeValueMemberS{Value: u.Email},
					fieldUserID: &types.AttributeValueMemberS{Value: u.UserID},
				},
				ConditionExpression: aws.String("attribute_not_exists(email)"),
			}},
		},
	})
	if canceledAt(err, 1) {
		return domain.ErrDuplicateEmail
	}
	if canceledAt(err, 0) {
		return fmt.Errorf("user id %s already taken: %w", u.UserID, domain.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepo) Get(ctx context.Context, userID string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.usersTable),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.usersTable),
		IndexName:                 aws.String("email-index"),
		KeyConditionExpression:    aws.String("#a = :v"),
		ExpressionAttributeNames:  map[string]string{"#a": fieldEmail},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: email}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Items[0], &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepo) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	updates[fieldUpdatedAt] = time.Now().UTC()
	ue, err := buildUpdateExpr(updates)
	if err != nil {
		return err
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.usersTable),
		Key:                       strKey(fieldUserID, userID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(user_id)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if isConditionFailed(err) {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return err
}

// Activate marks the user active and returns its API token, storing
// candidate when the user has none yet. Both writes commit together.
func (r *UserRepo) Activate(ctx context.Context, userID string, candidate *domain.APIToken) (*domain.APIToken, error) {
	existing, err := r.GetAPIToken(ctx, userID)
	if err == nil {
		if err := r.Update(ctx, userID, map[string]interface{}{fieldIsActive: true}); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	tokenItem, err := attributevalue.MarshalMap(candidate)
	if err != nil {
		return nil, fmt.Errorf("marshal api token: %w", err)
	}
	activate, err := buildUpdateExpr(map[string]interface{}{
		fieldIsActive:  true,
		fieldUpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:                 aws.String(r.usersTable),
				Key:                       strKey(fieldUserID, userID),
				UpdateExpression:          aws.String(activate.Expr),
				ConditionExpression:       aws.String("attribute_exists(user_id)"),
				ExpressionAttributeNames:  activate.Names,
				ExpressionAttributeValues: activate.Values,
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tokensTable),
				Item:                tokenItem,
				ConditionExpression: aws.String("attribute_not_exists(user_id)"),
			}},
		},
	})
	switch {
	case canceledAt(err, 0):
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	case canceledAt(err, 1):
		// A concurrent activation stored its token first.
		existing, err := r.GetAPIToken(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := r.Update(ctx, userID, map[string]interface{}{fieldIsActive: true}); err != nil {
			return nil, err
		}
		return existing, nil
	case err != nil:
		return nil, fmt.Errorf("activate user: %w", err)
	}
	return candidate, nil
}

func (r *UserRepo) GetAPIToken(ctx context.Context, userID string) (*domain.APIToken, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tokensTable),
		Key:            strKey(fieldUserID, userID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("api token not found: %w", domain.ErrNotFound)
	}
	var t domain.APIToken
	if err := attributevalue.UnmarshalMap(out.Item, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *UserRepo) GetAPITokenByKey(ctx context.Context, key string) (*domain.APIToken, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.tokensTable),
		IndexName:                 aws.String("key-index"),
		KeyConditionExpression:    aws.String("#k = :v"),
		ExpressionAttributeNames:  map[string]string{"#k": fieldKey},
		ExpressionAttributeValues: map[string]types.AttributeValue{":v": &types.AttributeValueMemberS{Value: key}},
		Limit:                     aws.Int32(1),
	})
	if err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, fmt.Errorf("api token not found: %w", domain.ErrNotFound)
	}
	var t domain.APIToken
	if err := attributevalue.UnmarshalMap(out.Items[0], &t); err != nil {
		return nil, err
	}
	return &t, nil
}
