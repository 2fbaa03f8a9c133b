package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"chat-backend/internal/apperror"
	"chat-backend/internal/domain"
)

// UserStore defines the user operations consumed by the REST adapter.
type UserStore interface {
	CreateUser(ctx context.Context, dto domain.CreateUserInput) (domain.User, error)
	GetUser(ctx context.Context, userID string) (domain.User, error)
	ReplaceUser(ctx context.Context, userID string, dto domain.CreateUserInput) (domain.User, error)
	RemoveUser(ctx context.Context, userID string) (domain.User, error)
	AppendUserConversation(ctx context.Context, userID, convoID string) (domain.UserConversation, error)
	RemoveUserConversation(ctx context.Context, userID, convoID string) (domain.UserConversation, error)
	GetUserConversations(ctx context.Context, userID string) ([]domain.UserConversation, error)
}

// UserClient implements UserStore against a single DynamoDB table.
type UserClient struct {
	api       dynamodbAPI
	tableName string
}

// NewUserClient creates a UserClient for the given table.
func NewUserClient(api dynamodbAPI, tableName string) (*UserClient, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &UserClient{api: api, tableName: tableName}, nil
}

// ddbUser is the item shape of a user record. Conversations persists as a
// native DynamoDB string set; DynamoDB forbids empty sets, so the attribute
// is absent for a user with no memberships.
type ddbUser struct {
	HK            string   `dynamodbav:"HK"`
	SK            string   `dynamodbav:"SK"`
	Email         string   `dynamodbav:"email"`
	Alias         string   `dynamodbav:"alias,omitempty"`
	AvatarURL     string   `dynamodbav:"avatarUrl,omitempty"`
	CreatedDate   string   `dynamodbav:"createdDate"`
	UpdatedDate   string   `dynamodbav:"updatedDate"`
	Conversations []string `dynamodbav:"conversations,stringset,omitempty"`
}

func (c *UserClient) CreateUser(ctx context.Context, dto domain.CreateUserInput) (domain.User, error) {
	now := time.Now().UTC()
	id := uuid.NewString()
	key := userKey(id)

	item, err := attributevalue.MarshalMap(ddbUser{
		HK:          key,
		SK:          key,
		Email:       dto.Email,
		Alias:       dto.Alias,
		AvatarURL:   dto.AvatarURL,
		CreatedDate: formatDate(now),
		UpdatedDate: formatDate(now),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: CreateUser marshal: %w", err)
	}
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}); err != nil {
		return domain.User{}, fmt.Errorf("repository: CreateUser: %w", err)
	}

	return domain.User{
		ID:            id,
		Email:         dto.Email,
		Alias:         dto.Alias,
		AvatarURL:     dto.AvatarURL,
		CreatedDate:   now,
		UpdatedDate:   now,
		Conversations: []string{},
	}, nil
}

func (c *UserClient) GetUser(ctx context.Context, userID string) (domain.User, error) {
	key := userKey(userID)
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"HK": &types.AttributeValueMemberS{Value: key},
			"SK": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: GetUser: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.User{}, apperror.New(apperror.RecordNotFound, "user_missing", nil)
	}
	return itemToUser(out.Item)
}

// ReplaceUser overwrites the full user item while preserving the original
// createdDate. The read and the write are two separate store calls, so a
// concurrent mutation on the same user can be lost.
func (c *UserClient) ReplaceUser(ctx context.Context, userID string, dto domain.CreateUserInput) (domain.User, error) {
	key := userKey(userID)
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"HK": &types.AttributeValueMemberS{Value: key},
			"SK": &types.AttributeValueMemberS{Value: key},
		},
		ProjectionExpression: aws.String("createdDate"),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: ReplaceUser read: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.User{}, apperror.New(apperror.RecordNotFound, "user_missing", nil)
	}

	var existing struct {
		CreatedDate string `dynamodbav:"createdDate"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &existing); err != nil {
		return domain.User{}, fmt.Errorf("repository: ReplaceUser unmarshal: %w", err)
	}
	createdDate, err := parseDate(existing.CreatedDate)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: ReplaceUser parse createdDate: %w", err)
	}

	now := time.Now().UTC()
	item, err := attributevalue.MarshalMap(ddbUser{
		HK:          key,
		SK:          key,
		Email:       dto.Email,
		Alias:       dto.Alias,
		AvatarURL:   dto.AvatarURL,
		CreatedDate: formatDate(createdDate),
		UpdatedDate: formatDate(now),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: ReplaceUser marshal: %w", err)
	}
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}); err != nil {
		return domain.User{}, fmt.Errorf("repository: ReplaceUser write: %w", err)
	}

	return domain.User{
		ID:            userID,
		Email:         dto.Email,
		Alias:         dto.Alias,
		AvatarURL:     dto.AvatarURL,
		CreatedDate:   createdDate,
		UpdatedDate:   now,
		Conversations: []string{},
	}, nil
}

func (c *UserClient) RemoveUser(ctx context.Context, userID string) (domain.User, error) {
	key := userKey(userID)
	out, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"HK": &types.AttributeValueMemberS{Value: key},
			"SK": &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression: aws.String("attribute_exists(HK)"),
		ReturnValues:        types.ReturnValueAllOld,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return domain.User{}, apperror.New(apperror.RecordNotFound, "user_missing", err)
		}
		return domain.User{}, fmt.Errorf("repository: RemoveUser: %w", err)
	}
	if out == nil || len(out.Attributes) == 0 {
		return domain.User{}, apperror.New(apperror.RecordNotFound, "user_missing", nil)
	}
	return itemToUser(out.Attributes)
}

// AppendUserConversation adds convoID to the user's membership set. The ADD
// action is a set union, so appending an already-present id is a no-op.
func (c *UserClient) AppendUserConversation(ctx context.Context, userID, convoID string) (domain.UserConversation, error) {
	key := userKey(userID)
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"HK": &types.AttributeValueMemberS{Value: key},
			"SK": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: aws.String("ADD conversations :c SET updatedDate = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberSS{Value: []string{convoID}},
			":u": &types.AttributeValueMemberS{Value: formatDate(time.Now().UTC())},
		},
	})
	if err != nil {
		return domain.UserConversation{}, fmt.Errorf("repository: AppendUserConversation: %w", err)
	}
	return domain.UserConversation{UserID: userID, ConvoID: convoID}, nil
}

// RemoveUserConversation removes convoID from the user's membership set.
func (c *UserClient) RemoveUserConversation(ctx context.Context, userID, convoID string) (domain.UserConversation, error) {
	key := userKey(userID)
	_, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"HK": &types.AttributeValueMemberS{Value: key},
			"SK": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: aws.String("DELETE conversations :c SET updatedDate = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberSS{Value: []string{convoID}},
			":u": &types.AttributeValueMemberS{Value: formatDate(time.Now().UTC())},
		},
	})
	if err != nil {
		return domain.UserConversation{}, fmt.Errorf("repository: RemoveUserConversation: %w", err)
	}
	return domain.UserConversation{UserID: userID, ConvoID: convoID}, nil
}

func (c *UserClient) GetUserConversations(ctx context.Context, userID string) ([]domain.UserConversation, error) {
	key := userKey(userID)
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"HK": &types.AttributeValueMemberS{Value: key},
			"SK": &types.AttributeValueMemberS{Value: key},
		},
		ProjectionExpression: aws.String("conversations"),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetUserConversations: %w", err)
	}
	if out == nil || out.Item == nil {
		return nil, apperror.New(apperror.RecordNotFound, "user_missing", nil)
	}

	var item struct {
		Conversations []string `dynamodbav:"conversations,stringset,omitempty"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("repository: GetUserConversations unmarshal: %w", err)
	}

	memberships := make([]domain.UserConversation, 0, len(item.Conversations))
	for _, convoID := range item.Conversations {
		memberships = append(memberships, domain.UserConversation{UserID: userID, ConvoID: convoID})
	}
	return memberships, nil
}

func itemToUser(item map[string]types.AttributeValue) (domain.User, error) {
	var raw ddbUser
	if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
		return domain.User{}, fmt.Errorf("repository: unmarshal user item: %w", err)
	}
	id, err := parseUserID(raw.HK)
	if err != nil {
		return domain.User{}, err
	}
	createdDate, err := parseDate(raw.CreatedDate)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: parse user createdDate: %w", err)
	}
	updatedDate, err := parseDate(raw.UpdatedDate)
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: parse user updatedDate: %w", err)
	}
	conversations := raw.Conversations
	if conversations == nil {
		conversations = []string{}
	}
	return domain.User{
		ID:            id,
		Email:         raw.Email,
		Alias:         raw.Alias,
		AvatarURL:     raw.AvatarURL,
		CreatedDate:   createdDate,
		UpdatedDate:   updatedDate,
		Conversations: conversations,
	}, nil
}
