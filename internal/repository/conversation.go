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
	"golang.org/x/sync/errgroup"

	"chat-backend/internal/apperror"
	"chat-backend/internal/domain"
)

// ConnectionInput identifies the participant whose connection state is being
// toggled. ConnID is required for CreateConnection only.
type ConnectionInput struct {
	ConvoID string
	UserID  string
	ConnID  string
}

// GetEventsOptions carries the event query filters. The current
// implementation accepts but does not enforce them; callers must not assume
// filtering (see DESIGN.md).
type GetEventsOptions struct {
	After  *time.Time
	Before *time.Time
	Limit  int
}

// ConversationStore defines the conversation, participant and event
// operations consumed by the REST and realtime adapters.
type ConversationStore interface {
	CreateConversation(ctx context.Context, dto domain.CreateConversationInput) (domain.Conversation, error)
	GetConversation(ctx context.Context, convoID string) (domain.Conversation, error)
	RemoveConversation(ctx context.Context, convoID string) (domain.Conversation, error)
	CreateParticipant(ctx context.Context, convoID string, user domain.User, role domain.ParticipantRole) (domain.Participant, error)
	RemoveParticipant(ctx context.Context, convoID, userID string) (domain.Participant, error)
	GetParticipants(ctx context.Context, convoID string) ([]domain.Participant, error)
	CreateConnection(ctx context.Context, in ConnectionInput) (domain.Participant, error)
	RemoveConnection(ctx context.Context, in ConnectionInput) (domain.Participant, error)
	AppendEvent(ctx context.Context, ev domain.Event) error
	GetEvents(ctx context.Context, convoID string, opts GetEventsOptions) ([]domain.Event, error)
}

// ConversationClient implements ConversationStore against a single DynamoDB
// table with the event log hash-sharded across shardCount partitions.
type ConversationClient struct {
	api        dynamodbAPI
	tableName  string
	shardCount int
}

// NewConversationClient creates a ConversationClient. A shardCount of zero
// or less falls back to DefaultShardCount.
func NewConversationClient(api dynamodbAPI, tableName string, shardCount int) (*ConversationClient, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if shardCount <= 0 {
		shardCount = DefaultShardCount
	}
	return &ConversationClient{api: api, tableName: tableName, shardCount: shardCount}, nil
}

type ddbConversation struct {
	HK          string `dynamodbav:"HK"`
	SK          string `dynamodbav:"SK"`
	Alias       string `dynamodbav:"alias,omitempty"`
	AvatarURL   string `dynamodbav:"avatarUrl,omitempty"`
	CreatedDate string `dynamodbav:"createdDate"`
	UpdatedDate string `dynamodbav:"updatedDate"`
}

type ddbParticipant struct {
	HK           string `dynamodbav:"HK"`
	SK           string `dynamodbav:"SK"`
	UserID       string `dynamodbav:"userId"`
	Email        string `dynamodbav:"email"`
	Role         string `dynamodbav:"role"`
	ConnectionID string `dynamodbav:"connectionId,omitempty"`
	CreatedDate  string `dynamodbav:"createdDate"`
	UpdatedDate  string `dynamodbav:"updatedDate"`
}

type ddbEvent struct {
	HK            string `dynamodbav:"HK"`
	SK            string `dynamodbav:"SK"`
	Action        string `dynamodbav:"action"`
	UserID        string `dynamodbav:"userId"`
	ConvoID       string `dynamodbav:"convoId"`
	Text          string `dynamodbav:"text,omitempty"`
	MediaURL      string `dynamodbav:"mediaUrl,omitempty"`
	RecipientID   string `dynamodbav:"recipientId,omitempty"`
	AttachmentURI string `dynamodbav:"attachmentUri,omitempty"`
	CreatedDate   string `dynamodbav:"createdDate"`
	UpdatedDate   string `dynamodbav:"updatedDate"`
}

func (c *ConversationClient) CreateConversation(ctx context.Context, dto domain.CreateConversationInput) (domain.Conversation, error) {
	now := time.Now().UTC()
	id := uuid.NewString()
	key := convoKey(id)

	item, err := attributevalue.MarshalMap(ddbConversation{
		HK:          key,
		SK:          key,
		Alias:       dto.Alias,
		AvatarURL:   dto.AvatarURL,
		CreatedDate: formatDate(now),
		UpdatedDate: formatDate(now),
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: CreateConversation marshal: %w", err)
	}
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}); err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: CreateConversation: %w", err)
	}

	return domain.Conversation{
		ID:          id,
		Alias:       dto.Alias,
		AvatarURL:   dto.AvatarURL,
		CreatedDate: now,
		UpdatedDate: now,
	}, nil
}

func (c *ConversationClient) GetConversation(ctx context.Context, convoID string) (domain.Conversation, error) {
	key := convoKey(convoID)
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"HK": &types.AttributeValueMemberS{Value: key},
			"SK": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: GetConversation: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.Conversation{}, apperror.New(apperror.RecordNotFound, "conversation_missing", nil)
	}
	return itemToConversation(out.Item)
}

func (c *ConversationClient) RemoveConversation(ctx context.Context, convoID string) (domain.Conversation, error) {
	key := convoKey(convoID)
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
			return domain.Conversation{}, apperror.New(apperror.RecordNotFound, "conversation_missing", err)
		}
		return domain.Conversation{}, fmt.Errorf("repository: RemoveConversation: %w", err)
	}
	if out == nil || len(out.Attributes) == 0 {
		return domain.Conversation{}, apperror.New(apperror.RecordNotFound, "conversation_missing", nil)
	}
	return itemToConversation(out.Attributes)
}

// CreateParticipant upserts the membership record keyed on (convoID, userID)
// with no connection set. Re-joining an existing participant refreshes the
// item rather than failing.
func (c *ConversationClient) CreateParticipant(ctx context.Context, convoID string, user domain.User, role domain.ParticipantRole) (domain.Participant, error) {
	if role == "" {
		role = domain.RoleDefault
	}
	now := time.Now().UTC()

	item, err := attributevalue.MarshalMap(ddbParticipant{
		HK:          convoKey(convoID),
		SK:          userKey(user.ID),
		UserID:      user.ID,
		Email:       user.Email,
		Role:        string(role),
		CreatedDate: formatDate(now),
		UpdatedDate: formatDate(now),
	})
	if err != nil {
		return domain.Participant{}, fmt.Errorf("repository: CreateParticipant marshal: %w", err)
	}
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}); err != nil {
		return domain.Participant{}, fmt.Errorf("repository: CreateParticipant: %w", err)
	}

	return domain.Participant{
		ConvoID:     convoID,
		UserID:      user.ID,
		Email:       user.Email,
		Role:        role,
		CreatedDate: now,
		UpdatedDate: now,
	}, nil
}

func (c *ConversationClient) RemoveParticipant(ctx context.Context, convoID, userID string) (domain.Participant, error) {
	out, err := c.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"HK": &types.AttributeValueMemberS{Value: convoKey(convoID)},
			"SK": &types.AttributeValueMemberS{Value: userKey(userID)},
		},
		ConditionExpression: aws.String("attribute_exists(HK)"),
		ReturnValues:        types.ReturnValueAllOld,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return domain.Participant{}, apperror.New(apperror.RecordNotFound, "participant_missing", err)
		}
		return domain.Participant{}, fmt.Errorf("repository: RemoveParticipant: %w", err)
	}
	if out == nil || len(out.Attributes) == 0 {
		return domain.Participant{}, apperror.New(apperror.RecordNotFound, "participant_missing", nil)
	}
	return itemToParticipant(convoID, out.Attributes)
}

func (c *ConversationClient) GetParticipants(ctx context.Context, convoID string) ([]domain.Participant, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("HK = :hk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":hk":     &types.AttributeValueMemberS{Value: convoKey(convoID)},
			":prefix": &types.AttributeValueMemberS{Value: userPrefix},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetParticipants: %w", err)
	}

	participants := make([]domain.Participant, 0, len(out.Items))
	for _, item := range out.Items {
		p, err := itemToParticipant(convoID, item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetParticipants unmarshal: %w", err)
		}
		participants = append(participants, p)
	}
	return participants, nil
}

// CreateConnection records the live connection id on an existing participant.
// The condition expression requires the membership item to already exist, so
// a connection can never be orphaned onto a non-member.
func (c *ConversationClient) CreateConnection(ctx context.Context, in ConnectionInput) (domain.Participant, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"HK": &types.AttributeValueMemberS{Value: convoKey(in.ConvoID)},
			"SK": &types.AttributeValueMemberS{Value: userKey(in.UserID)},
		},
		UpdateExpression:    aws.String("SET connectionId = :c, updatedDate = :u"),
		ConditionExpression: aws.String("attribute_exists(HK) AND attribute_exists(SK)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: in.ConnID},
			":u": &types.AttributeValueMemberS{Value: formatDate(time.Now().UTC())},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return domain.Participant{}, apperror.New(apperror.RecordNotFound, "participant_missing", err)
		}
		return domain.Participant{}, fmt.Errorf("repository: CreateConnection: %w", err)
	}
	return itemToParticipant(in.ConvoID, out.Attributes)
}

// RemoveConnection clears the connection id. Disconnect may race a
// conversation leave, so the update is unconditional; removing the attribute
// from an absent item is harmless.
func (c *ConversationClient) RemoveConnection(ctx context.Context, in ConnectionInput) (domain.Participant, error) {
	out, err := c.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"HK": &types.AttributeValueMemberS{Value: convoKey(in.ConvoID)},
			"SK": &types.AttributeValueMemberS{Value: userKey(in.UserID)},
		},
		UpdateExpression: aws.String("REMOVE connectionId SET updatedDate = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: formatDate(time.Now().UTC())},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return domain.Participant{}, fmt.Errorf("repository: RemoveConnection: %w", err)
	}
	return itemToParticipant(in.ConvoID, out.Attributes)
}

// AppendEvent writes the event to the shard partition selected by its
// chronological sort key. Events are immutable once appended.
func (c *ConversationClient) AppendEvent(ctx context.Context, ev domain.Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	sortKey := eventSortKey(ev.Timestamp)
	shard := shardFor(sortKey, c.shardCount)
	now := time.Now().UTC()

	item, err := attributevalue.MarshalMap(ddbEvent{
		HK:            eventShardKey(ev.ConvoID, shard),
		SK:            sortKey,
		Action:        string(ev.Action),
		UserID:        ev.UserID,
		ConvoID:       ev.ConvoID,
		Text:          ev.Text,
		MediaURL:      ev.MediaURL,
		RecipientID:   ev.RecipientID,
		AttachmentURI: ev.AttachmentURI,
		CreatedDate:   formatDate(now),
		UpdatedDate:   formatDate(now),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendEvent marshal: %w", err)
	}
	if _, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item:      item,
	}); err != nil {
		return apperror.New(apperror.FailedInsert, "event_write_unconfirmed",
			fmt.Errorf("repository: AppendEvent: %w", err))
	}
	return nil
}

// GetEvents reads all shards of the conversation concurrently and returns
// the concatenated results. Each shard is chronologically ordered but the
// union is not merge-sorted, and opts is not applied; any shard query
// failure fails the whole read.
func (c *ConversationClient) GetEvents(ctx context.Context, convoID string, opts GetEventsOptions) ([]domain.Event, error) {
	_ = opts

	results := make([][]domain.Event, c.shardCount)
	g, ctx := errgroup.WithContext(ctx)
	for shard := 0; shard < c.shardCount; shard++ {
		shard := shard
		g.Go(func() error {
			events, err := c.queryEventShard(ctx, convoID, shard)
			if err != nil {
				return err
			}
			results[shard] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var events []domain.Event
	for _, shardEvents := range results {
		events = append(events, shardEvents...)
	}
	return events, nil
}

func (c *ConversationClient) queryEventShard(ctx context.Context, convoID string, shard int) ([]domain.Event, error) {
	out, err := c.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("HK = :hk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":hk":     &types.AttributeValueMemberS{Value: eventShardKey(convoID, shard)},
			":prefix": &types.AttributeValueMemberS{Value: eventPrefix},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("repository: GetEvents shard %d: %w", shard, err)
	}

	events := make([]domain.Event, 0, len(out.Items))
	for _, item := range out.Items {
		ev, err := itemToEvent(item)
		if err != nil {
			return nil, fmt.Errorf("repository: GetEvents shard %d unmarshal: %w", shard, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func itemToConversation(item map[string]types.AttributeValue) (domain.Conversation, error) {
	var raw ddbConversation
	if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: unmarshal conversation item: %w", err)
	}
	id, err := parseConvoID(raw.HK)
	if err != nil {
		return domain.Conversation{}, err
	}
	createdDate, err := parseDate(raw.CreatedDate)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: parse conversation createdDate: %w", err)
	}
	updatedDate, err := parseDate(raw.UpdatedDate)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("repository: parse conversation updatedDate: %w", err)
	}
	return domain.Conversation{
		ID:          id,
		Alias:       raw.Alias,
		AvatarURL:   raw.AvatarURL,
		CreatedDate: createdDate,
		UpdatedDate: updatedDate,
	}, nil
}

func itemToParticipant(convoID string, item map[string]types.AttributeValue) (domain.Participant, error) {
	var raw ddbParticipant
	if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
		return domain.Participant{}, fmt.Errorf("repository: unmarshal participant item: %w", err)
	}
	userID, err := parseUserID(raw.SK)
	if err != nil {
		return domain.Participant{}, err
	}
	createdDate, err := parseDate(raw.CreatedDate)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("repository: parse participant createdDate: %w", err)
	}
	updatedDate, err := parseDate(raw.UpdatedDate)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("repository: parse participant updatedDate: %w", err)
	}
	role := domain.ParticipantRole(raw.Role)
	if role == "" {
		role = domain.RoleDefault
	}
	return domain.Participant{
		ConvoID:      convoID,
		UserID:       userID,
		Email:        raw.Email,
		Role:         role,
		ConnectionID: raw.ConnectionID,
		CreatedDate:  createdDate,
		UpdatedDate:  updatedDate,
	}, nil
}

func itemToEvent(item map[string]types.AttributeValue) (domain.Event, error) {
	var raw ddbEvent
	if err := attributevalue.UnmarshalMap(item, &raw); err != nil {
		return domain.Event{}, fmt.Errorf("repository: unmarshal event item: %w", err)
	}
	ts, err := parseEventTimestamp(raw.SK)
	if err != nil {
		return domain.Event{}, err
	}
	return domain.Event{
		Action:        domain.EventAction(raw.Action),
		Timestamp:     ts,
		UserID:        raw.UserID,
		ConvoID:       raw.ConvoID,
		Text:          raw.Text,
		MediaURL:      raw.MediaURL,
		RecipientID:   raw.RecipientID,
		AttachmentURI: raw.AttachmentURI,
	}, nil
}
