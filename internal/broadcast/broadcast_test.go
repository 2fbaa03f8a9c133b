package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/stretchr/testify/require"

	"chat-backend/internal/domain"
)

// fakeGateway records every posted connection id and can fail selected
// connections. Safe for the concurrent posts Broadcast issues.
type fakeGateway struct {
	mu     sync.Mutex
	posted []string
	data   map[string][]byte
	errFor map[string]error
}

func (f *fakeGateway) PostToConnection(_ context.Context, in *apigatewaymanagementapi.PostToConnectionInput, _ ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	connID := aws.ToString(in.ConnectionId)
	f.posted = append(f.posted, connID)
	if f.data == nil {
		f.data = map[string][]byte{}
	}
	f.data[connID] = in.Data
	if err, ok := f.errFor[connID]; ok {
		return nil, err
	}
	return &apigatewaymanagementapi.PostToConnectionOutput{}, nil
}

func testEvent() domain.Event {
	return domain.Event{
		Action:    domain.ActionSendMessage,
		Timestamp: time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC),
		UserID:    "u1",
		ConvoID:   "c1",
		Text:      "hi",
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, slog.Default())
	require.Error(t, err)

	b, err := New(&fakeGateway{}, nil)
	require.NoError(t, err)
	require.NotNil(t, b)
}

func TestBroadcast_DeliversToConnectedParticipants(t *testing.T) {
	gw := &fakeGateway{}
	b, err := New(gw, slog.Default())
	require.NoError(t, err)

	participants := []domain.Participant{
		{ConvoID: "c1", UserID: "u1", ConnectionID: "conn-1"},
		{ConvoID: "c1", UserID: "u2", ConnectionID: "conn-2"},
	}
	require.NoError(t, b.Broadcast(context.Background(), testEvent(), participants))
	require.ElementsMatch(t, []string{"conn-1", "conn-2"}, gw.posted)
	require.Contains(t, string(gw.data["conn-1"]), `"sendMessage"`)
}

func TestBroadcast_SkipsParticipantsWithoutConnection(t *testing.T) {
	gw := &fakeGateway{}
	b, err := New(gw, slog.Default())
	require.NoError(t, err)

	participants := []domain.Participant{
		{ConvoID: "c1", UserID: "u1", ConnectionID: "conn-1"},
		{ConvoID: "c1", UserID: "u2"},
	}
	require.NoError(t, b.Broadcast(context.Background(), testEvent(), participants))
	require.Equal(t, []string{"conn-1"}, gw.posted)
}

func TestBroadcast_StaleConnectionIsNotAnError(t *testing.T) {
	gw := &fakeGateway{errFor: map[string]error{
		"conn-1": &types.GoneException{Message: aws.String("gone")},
	}}
	b, err := New(gw, slog.Default())
	require.NoError(t, err)

	participants := []domain.Participant{
		{ConvoID: "c1", UserID: "u1", ConnectionID: "conn-1"},
		{ConvoID: "c1", UserID: "u2", ConnectionID: "conn-2"},
	}
	require.NoError(t, b.Broadcast(context.Background(), testEvent(), participants))
	require.ElementsMatch(t, []string{"conn-1", "conn-2"}, gw.posted)
}

func TestBroadcast_HardFailureStillAttemptsEveryone(t *testing.T) {
	gw := &fakeGateway{errFor: map[string]error{
		"conn-1": errors.New("LimitExceededException"),
		"conn-3": errors.New("PayloadTooLargeException"),
	}}
	b, err := New(gw, slog.Default())
	require.NoError(t, err)

	participants := []domain.Participant{
		{ConvoID: "c1", UserID: "u1", ConnectionID: "conn-1"},
		{ConvoID: "c1", UserID: "u2", ConnectionID: "conn-2"},
		{ConvoID: "c1", UserID: "u3", ConnectionID: "conn-3"},
	}
	err = b.Broadcast(context.Background(), testEvent(), participants)
	require.Error(t, err)
	require.Contains(t, err.Error(), "conn-1")
	require.Contains(t, err.Error(), "conn-3")
	require.NotContains(t, err.Error(), "post to connection conn-2")
	require.ElementsMatch(t, []string{"conn-1", "conn-2", "conn-3"}, gw.posted)
}

func TestBroadcast_NoParticipants(t *testing.T) {
	gw := &fakeGateway{}
	b, err := New(gw, slog.Default())
	require.NoError(t, err)
	require.NoError(t, b.Broadcast(context.Background(), testEvent(), nil))
	require.Empty(t, gw.posted)
}
