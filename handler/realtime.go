package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aws/aws-lambda-go/events"

	"chat-backend/internal/apperror"
	"chat-backend/internal/domain"
	"chat-backend/internal/repository"
)

// EventPusher delivers an event to the connected subset of participants.
// *broadcast.Broadcaster satisfies it.
type EventPusher interface {
	Broadcast(ctx context.Context, ev domain.Event, participants []domain.Participant) error
}

// PusherFactory builds an EventPusher bound to the management API endpoint
// of the invoking WebSocket stage. The endpoint is only known per request
// (domain name + stage), so construction is deferred to dispatch time.
type PusherFactory func(endpoint string) (EventPusher, error)

// RealtimeHandler dispatches WebSocket route events onto the conversation
// store and the broadcaster.
type RealtimeHandler struct {
	convos    repository.ConversationStore
	newPusher PusherFactory
	logger    *slog.Logger
}

// NewRealtimeHandler creates a RealtimeHandler.
func NewRealtimeHandler(convos repository.ConversationStore, newPusher PusherFactory, logger *slog.Logger) (*RealtimeHandler, error) {
	if convos == nil {
		return nil, errors.New("handler: conversation store must not be nil")
	}
	if newPusher == nil {
		return nil, errors.New("handler: pusher factory must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RealtimeHandler{convos: convos, newPusher: newPusher, logger: logger}, nil
}

// Handle dispatches one WebSocket proxy request by route key: $connect
// records the connection on the sender's participant item, $disconnect
// clears it, and $default appends the event and fans it out to every live
// participant.
func (h *RealtimeHandler) Handle(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	var err error
	switch req.RequestContext.RouteKey {
	case "$connect":
		err = h.onConnect(ctx, req)
	case "$disconnect":
		err = h.onDisconnect(ctx, req)
	case "$default":
		err = h.onMessage(ctx, req)
	default:
		return plainResult(http.StatusNotFound), nil
	}

	if err != nil {
		if apperror.OperationalOf(err) {
			h.logger.Info("websocket route failed", "routeKey", req.RequestContext.RouteKey, "err", err)
		} else {
			h.logger.Error("websocket route failed", "routeKey", req.RequestContext.RouteKey, "err", err)
		}
		return plainResult(apperror.StatusOf(err)), nil
	}
	return plainResult(http.StatusOK), nil
}

func (h *RealtimeHandler) onConnect(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) error {
	ev, err := parseBodyEvent(req)
	if err != nil {
		return err
	}
	_, err = h.convos.CreateConnection(ctx, repository.ConnectionInput{
		ConvoID: ev.ConvoID,
		UserID:  ev.UserID,
		ConnID:  req.RequestContext.ConnectionID,
	})
	return err
}

func (h *RealtimeHandler) onDisconnect(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) error {
	ev, err := parseBodyEvent(req)
	if err != nil {
		return err
	}
	_, err = h.convos.RemoveConnection(ctx, repository.ConnectionInput{
		ConvoID: ev.ConvoID,
		UserID:  ev.UserID,
	})
	return err
}

// onMessage appends the event to the conversation log and, only after the
// append is confirmed, broadcasts it to the currently connected
// participants.
func (h *RealtimeHandler) onMessage(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) error {
	ev, err := parseBodyEvent(req)
	if err != nil {
		return err
	}
	if err := h.convos.AppendEvent(ctx, ev); err != nil {
		return err
	}

	participants, err := h.convos.GetParticipants(ctx, ev.ConvoID)
	if err != nil {
		return err
	}
	pusher, err := h.newPusher(managementEndpoint(req))
	if err != nil {
		return err
	}
	return pusher.Broadcast(ctx, ev, participants)
}

func parseBodyEvent(req events.APIGatewayWebsocketProxyRequest) (domain.Event, error) {
	if req.Body == "" {
		return domain.Event{}, apperror.New(apperror.InvalidRequestBody, "empty_body", nil)
	}
	return domain.ParseEvent([]byte(req.Body))
}

func managementEndpoint(req events.APIGatewayWebsocketProxyRequest) string {
	return req.RequestContext.DomainName + "/" + req.RequestContext.Stage
}

func plainResult(status int) events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: status}
}
