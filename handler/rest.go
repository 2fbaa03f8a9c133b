// Package handler adapts API Gateway events to the repository and broadcast
// operations. The routing here is deliberately thin: every route consumes
// exactly one or a few store operations and maps errors through the apperror
// taxonomy.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"chat-backend/internal/apperror"
	"chat-backend/internal/domain"
	"chat-backend/internal/repository"
)

const correlationHeader = "X-Correlation-Id"

// RestHandler routes the HTTP surface onto the user and conversation stores.
type RestHandler struct {
	users  repository.UserStore
	convos repository.ConversationStore
	logger *slog.Logger
}

// NewRestHandler creates a RestHandler.
func NewRestHandler(users repository.UserStore, convos repository.ConversationStore, logger *slog.Logger) (*RestHandler, error) {
	if users == nil {
		return nil, errors.New("handler: user store must not be nil")
	}
	if convos == nil {
		return nil, errors.New("handler: conversation store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RestHandler{users: users, convos: convos, logger: logger}, nil
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

type createParticipantRequest struct {
	UserID string                 `json:"userId"`
	Role   domain.ParticipantRole `json:"role,omitempty"`
}

type createConversationRequest struct {
	domain.CreateConversationInput
	ParticipantIDs []string `json:"participantIds,omitempty"`
}

type createConversationResponse struct {
	Conversation domain.Conversation  `json:"conversation"`
	Participants []domain.Participant `json:"participants"`
}

type removeUserResponse struct {
	User     domain.User `json:"user"`
	ConvoIDs []string    `json:"convoIds"`
}

// Handle dispatches one API Gateway proxy request.
func (h *RestHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)

	body, status, err := h.route(ctx, req)
	if err != nil {
		return h.errorResult(corrID, req, err), nil
	}
	return jsonResult(corrID, status, body), nil
}

func (h *RestHandler) route(ctx context.Context, req events.APIGatewayProxyRequest) (any, int, error) {
	segs := splitPath(req.Path)

	switch {
	case len(segs) == 1 && segs[0] == "users" && req.HTTPMethod == http.MethodPost:
		return h.createUser(ctx, req.Body)
	case len(segs) == 2 && segs[0] == "users" && req.HTTPMethod == http.MethodGet:
		return h.getUser(ctx, segs[1])
	case len(segs) == 2 && segs[0] == "users" && req.HTTPMethod == http.MethodPut:
		return h.replaceUser(ctx, segs[1], req.Body)
	case len(segs) == 2 && segs[0] == "users" && req.HTTPMethod == http.MethodDelete:
		return h.removeUser(ctx, segs[1])
	case len(segs) == 3 && segs[0] == "users" && segs[2] == "conversations" && req.HTTPMethod == http.MethodGet:
		return h.getUserConversations(ctx, segs[1])
	case len(segs) == 1 && segs[0] == "conversations" && req.HTTPMethod == http.MethodPost:
		return h.createConversation(ctx, req.Body)
	case len(segs) == 2 && segs[0] == "conversations" && req.HTTPMethod == http.MethodGet:
		return h.getConversation(ctx, segs[1])
	case len(segs) == 2 && segs[0] == "conversations" && req.HTTPMethod == http.MethodDelete:
		return h.removeConversation(ctx, segs[1])
	case len(segs) == 3 && segs[0] == "conversations" && segs[2] == "participants" && req.HTTPMethod == http.MethodPost:
		return h.createParticipant(ctx, segs[1], req.Body)
	case len(segs) == 3 && segs[0] == "conversations" && segs[2] == "participants" && req.HTTPMethod == http.MethodGet:
		return h.getParticipants(ctx, segs[1])
	case len(segs) == 4 && segs[0] == "conversations" && segs[2] == "participants" && req.HTTPMethod == http.MethodDelete:
		return h.removeParticipant(ctx, segs[1], segs[3])
	case len(segs) == 3 && segs[0] == "conversations" && segs[2] == "events" && req.HTTPMethod == http.MethodGet:
		return h.getEvents(ctx, segs[1], req.QueryStringParameters)
	default:
		return nil, 0, apperror.New(apperror.RecordNotFound, "unknown_route", nil)
	}
}

func (h *RestHandler) createUser(ctx context.Context, body string) (any, int, error) {
	var dto domain.CreateUserInput
	if err := decodeBody(body, &dto); err != nil {
		return nil, 0, err
	}
	user, err := h.users.CreateUser(ctx, dto)
	if err != nil {
		return nil, 0, err
	}
	return user, http.StatusCreated, nil
}

func (h *RestHandler) getUser(ctx context.Context, userID string) (any, int, error) {
	user, err := h.users.GetUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return user, http.StatusOK, nil
}

func (h *RestHandler) replaceUser(ctx context.Context, userID, body string) (any, int, error) {
	var dto domain.CreateUserInput
	if err := decodeBody(body, &dto); err != nil {
		return nil, 0, err
	}
	user, err := h.users.ReplaceUser(ctx, userID, dto)
	if err != nil {
		return nil, 0, err
	}
	return user, http.StatusOK, nil
}

// removeUser detaches the user from every joined conversation before
// deleting the user item itself.
func (h *RestHandler) removeUser(ctx context.Context, userID string) (any, int, error) {
	memberships, err := h.users.GetUserConversations(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	convoIDs := make([]string, 0, len(memberships))
	for _, m := range memberships {
		if _, err := h.users.RemoveUserConversation(ctx, m.UserID, m.ConvoID); err != nil {
			return nil, 0, err
		}
		convoIDs = append(convoIDs, m.ConvoID)
	}
	user, err := h.users.RemoveUser(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return removeUserResponse{User: user, ConvoIDs: convoIDs}, http.StatusOK, nil
}

func (h *RestHandler) getUserConversations(ctx context.Context, userID string) (any, int, error) {
	memberships, err := h.users.GetUserConversations(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return memberships, http.StatusOK, nil
}

// createConversation creates the conversation and joins the requested
// participants as administrators, recording the membership on each user.
func (h *RestHandler) createConversation(ctx context.Context, body string) (any, int, error) {
	var req createConversationRequest
	if err := decodeBody(body, &req); err != nil {
		return nil, 0, err
	}

	users := make([]domain.User, 0, len(req.ParticipantIDs))
	for _, userID := range req.ParticipantIDs {
		user, err := h.users.GetUser(ctx, userID)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}

	convo, err := h.convos.CreateConversation(ctx, req.CreateConversationInput)
	if err != nil {
		return nil, 0, err
	}

	participants := make([]domain.Participant, 0, len(users))
	for _, user := range users {
		p, err := h.convos.CreateParticipant(ctx, convo.ID, user, domain.RoleAdministrator)
		if err != nil {
			return nil, 0, err
		}
		if _, err := h.users.AppendUserConversation(ctx, user.ID, convo.ID); err != nil {
			return nil, 0, err
		}
		participants = append(participants, p)
	}

	return createConversationResponse{Conversation: convo, Participants: participants}, http.StatusCreated, nil
}

func (h *RestHandler) getConversation(ctx context.Context, convoID string) (any, int, error) {
	convo, err := h.convos.GetConversation(ctx, convoID)
	if err != nil {
		return nil, 0, err
	}
	return convo, http.StatusOK, nil
}

func (h *RestHandler) removeConversation(ctx context.Context, convoID string) (any, int, error) {
	convo, err := h.convos.RemoveConversation(ctx, convoID)
	if err != nil {
		return nil, 0, err
	}
	return convo, http.StatusOK, nil
}

func (h *RestHandler) createParticipant(ctx context.Context, convoID, body string) (any, int, error) {
	var req createParticipantRequest
	if err := decodeBody(body, &req); err != nil {
		return nil, 0, err
	}
	user, err := h.users.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, 0, err
	}
	participant, err := h.convos.CreateParticipant(ctx, convoID, user, req.Role)
	if err != nil {
		return nil, 0, err
	}
	if _, err := h.users.AppendUserConversation(ctx, user.ID, convoID); err != nil {
		return nil, 0, err
	}
	return participant, http.StatusCreated, nil
}

func (h *RestHandler) getParticipants(ctx context.Context, convoID string) (any, int, error) {
	participants, err := h.convos.GetParticipants(ctx, convoID)
	if err != nil {
		return nil, 0, err
	}
	return participants, http.StatusOK, nil
}

func (h *RestHandler) removeParticipant(ctx context.Context, convoID, userID string) (any, int, error) {
	participant, err := h.convos.RemoveParticipant(ctx, convoID, userID)
	if err != nil {
		return nil, 0, err
	}
	if _, err := h.users.RemoveUserConversation(ctx, userID, convoID); err != nil {
		return nil, 0, err
	}
	return participant, http.StatusOK, nil
}

// getEvents accepts the after/before/limit filters for forward compatibility;
// the store currently returns the full log (see repository.GetEventsOptions).
func (h *RestHandler) getEvents(ctx context.Context, convoID string, query map[string]string) (any, int, error) {
	opts, err := parseEventsQuery(query)
	if err != nil {
		return nil, 0, err
	}
	evs, err := h.convos.GetEvents(ctx, convoID, opts)
	if err != nil {
		return nil, 0, err
	}
	return evs, http.StatusOK, nil
}

func parseEventsQuery(query map[string]string) (repository.GetEventsOptions, error) {
	var opts repository.GetEventsOptions
	if raw, ok := query["after"]; ok && raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return opts, apperror.New(apperror.InvalidRequestBody, "malformed_after", err)
		}
		opts.After = &ts
	}
	if raw, ok := query["before"]; ok && raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return opts, apperror.New(apperror.InvalidRequestBody, "malformed_before", err)
		}
		opts.Before = &ts
	}
	if raw, ok := query["limit"]; ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, apperror.New(apperror.InvalidRequestBody, "malformed_limit", err)
		}
		opts.Limit = n
	}
	return opts, nil
}

func (h *RestHandler) errorResult(corrID string, req events.APIGatewayProxyRequest, err error) events.APIGatewayProxyResponse {
	if apperror.OperationalOf(err) {
		h.logger.Info("request failed", "method", req.HTTPMethod, "path", req.Path, "err", err)
	} else {
		h.logger.Error("request failed", "method", req.HTTPMethod, "path", req.Path, "err", err)
	}
	return jsonResult(corrID, apperror.StatusOf(err), toErrorResponse(err))
}

func toErrorResponse(err error) errorResponse {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return errorResponse{Error: string(appErr.Kind), Reason: appErr.Reason}
	}
	return errorResponse{Error: "InternalError"}
}

func decodeBody(body string, out any) error {
	if strings.TrimSpace(body) == "" {
		return apperror.New(apperror.InvalidRequestBody, "empty_body", nil)
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return apperror.New(apperror.InvalidJSON, "malformed_json", err)
	}
	return nil
}

func jsonResult(corrID string, status int, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		raw = []byte(`{"error":"InternalError"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(raw),
	}
}

func splitPath(path string) []string {
	var segs []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segs = append(segs, s)
		}
	}
	return segs
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
