package handler

import (
	"context"

	"chat-backend/internal/domain"
	"chat-backend/internal/repository"
)

// stubUserStore returns canned values per method and records calls in order.
type stubUserStore struct {
	calls []string

	user        domain.User
	userErr     error
	memberships []domain.UserConversation
	memberErr   error
	linkErr     error
}

func (s *stubUserStore) CreateUser(_ context.Context, dto domain.CreateUserInput) (domain.User, error) {
	s.calls = append(s.calls, "CreateUser")
	if s.userErr != nil {
		return domain.User{}, s.userErr
	}
	u := s.user
	u.Email = dto.Email
	return u, nil
}

func (s *stubUserStore) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.calls = append(s.calls, "GetUser:"+userID)
	if s.userErr != nil {
		return domain.User{}, s.userErr
	}
	u := s.user
	u.ID = userID
	return u, nil
}

func (s *stubUserStore) ReplaceUser(_ context.Context, userID string, dto domain.CreateUserInput) (domain.User, error) {
	s.calls = append(s.calls, "ReplaceUser:"+userID)
	if s.userErr != nil {
		return domain.User{}, s.userErr
	}
	u := s.user
	u.ID = userID
	u.Email = dto.Email
	return u, nil
}

func (s *stubUserStore) RemoveUser(_ context.Context, userID string) (domain.User, error) {
	s.calls = append(s.calls, "RemoveUser:"+userID)
	if s.userErr != nil {
		return domain.User{}, s.userErr
	}
	u := s.user
	u.ID = userID
	return u, nil
}

func (s *stubUserStore) AppendUserConversation(_ context.Context, userID, convoID string) (domain.UserConversation, error) {
	s.calls = append(s.calls, "AppendUserConversation:"+userID+":"+convoID)
	if s.linkErr != nil {
		return domain.UserConversation{}, s.linkErr
	}
	return domain.UserConversation{UserID: userID, ConvoID: convoID}, nil
}

func (s *stubUserStore) RemoveUserConversation(_ context.Context, userID, convoID string) (domain.UserConversation, error) {
	s.calls = append(s.calls, "RemoveUserConversation:"+userID+":"+convoID)
	if s.linkErr != nil {
		return domain.UserConversation{}, s.linkErr
	}
	return domain.UserConversation{UserID: userID, ConvoID: convoID}, nil
}

func (s *stubUserStore) GetUserConversations(_ context.Context, userID string) ([]domain.UserConversation, error) {
	s.calls = append(s.calls, "GetUserConversations:"+userID)
	if s.memberErr != nil {
		return nil, s.memberErr
	}
	return s.memberships, nil
}

// stubConvoStore mirrors stubUserStore for the conversation operations.
type stubConvoStore struct {
	calls []string

	convo          domain.Conversation
	convoErr       error
	participant    domain.Participant
	participants   []domain.Participant
	participantErr error
	events         []domain.Event
	appendErr      error
	eventsErr      error
	connErr        error

	lastConnection repository.ConnectionInput
	appended       []domain.Event
}

func (s *stubConvoStore) CreateConversation(_ context.Context, dto domain.CreateConversationInput) (domain.Conversation, error) {
	s.calls = append(s.calls, "CreateConversation")
	if s.convoErr != nil {
		return domain.Conversation{}, s.convoErr
	}
	c := s.convo
	c.Alias = dto.Alias
	return c, nil
}

func (s *stubConvoStore) GetConversation(_ context.Context, convoID string) (domain.Conversation, error) {
	s.calls = append(s.calls, "GetConversation:"+convoID)
	if s.convoErr != nil {
		return domain.Conversation{}, s.convoErr
	}
	c := s.convo
	c.ID = convoID
	return c, nil
}

func (s *stubConvoStore) RemoveConversation(_ context.Context, convoID string) (domain.Conversation, error) {
	s.calls = append(s.calls, "RemoveConversation:"+convoID)
	if s.convoErr != nil {
		return domain.Conversation{}, s.convoErr
	}
	c := s.convo
	c.ID = convoID
	return c, nil
}

func (s *stubConvoStore) CreateParticipant(_ context.Context, convoID string, user domain.User, role domain.ParticipantRole) (domain.Participant, error) {
	s.calls = append(s.calls, "CreateParticipant:"+convoID+":"+user.ID+":"+string(role))
	if s.participantErr != nil {
		return domain.Participant{}, s.participantErr
	}
	return domain.Participant{ConvoID: convoID, UserID: user.ID, Email: user.Email, Role: role}, nil
}

func (s *stubConvoStore) RemoveParticipant(_ context.Context, convoID, userID string) (domain.Participant, error) {
	s.calls = append(s.calls, "RemoveParticipant:"+convoID+":"+userID)
	if s.participantErr != nil {
		return domain.Participant{}, s.participantErr
	}
	return domain.Participant{ConvoID: convoID, UserID: userID}, nil
}

func (s *stubConvoStore) GetParticipants(_ context.Context, convoID string) ([]domain.Participant, error) {
	s.calls = append(s.calls, "GetParticipants:"+convoID)
	if s.participantErr != nil {
		return nil, s.participantErr
	}
	return s.participants, nil
}

func (s *stubConvoStore) CreateConnection(_ context.Context, in repository.ConnectionInput) (domain.Participant, error) {
	s.calls = append(s.calls, "CreateConnection:"+in.ConvoID+":"+in.UserID)
	s.lastConnection = in
	if s.connErr != nil {
		return domain.Participant{}, s.connErr
	}
	return s.participant, nil
}

func (s *stubConvoStore) RemoveConnection(_ context.Context, in repository.ConnectionInput) (domain.Participant, error) {
	s.calls = append(s.calls, "RemoveConnection:"+in.ConvoID+":"+in.UserID)
	s.lastConnection = in
	if s.connErr != nil {
		return domain.Participant{}, s.connErr
	}
	return s.participant, nil
}

func (s *stubConvoStore) AppendEvent(_ context.Context, ev domain.Event) error {
	s.calls = append(s.calls, "AppendEvent:"+string(ev.Action))
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, ev)
	return nil
}

func (s *stubConvoStore) GetEvents(_ context.Context, convoID string, _ repository.GetEventsOptions) ([]domain.Event, error) {
	s.calls = append(s.calls, "GetEvents:"+convoID)
	if s.eventsErr != nil {
		return nil, s.eventsErr
	}
	return s.events, nil
}
