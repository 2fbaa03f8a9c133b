package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"chat-backend/internal/apperror"
)

// Key prefixes disambiguate entity kinds within the single table. They are
// fixed and collision-free: a user item, a conversation item, a participant
// item and an event item can never share a (HK, SK) pair.
const (
	userPrefix  = "USER:"
	convoPrefix = "CONVO:"
	eventPrefix = "EVENT:"
	shardInfix  = "#PART."
)

// userKey returns the partition key of a user item. User items use the same
// value for both HK and SK.
func userKey(userID string) string {
	return userPrefix + userID
}

// convoKey returns the partition key of a conversation item. Conversation
// items use the same value for both HK and SK; participant items share the
// conversation's HK with a userKey SK.
func convoKey(convoID string) string {
	return convoPrefix + convoID
}

// eventShardKey returns the partition key of one event shard of a
// conversation.
func eventShardKey(convoID string, shard int) string {
	return convoPrefix + convoID + shardInfix + strconv.Itoa(shard)
}

// eventSortKey returns the chronological sort key for an event.
func eventSortKey(ts time.Time) string {
	return eventPrefix + ts.UTC().Format(time.RFC3339Nano)
}

func parseUserID(key string) (string, error) {
	id, ok := strings.CutPrefix(key, userPrefix)
	if !ok || id == "" {
		return "", apperror.New(apperror.MalformedKey, "bad_user_key",
			fmt.Errorf("repository: key %q lacks %q prefix", key, userPrefix))
	}
	return id, nil
}

func parseConvoID(key string) (string, error) {
	id, ok := strings.CutPrefix(key, convoPrefix)
	if !ok || id == "" {
		return "", apperror.New(apperror.MalformedKey, "bad_convo_key",
			fmt.Errorf("repository: key %q lacks %q prefix", key, convoPrefix))
	}
	// Strip any shard suffix so event partition keys parse to the bare id.
	if i := strings.Index(id, shardInfix); i >= 0 {
		id = id[:i]
	}
	if id == "" {
		return "", apperror.New(apperror.MalformedKey, "bad_convo_key",
			fmt.Errorf("repository: key %q has empty conversation id", key))
	}
	return id, nil
}

func parseEventTimestamp(sortKey string) (time.Time, error) {
	raw, ok := strings.CutPrefix(sortKey, eventPrefix)
	if !ok {
		return time.Time{}, apperror.New(apperror.MalformedKey, "bad_event_key",
			fmt.Errorf("repository: key %q lacks %q prefix", sortKey, eventPrefix))
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, apperror.New(apperror.MalformedKey, "bad_event_timestamp",
			fmt.Errorf("repository: parse event timestamp %q: %w", raw, err))
	}
	return ts, nil
}
