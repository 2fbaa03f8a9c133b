// Package broadcast fans a conversation event out to every participant
// holding a live WebSocket connection through the API Gateway Management API.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"

	"chat-backend/internal/domain"
)

// gatewayAPI is the minimal management API interface required by
// Broadcaster. *apigatewaymanagementapi.Client satisfies it.
type gatewayAPI interface {
	PostToConnection(ctx context.Context, in *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// Broadcaster delivers events to live connections. Delivery is best-effort,
// at-most-once per connection per attempt.
type Broadcaster struct {
	api    gatewayAPI
	logger *slog.Logger
}

// New creates a Broadcaster.
func New(api gatewayAPI, logger *slog.Logger) (*Broadcaster, error) {
	if api == nil {
		return nil, errors.New("broadcast: api must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{api: api, logger: logger}, nil
}

// Broadcast posts the event to every participant with a connection id,
// concurrently, and returns only once every attempted delivery has settled.
// A recipient whose connection is gone is logged and skipped; any other
// delivery failure is collected and returned joined after all attempts
// complete. Delivery order across participants is unspecified.
func (b *Broadcaster) Broadcast(ctx context.Context, ev domain.Event, participants []domain.Participant) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("broadcast: marshal event: %w", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, p := range participants {
		if p.ConnectionID == "" {
			continue
		}
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.api.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
				ConnectionId: aws.String(p.ConnectionID),
				Data:         payload,
			})
			if err == nil {
				return
			}
			var gone *types.GoneException
			if errors.As(err, &gone) {
				b.logger.Info("skipping stale connection",
					"connectionId", p.ConnectionID,
					"userId", p.UserID,
					"convoId", p.ConvoID)
				return
			}
			mu.Lock()
			errs = append(errs, fmt.Errorf("broadcast: post to connection %s: %w", p.ConnectionID, err))
			mu.Unlock()
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
