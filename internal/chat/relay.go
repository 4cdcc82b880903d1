package chat

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// deliveryChannel carries per-recipient frames between process instances.
const deliveryChannel = "chat-delivery"

// relayEnvelope wraps one recipient's DeliveryFrame on the wire. Origin lets
// an instance skip its own publishes: local sessions are already pushed
// directly by the engine, so replaying them would duplicate deliveries.
type relayEnvelope struct {
	Origin      string        `json:"origin"`
	RecipientID int           `json:"recipient_id"`
	Frame       DeliveryFrame `json:"frame"`
}

// RedisRelay fans per-recipient deliveries out across instances over a Redis
// pub/sub channel. Each envelope holds exactly one recipient's wrapped key,
// so the isolation invariant holds on the wire too.
type RedisRelay struct {
	client   *redis.Client
	registry *Registry
	instance uuid.UUID
	log      *slog.Logger
}

func NewRedisRelay(client *redis.Client, registry *Registry, log *slog.Logger) *RedisRelay {
	return &RedisRelay{
		client:   client,
		registry: registry,
		instance: uuid.New(),
		log:      log,
	}
}

// Publish sends one recipient's frame to the other instances.
func (r *RedisRelay) Publish(ctx context.Context, recipientID int, frame DeliveryFrame) error {
	payload, err := json.Marshal(relayEnvelope{
		Origin:      r.instance.String(),
		RecipientID: recipientID,
		Frame:       frame,
	})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, deliveryChannel, payload).Err()
}

// Run subscribes to the delivery channel and pushes foreign frames to the
// recipient's local sessions. Blocks until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) {
	pubsub := r.client.Subscribe(ctx, deliveryChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.dispatch(msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (r *RedisRelay) dispatch(payload string) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Error("relay: malformed envelope", "err", err)
		return
	}
	// Our own publish; local sessions were served already
	if env.Origin == r.instance.String() {
		return
	}

	framePayload, err := json.Marshal(env.Frame)
	if err != nil {
		r.log.Error("relay: marshal frame", "err", err)
		return
	}
	for _, session := range r.registry.SessionsFor(env.RecipientID) {
		if !session.Sink.Push(framePayload) {
			r.log.Warn("relay: session backed up, dropping push",
				"recipient_id", env.RecipientID,
				"session", session.Handle,
			)
		}
	}
}
