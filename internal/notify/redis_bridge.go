package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventChannel = "party:events"

// envelope 인스턴스 간 이벤트 전달용 래핑
type envelope struct {
	Origin  string            `json:"origin"`
	UserIDs []string          `json:"userIds"`
	Event   models.PartyEvent `json:"event"`
}

// RedisBridge Redis Pub/Sub으로 다른 인스턴스의 Hub까지 이벤트를
// 전달하는 Notifier. 로컬 Hub에는 즉시 전달하고, 구독 루프는 자신이
// 발행한 메시지를 건너뛴다.
type RedisBridge struct {
	client     *redis.Client
	local      Notifier
	logger     *zap.Logger
	instanceID string

	stopChan  chan struct{}
	cancelSub context.CancelFunc
}

// NewRedisBridge Redis 브리지 생성
func NewRedisBridge(client *redis.Client, local Notifier, logger *zap.Logger) *RedisBridge {
	return &RedisBridge{
		client:     client,
		local:      local,
		logger:     logger,
		instanceID: uuid.New().String(),
		stopChan:   make(chan struct{}),
	}
}

// PublishToUsers 로컬 전달 + Redis 발행
func (b *RedisBridge) PublishToUsers(userIDs []string, event models.PartyEvent) {
	b.local.PublishToUsers(userIDs, event)

	data, err := json.Marshal(envelope{
		Origin:  b.instanceID,
		UserIDs: userIDs,
		Event:   event,
	})
	if err != nil {
		b.logger.Error("Failed to marshal party event", zap.Error(err))
		return
	}

	if err := b.client.Publish(context.Background(), eventChannel, data).Err(); err != nil {
		b.logger.Error("Failed to publish party event", zap.Error(err))
	}
}

// Start 구독 루프 시작
func (b *RedisBridge) Start(ctx context.Context) error {
	subCtx, cancel := context.WithCancel(ctx)
	b.cancelSub = cancel

	pubsub := b.client.Subscribe(subCtx, eventChannel)

	// 구독 확인
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	b.logger.Info("Notification bridge started",
		zap.String("instanceId", b.instanceID),
		zap.String("channel", eventChannel))

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case msg := <-ch:
				if msg == nil {
					continue
				}

				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					b.logger.Error("Failed to unmarshal party event", zap.Error(err))
					continue
				}

				// 자신이 발행한 이벤트는 이미 로컬 전달됨
				if env.Origin == b.instanceID {
					continue
				}
				b.local.PublishToUsers(env.UserIDs, env.Event)

			case <-b.stopChan:
				return
			case <-subCtx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop 구독 루프 중지
func (b *RedisBridge) Stop() {
	close(b.stopChan)
	if b.cancelSub != nil {
		b.cancelSub()
	}
}
