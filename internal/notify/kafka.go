package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gamechiefx/flashmath-backend/internal/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MatchProducer 성사된 매치를 게임 엔진 쪽 컨슈머에게 넘기는 Kafka
// 프로듀서. 브로커 미설정 시 nil로 두면 모든 호출이 no-op이다.
type MatchProducer struct {
	writer *kafka.Writer
	logger *zap.Logger
}

// NewMatchProducer 매치 프로듀서 생성. 브로커가 없으면 nil을
// 반환하고 모든 호출은 no-op이 된다.
func NewMatchProducer(brokers []string, topic string, logger *zap.Logger) *MatchProducer {
	if len(brokers) == 0 {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		WriteTimeout: 10 * time.Second,
	}
	return &MatchProducer{writer: writer, logger: logger}
}

// PublishMatchFound 매치 성사 이벤트 발행
func (p *MatchProducer) PublishMatchFound(ctx context.Context, match *models.Match) {
	if p == nil {
		return
	}

	data, err := json.Marshal(match)
	if err != nil {
		p.logger.Error("Failed to marshal match", zap.Error(err))
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte("match-found"),
		Value: data,
	})
	if err != nil {
		p.logger.Error("Failed to publish match",
			zap.String("matchId", match.ID),
			zap.Error(err))
		return
	}

	p.logger.Debug("Published match-found event", zap.String("matchId", match.ID))
}

// Close 프로듀서 종료
func (p *MatchProducer) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
