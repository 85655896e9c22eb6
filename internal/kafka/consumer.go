package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/arcade-hub/internal/config"
	"github.com/arcade-hub/internal/domain"
)

// flushTimeout bounds a single batch write to the recorder.
const flushTimeout = 10 * time.Second

// ScoreRecorder ingests finished runs. Satisfied by the hub service.
type ScoreRecorder interface {
	RecordScore(ctx context.Context, sub domain.ScoreSubmission) error
	RecordScoreBatch(ctx context.Context, subs []domain.ScoreSubmission) error
}

// Consumer reads score submissions off Kafka and feeds them to the
// recorder in batches. This is the channel by which game processes
// report finished runs.
type Consumer struct {
	config        *config.KafkaConfig
	recorder      ScoreRecorder
	logger        *slog.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	sessionUp     chan bool
}

// NewConsumer connects to the broker and prepares a consumer group.
func NewConsumer(cfg *config.KafkaConfig, recorder ScoreRecorder, logger *slog.Logger) (*Consumer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("joining consumer group: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		config:        cfg,
		recorder:      recorder,
		logger:        logger,
		consumerGroup: consumerGroup,
		ctx:           ctx,
		cancel:        cancel,
		sessionUp:     make(chan bool),
	}, nil
}

// Start joins the consumer group and begins feeding the recorder. It
// returns once the first session is established.
func (c *Consumer) Start() error {
	c.logger.Info("starting score intake",
		"brokers", c.config.Brokers,
		"topic", c.config.Topic,
		"group_id", c.config.GroupID,
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			handler := &intakeHandler{c: c, sessionUp: c.sessionUp}

			if err := c.consumerGroup.Consume(c.ctx, []string{c.config.Topic}, handler); err != nil {
				if err == sarama.ErrClosedConsumerGroup {
					return
				}
				c.logger.Error("consume session failed", "error", err)
			}

			if c.ctx.Err() != nil {
				return
			}

			// A rebalance ended the session; rejoin with a fresh gate.
			c.sessionUp = make(chan bool)
		}
	}()

	<-c.sessionUp
	c.logger.Info("score intake ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.logger.Error("consumer group error", "error", err)
			}
		}
	}()

	return nil
}

// Stop leaves the group and waits for in-flight batches to land.
func (c *Consumer) Stop() error {
	c.logger.Info("stopping score intake")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

type intakeHandler struct {
	c         *Consumer
	sessionUp chan bool
}

func (h *intakeHandler) Setup(sarama.ConsumerGroupSession) error {
	close(h.sessionUp)
	return nil
}

func (h *intakeHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim accumulates submissions and flushes them when the batch
// fills, the timer fires, or the session ends.
func (h *intakeHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	cfg := h.c.config
	pending := make([]domain.ScoreSubmission, 0, cfg.BatchSize)
	flushTimer := time.NewTimer(cfg.BatchTimeout)
	defer flushTimer.Stop()

	for {
		select {
		case <-session.Context().Done():
			h.flush(pending, "session closed")
			return nil

		case <-flushTimer.C:
			pending = h.flush(pending, "timer")
			flushTimer.Reset(cfg.BatchTimeout)

		case message, ok := <-claim.Messages():
			if !ok {
				h.flush(pending, "claim drained")
				return nil
			}

			sub, valid := h.decode(message)
			session.MarkMessage(message, "")
			if !valid {
				continue
			}

			pending = append(pending, sub)
			if len(pending) >= cfg.BatchSize {
				pending = h.flush(pending, "size")
				flushTimer.Reset(cfg.BatchTimeout)
			}
		}
	}
}

// decode unmarshals and sanity-checks one message. Bad messages are
// logged and dropped; the ledger only takes well-formed runs.
func (h *intakeHandler) decode(message *sarama.ConsumerMessage) (domain.ScoreSubmission, bool) {
	var sub domain.ScoreSubmission
	if err := json.Unmarshal(message.Value, &sub); err != nil {
		h.c.logger.Warn("undecodable score message",
			"error", err,
			"partition", message.Partition,
			"offset", message.Offset,
		)
		return domain.ScoreSubmission{}, false
	}

	if sub.Game == "" || sub.Username == "" || sub.Score < 0 {
		h.c.logger.Warn("rejecting score message",
			"game", sub.Game,
			"username", sub.Username,
			"score", sub.Score,
		)
		return domain.ScoreSubmission{}, false
	}

	return sub, true
}

func (h *intakeHandler) flush(pending []domain.ScoreSubmission, reason string) []domain.ScoreSubmission {
	if len(pending) == 0 {
		return pending
	}

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	if err := h.c.recorder.RecordScoreBatch(ctx, pending); err != nil {
		h.c.logger.Error("failed to record score batch", "error", err, "count", len(pending), "reason", reason)
	} else {
		h.c.logger.Debug("recorded score batch", "count", len(pending), "reason", reason)
	}

	return pending[:0]
}
