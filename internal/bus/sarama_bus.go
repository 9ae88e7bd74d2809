package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	uuid "github.com/hashicorp/go-uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/DannyDoesGraphics/auto-mine/internal/xlog"
	autometrics "github.com/DannyDoesGraphics/auto-mine/internal/metrics"
)

const (
	protocolVersion = "v1"
	dedupCacheSize  = 4096
)

// Topic returns the Kafka topic backing a quarry's bus, matching the
// "auto_mine/<version>/<quarryId>" scheme from SPEC_FULL.md's bus backend
// section.
func Topic(quarryID string) string {
	return fmt.Sprintf("auto_mine.%s.%s", protocolVersion, quarryID)
}

// SaramaBus implements Bus on top of Kafka. Each agent subscribes with its
// own unique consumer-group id, so Kafka's competing-consumer-per-group
// semantics become fan-out broadcast across agents instead of
// load-balancing a shared queue: every agent independently receives the
// full topic stream. Producer messages are keyed by sender agent id, so
// Kafka's per-partition ordering gives the sender-FIFO guarantee spec.md
// §5 requires, without the bus needing its own sequencing logic.
type SaramaBus struct {
	agentID  string
	topic    string
	producer sarama.SyncProducer
	consumer sarama.ConsumerGroup

	incoming chan Message
	dedup    *lru.ARCCache

	ctx    context.Context
	cancel context.CancelFunc
	log    xlog.Logger
}

// NewSarama dials brokers and joins quarryID's topic under a fresh,
// per-agent consumer group, the way the teacher's chaindatafetcher/kafka
// package wires sarama.NewSyncProducer/NewConsumerGroup.
func NewSarama(brokers []string, quarryID, agentID string) (*SaramaBus, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.MaxVersion
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Successes = true
	cfg.Consumer.Group.Session.Timeout = 6 * time.Second
	cfg.Consumer.Group.Heartbeat.Interval = 2 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "bus: new sarama producer")
	}

	groupSuffix, err := uuid.GenerateUUID()
	if err != nil {
		producer.Close()
		return nil, errors.Wrap(err, "bus: generate consumer group id")
	}
	groupID := fmt.Sprintf("automine-%s-%s", agentID, groupSuffix)

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		producer.Close()
		return nil, errors.Wrap(err, "bus: new sarama consumer group")
	}

	dedup, err := lru.NewARC(dedupCacheSize)
	if err != nil {
		producer.Close()
		consumer.Close()
		return nil, errors.Wrap(err, "bus: new dedup cache")
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &SaramaBus{
		agentID:  agentID,
		topic:    Topic(quarryID),
		producer: producer,
		consumer: consumer,
		incoming: make(chan Message, 256),
		dedup:    dedup,
		ctx:      ctx,
		cancel:   cancel,
		log:      xlog.NewModuleLogger("bus"),
	}
	go b.consumeLoop()
	return b, nil
}

// consumeLoop mirrors the teacher's Consumer.Subscribe goroutine: a
// restart-on-error loop around consumer.Consume, since ConsumerGroup
// rebalances by returning from Consume and must be re-entered.
func (b *SaramaBus) consumeLoop() {
	defer b.consumer.Close()
	for {
		if err := b.consumer.Consume(b.ctx, []string{b.topic}, b); err != nil {
			b.log.Error("consume loop error", "err", err)
		}
		select {
		case <-b.ctx.Done():
			return
		default:
		}
	}
}

// Setup implements sarama.ConsumerGroupHandler.
func (b *SaramaBus) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (b *SaramaBus) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim implements sarama.ConsumerGroupHandler, decoding each record
// into a Message and forwarding it to the bounded incoming channel.
func (b *SaramaBus) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for record := range claim.Messages() {
		var m Message
		if err := json.Unmarshal(record.Value, &m); err != nil {
			b.log.Error("dropping malformed message", "err", err)
			sess.MarkMessage(record, "")
			continue
		}

		dedupKey := fmt.Sprintf("%s/%d", m.Sender, m.Seq)
		if _, seen := b.dedup.Get(dedupKey); seen {
			sess.MarkMessage(record, "")
			continue
		}
		b.dedup.Add(dedupKey, true)

		autometrics.MessagesReceived.Mark(1)
		select {
		case b.incoming <- m:
		case <-b.ctx.Done():
			sess.MarkMessage(record, "")
			return nil
		}
		sess.MarkMessage(record, "")
	}
	return nil
}

// Send publishes m keyed by its sender id, so Kafka's per-partition
// ordering preserves sender-FIFO delivery.
func (b *SaramaBus) Send(m Message) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "bus: marshal message")
	}
	_, _, err = b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(m.Sender),
		Value: sarama.ByteEncoder(raw),
	})
	if m.Type == TypeHeartbeat {
		autometrics.HeartbeatsSent.Mark(1)
	}
	return err
}

// Receive blocks up to timeout for the next message, matching the bounded
// "receive(short timeout)" suspension point of spec.md §5.
func (b *SaramaBus) Receive(timeout time.Duration) (Message, bool, error) {
	select {
	case m := <-b.incoming:
		return m, true, nil
	case <-time.After(timeout):
		return Message{}, false, nil
	case <-b.ctx.Done():
		return Message{}, false, nil
	}
}

// Close shuts the bus down; it is safe to call more than once.
func (b *SaramaBus) Close() {
	b.cancel()
	b.producer.Close()
}
