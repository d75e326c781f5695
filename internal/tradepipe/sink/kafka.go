package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/whalefollow/tradepipe/internal/tradepipe/model"
)

// Envelope wraps an emitted record on the wire.
type Envelope struct {
	Type string                  `json:"type"` // "transaction_record"
	TS   int64                   `json:"ts"`   // unix milli
	Data model.TransactionRecord `json:"data"`
}

// Kafka emits records synchronously, keyed by tx hash so downstream
// consumers see a stable partition per transaction.
type Kafka struct {
	topic string
	sp    sarama.SyncProducer
}

func NewKafka(brokersCSV, topic string) (*Kafka, error) {
	if topic == "" {
		return nil, errors.New("kafka topic is empty")
	}
	brokers := splitCSV(brokersCSV)
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers")
	}

	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 10
	cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Idempotent = true
	cfg.Net.MaxOpenRequests = 1 // required for idempotent producer
	cfg.Version = sarama.V2_1_0_0

	sp, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Kafka{topic: topic, sp: sp}, nil
}

func (k *Kafka) Close() error {
	if k.sp != nil {
		return k.sp.Close()
	}
	return nil
}

func (k *Kafka) Emit(ctx context.Context, rec model.TransactionRecord) error {
	// SyncProducer has no ctx support; check before blocking.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	b, err := json.Marshal(Envelope{
		Type: "transaction_record",
		TS:   time.Now().UnixMilli(),
		Data: rec,
	})
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: k.topic,
		Key:   sarama.StringEncoder(rec.Hash),
		Value: sarama.ByteEncoder(b),
	}
	if _, _, err := k.sp.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka emit %s: %w", rec.Hash, err)
	}
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, x := range parts {
		if x = strings.TrimSpace(x); x != "" {
			out = append(out, x)
		}
	}
	return out
}
