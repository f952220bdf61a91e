package kafka

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultReplayLimit       = 100
	defaultReplayIdleTimeout = 2 * time.Second
)

// OffsetClient — часть sarama.Client, нужная для чтения границ партиций.
type OffsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
}

// PartitionConsumer — часть sarama.PartitionConsumer, которой достаточно для replay.
type PartitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

// PartitionSource открывает чтение партиции с заданного offset.
type PartitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error)
}

// ConsumerSource адаптирует sarama.Consumer к PartitionSource.
type ConsumerSource struct {
	Consumer sarama.Consumer
}

func (s ConsumerSource) ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error) {
	return s.Consumer.ConsumePartition(topic, partition, offset)
}

// ReplayConfig описывает один прогон переотправки DLQ.
type ReplayConfig struct {
	SourceTopic string
	TargetTopic string
	// Limit ограничивает число просмотренных сообщений по всем партициям.
	Limit int
	// Execute=false — dry-run: кандидаты только логируются.
	Execute bool
	// FromNewest читает последние Limit сообщений каждой партиции.
	FromNewest  bool
	IdleTimeout time.Duration
}

func (c ReplayConfig) withDefaults() ReplayConfig {
	if c.SourceTopic == "" {
		c.SourceTopic = TopicDeadLetterQueue
	}
	if c.TargetTopic == "" {
		c.TargetTopic = TopicOrderEvents
	}
	if c.Limit <= 0 {
		c.Limit = defaultReplayLimit
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultReplayIdleTimeout
	}
	return c
}

// ReplayStats подводит итог прогона.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

func (s *ReplayStats) add(other ReplayStats) {
	s.Processed += other.Processed
	s.Replayed += other.Replayed
	s.Skipped += other.Skipped
}

// Replayer вычитывает DLQ и возвращает исходные события outbox в topic заказов.
type Replayer struct {
	client   OffsetClient
	source   PartitionSource
	producer *Producer
	logger   *log.Entry
	now      func() time.Time
}

// NewReplayer создаёт Replayer. producer может быть nil для dry-run.
func NewReplayer(client OffsetClient, source PartitionSource, producer *Producer, logger *log.Entry) *Replayer {
	if logger == nil {
		logger = log.WithField("component", "kafka-dlq-replay")
	}
	return &Replayer{
		client:   client,
		source:   source,
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
}

// Run проходит по партициям SourceTopic по возрастанию номера.
func (r *Replayer) Run(ctx context.Context, cfg ReplayConfig) (ReplayStats, error) {
	cfg = cfg.withDefaults()

	var total ReplayStats
	if r.client == nil || r.source == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if cfg.Execute && r.producer == nil {
		return total, errors.New("producer is required in execute mode")
	}

	partitions, err := r.client.Partitions(cfg.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", cfg.SourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		remaining := cfg.Limit - total.Processed
		if remaining <= 0 {
			break
		}
		stats, err := r.replayPartition(ctx, cfg, partition, remaining)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":   cfg.Execute,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func (r *Replayer) replayPartition(ctx context.Context, cfg ReplayConfig, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats

	oldest, err := r.client.GetOffset(cfg.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(cfg.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.FromNewest && newest-int64(limit) > oldest {
		start = newest - int64(limit)
	}

	pc, err := r.source.ConsumePartition(cfg.SourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.IdleTimeout)
	defer idle.Stop()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumeErr, ok := <-pc.Errors():
			if ok && consumeErr != nil {
				return stats, fmt.Errorf("partition %d: %w", partition, consumeErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(cfg.IdleTimeout)

			stats.Processed++
			replayed, err := r.replayMessage(cfg, msg)
			if err != nil {
				return stats, err
			}
			if replayed {
				stats.Replayed++
			} else {
				stats.Skipped++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *Replayer) replayMessage(cfg ReplayConfig, msg *sarama.ConsumerMessage) (bool, error) {
	fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}

	envelope, ok, err := DecodeReplay(msg.Value, r.now())
	if err != nil {
		r.logger.WithError(err).WithFields(fields).Warn("skip malformed dlq message")
		return false, nil
	}
	if !ok {
		return false, nil
	}

	if !cfg.Execute {
		r.logger.WithFields(fields).WithFields(log.Fields{
			"target_topic": cfg.TargetTopic,
			"key":          envelope.Key(),
			"event_type":   envelope.EventType,
		}).Info("dlq replay candidate")
		return true, nil
	}

	if err := r.producer.Publish(cfg.TargetTopic, envelope.Key(), envelope,
		sarama.RecordHeader{Key: []byte(HeaderEventType), Value: []byte(envelope.EventType)},
		sarama.RecordHeader{Key: []byte(HeaderOutboxID), Value: []byte(envelope.ID)},
	); err != nil {
		return false, fmt.Errorf("replay offset %d: %w", msg.Offset, err)
	}
	return true, nil
}
