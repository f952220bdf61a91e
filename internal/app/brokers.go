package app

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/rabbitmq"
)

// Имена брокеров для логов.
const (
	brokerKafka    = "kafka"
	brokerRabbitMQ = "rabbitmq"
)

// eventPublishers — publisher событий outbox и его DLQ.
// primary == nil означает, что outbox выключен.
type eventPublishers struct {
	broker  string
	primary domain.OutboxPublisher
	dlq     domain.OutboxPublisher
	closeFn func() error
}

func (p eventPublishers) enabled() bool { return p.primary != nil }

func (p eventPublishers) close(logger *log.Entry) {
	if p.closeFn == nil {
		return
	}
	if err := p.closeFn(); err != nil {
		logger.WithError(err).WithField("broker", p.broker).Warn("failed to close broker connection")
		return
	}
	logger.WithField("broker", p.broker).Info("broker connection closed")
}

// initEventPublishers выбирает брокер: Kafka, затем RabbitMQ, иначе outbox выключен.
func initEventPublishers(cfg Config, logger *log.Entry) (eventPublishers, error) {
	if brokers := SplitList(cfg.KafkaBrokers); len(brokers) > 0 {
		return initKafkaPublishers(cfg, brokers, logger)
	}
	if url := strings.TrimSpace(cfg.RabbitMQURL); url != "" {
		return initRabbitPublishers(url, logger)
	}

	logger.Info("no event broker configured, outbox is disabled")
	return eventPublishers{}, nil
}

var newKafkaProducer = func(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	return kafka.NewProducer(brokers, kafka.WithProducerLogger(logger))
}

func initKafkaPublishers(cfg Config, brokers []string, logger *log.Entry) (eventPublishers, error) {
	producer, err := newKafkaProducer(brokers, logger.WithField("broker", brokerKafka))
	if err != nil {
		return eventPublishers{}, err
	}

	primary := kafka.NewOutboxPublisher(producer, strings.TrimSpace(cfg.KafkaTopic))
	dlqTopic := strings.TrimSpace(cfg.KafkaDLQTopic)
	if dlqTopic == "" {
		dlqTopic = kafka.TopicDeadLetterQueue
	}

	logger.WithFields(log.Fields{
		"brokers":   brokers,
		"topic":     primary.Topic(),
		"dlq_topic": dlqTopic,
	}).Info("kafka producer initialized")

	return eventPublishers{
		broker:  brokerKafka,
		primary: primary,
		dlq:     kafka.NewOutboxPublisher(producer, dlqTopic),
		closeFn: producer.Close,
	}, nil
}

func initRabbitPublishers(url string, logger *log.Entry) (eventPublishers, error) {
	conn, err := rabbitmq.Dial(url)
	if err != nil {
		return eventPublishers{}, err
	}

	rabbitLogger := logger.WithField("broker", brokerRabbitMQ)
	primary, err := conn.Publisher(rabbitmq.OrderPlacedRoutingKey, rabbitmq.WithLogger(rabbitLogger))
	if err != nil {
		_ = conn.Close()
		return eventPublishers{}, fmt.Errorf("create rabbitmq publisher: %w", err)
	}
	dlq, err := conn.Publisher(rabbitmq.OrderPlacedDLQRoutingKey, rabbitmq.WithLogger(rabbitLogger))
	if err != nil {
		_ = conn.Close()
		return eventPublishers{}, fmt.Errorf("create rabbitmq dlq publisher: %w", err)
	}

	logger.WithFields(log.Fields{
		"exchange":    rabbitmq.EventsExchange,
		"routing_key": primary.RoutingKey(),
	}).Info("rabbitmq publisher initialized")

	return eventPublishers{
		broker:  brokerRabbitMQ,
		primary: primary,
		dlq:     dlq,
		closeFn: conn.Close,
	}, nil
}
