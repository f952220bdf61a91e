package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

type config struct {
	brokers []string
	replay  kafka.ReplayConfig
}

// replayDeps — соединения с Kafka для одного прогона; close освобождает все.
type replayDeps struct {
	client   kafka.OffsetClient
	source   kafka.PartitionSource
	producer *kafka.Producer
	close    func()
}

var connect = func(cfg config) (replayDeps, error) {
	client, err := sarama.NewClient(cfg.brokers, kafka.NewSaramaConfig())
	if err != nil {
		return replayDeps{}, fmt.Errorf("create kafka client: %w", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return replayDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}

	deps := replayDeps{
		client: client,
		source: kafka.ConsumerSource{Consumer: consumer},
	}
	if cfg.replay.Execute {
		syncProducer, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			_ = consumer.Close()
			_ = client.Close()
			return replayDeps{}, fmt.Errorf("create kafka producer: %w", err)
		}
		deps.producer = kafka.NewProducerFromSync(syncProducer)
	}

	deps.close = func() {
		_ = deps.producer.Close()
		_ = consumer.Close()
		_ = client.Close()
	}
	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := readConfig(os.Args[1:], os.LookupEnv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string, lookupEnv func(string) (string, bool), output io.Writer) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-replay", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: STOREFRONT_KAFKA_BROKERS)")
	fs.StringVar(&cfg.replay.SourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.replay.TargetTopic, "target-topic", kafka.TopicOrderEvents, "topic to replay events into")
	fs.IntVar(&cfg.replay.Limit, "limit", 100, "max messages to scan")
	fs.BoolVar(&cfg.replay.Execute, "execute", false, "publish replayed events; dry-run otherwise")
	fs.BoolVar(&cfg.replay.FromNewest, "from-newest", false, "scan the tail of each partition")
	fs.DurationVar(&cfg.replay.IdleTimeout, "idle-timeout", 0, "stop reading a partition after this long without messages (default 2s)")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw, _ = lookupEnv("STOREFRONT_KAFKA_BROKERS")
	}
	cfg.brokers = parseBrokers(brokersRaw)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, errors.New("kafka brokers are required (-brokers or STOREFRONT_KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.replay.SourceTopic) == "":
		return config{}, errors.New("source-topic is required")
	case strings.TrimSpace(cfg.replay.TargetTopic) == "":
		return config{}, errors.New("target-topic is required")
	case cfg.replay.Limit <= 0:
		return config{}, errors.New("limit must be > 0")
	case cfg.replay.IdleTimeout < 0:
		return config{}, errors.New("idle-timeout must not be negative")
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) (kafka.ReplayStats, error) {
	logger := log.WithField("component", "dlq-replay")
	logger.WithFields(log.Fields{
		"source_topic": cfg.replay.SourceTopic,
		"target_topic": cfg.replay.TargetTopic,
		"limit":        cfg.replay.Limit,
		"execute":      cfg.replay.Execute,
	}).Info("starting dlq replay")

	deps, err := connect(cfg)
	if err != nil {
		return kafka.ReplayStats{}, err
	}
	if deps.close != nil {
		defer deps.close()
	}

	return kafka.NewReplayer(deps.client, deps.source, deps.producer, logger).Run(ctx, cfg.replay)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
