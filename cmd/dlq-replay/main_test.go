package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

func envFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
	assert.Empty(t, parseBrokers(" , "))
}

func TestReadConfig_FromFlags(t *testing.T) {
	cfg, err := readConfig([]string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-limit=10",
		"-execute",
		"-from-newest",
		"-idle-timeout=3s",
	}, envFrom(nil), io.Discard)
	require.NoError(t, err)

	assert.Len(t, cfg.brokers, 2)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.replay.SourceTopic)
	assert.Equal(t, kafka.TopicOrderEvents, cfg.replay.TargetTopic)
	assert.Equal(t, 10, cfg.replay.Limit)
	assert.True(t, cfg.replay.Execute)
	assert.True(t, cfg.replay.FromNewest)
	assert.Equal(t, 3*time.Second, cfg.replay.IdleTimeout)
}

func TestReadConfig_BrokersFromEnv(t *testing.T) {
	cfg, err := readConfig(nil, envFrom(map[string]string{"STOREFRONT_KAFKA_BROKERS": "kafka:9092"}), io.Discard)
	require.NoError(t, err)
	assert.Equal(t, []string{"kafka:9092"}, cfg.brokers)
	assert.False(t, cfg.replay.Execute)
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "brokers", args: []string{"-brokers="}, want: "kafka brokers are required"},
		{name: "source", args: []string{"-brokers=b:9092", "-source-topic= "}, want: "source-topic is required"},
		{name: "target", args: []string{"-brokers=b:9092", "-target-topic="}, want: "target-topic is required"},
		{name: "limit", args: []string{"-brokers=b:9092", "-limit=0"}, want: "limit must be > 0"},
		{name: "idle", args: []string{"-brokers=b:9092", "-idle-timeout=-1s"}, want: "idle-timeout must not be negative"},
		{name: "unknown flag", args: []string{"-nope"}, want: "flag provided but not defined"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readConfig(tt.args, envFrom(nil), io.Discard)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := readConfig([]string{"-h"}, envFrom(nil), io.Discard)
	assert.ErrorIs(t, err, flag.ErrHelp)
}

type stubClient struct{}

func (stubClient) Partitions(string) ([]int32, error) { return []int32{0}, nil }

func (stubClient) GetOffset(_ string, _ int32, at int64) (int64, error) {
	if at == sarama.OffsetOldest {
		return 0, nil
	}
	return 1, nil
}

type stubPartition struct {
	messages chan *sarama.ConsumerMessage
}

func (p stubPartition) Messages() <-chan *sarama.ConsumerMessage { return p.messages }
func (p stubPartition) Errors() <-chan *sarama.ConsumerError     { return nil }
func (p stubPartition) Close() error                              { return nil }

type stubSource struct{}

func (stubSource) ConsumePartition(string, int32, int64) (kafka.PartitionConsumer, error) {
	messages := make(chan *sarama.ConsumerMessage, 1)
	messages <- &sarama.ConsumerMessage{
		Offset: 0,
		Value:  []byte(`{"id":"outbox-1","payload":{"outbox_id":"outbox-1","payload":{"item_count":1}}}`),
	}
	return stubPartition{messages: messages}, nil
}

func TestRun_UsesConnectedDependencies(t *testing.T) {
	original := connect
	t.Cleanup(func() { connect = original })

	closed := false
	connect = func(config) (replayDeps, error) {
		return replayDeps{
			client: stubClient{},
			source: stubSource{},
			close:  func() { closed = true },
		}, nil
	}

	cfg, err := readConfig([]string{"-brokers=b:9092", "-idle-timeout=50ms"}, envFrom(nil), io.Discard)
	require.NoError(t, err)

	stats, err := run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, kafka.ReplayStats{Processed: 1, Replayed: 1}, stats)
	assert.True(t, closed)
}

func TestRun_ConnectError(t *testing.T) {
	original := connect
	t.Cleanup(func() { connect = original })

	connect = func(config) (replayDeps, error) {
		return replayDeps{}, errors.New("dial failed")
	}

	_, err := run(context.Background(), config{brokers: []string{"b:9092"}})
	require.ErrorContains(t, err, "dial failed")
}
