// Package sarambroker implements consumer.BrokerClient against a live
// Kafka cluster using github.com/Shopify/sarama's low-level Broker API
// (Fetch, CommitOffset, FetchOffset, GetAvailableOffsets-backed
// client.GetOffset), the same primitives the teacher's brokerConsumer used
// to issue its batched fetch RPCs.
package sarambroker

import (
	"context"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"

	"github.com/progressions/gruntle/consumer"
)

type topicPartition struct {
	topic     string
	partition int32
}

// Broker adapts a sarama.Client into consumer.BrokerClient. Fetch RPCs go
// to the partition's leader; commit/offset-fetch RPCs go to the consumer
// group's coordinator, mirroring real Kafka wire-protocol routing.
type Broker struct {
	client sarama.Client
	group  string

	mu          sync.Mutex
	leaders     map[topicPartition]*sarama.Broker
	coordinator *sarama.Broker
}

// New dials addrs and returns a Broker scoped to group. cfg may be nil, in
// which case sarama.NewConfig() defaults are used.
func New(addrs []string, group string, cfg *sarama.Config) (*Broker, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
	}
	client, err := sarama.NewClient(addrs, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "new sarama client")
	}
	return &Broker{
		client:  client,
		group:   group,
		leaders: make(map[topicPartition]*sarama.Broker),
	}, nil
}

func (b *Broker) leaderFor(topic string, partition int32) (*sarama.Broker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	tp := topicPartition{topic, partition}
	if broker, ok := b.leaders[tp]; ok && broker.Connected() {
		return broker, nil
	}
	if err := b.client.RefreshMetadata(topic); err != nil {
		return nil, errors.Wrap(err, "refresh metadata")
	}
	broker, err := b.client.Leader(topic, partition)
	if err != nil {
		return nil, errors.Wrap(err, "resolve partition leader")
	}
	b.leaders[tp] = broker
	return broker, nil
}

func (b *Broker) coordinatorBroker() (*sarama.Broker, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.coordinator != nil && b.coordinator.Connected() {
		return b.coordinator, nil
	}
	broker, err := b.client.Coordinator(b.group)
	if err != nil {
		return nil, errors.Wrap(err, "resolve group coordinator")
	}
	b.coordinator = broker
	return broker, nil
}

// Fetch implements consumer.BrokerClient.
func (b *Broker) Fetch(ctx context.Context, topic string, partition int32, offset int64, opts consumer.FetchOptions) ([]consumer.Record, error) {
	broker, err := b.leaderFor(topic, partition)
	if err != nil {
		return nil, err
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 1 << 20
	}
	req := &sarama.FetchRequest{
		MinBytes:    opts.MinBytes,
		MaxWaitTime: int32(opts.MaxWaitTime / time.Millisecond),
	}
	req.AddBlock(topic, partition, offset, maxBytes)

	resp, err := broker.Fetch(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch")
	}

	block := resp.GetBlock(topic, partition)
	if block == nil {
		return nil, errors.New("sarambroker: fetch response missing requested block")
	}
	if block.Err == sarama.ErrOffsetOutOfRange {
		return nil, consumer.ErrOffsetOutOfRange
	}
	if block.Err != sarama.ErrNoError {
		return nil, errors.Wrap(block.Err, "broker reported fetch error")
	}

	var records []consumer.Record
	for _, msgBlock := range block.MsgSet.Messages {
		for _, msg := range msgBlock.Messages() {
			if msg.Offset < offset {
				continue
			}
			records = append(records, consumer.Record{
				Offset:      msg.Offset,
				OffsetValid: true,
				Key:         msg.Msg.Key,
				Value:       msg.Msg.Value,
				Timestamp:   msg.Msg.Timestamp,
			})
		}
	}
	return records, nil
}

// CommitOffset implements consumer.BrokerClient.
func (b *Broker) CommitOffset(ctx context.Context, group, topic string, partition int32, offset int64) error {
	coord, err := b.coordinatorBroker()
	if err != nil {
		return err
	}

	req := &sarama.OffsetCommitRequest{Version: 2, ConsumerGroup: group}
	req.AddBlock(topic, partition, offset, 0, "")

	resp, err := coord.CommitOffset(req)
	if err != nil {
		return errors.Wrap(err, "commit offset")
	}
	if perr, ok := resp.Errors[topic][partition]; ok && perr != sarama.ErrNoError {
		return errors.Wrap(perr, "broker reported commit error")
	}
	return nil
}

// FetchCommittedOffset implements consumer.BrokerClient.
func (b *Broker) FetchCommittedOffset(ctx context.Context, group, topic string, partition int32) (int64, error) {
	coord, err := b.coordinatorBroker()
	if err != nil {
		return 0, err
	}

	req := &sarama.OffsetFetchRequest{ConsumerGroup: group, Version: 1}
	req.AddPartition(topic, partition)

	resp, err := coord.FetchOffset(req)
	if err != nil {
		return 0, errors.Wrap(err, "fetch committed offset")
	}
	block := resp.GetBlock(topic, partition)
	if block == nil || block.Err == sarama.ErrUnknownTopicOrPartition {
		return 0, consumer.ErrUnknownTopicOrPartition
	}
	if block.Err != sarama.ErrNoError {
		return 0, errors.Wrap(block.Err, "broker reported offset fetch error")
	}
	if block.Offset < 0 {
		return 0, consumer.ErrUnknownTopicOrPartition
	}
	return block.Offset, nil
}

// EarliestOffset implements consumer.BrokerClient.
func (b *Broker) EarliestOffset(ctx context.Context, topic string, partition int32) (int64, error) {
	off, err := b.client.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, errors.Wrap(err, "earliest offset")
	}
	return off, nil
}

// LatestOffset implements consumer.BrokerClient.
func (b *Broker) LatestOffset(ctx context.Context, topic string, partition int32) (int64, error) {
	off, err := b.client.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, errors.Wrap(err, "latest offset")
	}
	return off, nil
}

// Close implements consumer.BrokerClient.
func (b *Broker) Close() error {
	return b.client.Close()
}
