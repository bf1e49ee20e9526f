// Package consumer implements a demand-driven Kafka partition consumer with
// backpressure: one PartitionConsumer per (group, topic, partition) fetches
// records only when its linked Subscriber signals demand, forwards them as
// a bounded batch, and manages offset commits independently of delivery.
//
// The Kafka wire protocol itself, consumer-group membership/rebalancing,
// and the subscriber's own processing logic are all out of scope here and
// are consumed or supplied as opaque capabilities: BrokerClient (see
// consumer/sarambroker for the sarama-backed implementation) and
// SubscriberFactory, respectively.
package consumer
