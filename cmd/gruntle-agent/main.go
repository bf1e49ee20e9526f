// Command gruntle-agent is a runnable example wiring consumer.PartitionConsumer,
// consumer/sarambroker and adminhttp together: one partition consumer per
// (topic, partition) flag, a sample subscriber that logs every delivered
// batch and acknowledges it immediately, and an admin HTTP surface for
// operability.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/mailgun/log"

	"github.com/progressions/gruntle/adminhttp"
	"github.com/progressions/gruntle/consumer"
	"github.com/progressions/gruntle/consumer/sarambroker"
)

func main() {
	var (
		brokersFlag   = flag.String("brokers", "localhost:9092", "comma-separated list of Kafka broker addresses")
		group         = flag.String("group", "gruntle", "consumer group name")
		topic         = flag.String("topic", "", "topic to consume")
		partitionsStr = flag.String("partitions", "0", "comma-separated list of partitions to consume")
		adminAddr     = flag.String("admin-addr", ":8080", "admin HTTP listen address")
	)
	flag.Parse()

	if *topic == "" {
		log.Errorf("missing required -topic flag")
		os.Exit(1)
	}

	options, err := consumer.LoadOptions(consumer.Options{
		Brokers: strings.Split(*brokersFlag, ","),
	})
	if err != nil {
		log.Errorf("failed to load options: %s", err)
		os.Exit(1)
	}

	pool := consumer.NewPool()

	partitions, err := parsePartitions(*partitionsStr)
	if err != nil {
		log.Errorf("invalid -partitions: %s", err)
		os.Exit(1)
	}

	for _, partition := range partitions {
		broker, err := sarambroker.New(options.Brokers, *group, nil)
		if err != nil {
			log.Errorf("failed to create broker for partition=%d: %s", partition, err)
			os.Exit(1)
		}

		pc, err := consumer.Start(*group, *topic, partition, broker, loggingSubscriberFactory, options)
		if err != nil {
			log.Errorf("failed to start partition consumer for partition=%d: %s", partition, err)
			os.Exit(1)
		}
		pool.Register(pc)
		pc.RequestMore(100)
	}

	admin, err := adminhttp.New(*adminAddr, pool)
	if err != nil {
		log.Errorf("failed to create admin HTTP server: %s", err)
		os.Exit(1)
	}
	admin.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Infof("received signal %s, shutting down", sig)
	case err := <-admin.ErrorCh():
		log.Errorf("admin HTTP server failed: %s", err)
	}

	admin.Stop()
	for _, pc := range pool.Partitions() {
		pcTopic, pcPartition := pc.Partition()
		pc.Terminate("agent shutting down")
		pool.Remove(pcTopic, pcPartition)
	}
}

func parsePartitions(s string) ([]int32, error) {
	parts := strings.Split(s, ",")
	out := make([]int32, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return nil, err
		}
		out = append(out, int32(n))
	}
	return out, nil
}

// loggingSubscriberFactory implements consumer.SubscriberFactory: it logs
// every delivered batch, acknowledges it via trigger_commit, and asks for
// as many more records as it was just handed, keeping demand topped up.
func loggingSubscriberFactory(self consumer.Handle, topic string, partition int32, extra interface{}) (consumer.Subscriber, error) {
	return &loggingSubscriber{
		BaseSubscriber: consumer.NewBaseSubscriber(),
		self:           self,
	}, nil
}

type loggingSubscriber struct {
	consumer.BaseSubscriber
	self consumer.Handle
}

// Deliver is called from the partition consumer's deliverLoop goroutine, not
// its single writer goroutine, so acking and re-requesting demand from here
// is safe: TriggerCommit/RequestMore send on channels the writer goroutine
// is free to read concurrently with this call.
func (s *loggingSubscriber) Deliver(ctx context.Context, records []consumer.Record) error {
	if len(records) == 0 {
		return nil
	}
	topic, partition := s.self.Partition()
	last := records[len(records)-1]
	log.Infof("delivered %d record(s) topic=%s partition=%d last_offset=%d",
		len(records), topic, partition, last.Offset)

	s.self.TriggerCommit(consumer.CommitAsync, last.Offset+1)
	s.self.RequestMore(len(records))
	return nil
}
