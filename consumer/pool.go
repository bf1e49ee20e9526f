package consumer

import "sync"

// partitionKey identifies a PartitionConsumer within a Pool.
type partitionKey struct {
	topic     string
	partition int32
}

// Pool tracks every PartitionConsumer an agent has started, so the admin
// HTTP surface (spec.md §6 operability) can list them and route
// trigger_commit requests without the caller threading a map around by
// hand. It owns no goroutine of its own; Register/Remove/Lookup/Partitions
// are all safe for concurrent use.
type Pool struct {
	mu    sync.RWMutex
	byKey map[partitionKey]*PartitionConsumer
}

// NewPool returns an empty partition consumer pool.
func NewPool() *Pool {
	return &Pool{byKey: make(map[partitionKey]*PartitionConsumer)}
}

// Register adds pc to the pool, keyed by its (topic, partition).
func (p *Pool) Register(pc *PartitionConsumer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byKey[partitionKey{pc.topic, pc.partition}] = pc
}

// Remove drops pc from the pool, typically once it has terminated.
func (p *Pool) Remove(topic string, partition int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byKey, partitionKey{topic, partition})
}

// Lookup implements adminhttp.Registry.
func (p *Pool) Lookup(topic string, partition int32) (*PartitionConsumer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pc, ok := p.byKey[partitionKey{topic, partition}]
	return pc, ok
}

// Partitions implements adminhttp.Registry.
func (p *Pool) Partitions() []*PartitionConsumer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*PartitionConsumer, 0, len(p.byKey))
	for _, pc := range p.byKey {
		out = append(out, pc)
	}
	return out
}
