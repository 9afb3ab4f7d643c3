package bus

import "time"

// Capacities holds the per-topic bound for each EventKind's queue. These
// are the only knobs that affect memory: a topic holds at most its
// capacity worth of in-flight Event handles (spec §4.2).
type Capacities struct {
	Market    int
	Signal    int
	Order     int
	Execution int
	Risk      int
}

// DefaultCapacities matches the defaults documented in spec §4.2: 16k
// market, 4k signal/order/execution, 1k risk.
func DefaultCapacities() Capacities {
	return Capacities{
		Market:    16384,
		Signal:    4096,
		Order:     4096,
		Execution: 4096,
		Risk:      1024,
	}
}

// Bus owns one bounded queue per EventKind. It is built once via NewBus and
// then handed out to producers and consumers as Sender/Receiver handles;
// the bus itself holds no other mutable state (no total order is imposed
// across topics, per spec §4.2).
type Bus struct {
	topics         [5]*topic
	defaultTimeout time.Duration
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithDefaultTimeout sets the duration used by Sender.Publish(..., Timeout, 0)
// when no explicit duration is supplied.
func WithDefaultTimeout(d time.Duration) Option {
	return func(b *Bus) { b.defaultTimeout = d }
}

// NewBus builds a Bus with the given per-topic capacities.
func NewBus(capacities Capacities, opts ...Option) *Bus {
	b := &Bus{defaultTimeout: 5 * time.Second}
	b.topics[KindMarket] = newTopic(KindMarket, capacities.Market)
	b.topics[KindSignal] = newTopic(KindSignal, capacities.Signal)
	b.topics[KindOrder] = newTopic(KindOrder, capacities.Order)
	b.topics[KindExecution] = newTopic(KindExecution, capacities.Execution)
	b.topics[KindRisk] = newTopic(KindRisk, capacities.Risk)
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Sender returns a publish handle for the given topic. Senders are cheap,
// cloneable value types: call Sender repeatedly from as many producer
// goroutines as needed.
func (b *Bus) Sender(kind EventKind) Sender {
	return Sender{t: b.topics[kind], timeout: b.defaultTimeout}
}

// Receiver returns a consume handle for the given topic. Like Sender,
// Receiver is a cheap value type; multiple goroutines may hold receivers
// for the same topic (each message is delivered to exactly one of them).
func (b *Bus) Receiver(kind EventKind) Receiver {
	return Receiver{t: b.topics[kind]}
}

// Occupancy reports the number of events currently queued for kind.
func (b *Bus) Occupancy(kind EventKind) int {
	return len(b.topics[kind].ch)
}

// Capacity reports the configured bound for kind.
func (b *Bus) Capacity(kind EventKind) int {
	return cap(b.topics[kind].ch)
}
