// Package pubsub implements the tagged publish/subscribe layer that
// sits beside the manifold on the data-plane transport (it does not
// route through a manifold): publishers round-robin-write to whichever
// subscriber instances the control plane has currently tagged for their
// role, and a SubscriptionService keeps that tagged-instance set fresh
// without publishers needing to poll for it themselves.
package pubsub

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/flowmesh/dataflow/internal/channel"
	"github.com/flowmesh/dataflow/internal/logging"
	"github.com/flowmesh/dataflow/internal/types"
)

// Sender is the seam a Publisher writes encoded objects through, one
// call per selected subscriber tag.
type Sender interface {
	SendTo(ctx context.Context, tag types.Tag, payload []byte) error
}

// UpdateHandler is invoked with the full new tagged-instance set whenever
// the control plane pushes an update.
type UpdateHandler func(tagged map[types.Tag]uint64)

// DropHandler is invoked once, when a SubscriptionService's drop has
// been requested, so the owning publisher/subscriber can release its
// resources.
type DropHandler func()

// taggedSet is swapped atomically so readers never see a partially
// applied update, the same shape internal/manifold uses for its output
// set.
type taggedSet struct {
	tags     []types.Tag
	byTag    map[types.Tag]uint64
}

// SubscriptionService tracks one role's live tagged-instance membership
// and notifies registered handlers on every control-plane push, mirroring
// PublisherManagerBase::update_tagged_instances.
type SubscriptionService struct {
	name string
	role string
	tag  types.Tag

	current atomic.Pointer[taggedSet]

	mu        sync.Mutex
	onUpdate  []UpdateHandler
	onDrop    []DropHandler
	dropped   bool
	logger    *logging.Logger
}

// NewSubscriptionService constructs a subscription service for the given
// role (the role this service subscribes to updates about, e.g. the
// "subscriber" role as seen by a publisher).
func NewSubscriptionService(name, role string, tag types.Tag, logger *logging.Logger) *SubscriptionService {
	s := &SubscriptionService{name: name, role: role, tag: tag, logger: logger}
	s.current.Store(&taggedSet{byTag: map[types.Tag]uint64{}})
	return s
}

// Name returns the service's name.
func (s *SubscriptionService) Name() string { return s.name }

// Role returns the role this service subscribes to updates about.
func (s *SubscriptionService) Role() string { return s.role }

// Tag returns this service's own subscription tag.
func (s *SubscriptionService) Tag() types.Tag { return s.tag }

// OnUpdate registers a handler invoked on every tagged-instance update.
func (s *SubscriptionService) OnUpdate(h UpdateHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = append(s.onUpdate, h)
}

// OnDrop registers a handler invoked when Drop is called.
func (s *SubscriptionService) OnDrop(h DropHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDrop = append(s.onDrop, h)
}

// UpdateTaggedInstances installs a freshly published tagged-instance map
// and fans the update out to every registered handler.
func (s *SubscriptionService) UpdateTaggedInstances(role string, tagged map[types.Tag]uint64) {
	if role != s.role {
		if s.logger != nil {
			s.logger.Warn("tagged instance update for unexpected role",
				zap.String("expected", s.role), zap.String("got", role))
		}
		return
	}

	next := &taggedSet{byTag: make(map[types.Tag]uint64, len(tagged))}
	for tag, instance := range tagged {
		next.byTag[tag] = instance
		next.tags = append(next.tags, tag)
	}
	sort.Slice(next.tags, func(i, j int) bool { return next.tags[i] < next.tags[j] })
	s.current.Store(next)

	s.mu.Lock()
	handlers := append([]UpdateHandler(nil), s.onUpdate...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(next.byTag)
	}
}

// TaggedInstances returns a snapshot of the currently known tagged
// instances.
func (s *SubscriptionService) TaggedInstances() map[types.Tag]uint64 {
	cur := s.current.Load()
	out := make(map[types.Tag]uint64, len(cur.byTag))
	for k, v := range cur.byTag {
		out[k] = v
	}
	return out
}

// Drop marks this service dropped and runs every registered drop
// handler exactly once.
func (s *SubscriptionService) Drop() {
	s.mu.Lock()
	if s.dropped {
		s.mu.Unlock()
		return
	}
	s.dropped = true
	handlers := append([]DropHandler(nil), s.onDrop...)
	s.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// Publisher round-robins encoded values across whichever subscriber
// instances its SubscriptionService currently knows about.
type Publisher[T any] struct {
	*SubscriptionService
	sender  Sender
	encode  func(T) ([]byte, error)
	counter atomic.Uint64
}

// NewPublisher constructs a Publisher that writes through sender,
// encoding each value with encode, selecting a destination tag from the
// live tagged-instance set.
func NewPublisher[T any](name string, tag types.Tag, sender Sender, encode func(T) ([]byte, error), logger *logging.Logger) *Publisher[T] {
	return &Publisher[T]{
		SubscriptionService: NewSubscriptionService(name, RoleSubscriber, tag, logger),
		sender:              sender,
		encode:              encode,
	}
}

// RoleSubscriber and RolePublisher name the two pubsub roles, mirroring
// role_publisher()/role_subscriber() in the original.
const (
	RolePublisher  = "publisher"
	RoleSubscriber = "subscriber"
)

// AwaitWrite round-robins v to the next live subscriber tag. It returns
// channel.StatusError if there are currently no live subscribers or the
// send itself fails.
func (p *Publisher[T]) AwaitWrite(ctx context.Context, v T) channel.Status {
	cur := p.current.Load()
	if len(cur.tags) == 0 {
		return channel.StatusError
	}

	idx := p.counter.Add(1) - 1
	tag := cur.tags[idx%uint64(len(cur.tags))]

	payload, err := p.encode(v)
	if err != nil {
		if p.logger != nil {
			p.logger.Error("publisher encode failed", zap.Error(err))
		}
		return channel.StatusError
	}

	if err := p.sender.SendTo(ctx, tag, payload); err != nil {
		if p.logger != nil {
			p.logger.Error("publisher send failed", zap.Uint64("tag", uint64(tag)), zap.Error(err))
		}
		return channel.StatusError
	}
	return channel.StatusSuccess
}

// Subscriber receives decoded values addressed to its own tag and hands
// them to handle.
type Subscriber[T any] struct {
	*SubscriptionService
	decode func([]byte) (T, error)
	handle func(T)
}

// NewSubscriber constructs a Subscriber under the given tag; Deliver
// feeds it inbound payloads.
func NewSubscriber[T any](name string, tag types.Tag, decode func([]byte) (T, error), handle func(T), logger *logging.Logger) *Subscriber[T] {
	return &Subscriber[T]{
		SubscriptionService: NewSubscriptionService(name, RolePublisher, tag, logger),
		decode:              decode,
		handle:              handle,
	}
}

// Deliver decodes payload and invokes the subscriber's handler. It
// returns an error if decoding fails; the caller decides whether that's
// fatal.
func (s *Subscriber[T]) Deliver(payload []byte) error {
	v, err := s.decode(payload)
	if err != nil {
		return fmt.Errorf("subscriber %q: decoding payload: %w", s.Name(), err)
	}
	s.handle(v)
	return nil
}
