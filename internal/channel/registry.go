package channel

import (
	"encoding/json"
	"sync"
)

// Handler receives the raw payload of one pushed event. The server may
// redeliver, so handlers must be idempotent.
type Handler func(data json.RawMessage)

// Bus is what consumers of the session channel depend on.
type Bus interface {
	Subscribe(topic string, h Handler) *Subscription
	SubscribeOnce(topic string, h Handler) *Subscription
	Emit(topic string, payload any) error
}

type entry struct {
	h    Handler
	once bool
}

// Registry is the topic -> handlers table shared by the real client and the
// test double.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	topics map[string]map[uint64]entry
}

func NewRegistry() *Registry {
	return &Registry{topics: make(map[string]map[uint64]entry)}
}

// Subscription identifies one registered handler.
type Subscription struct {
	r     *Registry
	topic string
	id    uint64
}

func (s *Subscription) Topic() string { return s.topic }

// Unsubscribe removes the handler. Safe to call more than once and after a
// one-shot handler already fired.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.r == nil {
		return
	}
	s.r.remove(s.topic, s.id)
}

func (r *Registry) Subscribe(topic string, h Handler) *Subscription {
	return r.add(topic, h, false)
}

// SubscribeOnce registers a handler that is removed before its first call.
func (r *Registry) SubscribeOnce(topic string, h Handler) *Subscription {
	return r.add(topic, h, true)
}

func (r *Registry) add(topic string, h Handler, once bool) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	subs := r.topics[topic]
	if subs == nil {
		subs = make(map[uint64]entry)
		r.topics[topic] = subs
	}
	subs[r.nextID] = entry{h: h, once: once}
	return &Subscription{r: r, topic: topic, id: r.nextID}
}

func (r *Registry) remove(topic string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.topics[topic]
	delete(subs, id)
	if len(subs) == 0 {
		delete(r.topics, topic)
	}
}

// Dispatch invokes every handler of topic outside the lock. One-shot handlers
// are claimed under the lock, so each fires at most once even when two
// deliveries race.
func (r *Registry) Dispatch(topic string, data json.RawMessage) int {
	r.mu.Lock()
	subs := r.topics[topic]
	hs := make([]Handler, 0, len(subs))
	for id, e := range subs {
		hs = append(hs, e.h)
		if e.once {
			delete(subs, id)
		}
	}
	if len(subs) == 0 {
		delete(r.topics, topic)
	}
	r.mu.Unlock()

	for _, h := range hs {
		h(data)
	}
	return len(hs)
}

// Count reports how many handlers are registered for topic.
func (r *Registry) Count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics[topic])
}

// Race registers a one-shot handler on each of two reply topics. Whichever
// fires first wins and removes the other, so a request/response exchange over
// the push channel never leaves a stray handler behind. The returned cancel
// removes both.
func Race(b Bus, okTopic, errTopic string, onOK, onErr Handler) (cancel func()) {
	var (
		mu      sync.Mutex
		settled bool
		okSub   *Subscription
		errSub  *Subscription
	)
	settle := func() bool {
		mu.Lock()
		defer mu.Unlock()
		if settled {
			return false
		}
		settled = true
		return true
	}
	cancel = func() {
		settle()
		mu.Lock()
		ok, failed := okSub, errSub
		mu.Unlock()
		ok.Unsubscribe()
		failed.Unsubscribe()
	}

	mu.Lock()
	okSub = b.SubscribeOnce(okTopic, func(data json.RawMessage) {
		if !settle() {
			return
		}
		mu.Lock()
		other := errSub
		mu.Unlock()
		other.Unsubscribe()
		onOK(data)
	})
	errSub = b.SubscribeOnce(errTopic, func(data json.RawMessage) {
		if !settle() {
			return
		}
		mu.Lock()
		other := okSub
		mu.Unlock()
		other.Unsubscribe()
		onErr(data)
	})
	mu.Unlock()
	return cancel
}
