// Package channeltest provides in-memory stand-ins for the session channel.
package channeltest

import (
	"encoding/json"
	"sync"

	"github.com/DoyleJ11/hacksail-client/internal/channel"
)

// Emitted is one frame a Bus received from the code under test.
type Emitted struct {
	Topic   string
	Payload json.RawMessage
}

// Bus implements channel.Bus without a network. OnEmit, when set, runs
// synchronously inside Emit, which models a zero-latency server.
type Bus struct {
	*channel.Registry

	mu      sync.Mutex
	emitted []Emitted
	OnEmit  func(b *Bus, topic string, payload json.RawMessage)
}

func NewBus() *Bus {
	return &Bus{Registry: channel.NewRegistry()}
}

func (b *Bus) Emit(topic string, payload any) error {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		data = raw
	}
	b.mu.Lock()
	b.emitted = append(b.emitted, Emitted{Topic: topic, Payload: data})
	hook := b.OnEmit
	b.mu.Unlock()

	if hook != nil {
		hook(b, topic, data)
	}
	return nil
}

// Push delivers a server event to every subscriber of topic.
func (b *Bus) Push(topic string, payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	return b.Dispatch(topic, data)
}

// Emitted returns every frame emitted so far, optionally filtered by topic.
func (b *Bus) Emitted(topics ...string) []Emitted {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(topics) == 0 {
		return append([]Emitted(nil), b.emitted...)
	}
	var out []Emitted
	for _, e := range b.emitted {
		for _, t := range topics {
			if e.Topic == t {
				out = append(out, e)
			}
		}
	}
	return out
}

var _ channel.Bus = (*Bus)(nil)
