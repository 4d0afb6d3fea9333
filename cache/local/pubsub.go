package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

type subscription struct {
	ch       chan *LocalMessage
	channels []string
}

// LocalPubSub fans messages out to in-process subscribers. Slow
// subscribers lose messages instead of blocking publishers.
type LocalPubSub struct {
	mu      sync.RWMutex
	byTopic map[string]map[*subscription]struct{}
	bufSize int
}

// NewPubSub creates a LocalPubSub with the given per-subscriber buffer.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		byTopic: make(map[string]map[*subscription]struct{}),
		bufSize: bufSize,
	}
}

// Publish delivers message to every current subscriber of channel.
// Holding the read lock keeps cancel from closing a channel mid-send.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for sub := range ps.byTopic[channel] {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe registers one receiver for all of channels. The returned
// cancel closes the receiver and may be called more than once.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	sub := &subscription{
		ch:       make(chan *LocalMessage, ps.bufSize),
		channels: channels,
	}

	ps.mu.Lock()
	for _, name := range channels {
		set, ok := ps.byTopic[name]
		if !ok {
			set = make(map[*subscription]struct{})
			ps.byTopic[name] = set
		}
		set[sub] = struct{}{}
	}
	ps.mu.Unlock()

	var once sync.Once
	return sub.ch, func() { once.Do(func() { ps.remove(sub) }) }, nil
}

func (ps *LocalPubSub) remove(sub *subscription) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, name := range sub.channels {
		set := ps.byTopic[name]
		delete(set, sub)
		if len(set) == 0 {
			delete(ps.byTopic, name)
		}
	}
	close(sub.ch)
}
