package api

import (
	"testing"

	redis "github.com/redis/go-redis/v9"
)

// Unsubscribe must never close the subscriber channel: the reader
// goroutine owns it and may still be sending. It only closes the pubsub
// so the reader drains out and closes the channel itself.
func TestRedisUnsubscribeLeavesChannelToReader(t *testing.T) {
	b := &RedisBroker{subs: map[chan Event]*redis.PubSub{}}
	ch := make(chan Event, 1)

	b.Unsubscribe("repair", ch)

	// a send here panics if Unsubscribe closed the channel
	ch <- Event{Type: "repair.batch"}
	evt := <-ch
	if evt.Type != "repair.batch" {
		t.Fatalf("event = %+v", evt)
	}
	select {
	case _, open := <-ch:
		if !open {
			t.Fatal("channel closed by Unsubscribe")
		}
		t.Fatal("unexpected event")
	default:
	}
}
