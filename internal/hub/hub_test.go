package hub

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishKeepsNewestSnapshot(t *testing.T) {
	h := New(zerolog.Nop())
	sub := h.Subscribe("consulta/h1/01-03-2026")
	defer sub.Close()

	assert.Equal(t, 1, h.Publish("consulta/h1/01-03-2026", []byte("1")))
	h.Publish("consulta/h1/01-03-2026", []byte("2"))
	h.Publish("consulta/h1/01-03-2026", []byte("3"))

	got := <-sub.C()
	assert.Equal(t, "3", string(got))
	select {
	case extra := <-sub.C():
		t.Fatalf("unexpected extra snapshot %q", extra)
	default:
	}
}

func TestPublishRoutesByTopic(t *testing.T) {
	h := New(zerolog.Nop())
	a := h.Subscribe("a")
	b := h.Subscribe("b")
	defer a.Close()
	defer b.Close()

	h.Publish("a", []byte("x"))
	assert.Equal(t, "x", string(<-a.C()))
	assert.Empty(t, b.C())
}

func TestCloseUnsubscribes(t *testing.T) {
	h := New(zerolog.Nop())
	sub := h.Subscribe("a")
	require.Equal(t, 1, h.Subscribers("a"))

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, h.Subscribers("a"))
	assert.Empty(t, h.Topics())
	assert.Equal(t, 0, h.Publish("a", []byte("x")))
	_, open := <-sub.C()
	assert.False(t, open)
}

func TestConcurrentPublishAndClose(t *testing.T) {
	h := New(zerolog.Nop())
	subs := make([]*Subscription, 8)
	for i := range subs {
		subs[i] = h.Subscribe("a")
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h.Publish("a", []byte("x"))
			}
		}()
	}
	for _, sub := range subs {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			sub.Close()
		}(sub)
	}
	wg.Wait()
	assert.Equal(t, 0, h.Subscribers("a"))
}

func TestParseClientMessage(t *testing.T) {
	msg, ok := ParseClientMessage([]byte(`{"action":"Subscribe","queue_name":"consulta","hospital_id":"h1","date":"01-03-2026"}`))
	require.True(t, ok)
	assert.Equal(t, "subscribe", msg.Action)
	assert.Equal(t, "h1", msg.HospitalID)

	_, ok = ParseClientMessage([]byte(`{"action":"publish"}`))
	assert.False(t, ok)
	_, ok = ParseClientMessage([]byte(`nope`))
	assert.False(t, ok)
}
