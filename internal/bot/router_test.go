package bot

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go-guardian/internal/ingest"
)

const banPayload = `{"guild_id":"g1","user":{"id":"u1"}}`

func TestDispatchRunsEveryHandler(t *testing.T) {
	r := NewRouter()
	var a, b atomic.Int32
	r.Register(ingest.EventBanAdd, func(_ context.Context, ev ingest.Event) {
		assert.Equal(t, "g1", ev.Guild())
		a.Add(1)
	})
	r.Register(ingest.EventBanAdd, func(context.Context, ingest.Event) { b.Add(1) })

	r.Dispatch(context.Background(), ingest.EventBanAdd, []byte(banPayload))
	r.Wait()

	assert.Equal(t, int32(1), a.Load())
	assert.Equal(t, int32(1), b.Load())
}

func TestDispatchDropsUnhandledAndMalformed(t *testing.T) {
	r := NewRouter()
	var calls atomic.Int32
	r.Register(ingest.EventBanAdd, func(context.Context, ingest.Event) { calls.Add(1) })

	r.Dispatch(context.Background(), "TYPING_START", []byte(`{}`))
	r.Dispatch(context.Background(), ingest.EventBanAdd, []byte(`{"guild_id":`))
	r.Dispatch(context.Background(), ingest.EventBanAdd, []byte(`{"guild_id":"g1"}`))
	r.Wait()

	assert.Zero(t, calls.Load())
}

func TestDispatchDoesNotWaitForHandlers(t *testing.T) {
	r := NewRouter()
	release := make(chan struct{})
	var done atomic.Int32
	r.Register(ingest.EventBanAdd, func(context.Context, ingest.Event) {
		<-release
		done.Add(1)
	})

	start := time.Now()
	for i := 0; i < 20; i++ {
		r.Dispatch(context.Background(), ingest.EventBanAdd, []byte(banPayload))
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, done.Load())

	close(release)
	r.Wait()
	assert.Equal(t, int32(20), done.Load())
}

func TestHandlerPanicIsContained(t *testing.T) {
	r := NewRouter()
	var after atomic.Int32
	r.Register(ingest.EventBanAdd, func(context.Context, ingest.Event) { panic("boom") })
	r.Register(ingest.EventBanAdd, func(context.Context, ingest.Event) { after.Add(1) })

	r.Dispatch(context.Background(), ingest.EventBanAdd, []byte(banPayload))
	r.Wait()
	r.Dispatch(context.Background(), ingest.EventBanAdd, []byte(banPayload))
	r.Wait()

	assert.Equal(t, int32(2), after.Load())
}

func TestIdentity(t *testing.T) {
	var id Identity
	assert.False(t, id.Is(""))
	assert.Equal(t, "", id.ID())

	id.Set("42")
	assert.True(t, id.Is("42"))
	assert.False(t, id.Is("43"))
}
