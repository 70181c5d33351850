package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventTypedPayloads(t *testing.T) {
	ev, err := DecodeEvent(EventBanAdd, []byte(`{"guild_id":"g1","user":{"id":"u1","username":"victim"}}`))
	require.NoError(t, err)
	ban := ev.(*BanEvent)
	assert.Equal(t, EventBanAdd, ban.Type())
	assert.Equal(t, "g1", ban.Guild())
	assert.Equal(t, "u1", ban.User.ID)

	ev, err = DecodeEvent(EventRoleCreate, []byte(`{"guild_id":"g1","role":{"id":"r1","managed":true}}`))
	require.NoError(t, err)
	assert.True(t, ev.(*RoleEvent).Role.Managed)

	ev, err = DecodeEvent(EventThreadCreate, []byte(`{"id":"t1","guild_id":"g1","type":11,"owner_id":"u2"}`))
	require.NoError(t, err)
	ch := ev.(*ChannelEvent)
	assert.Equal(t, EventThreadCreate, ch.Type())
	assert.Equal(t, 11, ch.ChannelType)
	assert.Equal(t, "u2", ch.OwnerID)
}

func TestDecodeEventRejectsMissingFields(t *testing.T) {
	tests := []struct {
		eventType string
		payload   string
	}{
		{EventBanAdd, `{"guild_id":"g1"}`},
		{EventChannelDelete, `{"id":"c1"}`},
		{EventRoleDelete, `{"guild_id":"g1"}`},
		{EventMessageCreate, `{"channel_id":"c1","author":{"id":"u1"}}`},
		{EventReady, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			_, err := DecodeEvent(tt.eventType, []byte(tt.payload))
			assert.ErrorIs(t, err, ErrMissingField)
		})
	}
}

func TestDecodeEventErrors(t *testing.T) {
	_, err := DecodeEvent("PRESENCE_UPDATE", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeEvent(EventBanAdd, []byte(`{"guild_id":`))
	assert.Error(t, err)

	_, err = DecodeEvent("TYPING_START", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestDecodeFrame(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"op":0,"s":12,"t":"GUILD_BAN_ADD","d":{"guild_id":"g1"}}`))
	require.NoError(t, err)
	assert.Equal(t, OpDispatch, f.Op)
	require.NotNil(t, f.S)
	assert.Equal(t, int64(12), *f.S)
	assert.Equal(t, "GUILD_BAN_ADD", f.T)
	assert.JSONEq(t, `{"guild_id":"g1"}`, string(f.D))

	f, err = DecodeFrame([]byte(`{"op":11}`))
	require.NoError(t, err)
	assert.Nil(t, f.S)
	assert.True(t, f.Op.IsControl())

	_, err = DecodeFrame([]byte(`not json`))
	assert.Error(t, err)
}

func TestSequenceTracker(t *testing.T) {
	st := NewSequenceTracker()
	_, ok := st.Get()
	assert.False(t, ok)

	st.Update(0)
	seq, ok := st.Get()
	assert.True(t, ok)
	assert.Equal(t, int64(0), seq)

	st.Reset()
	_, ok = st.Get()
	assert.False(t, ok)
}
