package ingest

import (
	"sync/atomic"
	"time"
)

// HeartbeatMonitor tracks whether the last heartbeat was acknowledged.
type HeartbeatMonitor struct {
	lastSent  atomic.Int64
	lastACK   atomic.Int64
	acked     atomic.Bool
	sentCount atomic.Uint64
}

func NewHeartbeatMonitor() *HeartbeatMonitor {
	hm := &HeartbeatMonitor{}
	hm.acked.Store(true)
	return hm
}

func (hm *HeartbeatMonitor) RecordSent(now time.Time) {
	hm.lastSent.Store(now.UnixNano())
	hm.acked.Store(false)
	hm.sentCount.Add(1)
}

// RecordACK marks the outstanding heartbeat acknowledged and returns the
// round trip.
func (hm *HeartbeatMonitor) RecordACK(now time.Time) time.Duration {
	hm.lastACK.Store(now.UnixNano())
	hm.acked.Store(true)
	return hm.Latency()
}

// Acked is true when no heartbeat is outstanding.
func (hm *HeartbeatMonitor) Acked() bool {
	return hm.acked.Load()
}

func (hm *HeartbeatMonitor) Sent() uint64 {
	return hm.sentCount.Load()
}

func (hm *HeartbeatMonitor) Latency() time.Duration {
	sent := hm.lastSent.Load()
	ack := hm.lastACK.Load()
	if sent == 0 || ack < sent {
		return 0
	}
	return time.Duration(ack - sent)
}
