package ingest

import (
	"fmt"

	"github.com/goccy/go-json"
)

// Frame is one gateway message in either direction.
type Frame struct {
	Op Op              `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &f, nil
}

type outbound struct {
	Op Op          `json:"op"`
	D  interface{} `json:"d"`
}

type helloPayload struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

type identifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

type identifyPayload struct {
	Token      string             `json:"token"`
	Intents    int                `json:"intents"`
	Properties identifyProperties `json:"properties"`
}

type resumePayload struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// heartbeatFrame carries the last sequence, or null before the first dispatch.
func heartbeatFrame(seq int64, ok bool) outbound {
	if !ok {
		return outbound{Op: OpHeartbeat, D: nil}
	}
	return outbound{Op: OpHeartbeat, D: seq}
}
