package ingest

import "strconv"

type Op int

const (
	OpDispatch       Op = 0
	OpHeartbeat      Op = 1
	OpIdentify       Op = 2
	OpResume         Op = 6
	OpReconnect      Op = 7
	OpInvalidSession Op = 9
	OpHello          Op = 10
	OpHeartbeatACK   Op = 11
)

func (op Op) String() string {
	switch op {
	case OpDispatch:
		return "DISPATCH"
	case OpHeartbeat:
		return "HEARTBEAT"
	case OpIdentify:
		return "IDENTIFY"
	case OpResume:
		return "RESUME"
	case OpReconnect:
		return "RECONNECT"
	case OpInvalidSession:
		return "INVALID_SESSION"
	case OpHello:
		return "HELLO"
	case OpHeartbeatACK:
		return "HEARTBEAT_ACK"
	}
	return "OP_" + strconv.Itoa(int(op))
}

// IsControl reports opcodes handled by the session itself.
func (op Op) IsControl() bool {
	return op == OpHeartbeat ||
		op == OpHeartbeatACK ||
		op == OpHello ||
		op == OpReconnect ||
		op == OpInvalidSession
}
