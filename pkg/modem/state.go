package modem

import (
	"fmt"

	"github.com/norasector/tonewire/pkg/protocol"
)

// State is the demodulator's position in the receive cycle.
type State int

const (
	// Idle until a full frame of samples has been buffered.
	Idle State = iota
	// Seeking a start marker, or in fixed length mode a complete frame.
	Seeking
	// Locked on a start marker and recording.
	Locked
	// FrameComplete while a recording is analyzed.
	FrameComplete
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Seeking:
		return "seeking"
	case Locked:
		return "locked"
	case FrameComplete:
		return "frame_complete"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Message is one decoded payload.
type Message struct {
	Payload  []byte
	Protocol protocol.ID
	// Frame is the index of the audio frame that completed the payload.
	Frame int64
}

type Stats struct {
	FramesProcessed int64
	Locks           int
	Decoded         int
	Failed          int
	ByProtocol      [protocol.Count]int
}
