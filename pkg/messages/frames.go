package messages

import (
	"encoding/binary"
	"fmt"
)

// AudioFrameHeaderSize is the length of the sender tag prepended to every
// relayed audio frame.
const AudioFrameHeaderSize = 4

// TagAudioFrame prepends the sender's session ID (big-endian uint32) to an
// opaque audio payload. The payload itself is never inspected.
func TagAudioFrame(senderID uint32, payload []byte) []byte {
	frame := make([]byte, AudioFrameHeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame, senderID)
	copy(frame[AudioFrameHeaderSize:], payload)
	return frame
}

// AudioFrameSender extracts the sender session ID from a tagged frame.
func AudioFrameSender(frame []byte) (uint32, error) {
	if len(frame) < AudioFrameHeaderSize {
		return 0, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	return binary.BigEndian.Uint32(frame), nil
}
