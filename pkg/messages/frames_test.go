package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagAudioFrame(t *testing.T) {
	payload := []byte{0xde, 0xad, 0xbe, 0xef}
	frame := TagAudioFrame(0x01020304, payload)

	require.Len(t, frame, AudioFrameHeaderSize+len(payload))
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, frame[:AudioFrameHeaderSize])
	assert.Equal(t, payload, frame[AudioFrameHeaderSize:])

	sender, err := AudioFrameSender(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x01020304), sender)
}

func TestTagAudioFrameEmptyPayload(t *testing.T) {
	frame := TagAudioFrame(7, nil)
	require.Len(t, frame, AudioFrameHeaderSize)

	sender, err := AudioFrameSender(frame)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), sender)
}

func TestAudioFrameSenderShortFrame(t *testing.T) {
	_, err := AudioFrameSender([]byte{1, 2})
	assert.Error(t, err)
}

func TestTagAudioFrameDoesNotAliasPayload(t *testing.T) {
	payload := []byte{1, 2, 3}
	frame := TagAudioFrame(1, payload)
	payload[0] = 99
	assert.Equal(t, byte(1), frame[AudioFrameHeaderSize])
}
