package speech

import (
	"errors"
	"fmt"
	"io"
	"os"

	"intervox/internal/ports"
)

const defaultChunkSize = 4096

// errStreamSend marks failures writing to the provider. Those are reported
// by the stream itself, so callers usually drop them.
var errStreamSend = errors.New("failed to stream audio")

// pumpAudio copies microphone bytes into the stream until the microphone
// ends, then closes the send side so the provider flushes its results.
func pumpAudio(mic ports.AudioSession, stream ports.StreamingSession, chunkSize int) error {
	defer func() { _ = stream.CloseSend() }()

	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}

	buf := make([]byte, chunkSize)
	for {
		n, err := mic.Read(buf)
		if n > 0 {
			if sendErr := stream.SendAudio(buf[:n]); sendErr != nil {
				return fmt.Errorf("%w: %v", errStreamSend, sendErr)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("audio capture error: %w", err)
		}
	}
}
