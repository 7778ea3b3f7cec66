//go:build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	"intervox/internal/ports"
)

const framesPerBuffer = 1600

// PortAudioCapture reads the default input device through PortAudio.
type PortAudioCapture struct{}

func NewPortAudioCapture() *PortAudioCapture {
	return &PortAudioCapture{}
}

// Available reports whether PortAudio can see at least one input device.
func (c *PortAudioCapture) Available() bool {
	if err := portaudio.Initialize(); err != nil {
		return false
	}
	defer portaudio.Terminate()

	device, err := portaudio.DefaultInputDevice()
	return err == nil && device != nil && device.MaxInputChannels > 0
}

func (c *PortAudioCapture) Start(ctx context.Context, cfg ports.AudioConfig) (ports.AudioSession, error) {
	cfg = withCaptureDefaults(cfg)

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, framesPerBuffer*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), framesPerBuffer, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to open input stream: %v", ports.ErrNoInputDevice, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to start input stream: %v", ports.ErrNoInputDevice, err)
	}

	reader, writer := io.Pipe()
	session := &portAudioSession{
		stream: stream,
		reader: reader,
		done:   make(chan struct{}),
	}
	go session.readLoop(ctx, in, writer)
	return session, nil
}

type portAudioSession struct {
	stream *portaudio.Stream
	reader *io.PipeReader
	done   chan struct{}

	stopOnce sync.Once
	stopErr  error
}

func (s *portAudioSession) readLoop(ctx context.Context, in []int16, writer *io.PipeWriter) {
	defer close(s.done)

	buf := make([]byte, len(in)*2)
	for {
		select {
		case <-ctx.Done():
			_ = writer.CloseWithError(ctx.Err())
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			_ = writer.CloseWithError(err)
			return
		}
		for i, sample := range in {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
		}
		if _, err := writer.Write(buf); err != nil {
			return
		}
	}
}

func (s *portAudioSession) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

func (s *portAudioSession) Close() error {
	return s.Stop()
}

func (s *portAudioSession) Stop() error {
	s.stopOnce.Do(func() {
		_ = s.reader.Close()
		if err := s.stream.Stop(); err != nil {
			s.stopErr = err
		}
		<-s.done
		if err := s.stream.Close(); err != nil && s.stopErr == nil {
			s.stopErr = err
		}
		if err := portaudio.Terminate(); err != nil && s.stopErr == nil {
			s.stopErr = err
		}
	})
	return s.stopErr
}
