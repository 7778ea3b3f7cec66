package speech

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"intervox/internal/domain"
	"intervox/internal/ports"
)

type fakeMic struct {
	mu       sync.Mutex
	startErr error
	starts   int
	sessions []*fakeMicSession
}

func (m *fakeMic) Start(context.Context, ports.AudioConfig) (ports.AudioSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return nil, m.startErr
	}
	reader, writer := io.Pipe()
	session := &fakeMicSession{reader: reader, writer: writer}
	m.sessions = append(m.sessions, session)
	go func() {
		_, _ = writer.Write([]byte("pcm-bytes"))
	}()
	return session, nil
}

type fakeMicSession struct {
	reader *io.PipeReader
	writer *io.PipeWriter

	mu      sync.Mutex
	stopped bool
}

func (s *fakeMicSession) Read(p []byte) (int, error) {
	return s.reader.Read(p)
}

func (s *fakeMicSession) Close() error {
	return s.Stop()
}

func (s *fakeMicSession) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return s.writer.Close()
}

type fakeProvider struct {
	mu          sync.Mutex
	startErr    error
	configured  bool
	closeOnSend bool
	waitErr     error
	streams     chan *fakeStream
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{configured: true, closeOnSend: true, streams: make(chan *fakeStream, 8)}
}

func (p *fakeProvider) Configured() bool {
	return p.configured
}

func (p *fakeProvider) StartStreaming(ctx context.Context, _ ports.StreamingConfig) (ports.StreamingSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return nil, p.startErr
	}
	stream := &fakeStream{
		events:      make(chan domain.TranscriptEvent, 16),
		done:        make(chan struct{}),
		closeOnSend: p.closeOnSend,
		err:         p.waitErr,
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-stream.done:
		}
	}()
	p.streams <- stream
	return stream, nil
}

func (p *fakeProvider) nextStream(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case stream := <-p.streams:
		return stream
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for stream")
		return nil
	}
}

type fakeStream struct {
	events      chan domain.TranscriptEvent
	done        chan struct{}
	closeOnSend bool
	err         error

	mu         sync.Mutex
	sent       int
	sendClosed bool
	once       sync.Once
}

func (s *fakeStream) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendClosed {
		return errors.New("closed")
	}
	s.sent += len(chunk)
	return nil
}

func (s *fakeStream) CloseSend() error {
	s.mu.Lock()
	s.sendClosed = true
	s.mu.Unlock()
	if s.closeOnSend {
		s.finish()
	}
	return nil
}

func (s *fakeStream) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *fakeStream) Wait() error {
	<-s.done
	return s.err
}

func (s *fakeStream) Close() error {
	s.finish()
	return s.err
}

func (s *fakeStream) finish() {
	s.once.Do(func() {
		s.mu.Lock()
		s.sendClosed = true
		s.mu.Unlock()
		close(s.events)
		close(s.done)
	})
}

func (s *fakeStream) push(kind domain.TranscriptKind, text string, speechFinal bool) {
	s.events <- domain.TranscriptEvent{Kind: kind, Text: text, IsSpeechFinal: speechFinal}
}

func nextEvent(t *testing.T, attempt ports.CaptureAttempt) (domain.CaptureEvent, bool) {
	t.Helper()
	select {
	case event, ok := <-attempt.Events():
		return event, ok
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for capture event")
		return domain.CaptureEvent{}, false
	}
}

func collect(t *testing.T, attempt ports.CaptureAttempt) []domain.CaptureEvent {
	t.Helper()
	var events []domain.CaptureEvent
	for {
		event, ok := nextEvent(t, attempt)
		if !ok {
			return events
		}
		events = append(events, event)
	}
}

func kinds(events []domain.CaptureEvent) []domain.CaptureEventKind {
	out := make([]domain.CaptureEventKind, 0, len(events))
	for _, event := range events {
		out = append(out, event.Kind)
	}
	return out
}
