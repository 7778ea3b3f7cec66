package usecase

import "time"

type timerKind int

const (
	timerAutoSubmit timerKind = iota
	timerAutoListen
	timerCaptureRetry
)

func (k timerKind) String() string {
	switch k {
	case timerAutoSubmit:
		return "auto_submit"
	case timerAutoListen:
		return "auto_listen"
	case timerCaptureRetry:
		return "capture_retry"
	default:
		return "unknown"
	}
}

type stopper interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) stopper

func realAfter(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// scheduler keeps at most one pending task per timer kind. Every schedule or
// cancel bumps the kind's generation, so a callback that raced a cancel is
// recognised as stale by claim. It is not safe for concurrent use; the
// controller guards it with its own mutex.
type scheduler struct {
	after afterFunc
	gen   map[timerKind]uint64
	tasks map[timerKind]stopper
}

func newScheduler(after afterFunc) *scheduler {
	if after == nil {
		after = realAfter
	}
	return &scheduler{
		after: after,
		gen:   make(map[timerKind]uint64),
		tasks: make(map[timerKind]stopper),
	}
}

func (s *scheduler) schedule(kind timerKind, delay time.Duration, fire func(timerKind, uint64)) {
	s.cancel(kind)
	gen := s.gen[kind]
	s.tasks[kind] = s.after(delay, func() { fire(kind, gen) })
}

func (s *scheduler) cancel(kind timerKind) {
	if task, ok := s.tasks[kind]; ok {
		task.Stop()
		delete(s.tasks, kind)
	}
	s.gen[kind]++
}

func (s *scheduler) cancelAll() {
	for _, kind := range []timerKind{timerAutoSubmit, timerAutoListen, timerCaptureRetry} {
		s.cancel(kind)
	}
}

// claim consumes the pending task of kind if gen is still current.
func (s *scheduler) claim(kind timerKind, gen uint64) bool {
	if _, ok := s.tasks[kind]; !ok || s.gen[kind] != gen {
		return false
	}
	delete(s.tasks, kind)
	return true
}

func (s *scheduler) pending(kind timerKind) bool {
	_, ok := s.tasks[kind]
	return ok
}
