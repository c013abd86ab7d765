package backup

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// TimeoutReason is the typed close reason sent to both sides when no frame
// with forward progress has arrived within the no-progress window.
const TimeoutReason = "no_progress_timeout"

const DefaultNoProgressTimeout = 30 * time.Second

// Session relays frames between a Target and a Source that found each other
// through the Rendezvous, discarding anything with a mismatching session id
// and closing both sides if neither makes progress within the timeout.
type Session struct {
	id      uint32
	target  Conn
	source  Conn
	timeout time.Duration

	mu           sync.Mutex
	lastProgress time.Time
	closed       bool

	stop chan struct{}
}

func NewSession(id uint32, target, source Conn, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = DefaultNoProgressTimeout
	}
	return &Session{
		id:           id,
		target:       target,
		source:       source,
		timeout:      timeout,
		lastProgress: time.Now(),
		stop:         make(chan struct{}),
	}
}

// ID returns the backup_session value frames on this relay must carry.
func (s *Session) ID() uint32 { return s.id }

// Forward relays a frame received from one side to the other. A frame whose
// Session doesn't match is silently discarded per spec §4.11. Empty frames
// are keepalives: they refresh the progress clock but are not relayed.
func (s *Session) Forward(from Side, f Frame) error {
	if f.Session != s.id {
		return nil
	}
	s.touch()
	if f.Type == Empty {
		return nil
	}
	dst := s.source
	if from == SideSource {
		dst = s.target
	}
	return dst.Send(f)
}

// Side identifies which rendezvous party sent a frame into Forward.
type Side int

const (
	SideTarget Side = iota
	SideSource
)

func (s *Session) touch() {
	s.mu.Lock()
	s.lastProgress = time.Now()
	s.mu.Unlock()
}

// timedOut reports whether now is past the no-progress deadline; split out
// from Run so a test can drive it without a real sleep.
func (s *Session) timedOut(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastProgress) > s.timeout
}

// Run polls for the no-progress timeout until Stop is called or the
// deadline trips, in which case both sides receive a typed close.
func (s *Session) Run() {
	interval := time.Second
	if s.timeout < interval {
		interval = s.timeout
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			if s.timedOut(now) {
				s.closeBoth(TimeoutReason)
				return
			}
		}
	}
}

func (s *Session) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.stop)
}

func (s *Session) closeBoth(reason string) {
	s.Stop()
	if err := s.target.Close(reason); err != nil {
		_ = errors.Wrap(err, "close target")
	}
	if err := s.source.Close(reason); err != nil {
		_ = errors.Wrap(err, "close source")
	}
}
