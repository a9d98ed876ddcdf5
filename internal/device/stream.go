package device

import "sync"

// Stream executes launched commands one at a time in issue order on its own
// goroutine. Launch returns as soon as the command is queued; Synchronize is
// the only point where the caller waits for completion.
type Stream struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
}

func NewStream(depth int) *Stream {
	s := &Stream{
		queue: make(chan func(), max(depth, 1)),
		done:  make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Stream) loop() {
	defer close(s.done)
	for cmd := range s.queue {
		cmd()
	}
}

// Launch enqueues cmd. It blocks only when the queue is full.
func (s *Stream) Launch(cmd func()) {
	s.queue <- cmd
}

// Synchronize blocks until every command launched before it has completed.
func (s *Stream) Synchronize() {
	barrier := make(chan struct{})
	s.queue <- func() { close(barrier) }
	<-barrier
}

// Close drains the queue and stops the stream. Launch must not be called
// after Close.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.queue)
		<-s.done
	})
}
