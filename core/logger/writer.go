package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// sink is one buffered output. A sink that failed is skipped afterwards so a
// broken log file does not silence stdout.
type sink struct {
	w   *bufio.Writer
	err error
}

// asyncWriter fans log lines out to its sinks from a single goroutine.
type asyncWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}

	qmu    sync.RWMutex
	closed bool

	mu    sync.Mutex
	sinks []*sink
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	aw := &asyncWriter{
		queue:    make(chan []byte, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, w := range writers {
		if w != nil {
			aw.sinks = append(aw.sinks, &sink{w: bufio.NewWriterSize(w, bufSize)})
		}
	}
	go aw.loop()
	return aw
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				_ = w.flushAll()
				return
			}
			w.writeAll(line)
		case ack := <-w.flushReq:
			ack <- w.flushAll()
		}
	}
}

// Write copies p and queues it. It blocks when the queue is full rather than
// dropping lines, and fails only once every sink has failed.
func (w *asyncWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if w.allFailed() {
		return w.err()
	}
	w.qmu.RLock()
	defer w.qmu.RUnlock()
	if w.closed {
		return errWriterClosed
	}
	w.queue <- append([]byte(nil), p...)
	return nil
}

// Flush waits until queued lines reach the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushReq <- ack:
		return <-ack
	case <-w.done:
		return w.err()
	}
}

// Close drains the queue and returns the sink errors seen so far.
func (w *asyncWriter) Close() error {
	w.qmu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.qmu.Unlock()
	<-w.done
	return w.err()
}

func (w *asyncWriter) writeAll(p []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if s.err != nil {
			continue
		}
		if _, err := s.w.Write(p); err != nil {
			w.fail(s, err)
			continue
		}
		if err := s.w.Flush(); err != nil {
			w.fail(s, err)
		}
	}
}

func (w *asyncWriter) flushAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if s.err == nil {
			if err := s.w.Flush(); err != nil {
				w.fail(s, err)
			}
		}
	}
	return w.errLocked()
}

// fail marks s broken and reports it once on stderr; the logger cannot log
// its own failure.
func (w *asyncWriter) fail(s *sink, err error) {
	s.err = err
	fmt.Fprintf(os.Stderr, "logger: sink disabled: %v\n", err)
}

func (w *asyncWriter) allFailed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.sinks {
		if s.err == nil {
			return false
		}
	}
	return len(w.sinks) > 0
}

func (w *asyncWriter) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errLocked()
}

func (w *asyncWriter) errLocked() error {
	var errs []error
	for _, s := range w.sinks {
		if s.err != nil {
			errs = append(errs, s.err)
		}
	}
	return errors.Join(errs...)
}
