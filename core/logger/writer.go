package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

var errWriterClosed = errors.New("logger: writer closed")

// asyncWriter decouples log formatting from sink latency: lines are
// queued and drained by a single goroutine into one buffered sink
// (stdout fanned out with the optional bot file), so a slow disk never
// stalls the poll loop or a dispatch worker.
type asyncWriter struct {
	lines  chan []byte
	flushc chan chan error
	done   chan struct{}
	stop   sync.Once

	out *bufio.Writer

	mu  sync.Mutex
	err error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	sinks := make([]io.Writer, 0, len(writers))
	for _, w := range writers {
		if w != nil {
			sinks = append(sinks, w)
		}
	}
	var target io.Writer
	switch len(sinks) {
	case 0:
		target = io.Discard
	case 1:
		target = sinks[0]
	default:
		target = io.MultiWriter(sinks...)
	}

	w := &asyncWriter{
		lines:  make(chan []byte, 512),
		flushc: make(chan chan error),
		done:   make(chan struct{}),
		out:    bufio.NewWriterSize(target, bufSize),
	}
	go w.drain()
	return w
}

// drain is the single writer goroutine. The buffer is flushed whenever
// the queue runs dry, so lines reach the sinks promptly under light
// load and batch up under bursts.
func (w *asyncWriter) drain() {
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.record(w.out.Flush())
				close(w.done)
				return
			}
			if _, err := w.out.Write(line); err != nil {
				w.record(err)
				continue
			}
			if len(w.lines) == 0 {
				w.record(w.out.Flush())
			}
		case ack := <-w.flushc:
			ack <- w.out.Flush()
		}
	}
}

// Write queues one formatted line, blocking when the queue is full
// rather than dropping log output.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.lastErr(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	line := make([]byte, len(p))
	copy(line, p)
	select {
	case <-w.done:
		if err := w.lastErr(); err != nil {
			return err
		}
		return errWriterClosed
	case w.lines <- line:
		return nil
	}
}

// Flush forces buffered content out to the sinks and waits for it.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushc <- ack:
		return <-ack
	case <-w.done:
		return w.lastErr()
	}
}

// Close stops intake, drains the queue, flushes, and reports the first
// write error seen over the writer's lifetime.
func (w *asyncWriter) Close() error {
	w.stop.Do(func() { close(w.lines) })
	<-w.done
	return w.lastErr()
}

func (w *asyncWriter) record(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
}

func (w *asyncWriter) lastErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
