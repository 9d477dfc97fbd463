// Copyright 2017 Diffeo, Inc.
// This software is released under an MIT/X11 open source license.

package representation

import (
	"context"
	"io"
	"sync"

	"github.com/diffeo/go-restlet/metadata"
)

// WriteFunc produces the content of a Writer representation.  It
// should return promptly with the write error once ctx is done.
type WriteFunc func(ctx context.Context, w io.Writer) error

// DefaultBufferChunks is the default depth of the channel between a
// producer and its reader.
const DefaultBufferChunks = 8

// Writer is a representation whose content is produced on demand by
// a function writing to an io.Writer.  Opening it starts the producer
// in a goroutine connected to the reader by a bounded channel of
// chunks; closing the reader cancels the producer.
//
// A Writer can be opened more than once; each Open runs the producer
// again.
type Writer struct {
	Info
	produce WriteFunc
	chunks  int
}

// NewWriter creates a producer-backed representation.
func NewWriter(variant metadata.Variant, produce WriteFunc) *Writer {
	return &Writer{
		Info:    Info{Metadata: variant, Length: -1},
		produce: produce,
		chunks:  DefaultBufferChunks,
	}
}

// SetBufferChunks changes the channel depth used by later calls to
// Open.
func (w *Writer) SetBufferChunks(n int) {
	if n < 0 {
		n = 0
	}
	w.chunks = n
}

// Open starts the producer.
func (w *Writer) Open(ctx context.Context) (io.ReadCloser, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &pipe{
		chunks: make(chan []byte, w.chunks),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go p.run(ctx, w.produce)
	return p, nil
}

// Available is always true.
func (w *Writer) Available() bool {
	return true
}

// Transient is always false.
func (w *Writer) Transient() bool {
	return false
}

// Release does nothing.
func (w *Writer) Release() {}

// pipe connects one producer goroutine to one reader.
type pipe struct {
	chunks chan []byte
	done   chan struct{}
	cancel context.CancelFunc

	// err is written by the producer before chunks is closed
	err error

	// pending holds the unread remainder of the last chunk; only
	// the reader touches it
	pending []byte

	closeOnce sync.Once
}

// chanWriter is the io.Writer handed to the producer.
type chanWriter struct {
	ctx    context.Context
	chunks chan<- []byte
}

func (cw chanWriter) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	// The producer may reuse b after we return
	chunk := make([]byte, len(b))
	copy(chunk, b)
	select {
	case cw.chunks <- chunk:
		return len(b), nil
	case <-cw.ctx.Done():
		return 0, cw.ctx.Err()
	}
}

func (p *pipe) run(ctx context.Context, produce WriteFunc) {
	defer close(p.done)
	defer close(p.chunks)
	defer func() {
		if recovered := recover(); recovered != nil {
			p.err = panicError{value: recovered}
		}
	}()
	p.err = produce(ctx, chanWriter{ctx: ctx, chunks: p.chunks})
}

// Read returns buffered producer output, the producer's error once
// it has finished, or io.EOF after a clean finish.
func (p *pipe) Read(b []byte) (int, error) {
	for len(p.pending) == 0 {
		chunk, ok := <-p.chunks
		if !ok {
			if p.err != nil {
				return 0, p.err
			}
			return 0, io.EOF
		}
		p.pending = chunk
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

// Close cancels the producer.  It does not wait for it to exit.
func (p *pipe) Close() error {
	p.closeOnce.Do(p.cancel)
	return nil
}

// Wait blocks until the producer goroutine has returned.
func (p *pipe) Wait() {
	<-p.done
}

type panicError struct {
	value interface{}
}

func (e panicError) Error() string {
	if err, isError := e.value.(error); isError {
		return "representation producer panicked: " + err.Error()
	}
	return "representation producer panicked"
}
