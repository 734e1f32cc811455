package blobstore

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
)

//ChunkSize is the size of the chunks a download is streamed in
const ChunkSize = 5 * 1024 * 1024

//ErrObjectNotFound is returned when a download targets an object that does not exist
var ErrObjectNotFound = errors.New("object not found")

//Store keeps binary payloads in one bucket per tenant, keyed by object id
type Store interface {
	Upload(ctx context.Context, companyID, objectID uuid.UUID, r io.Reader, size int64) error
	Download(ctx context.Context, companyID, objectID uuid.UUID) (*Stream, error)
	Delete(ctx context.Context, companyID, objectID uuid.UUID) error
}

//Stream is a finite sequence of chunks that can be consumed once. Close must be
//called to release the underlying object, also when the stream is abandoned early.
type Stream struct {
	Size int64

	body   io.ReadCloser
	buf    []byte
	done   bool
	closed bool
}

func newStream(body io.ReadCloser, size int64) *Stream {
	return &Stream{Size: size, body: body}
}

//Next returns the next chunk of at most ChunkSize bytes, or io.EOF once the
//object has been read to the end. The returned slice is only valid until the next call.
func (s *Stream) Next() ([]byte, error) {
	if s.closed {
		return nil, io.ErrClosedPipe
	}
	if s.done {
		return nil, io.EOF
	}

	if s.buf == nil {
		s.buf = make([]byte, ChunkSize)
	}

	n, err := io.ReadFull(s.body, s.buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		s.done = true
		if n == 0 {
			return nil, io.EOF
		}
		return s.buf[:n], nil
	}
	if err != nil {
		return nil, err
	}

	return s.buf[:n], nil
}

//CopyTo copies the remaining chunks to w, calling flush after each chunk when it is non nil
func (s *Stream) CopyTo(w io.Writer, flush func()) (int64, error) {
	var written int64

	for {
		chunk, err := s.Next()
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, err
		}

		n, err := w.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}

		if flush != nil {
			flush()
		}
	}
}

//Close releases the underlying object. Closing twice is harmless.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
