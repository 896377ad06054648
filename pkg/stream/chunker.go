package stream

import (
	"errors"
	"io"
)

// DefaultChunkSize is used when a non-positive chunk size is given
const DefaultChunkSize = 32 * 1024

// ErrLimitExceeded is returned when more bytes than allowed are read
var ErrLimitExceeded = errors.New("stream exceeds size limit")

// ChunkedReader provides chunked reading capability for large payloads
type ChunkedReader struct {
	reader    io.Reader
	chunkSize int
	buf       []byte
	eof       bool
}

// NewChunkedReader creates a new chunked reader
func NewChunkedReader(reader io.Reader, chunkSize int) *ChunkedReader {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &ChunkedReader{
		reader:    reader,
		chunkSize: chunkSize,
		buf:       make([]byte, chunkSize),
	}
}

// NextChunk reads the next chunk from the reader. The returned slice is
// only valid until the next call. io.EOF is returned once the source is
// drained and no bytes remain.
func (cr *ChunkedReader) NextChunk() ([]byte, error) {
	if cr.eof {
		return nil, io.EOF
	}

	n, err := io.ReadFull(cr.reader, cr.buf)
	switch {
	case err == nil:
		return cr.buf[:n], nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		cr.eof = true
		if n > 0 {
			return cr.buf[:n], nil
		}
		return nil, io.EOF
	default:
		return nil, err
	}
}

// WriteTo drains the reader into w chunk by chunk
func (cr *ChunkedReader) WriteTo(w io.Writer) (int64, error) {
	return copyChunks(w, cr, -1)
}

// Copy streams src into dst in chunks of chunkSize bytes. A non-negative
// limit caps the number of bytes accepted, so zero accepts only empty input;
// reading past it returns ErrLimitExceeded after writing at most limit bytes.
// A negative limit disables the cap.
func Copy(dst io.Writer, src io.Reader, chunkSize int, limit int64) (int64, error) {
	return copyChunks(dst, NewChunkedReader(src, chunkSize), limit)
}

func copyChunks(dst io.Writer, cr *ChunkedReader, limit int64) (int64, error) {
	var written int64
	for {
		chunk, err := cr.NextChunk()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return written, nil
			}
			return written, err
		}

		if limit >= 0 && written+int64(len(chunk)) > limit {
			n, werr := dst.Write(chunk[:limit-written])
			written += int64(n)
			if werr != nil {
				return written, werr
			}
			return written, ErrLimitExceeded
		}

		n, err := dst.Write(chunk)
		written += int64(n)
		if err != nil {
			return written, err
		}
		if n != len(chunk) {
			return written, io.ErrShortWrite
		}
	}
}
