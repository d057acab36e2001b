package checkpoint

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/sarchlab/hostsim/sim"
)

// Sink is where a checkpoint payload is written.
type Sink interface {
	io.Writer

	// Close flushes buffered data, makes the file durable and releases it.
	Close() error
}

// Source is where a checkpoint payload is read from.
type Source interface {
	sim.StateReader
	io.Closer

	// Err returns the first failure of the underlying stream. End of input
	// is not a failure.
	Err() error
}

// OpenSink creates the payload file at path, gzip-compressed if asked to.
func OpenSink(path string, compressed bool) (Sink, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	if !compressed {
		return &plainSink{file: f, w: bufio.NewWriter(f)}, nil
	}

	gz := gzip.NewWriter(f)

	return &gzipSink{file: f, gz: gz, w: bufio.NewWriter(gz)}, nil
}

// OpenSource opens the payload file at path. A compressed source fails to open
// if the gzip header is not readable.
func OpenSource(path string, compressed bool) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	if !compressed {
		sr := &stickyReader{r: f}
		return &source{Reader: bufio.NewReader(sr), sticky: sr, file: f}, nil
	}

	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	sr := &stickyReader{r: gz}

	return &source{Reader: bufio.NewReader(sr), sticky: sr, file: f, gz: gz}, nil
}

type plainSink struct {
	file *os.File
	w    *bufio.Writer
}

func (s *plainSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *plainSink) Close() error {
	flushErr := s.w.Flush()
	syncErr := s.file.Sync()
	closeErr := s.file.Close()

	return errors.Join(flushErr, syncErr, closeErr)
}

type gzipSink struct {
	file *os.File
	gz   *gzip.Writer
	w    *bufio.Writer
}

func (s *gzipSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *gzipSink) Close() error {
	flushErr := s.w.Flush()
	gzErr := s.gz.Close()
	syncErr := s.file.Sync()
	closeErr := s.file.Close()

	return errors.Join(flushErr, gzErr, syncErr, closeErr)
}

type source struct {
	*bufio.Reader

	sticky *stickyReader
	file   *os.File
	gz     *gzip.Reader
}

func (s *source) Err() error {
	return s.sticky.err
}

func (s *source) Close() error {
	var gzErr error
	if s.gz != nil {
		gzErr = s.gz.Close()
	}

	return errors.Join(gzErr, s.file.Close())
}

// stickyReader remembers the first read failure other than io.EOF.
type stickyReader struct {
	r   io.Reader
	err error
}

func (r *stickyReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF && r.err == nil {
		r.err = err
	}

	return n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)

	return n, err
}
