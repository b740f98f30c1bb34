package eventio

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/houghtrack/internal/hough/l2hits"
)

// Reader decodes one JSON value per line.
type Reader struct {
	dec     *json.Decoder
	release func()
	file    *os.File
}

// NewReader reads an uncompressed or compressed stream from r.
func NewReader(r io.Reader, c Codec) (*Reader, error) {
	src, release, err := decompress(r, c)
	if err != nil {
		return nil, err
	}
	return &Reader{dec: json.NewDecoder(bufio.NewReader(src)), release: release}, nil
}

// Open opens path with the codec of its extension.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	r, err := NewReader(f, CodecFor(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// Next decodes the next event. It returns io.EOF at the end of the stream.
func (r *Reader) Next() (l2hits.Event, error) {
	var ev l2hits.Event
	if err := r.decode(&ev); err != nil {
		return l2hits.Event{}, err
	}
	return ev, nil
}

// NextRecord decodes the next track record.
func (r *Reader) NextRecord() (Record, error) {
	var rec Record
	if err := r.decode(&rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *Reader) decode(v any) error {
	if err := r.dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("failed to decode line: %w", err)
	}
	return nil
}

// Close releases the decoder and the file opened by Open.
func (r *Reader) Close() error {
	r.release()
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Writer encodes one JSON value per line.
type Writer struct {
	enc  *json.Encoder
	buf  *bufio.Writer
	comp io.WriteCloser
	file *os.File
}

// NewWriter writes a stream with codec c to w.
func NewWriter(w io.Writer, c Codec) (*Writer, error) {
	comp, err := compress(w, c)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(comp)
	return &Writer{enc: json.NewEncoder(buf), buf: buf, comp: comp}, nil
}

// Create truncates path and writes with the codec of its extension.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	w, err := NewWriter(f, CodecFor(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// Write appends an event.
func (w *Writer) Write(ev l2hits.Event) error { return w.encode(ev) }

// WriteRecord appends a track record.
func (w *Writer) WriteRecord(rec Record) error { return w.encode(rec) }

func (w *Writer) encode(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode line: %w", err)
	}
	return nil
}

// Close flushes every layer and closes the file opened by Create.
func (w *Writer) Close() error {
	err := w.buf.Flush()
	if cerr := w.comp.Close(); err == nil {
		err = cerr
	}
	if w.file != nil {
		if cerr := w.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
