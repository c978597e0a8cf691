package sse

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrNoBody is returned when a response has no readable body.
var ErrNoBody = errors.New("sse: no response body available")

const readSize = 4096

// ReadResponse streams the events of resp to fn. See ReadEvents.
func ReadResponse(resp *http.Response, fn func(Event) bool) error {
	if resp == nil || resp.Body == nil || resp.Body == http.NoBody {
		return ErrNoBody
	}
	return ReadEvents(resp.Body, fn)
}

// ReadEvents reads body until EOF, calling fn for each event in the order it
// was written. Returning false from fn stops reading. Malformed data lines
// are delivered as Error events rather than aborting the read. The body is
// closed before ReadEvents returns, whatever the outcome.
func ReadEvents(body io.ReadCloser, fn func(Event) bool) error {
	if body == nil {
		return ErrNoBody
	}
	defer body.Close()

	var p Parser
	buf := make([]byte, readSize)

	for {
		n, err := body.Read(buf)
		if n > 0 && !p.Feed(buf[:n], fn) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			p.Flush(fn)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read event stream: %w", err)
		}
	}
}

// Parser turns arbitrarily split chunks of an event stream into events.
// It holds back the trailing partial line between calls to Feed. Lines are
// split on the newline byte, which never occurs inside a multi-byte UTF-8
// sequence, so characters cut across chunks are reassembled intact.
type Parser struct {
	buf []byte
}

// Feed appends chunk and delivers every complete line's event to fn.
// It reports false if fn asked to stop.
func (p *Parser) Feed(chunk []byte, fn func(Event) bool) bool {
	p.buf = append(p.buf, chunk...)

	start := 0
	for {
		i := bytes.IndexByte(p.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := p.buf[start : start+i]
		start += i + 1

		if ev, ok := ParseLine(line); ok && !fn(ev) {
			p.buf = append(p.buf[:0], p.buf[start:]...)
			return false
		}
	}

	p.buf = append(p.buf[:0], p.buf[start:]...)
	return true
}

// Flush parses whatever is left in the buffer as a final line. It is meant
// for end of stream, where the last frame may lack its newline.
func (p *Parser) Flush(fn func(Event) bool) bool {
	line := p.buf
	p.buf = nil
	if len(bytes.TrimSpace(line)) == 0 {
		return true
	}
	if ev, ok := ParseLine(line); ok {
		return fn(ev)
	}
	return true
}

// ParseLine decodes a single "data: " line. Lines without the prefix, such as
// keep-alive comments, report false. A data line that fails to decode yields
// an Error event describing the problem.
func ParseLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}

	ev, err := Decode(line[len(dataPrefix):])
	if err != nil {
		return Errorf("malformed event: %v", err), true
	}
	return ev, true
}
