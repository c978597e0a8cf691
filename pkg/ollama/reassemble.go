package ollama

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
)

// Mode selects how content is pulled out of each streamed line.
type Mode int

const (
	// ModeChat reads message.content and stops at done:true.
	ModeChat Mode = iota
	// ModeGenerate reads response and runs until the stream ends.
	ModeGenerate
)

func (m Mode) String() string {
	if m == ModeGenerate {
		return "generate"
	}
	return "chat"
}

func (m Mode) contentPath() string {
	if m == ModeGenerate {
		return "response"
	}
	return "message.content"
}

// ChunkFunc receives each content fragment as it arrives.
type ChunkFunc func(content string)

// Reassembler rebuilds text from newline-delimited JSON fed in arbitrary
// pieces. Lines that are not valid JSON are skipped. The result does not
// depend on where the input was split.
type Reassembler struct {
	mode    Mode
	onChunk ChunkFunc

	buf    []byte
	text   strings.Builder
	chunks int
	done   bool
	err    error
}

// NewReassembler creates a Reassembler; onChunk may be nil.
func NewReassembler(mode Mode, onChunk ChunkFunc) *Reassembler {
	return &Reassembler{mode: mode, onChunk: onChunk}
}

// Feed consumes p and reports whether the stream is finished, either by a
// chat done marker or an upstream error line. Input after that is ignored.
func (r *Reassembler) Feed(p []byte) bool {
	if r.finished() {
		return true
	}
	r.buf = append(r.buf, p...)

	start := 0
	for !r.finished() {
		i := bytes.IndexByte(r.buf[start:], '\n')
		if i < 0 {
			break
		}
		r.line(r.buf[start : start+i])
		start += i + 1
	}

	r.buf = append(r.buf[:0], r.buf[start:]...)
	return r.finished()
}

// Flush processes a trailing line that arrived without a newline.
func (r *Reassembler) Flush() {
	if !r.finished() && len(r.buf) > 0 {
		r.line(r.buf)
	}
	r.buf = nil
}

// Text is the ordered concatenation of every fragment so far.
func (r *Reassembler) Text() string { return r.text.String() }

// Chunks is the number of non-empty fragments delivered.
func (r *Reassembler) Chunks() int { return r.chunks }

// Done reports whether a chat done marker was seen.
func (r *Reassembler) Done() bool { return r.done }

// Err returns the upstream error embedded in the stream, if any.
func (r *Reassembler) Err() error { return r.err }

func (r *Reassembler) finished() bool {
	return r.done || r.err != nil
}

func (r *Reassembler) line(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !gjson.ValidBytes(line) {
		return
	}

	if e := gjson.GetBytes(line, "error"); e.Exists() && e.String() != "" {
		r.err = &UpstreamError{Message: e.String()}
		return
	}

	if content := gjson.GetBytes(line, r.mode.contentPath()).String(); content != "" {
		r.text.WriteString(content)
		r.chunks++
		if r.onChunk != nil {
			r.onChunk(content)
		}
	}

	if r.mode == ModeChat && gjson.GetBytes(line, "done").Bool() {
		r.done = true
	}
}
