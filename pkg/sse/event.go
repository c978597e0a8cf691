// Package sse implements the JSON-over-SSE event stream spoken between the
// baassist server and its clients: a closed set of typed events, a server-side
// Stream that writes them with keep-alives and disconnect cleanup, and a
// client-side reader that parses them back out of a response body.
//
// Every frame on the wire is a single data line holding an envelope:
//
//	data: {"event":"content","data":{"content":"He"}}
//
// Keep-alives are comment frames (": keepalive") and are ignored by readers.
package sse

import (
	"encoding/json"
	"fmt"
)

// Kind tags an event on the wire.
type Kind string

const (
	KindContent        Kind = "content"
	KindFeature        Kind = "feature"
	KindSummary        Kind = "summary"
	KindCommits        Kind = "commits"
	KindTags           Kind = "tags"
	KindCommitProgress Kind = "commit-progress"
	KindSuccess        Kind = "success"
	KindError          Kind = "error"
)

// Event is one of the concrete event types in this package. The set is closed:
// the unexported marker keeps other packages from adding kinds, so a type
// switch over the types below is exhaustive.
type Event interface {
	Kind() Kind
	isEvent()
}

// Content is a fragment of streamed LLM text.
type Content struct {
	Content string `json:"content"`
}

// Feature is a fragment of a repository feature analysis.
type Feature struct {
	Content string `json:"content"`
}

// Summary is a fragment of the summary produced after feature analysis.
type Summary struct {
	Content string `json:"content"`
}

// Commit describes one commit in a Commits event.
type Commit struct {
	Hash    string `json:"hash"`
	Date    string `json:"date"`
	Author  string `json:"author,omitempty"`
	Message string `json:"message,omitempty"`
}

// Commits lists repository history, newest first.
type Commits struct {
	Commits []Commit `json:"commits"`
}

// Tag describes one tag in a Tags event.
type Tag struct {
	Name string `json:"name"`
	Hash string `json:"hash,omitempty"`
}

// Tags lists repository tags.
type Tags struct {
	Tags []Tag `json:"tags"`
}

// CommitProgress reports how many commits have been read so far.
type CommitProgress struct {
	Loaded int `json:"loaded"`
}

// Success terminates a stream that completed normally.
type Success struct {
	Message string `json:"message,omitempty"`
}

// Error terminates a stream that failed. Message is never empty on the wire.
type Error struct {
	Message string `json:"message"`
}

func (Content) Kind() Kind        { return KindContent }
func (Feature) Kind() Kind        { return KindFeature }
func (Summary) Kind() Kind        { return KindSummary }
func (Commits) Kind() Kind        { return KindCommits }
func (Tags) Kind() Kind           { return KindTags }
func (CommitProgress) Kind() Kind { return KindCommitProgress }
func (Success) Kind() Kind        { return KindSuccess }
func (Error) Kind() Kind          { return KindError }

func (Content) isEvent()        {}
func (Feature) isEvent()        {}
func (Summary) isEvent()        {}
func (Commits) isEvent()        {}
func (Tags) isEvent()           {}
func (CommitProgress) isEvent() {}
func (Success) isEvent()        {}
func (Error) isEvent()          {}

const unknownErrorMessage = "An unknown error occurred"

// Errorf builds an Error event.
func Errorf(format string, args ...any) Error {
	return Error{Message: fmt.Sprintf(format, args...)}
}

// IsTerminal reports whether no further events may follow ev.
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Success, *Success, Error, *Error:
		return true
	}
	return false
}

type envelope struct {
	Event Kind            `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode marshals ev into its wire envelope.
func Encode(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, fmt.Errorf("encode event: nil event")
	}
	switch e := ev.(type) {
	case Error:
		if e.Message == "" {
			ev = Error{Message: unknownErrorMessage}
		}
	case *Error:
		if e == nil || e.Message == "" {
			ev = Error{Message: unknownErrorMessage}
		}
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Kind(), err)
	}

	return json.Marshal(envelope{Event: ev.Kind(), Data: data})
}

// Decode parses a wire envelope into its concrete event type.
func Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	switch env.Event {
	case KindContent:
		return decodeAs[Content](env.Data)
	case KindFeature:
		return decodeAs[Feature](env.Data)
	case KindSummary:
		return decodeAs[Summary](env.Data)
	case KindCommits:
		return decodeAs[Commits](env.Data)
	case KindTags:
		return decodeAs[Tags](env.Data)
	case KindCommitProgress:
		return decodeAs[CommitProgress](env.Data)
	case KindSuccess:
		return decodeAs[Success](env.Data)
	case KindError:
		ev, err := decodeAs[Error](env.Data)
		if err != nil {
			return nil, err
		}
		if e := ev.(Error); e.Message == "" {
			return Error{Message: unknownErrorMessage}, nil
		}
		return ev, nil
	case "":
		return nil, fmt.Errorf("decode event: missing event kind")
	default:
		return nil, fmt.Errorf("decode event: unknown kind %q", env.Event)
	}
}

func decodeAs[T Event](data json.RawMessage) (Event, error) {
	var v T
	if len(data) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", v.Kind(), err)
	}
	return v, nil
}
