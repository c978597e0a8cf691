// Package merkle stores chat transcripts as a content-addressed DAG. Each
// message of a conversation is a node whose hash covers its content and its
// parent's hash, so identical conversation prefixes collapse into one path.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Bucket types.
const (
	TypeMessage = "message"
	TypeReply   = "reply"
)

// Bucket is the hashed content of a node.
type Bucket struct {
	// Type is TypeMessage for request messages and TypeReply for the
	// assistant text streamed back to the client.
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
}

// Node is one message in a transcript.
type Node struct {
	// Hash is the hex-encoded SHA-256 of the bucket and the parent hash.
	Hash string `json:"hash"`

	// ParentHash is nil for the first message of a conversation.
	ParentHash *string `json:"parent_hash"`

	Bucket Bucket `json:"bucket"`
}

// NewNode creates a node for bucket under parent, which may be nil.
func NewNode(bucket Bucket, parent *Node) *Node {
	n := &Node{Bucket: bucket}
	if parent != nil {
		h := parent.Hash
		n.ParentHash = &h
	}
	n.Hash = n.computeHash()
	return n
}

// Verify reports whether the stored hash matches the node's content.
func (n *Node) Verify() bool {
	return n.Hash == n.computeHash()
}

type hashInput struct {
	Bucket Bucket `json:"bucket"`
	Parent string `json:"parent,omitempty"`
}

func (n *Node) computeHash() string {
	in := hashInput{Bucket: n.Bucket}
	if n.ParentHash != nil {
		in.Parent = *n.ParentHash
	}

	// Struct fields marshal in declaration order, so the encoding is stable.
	data, err := json.Marshal(in)
	if err != nil {
		panic("merkle: marshal hash input: " + err.Error())
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
