package merkle

import (
	"context"
	"errors"
)

// Storer persists and traverses transcript nodes. Identical content under an
// identical parent hashes the same, so storing a conversation twice only adds
// the messages that differ.
type Storer interface {
	// Put stores node and reports whether it was new. Storing an existing
	// hash is a no-op.
	Put(ctx context.Context, node *Node) (bool, error)

	// Get returns the node with hash, or ErrNotFound.
	Get(ctx context.Context, hash string) (*Node, error)

	Has(ctx context.Context, hash string) (bool, error)

	// GetByParent returns the children of parentHash. Nil selects roots.
	GetByParent(ctx context.Context, parentHash *string) ([]*Node, error)

	// List returns every node in insertion order.
	List(ctx context.Context) ([]*Node, error)

	// Roots returns nodes without a parent.
	Roots(ctx context.Context) ([]*Node, error)

	// Leaves returns nodes without children, i.e. conversation ends.
	Leaves(ctx context.Context) ([]*Node, error)

	// Ancestry returns the path from hash back to its root, node first.
	Ancestry(ctx context.Context, hash string) ([]*Node, error)

	// Descendants returns the same path root first.
	Descendants(ctx context.Context, hash string) ([]*Node, error)

	// Depth is 0 for roots.
	Depth(ctx context.Context, hash string) (int, error)

	Close() error
}

// ErrNotFound is returned when a node doesn't exist in the store.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	if e.Hash == "" {
		return "node not found"
	}
	return "node not found: " + e.Hash
}

// IsNotFound reports whether err is an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

var errNilNode = errors.New("merkle: cannot store nil node")

// ancestry walks parent links with get. Both storers share it.
func ancestry(ctx context.Context, hash string, get func(context.Context, string) (*Node, error)) ([]*Node, error) {
	var path []*Node
	seen := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := seen[hash]; ok {
			return nil, errors.New("merkle: cycle detected at " + hash)
		}
		seen[hash] = struct{}{}

		node, err := get(ctx, hash)
		if err != nil {
			return nil, err
		}
		path = append(path, node)

		if node.ParentHash == nil {
			return path, nil
		}
		hash = *node.ParentHash
	}
}

func reversed(nodes []*Node) []*Node {
	out := make([]*Node, len(nodes))
	for i, n := range nodes {
		out[len(nodes)-1-i] = n
	}
	return out
}
