package merkle_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/baassist/pkg/merkle"
)

// describeStorer runs the same behaviour against every Storer implementation.
func describeStorer(name string, open func() merkle.Storer) {
	Describe(name, func() {
		var (
			storer merkle.Storer
			ctx    context.Context
		)

		put := func(nodes ...*merkle.Node) {
			for _, n := range nodes {
				_, err := storer.Put(ctx, n)
				Expect(err).NotTo(HaveOccurred())
			}
		}

		BeforeEach(func() {
			ctx = context.Background()
			storer = open()
		})

		AfterEach(func() {
			Expect(storer.Close()).To(Succeed())
		})

		Describe("Put and Get", func() {
			It("round-trips a root node", func() {
				node := merkle.NewNode(message("user", "test content"), nil)

				isNew, err := storer.Put(ctx, node)
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeTrue())

				got, err := storer.Get(ctx, node.Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(node))
				Expect(got.Verify()).To(BeTrue())
			})

			It("round-trips a child node", func() {
				parent := merkle.NewNode(message("user", "parent"), nil)
				child := merkle.NewNode(message("assistant", "child"), parent)
				put(parent, child)

				got, err := storer.Get(ctx, child.Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ParentHash).NotTo(BeNil())
				Expect(*got.ParentHash).To(Equal(parent.Hash))
			})

			It("returns ErrNotFound for an unknown hash", func() {
				_, err := storer.Get(ctx, "nonexistent")
				Expect(err).To(MatchError(merkle.ErrNotFound{Hash: "nonexistent"}))
				Expect(merkle.IsNotFound(err)).To(BeTrue())
			})

			It("deduplicates repeated puts", func() {
				node := merkle.NewNode(message("user", "test"), nil)
				put(node)

				isNew, err := storer.Put(ctx, node)
				Expect(err).NotTo(HaveOccurred())
				Expect(isNew).To(BeFalse())

				nodes, err := storer.List(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(nodes).To(HaveLen(1))
			})

			It("rejects nil nodes", func() {
				_, err := storer.Put(ctx, nil)
				Expect(err).To(MatchError(ContainSubstring("nil node")))
			})
		})

		Describe("Has", func() {
			It("reports presence", func() {
				node := merkle.NewNode(message("user", "test"), nil)
				put(node)

				ok, err := storer.Has(ctx, node.Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeTrue())

				ok, err = storer.Has(ctx, "nonexistent")
				Expect(err).NotTo(HaveOccurred())
				Expect(ok).To(BeFalse())
			})
		})

		Describe("traversal", func() {
			var root, other, q, a, leaf *merkle.Node

			BeforeEach(func() {
				root = merkle.NewNode(message("user", "root"), nil)
				other = merkle.NewNode(message("user", "other"), nil)
				q = merkle.NewNode(message("assistant", "q"), root)
				a = merkle.NewNode(message("assistant", "a"), root)
				leaf = merkle.NewNode(message("user", "leaf"), q)
				put(root, other, q, a, leaf)
			})

			It("lists everything in insertion order", func() {
				nodes, err := storer.List(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(hashes(nodes)).To(Equal([]string{root.Hash, other.Hash, q.Hash, a.Hash, leaf.Hash}))
			})

			It("finds children and roots", func() {
				children, err := storer.GetByParent(ctx, &root.Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(hashes(children)).To(ConsistOf(q.Hash, a.Hash))

				roots, err := storer.Roots(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(hashes(roots)).To(ConsistOf(root.Hash, other.Hash))

				viaNil, err := storer.GetByParent(ctx, nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(hashes(viaNil)).To(ConsistOf(root.Hash, other.Hash))
			})

			It("finds leaves", func() {
				leaves, err := storer.Leaves(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(hashes(leaves)).To(ConsistOf(other.Hash, a.Hash, leaf.Hash))
			})

			It("walks ancestry node first and descendants root first", func() {
				up, err := storer.Ancestry(ctx, leaf.Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(hashes(up)).To(Equal([]string{leaf.Hash, q.Hash, root.Hash}))

				down, err := storer.Descendants(ctx, leaf.Hash)
				Expect(err).NotTo(HaveOccurred())
				Expect(hashes(down)).To(Equal([]string{root.Hash, q.Hash, leaf.Hash}))
			})

			It("computes depth", func() {
				for hash, depth := range map[string]int{root.Hash: 0, q.Hash: 1, leaf.Hash: 2} {
					d, err := storer.Depth(ctx, hash)
					Expect(err).NotTo(HaveOccurred())
					Expect(d).To(Equal(depth))
				}
			})

			It("fails traversal of unknown hashes", func() {
				_, err := storer.Ancestry(ctx, "missing")
				Expect(merkle.IsNotFound(err)).To(BeTrue())
				_, err = storer.Depth(ctx, "missing")
				Expect(merkle.IsNotFound(err)).To(BeTrue())
			})
		})

		It("returns empty slices for an empty store", func() {
			nodes, err := storer.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(nodes).NotTo(BeNil())
			Expect(nodes).To(BeEmpty())
		})
	})
}

func hashes(nodes []*merkle.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Hash
	}
	return out
}

var _ = Describe("Storer", func() {
	describeStorer("MemoryStorer", func() merkle.Storer {
		return merkle.NewMemoryStorer()
	})

	describeStorer("SQLiteStorer", func() merkle.Storer {
		s, err := merkle.NewSQLiteStorer(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return s
	})
})

var _ = Describe("NewSQLiteStorer", func() {
	It("creates the database file and parent directories", func() {
		path := filepath.Join(GinkgoT().TempDir(), "nested", "transcripts.db")

		s, err := merkle.NewSQLiteStorer(path)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		_, err = os.Stat(path)
		Expect(err).NotTo(HaveOccurred())
	})

	It("keeps nodes across reopen", func() {
		ctx := context.Background()
		path := filepath.Join(GinkgoT().TempDir(), "transcripts.db")
		node := merkle.NewNode(message("user", "persisted"), nil)

		s, err := merkle.NewSQLiteStorer(path)
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Put(ctx, node)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Close()).To(Succeed())

		s, err = merkle.NewSQLiteStorer(path)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		ok, err := s.Has(ctx, node.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})
})
