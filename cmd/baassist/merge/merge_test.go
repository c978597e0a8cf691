package mergecmder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/baassist/pkg/merkle"
)

var _ = Describe("Merge Command", func() {
	var (
		ctx     context.Context
		tmpDir  string
		srcPath string
		dstPath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		tmpDir, err = os.MkdirTemp("", "baassist-merge-test-*")
		Expect(err).NotTo(HaveOccurred())
		srcPath = filepath.Join(tmpDir, "source.db")
		dstPath = filepath.Join(tmpDir, "target.db")
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	makeNode := func(role, text string, parent *merkle.Node) *merkle.Node {
		return merkle.NewNode(merkle.Bucket{
			Type:    merkle.TypeMessage,
			Role:    role,
			Content: text,
			Model:   "test-model",
		}, parent)
	}

	seed := func(path string, nodes ...*merkle.Node) {
		s, err := merkle.NewSQLiteStorer(path)
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()
		for _, n := range nodes {
			_, err := s.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())
		}
	}

	listTarget := func() []*merkle.Node {
		dst, err := merkle.NewSQLiteStorer(dstPath)
		Expect(err).NotTo(HaveOccurred())
		defer dst.Close()
		nodes, err := dst.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		return nodes
	}

	merge := func(sources ...string) (string, error) {
		var out bytes.Buffer
		cmd := NewMergeCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(append([]string{"--sqlite", dstPath}, sources...))
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	It("merges nodes from source into target", func() {
		nodeA := makeNode("user", "hello from source", nil)
		nodeB := makeNode("assistant", "hi back", nodeA)
		seed(srcPath, nodeA, nodeB)
		seed(dstPath, makeNode("user", "hello from target", nil))

		out, err := merge(srcPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("2 new, 0 already existed"))

		nodes := listTarget()
		Expect(nodes).To(HaveLen(3))
	})

	It("keeps parent links intact", func() {
		nodeA := makeNode("user", "question", nil)
		nodeB := makeNode("assistant", "answer", nodeA)
		seed(srcPath, nodeA, nodeB)

		_, err := merge(srcPath)
		Expect(err).NotTo(HaveOccurred())

		dst, err := merkle.NewSQLiteStorer(dstPath)
		Expect(err).NotTo(HaveOccurred())
		defer dst.Close()
		chain, err := dst.Ancestry(ctx, nodeB.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(chain).To(HaveLen(2))
		Expect(chain[1].Hash).To(Equal(nodeA.Hash))
	})

	It("deduplicates when merging the same source twice", func() {
		seed(srcPath, makeNode("user", "dedup test", nil))

		_, err := merge(srcPath)
		Expect(err).NotTo(HaveOccurred())

		out, err := merge(srcPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Merged 0 new nodes from 1 sources (1 already existed)"))

		Expect(listTarget()).To(HaveLen(1))
	})

	It("merges multiple sources", func() {
		src2Path := filepath.Join(tmpDir, "source2.db")
		seed(srcPath, makeNode("user", "from source 1", nil))
		seed(src2Path, makeNode("user", "from source 2", nil))

		_, err := merge(srcPath, src2Path)
		Expect(err).NotTo(HaveOccurred())

		Expect(listTarget()).To(HaveLen(2))
	})

	It("requires at least one source", func() {
		_, err := merge()
		Expect(err).To(HaveOccurred())
	})
})
