package prompts_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/baassist/pkg/prompts"
)

var _ = Describe("Prompt", func() {
	p := prompts.Prompt{Name: "Sprint", Text: "Goal:\n[Objective]\n\nRisks:\n[Potential Issues]\n\nAgain: [Objective]"}

	It("lists placeholders once each", func() {
		Expect(p.Placeholders()).To(Equal([]string{"Objective", "Potential Issues"}))
	})

	It("fills known slots and keeps unknown ones", func() {
		out := p.Render(map[string]string{"Objective": "ship login"}, "")
		Expect(out).To(Equal("Goal:\nship login\n\nRisks:\n[Potential Issues]\n\nAgain: ship login"))
	})

	It("appends the context document", func() {
		out := p.Render(nil, "  the PRD  \n")
		Expect(out).To(HaveSuffix("\n\nContext document:\nthe PRD"))
	})
})

var _ = Describe("Defaults", func() {
	It("ships the five business analysis templates", func() {
		defaults := prompts.Defaults()
		names := make([]string, len(defaults))
		for i, p := range defaults {
			names[i] = p.Name
			Expect(p.ID).To(MatchRegexp(`^[0-9a-f-]{36}$`))
			Expect(p.Placeholders()).NotTo(BeEmpty())
		}
		Expect(names).To(Equal([]string{
			"User Story Map", "Customer Journey Map", "Page Navigations", "Page User Stories", "Sprint Plan",
		}))
	})
})

var _ = Describe("Store", func() {
	Context("in memory", func() {
		var store *prompts.Store

		BeforeEach(func() {
			var err error
			store, err = prompts.NewStore("", nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("starts with the defaults", func() {
			Expect(store.List()).To(HaveLen(5))
		})

		It("creates, updates, renders and deletes", func() {
			p, err := store.Create("Glossary", "Terms for [Domain]")
			Expect(err).NotTo(HaveOccurred())
			Expect(p.ID).NotTo(BeEmpty())

			got, err := store.Get(p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(p))

			p.Text = "Glossary for [Domain]"
			_, err = store.Update(p)
			Expect(err).NotTo(HaveOccurred())

			out, err := store.Render(p.ID, map[string]string{"Domain": "billing"}, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("Glossary for billing"))

			Expect(store.Delete(p.ID)).To(Succeed())
			_, err = store.Get(p.ID)
			Expect(err).To(MatchError(prompts.ErrNotFound))
		})

		It("validates input", func() {
			_, err := store.Create(" ", "text")
			Expect(err).To(MatchError(prompts.ErrInvalid))
			_, err = store.Create("name", "")
			Expect(err).To(MatchError(prompts.ErrInvalid))
		})

		It("reports unknown ids", func() {
			_, err := store.Update(prompts.Prompt{ID: "nope", Name: "a", Text: "b"})
			Expect(err).To(MatchError(prompts.ErrNotFound))
			Expect(store.Delete("nope")).To(MatchError(prompts.ErrNotFound))
			_, err = store.Render("nope", nil, "")
			Expect(err).To(MatchError(prompts.ErrNotFound))
		})

		It("returns copies from List", func() {
			list := store.List()
			list[0].Name = "changed"
			Expect(store.List()[0].Name).To(Equal("User Story Map"))
		})
	})

	Context("backed by a file", func() {
		var path string

		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "conf", "prompts.toml")
		})

		It("starts from defaults and persists changes", func() {
			store, err := prompts.NewStore(path, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.List()).To(HaveLen(5))

			p, err := store.Create("Glossary", "Terms for [Domain]")
			Expect(err).NotTo(HaveOccurred())

			reopened, err := prompts.NewStore(path, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(reopened.List()).To(HaveLen(6))
			got, err := reopened.Get(p.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(p))
		})

		It("assigns ids to hand-written entries", func() {
			Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
			Expect(os.WriteFile(path, []byte("[[prompt]]\nname = \"Mine\"\ntext = \"Do [Thing]\"\n"), 0o644)).To(Succeed())

			store, err := prompts.NewStore(path, nil)
			Expect(err).NotTo(HaveOccurred())
			list := store.List()
			Expect(list).To(HaveLen(1))
			Expect(list[0].ID).NotTo(BeEmpty())
			Expect(list[0].Name).To(Equal("Mine"))
		})

		It("fails on a malformed file", func() {
			Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
			Expect(os.WriteFile(path, []byte("[[prompt]\n"), 0o644)).To(Succeed())

			_, err := prompts.NewStore(path, nil)
			Expect(err).To(HaveOccurred())
		})

		It("reloads when the file changes", func() {
			store, err := prompts.NewStore(path, nil)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() { done <- store.Watch(ctx) }()
			DeferCleanup(func() {
				cancel()
				Eventually(done).Should(Receive(BeNil()))
			})

			// give the watcher time to register the directory
			time.Sleep(100 * time.Millisecond)
			Expect(os.WriteFile(path, []byte("[[prompt]]\nid = \"x\"\nname = \"Edited\"\ntext = \"t\"\n"), 0o644)).To(Succeed())

			Eventually(func() []prompts.Prompt { return store.List() }, 2*time.Second).Should(
				Equal([]prompts.Prompt{{ID: "x", Name: "Edited", Text: "t"}}),
			)
		})
	})
})
