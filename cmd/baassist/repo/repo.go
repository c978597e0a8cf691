package repocmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/baassist/cmd/baassist/apiclient"
	"github.com/papercomputeco/baassist/pkg/sse"
)

const repoLongDesc string = `Inspect a git repository through a running baassist server.

The path is resolved on the server, so it must exist on the machine
the server runs on.`

const repoShortDesc string = "Repository statistics and feature analysis"

const defaultWrap = 100

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type repoCommander struct {
	server string
	plain  bool
	tags   bool
}

func NewRepoCmd() *cobra.Command {
	cmder := &repoCommander{}

	cmd := &cobra.Command{
		Use:   "repo",
		Short: repoShortDesc,
		Long:  repoLongDesc,
	}

	cmd.PersistentFlags().StringVar(&cmder.server, "server", apiclient.DefaultServer, "baassist server URL")
	cmd.PersistentFlags().BoolVar(&cmder.plain, "plain", false, "Disable styling and markdown rendering")

	stats := &cobra.Command{
		Use:   "stats <path>",
		Short: "Show commits and tags",
		Example: `  baassist repo stats /srv/git/billing
  baassist repo stats --tags .`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.runStats(cmd.Context(), cmd, args[0])
		},
	}
	stats.Flags().BoolVar(&cmder.tags, "tags", false, "List every tag")

	features := &cobra.Command{
		Use:     "features <path>",
		Short:   "Summarize the features a repository implements",
		Example: `  baassist repo features /srv/git/billing`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.runFeatures(cmd.Context(), cmd, args[0])
		},
	}

	cmd.AddCommand(stats, features)
	return cmd
}

func (c *repoCommander) endpoint(path, repoPath string) string {
	return apiclient.URL(c.server, path) + "?path=" + url.QueryEscape(repoPath)
}

func (c *repoCommander) styled(out io.Writer) bool {
	if c.plain {
		return false
	}
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (c *repoCommander) heading(out io.Writer, text string) {
	if c.styled(out) {
		text = headingStyle.Render(text)
	}
	fmt.Fprintln(out, text)
}

func (c *repoCommander) runStats(ctx context.Context, cmd *cobra.Command, repoPath string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	var (
		commits    []sse.Commit
		tags       []sse.Tag
		progressed bool
	)
	err := apiclient.Stream(ctx, http.MethodGet, c.endpoint("/api/repo/stats", repoPath), nil, func(ev sse.Event) {
		switch e := ev.(type) {
		case sse.CommitProgress:
			fmt.Fprintf(errOut, "\rloaded %d commits", e.Loaded)
			progressed = true
		case sse.Commits:
			commits = e.Commits
		case sse.Tags:
			tags = e.Tags
		}
	})
	if progressed {
		fmt.Fprintln(errOut)
	}
	if err != nil {
		return err
	}

	c.heading(out, repoPath)
	fmt.Fprintf(out, "Commits: %d\n", len(commits))
	if len(commits) > 0 {
		// Commits arrive newest first.
		fmt.Fprintf(out, "First:   %s\n", commits[len(commits)-1].Date)
		fmt.Fprintf(out, "Latest:  %s\n", commits[0].Date)
	}
	fmt.Fprintf(out, "Tags:    %d\n", len(tags))

	if c.tags && len(tags) > 0 {
		fmt.Fprintln(out)
		c.heading(out, "Tags")
		for _, t := range tags {
			hash := t.Hash
			if len(hash) > 8 {
				hash = hash[:8]
			}
			if c.styled(out) {
				hash = dimStyle.Render(hash)
			}
			fmt.Fprintf(out, "  %s %s\n", t.Name, hash)
		}
	}
	return nil
}

func (c *repoCommander) runFeatures(ctx context.Context, cmd *cobra.Command, repoPath string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	styled := c.styled(out)

	var summary strings.Builder
	received := 0
	err := apiclient.Stream(ctx, http.MethodGet, c.endpoint("/api/repo/features", repoPath), nil, func(ev sse.Event) {
		switch e := ev.(type) {
		case sse.Feature:
			if styled {
				received += len(e.Content)
				fmt.Fprintf(errOut, "\ranalyzing... %d chars", received)
				return
			}
			fmt.Fprint(out, e.Content)
		case sse.Summary:
			summary.WriteString(e.Content)
		}
	})
	if err != nil {
		return err
	}

	if !styled {
		fmt.Fprintln(out)
		fmt.Fprintln(out)
		fmt.Fprintln(out, summary.String())
		return nil
	}

	fmt.Fprintln(errOut)
	c.heading(out, "Summary")
	rendered, err := renderMarkdown(summary.String(), out)
	if err != nil {
		return err
	}
	fmt.Fprint(out, rendered)
	return nil
}

func renderMarkdown(md string, out io.Writer) (string, error) {
	width := defaultWrap
	if f, ok := out.(*os.File); ok {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
			width = w
		}
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("could not create markdown renderer: %w", err)
	}
	return r.Render(md)
}
