package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/baassist/cmd/baassist/chat"
	mergecmder "github.com/papercomputeco/baassist/cmd/baassist/merge"
	pushcmder "github.com/papercomputeco/baassist/cmd/baassist/push"
	repocmder "github.com/papercomputeco/baassist/cmd/baassist/repo"
	servecmder "github.com/papercomputeco/baassist/cmd/baassist/serve"
)

const rootLongDesc string = `baassist is a local assistant for business analysts.

It serves a browser client over HTTP, streams replies from an
Ollama-compatible model and analyses git repositories on request.
Conversations are kept as a content-addressed transcript that can be
merged and pushed between machines.`

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "baassist",
		Short:         "Business analyst assistant",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		servecmder.NewServeCmd(),
		chatcmder.NewChatCmd(),
		repocmder.NewRepoCmd(),
		mergecmder.NewMergeCmd(),
		pushcmder.NewPushCmd(),
	)

	return cmd
}

func main() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
