package chatcmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/baassist/cmd/baassist/apiclient"
	"github.com/papercomputeco/baassist/pkg/llm"
	"github.com/papercomputeco/baassist/pkg/sse"
)

const chatLongDesc string = `Send a message to a running baassist server and stream the reply.

Without arguments the message is read from stdin.

Examples:
  baassist chat "Write user stories for password reset"
  echo "List the actors in this process" | baassist chat
  baassist chat --system "You are a business analyst" "Draft a BRD outline"`

const chatShortDesc string = "Chat with the assistant"

type chatCommander struct {
	server    string
	system    string
	maxTokens int
	generate  bool
}

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args)
		},
	}

	cmd.Flags().StringVar(&cmder.server, "server", apiclient.DefaultServer, "baassist server URL")
	cmd.Flags().StringVar(&cmder.system, "system", "", "System message sent before the user message")
	cmd.Flags().IntVar(&cmder.maxTokens, "max-tokens", 0, "Maximum tokens to generate (0 uses the server default)")
	cmd.Flags().BoolVar(&cmder.generate, "generate", false, "Use single-prompt generation instead of chat")

	return cmd
}

func (c *chatCommander) run(ctx context.Context, cmd *cobra.Command, args []string) error {
	text, err := readMessage(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	var (
		path string
		body any
	)
	if c.generate {
		path = "/api/generate"
		body = llm.GenerateBody{Prompt: text, MaxTokens: c.maxTokens}
	} else {
		var messages []llm.Message
		if c.system != "" {
			messages = append(messages, llm.Message{Role: "system", Content: c.system})
		}
		messages = append(messages, llm.Message{Role: "user", Content: text})
		path = "/api/chat"
		body = llm.ChatBody{Messages: messages, MaxTokens: c.maxTokens}
	}

	out := cmd.OutOrStdout()
	err = apiclient.Stream(ctx, http.MethodPost, apiclient.URL(c.server, path), body, func(ev sse.Event) {
		if content, ok := ev.(sse.Content); ok {
			fmt.Fprint(out, content.Content)
		}
	})
	fmt.Fprintln(out)
	return err
}

func readMessage(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("could not read message: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("no message given")
	}
	return text, nil
}
