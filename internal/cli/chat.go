package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/evcraddock/estate-market/internal/client"
)

func newChatCmd() *cobra.Command {
	var conversation string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Ask the marketplace assistant",
		Long:  "Send one message, or start an interactive session when no message is given. An empty line or EOF ends the session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newAPIClient()
			if len(args) > 0 {
				_, err := sendChat(c, conversation, strings.Join(args, " "), os.Stdout)
				return err
			}
			return chatLoop(c, conversation, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&conversation, "conversation", "", "continue an existing conversation")

	return cmd
}

// sendChat sends text and prints the reply. It returns the conversation ID
// so follow-up messages stay in the same thread.
func sendChat(c *client.Client, conversation, text string, out io.Writer) (string, error) {
	reply, err := c.Chat(conversation, text)
	if err != nil {
		return conversation, err
	}
	if isJSON() {
		return reply.Conversation, printJSON(reply)
	}
	fmt.Fprintf(out, "assistant: %s\n", reply.Text)
	if conversation == "" {
		fmt.Fprintf(out, "(conversation %s)\n", reply.Conversation)
	}
	return reply.Conversation, nil
}

func chatLoop(c *client.Client, conversation string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "you: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			return nil
		}

		var err error
		conversation, err = sendChat(c, conversation, text, out)
		if err != nil {
			return err
		}
	}
}
