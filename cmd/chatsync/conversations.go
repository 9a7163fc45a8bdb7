package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	conversationsJSON bool

	messagesJSON  bool
	messagesLimit int
)

func init() {
	rootCmd.AddCommand(conversationsCmd)
	conversationsCmd.Flags().BoolVar(&conversationsJSON, "json", false, "Output raw JSON")

	rootCmd.AddCommand(messagesCmd)
	messagesCmd.Flags().BoolVar(&messagesJSON, "json", false, "Output raw JSON")
	messagesCmd.Flags().IntVarP(&messagesLimit, "limit", "n", 0, "Show only the last N messages")
}

var conversationsCmd = &cobra.Command{
	Use:   "conversations",
	Short: "List your conversations",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		id := getIdentity()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		convs, err := client.Conversations().List(ctx, id)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if conversationsJSON {
			data, err := json.MarshalIndent(convs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if len(convs) == 0 {
			fmt.Println("No conversations.")
			return nil
		}
		for _, c := range convs {
			last := "-"
			if !c.LastMessageAt.IsZero() {
				last = c.LastMessageAt.Local().Format("2006-01-02 15:04")
			}
			fmt.Printf("%-24s  %-8s  %-6s  last: %s\n", c.ID, c.Kind, c.Status, last)
		}
		return nil
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation-id>",
	Short: "Show the message history of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		msgs, err := client.Messages().List(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		if messagesLimit > 0 && len(msgs) > messagesLimit {
			msgs = msgs[len(msgs)-messagesLimit:]
		}

		if messagesJSON {
			data, err := json.MarshalIndent(msgs, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if len(msgs) == 0 {
			fmt.Println("No messages.")
			return nil
		}
		for _, m := range msgs {
			printMessage(m)
		}
		return nil
	},
}
