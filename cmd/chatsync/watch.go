package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	chatsync "github.com/worklane/chatsync"
)

var watchVerbose bool

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Log push-channel activity")
}

var watchCmd = &cobra.Command{
	Use:   "watch <conversation-id>",
	Short: "Follow a conversation live",
	Long:  "Open the push channel and print new messages as they arrive.\nFalls back to periodic polling while the channel is down. Ctrl-C to stop.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		convID := args[0]
		id := getIdentity()
		client := getClient()

		log := zerolog.Nop()
		if watchVerbose {
			log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		}

		store := chatsync.NewStore()
		coord := chatsync.NewCoordinator(client, store, id, &chatsync.CoordinatorConfig{Logger: log})

		conn := chatsync.NewConnManager(id, chatsync.ConnConfig{
			BaseURL: client.BaseURL(),
			Logger:  log,
		})
		coord.Attach(conn)

		coord.Select(convID)
		coord.Start()
		defer coord.Stop()
		conn.Connect(context.Background())
		defer conn.Disconnect()

		coord.MarkRead(context.Background(), convID)

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

		// The store is replaced wholesale on every refetch; track which
		// message ids were already printed and show only the tail.
		seen := make(map[string]bool)
		ticker := time.NewTicker(300 * time.Millisecond)
		defer ticker.Stop()

		fmt.Printf("Watching %s (Ctrl-C to stop)\n", convID)
		for {
			select {
			case <-ticker.C:
				msgs, ok := store.Messages(convID)
				if !ok {
					continue
				}
				for _, m := range msgs {
					if seen[m.ID] {
						continue
					}
					seen[m.ID] = true
					printMessage(m)
				}
			case <-stop:
				fmt.Println("\nStopped.")
				return nil
			}
		}
	},
}
