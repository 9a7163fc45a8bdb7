package main

import (
	"fmt"
	"os"

	chatsync "github.com/worklane/chatsync"
)

// getClient builds a chat client from the stored configuration.
func getClient() *chatsync.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Default.BaseURL == "" {
		fmt.Fprintln(os.Stderr, "No base URL. Run 'chatsync init <base-url>' first.")
		os.Exit(1)
	}

	var opts []chatsync.ClientOption
	if cfg.Default.Token != "" {
		opts = append(opts, chatsync.WithToken(cfg.Default.Token))
	}
	return chatsync.NewClient(cfg.Default.BaseURL, opts...)
}

// getIdentity builds the participant identity from the stored configuration.
func getIdentity() chatsync.Identity {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Identity.UserID == "" {
		fmt.Fprintln(os.Stderr, "No identity. Run 'chatsync config set identity.user_id <id>' first.")
		os.Exit(1)
	}
	role := chatsync.ParticipantKind(cfg.Identity.Role)
	switch role {
	case chatsync.ParticipantClient, chatsync.ParticipantEmployee, chatsync.ParticipantAdmin:
	case "":
		role = chatsync.ParticipantClient
	default:
		fmt.Fprintf(os.Stderr, "Unknown role %q (valid: client, employee, admin)\n", cfg.Identity.Role)
		os.Exit(1)
	}
	return chatsync.Identity{UserID: cfg.Identity.UserID, Kind: role}
}

// senderName returns the display name from the config, defaulting to the
// user id when unset.
func senderName() string {
	cfg, err := loadConfig()
	if err != nil || cfg.Identity.Name == "" {
		return getIdentity().UserID
	}
	return cfg.Identity.Name
}

// printMessage writes one message as a chat line.
func printMessage(m chatsync.Message) {
	ts := m.CreatedAt.Local().Format("15:04")
	if m.Kind == chatsync.MessageAttachment {
		fmt.Printf("[%s] %s: %s (%s)\n", ts, m.SenderName, m.FileName, m.FileURL)
		return
	}
	fmt.Printf("[%s] %s: %s\n", ts, m.SenderName, m.Content)
}
