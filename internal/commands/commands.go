package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"chatrelay/internal/client"
	"chatrelay/internal/models"
)

// Sync registers or updates the caller's profile.
func Sync(ctx context.Context, api *client.API, out io.Writer, displayName, avatarURL, email string) error {
	profile, err := api.SyncProfile(ctx, displayName, avatarURL, email)
	if err != nil {
		return fmt.Errorf("failed to sync profile: %w", err)
	}
	fmt.Fprintf(out, "Profile synced: %s (%s)\n", profile.DisplayName, profile.ID)
	return nil
}

// Start opens the direct conversation with targetUserID and prints its id.
func Start(ctx context.Context, api *client.API, out io.Writer, targetUserID string) error {
	conv, err := api.EnsureConversation(ctx, targetUserID)
	if err != nil {
		return fmt.Errorf("failed to start conversation: %w", err)
	}
	fmt.Fprintf(out, "Conversation: %s\n", conv.ID)
	fmt.Fprintf(out, "Members:      %s\n", memberNames(conv.Members))
	return nil
}

// List prints the caller's conversations with their unread badges.
func List(ctx context.Context, api *client.API, out io.Writer) error {
	list, err := api.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No conversations yet.")
		return nil
	}
	for _, conv := range list {
		preview := ""
		if conv.LastMessage != nil {
			preview = conv.LastMessage.Text
		}
		fmt.Fprintf(out, "%s  [%d]  %s  %s\n", conv.ID, conv.UnreadCount, memberNames(conv.Members), preview)
	}
	return nil
}

// Send posts one message to a conversation.
func Send(ctx context.Context, api *client.API, out io.Writer, conversationID, text string) error {
	message, err := api.SendMessage(ctx, conversationID, text)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	fmt.Fprintf(out, "Sent %s at %s\n", message.ID, message.CreatedAt.Format("15:04:05"))
	return nil
}

// Tail opens a conversation, prints its history and then every message that
// arrives until ctx is done.
func Tail(ctx context.Context, api *client.API, socket *client.Socket, out io.Writer, conversationID string) error {
	session := client.NewSession(api.UserID(), api, socket)
	if err := session.Refresh(ctx); err != nil {
		return err
	}
	if err := session.Open(ctx, conversationID); err != nil {
		return err
	}

	printed := 0
	flush := func() {
		messages := session.Messages()
		for _, m := range messages[printed:] {
			printMessage(out, m)
		}
		printed = len(messages)
		if banner := session.Banner(); banner != "" {
			fmt.Fprintf(out, "! %s\n", banner)
		}
	}
	flush()

	events := socket.Events()
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return nil
			}
			session.HandleEvent(ctx, event)
			flush()
		case <-ctx.Done():
			return nil
		}
	}
}

func printMessage(out io.Writer, m models.Message) {
	name := m.SenderName
	if name == "" {
		name = m.SenderID
	}
	fmt.Fprintf(out, "[%s] %s: %s (%s)\n", m.CreatedAt.Format("15:04:05"), name, m.Text, m.Status)
}

func memberNames(members []models.UserProfile) string {
	names := make([]string, 0, len(members))
	for _, member := range members {
		if member.DisplayName != "" {
			names = append(names, member.DisplayName)
		} else {
			names = append(names, member.ID)
		}
	}
	return strings.Join(names, ", ")
}
