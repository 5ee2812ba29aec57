package chat

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"chatrelay/internal/access"
	"chatrelay/internal/models"
	"chatrelay/internal/profiles"
	"chatrelay/internal/storage"

	"github.com/stretchr/testify/require"
)

type notification struct {
	kind           string
	target         string
	conversationID string
	messageID      string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notification
}

func (n *recordingNotifier) BroadcastNewMessage(conversationID string, message models.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{kind: "message", target: conversationID, conversationID: conversationID, messageID: message.ID})
}

func (n *recordingNotifier) NotifyConversationUpdate(memberID, conversationID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, notification{kind: "update", target: memberID, conversationID: conversationID})
}

type fixture struct {
	svc      *Service
	store    *storage.BboltStorage
	notifier *recordingNotifier
	convID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.NewBboltStorage(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	dir := profiles.NewDirectory(store)
	_, err = dir.Sync("alice", profiles.SyncRequest{DisplayName: "Alice", AvatarURL: "alice.png"})
	require.NoError(t, err)
	_, err = dir.Sync("bob", profiles.SyncRequest{DisplayName: "Bob"})
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	svc := New(Config{
		Store:     store,
		Guard:     access.NewGuard(store),
		Directory: dir,
		Notifier:  notifier,
	})

	conv, err := svc.EnsureConversation("alice", "bob")
	require.NoError(t, err)

	return &fixture{svc: svc, store: store, notifier: notifier, convID: conv.ID}
}

func (f *fixture) unread(t *testing.T, member string) int {
	t.Helper()
	conv, err := f.store.GetConversation(f.convID)
	require.NoError(t, err)
	return conv.UnreadCounts[member]
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)

	msg, err := f.svc.SendMessage(f.convID, "alice", "  hi  ")
	require.NoError(t, err)
	require.Equal(t, "hi", msg.Text)
	require.Equal(t, "Alice", msg.SenderName)
	require.Equal(t, "alice.png", msg.SenderAvatar)
	require.Equal(t, models.MessageStatusSent, msg.Status)
	require.Equal(t, []string{"alice"}, msg.ReadBy)

	require.Equal(t, 0, f.unread(t, "alice"))
	require.Equal(t, 1, f.unread(t, "bob"))

	conv, err := f.store.GetConversation(f.convID)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessage)
	require.Equal(t, "hi", conv.LastMessage.Text)
	require.Equal(t, msg.CreatedAt, conv.LastMessageAt)

	require.Equal(t, []notification{
		{kind: "message", target: f.convID, conversationID: f.convID, messageID: msg.ID},
		{kind: "update", target: "bob", conversationID: f.convID},
	}, f.notifier.events)
}

func TestSendMessage_CountersRelative(t *testing.T) {
	f := newFixture(t)

	for i := 0; i < 3; i++ {
		_, err := f.svc.SendMessage(f.convID, "alice", "ping")
		require.NoError(t, err)
	}
	require.Equal(t, 3, f.unread(t, "bob"))

	_, err := f.svc.SendMessage(f.convID, "bob", "pong")
	require.NoError(t, err)
	require.Equal(t, 0, f.unread(t, "bob"))
	require.Equal(t, 1, f.unread(t, "alice"))
}

func TestSendMessage_PlaceholderSender(t *testing.T) {
	f := newFixture(t)
	conv, err := f.store.CreateConversation(models.Conversation{Members: []string{"ghost", "alice"}})
	require.NoError(t, err)

	msg, err := f.svc.SendMessage(conv.ID, "ghost", "boo")
	require.NoError(t, err)
	require.Equal(t, profiles.PlaceholderName, msg.SenderName)
	require.Equal(t, profiles.PlaceholderAvatar, msg.SenderAvatar)
}

func TestSendMessage_EmptyTextDoesNotMutate(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.SendMessage(f.convID, "alice", text)
		require.ErrorIs(t, err, models.ErrInvalidArgument, "text %q", text)
	}

	msgs, err := f.store.ListMessages(f.convID)
	require.NoError(t, err)
	require.Empty(t, msgs)
	require.Equal(t, 0, f.unread(t, "bob"))

	conv, err := f.store.GetConversation(f.convID)
	require.NoError(t, err)
	require.Nil(t, conv.LastMessage)
	require.Empty(t, f.notifier.events)
}

func TestSendMessage_TextStoredVerbatim(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Punctuation", "  it's 1 < 2 & \"ok\"  ", "it's 1 < 2 & \"ok\""},
		{"Markup", "use <script>x</script> tags", "use <script>x</script> tags"},
		{"Only markup", "<b></b>", "<b></b>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := f.svc.SendMessage(f.convID, "alice", tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, msg.Text)

			conv, err := f.store.GetConversation(f.convID)
			require.NoError(t, err)
			require.Equal(t, tt.want, conv.LastMessage.Text)

			history, err := f.svc.ListMessages(f.convID, "bob")
			require.NoError(t, err)
			require.Equal(t, tt.want, history[len(history)-1].Text)
		})
	}
}

func TestNonMemberDenied(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendMessage(f.convID, "mallory", "hi")
	require.ErrorIs(t, err, models.ErrAccessDenied)

	_, err = f.svc.ListMessages(f.convID, "mallory")
	require.ErrorIs(t, err, models.ErrAccessDenied)

	_, err = f.svc.GetConversation(f.convID, "mallory")
	require.ErrorIs(t, err, models.ErrAccessDenied)

	require.Equal(t, 0, f.unread(t, "bob"))
}

func TestListMessages_MarksRead(t *testing.T) {
	f := newFixture(t)

	hi, err := f.svc.SendMessage(f.convID, "alice", "hi")
	require.NoError(t, err)
	reply, err := f.svc.SendMessage(f.convID, "bob", "hey")
	require.NoError(t, err)
	_, err = f.svc.SendMessage(f.convID, "alice", "how are you")
	require.NoError(t, err)
	// bob's reply reset his counter, so only the last message is unread.
	require.Equal(t, 1, f.unread(t, "bob"))

	msgs, err := f.svc.ListMessages(f.convID, "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, hi.ID, msgs[0].ID)
	require.Equal(t, reply.ID, msgs[1].ID)

	for _, m := range msgs {
		if m.SenderID != "bob" {
			require.True(t, m.ReadByMember("bob"), "message %s", m.ID)
			require.Equal(t, models.MessageStatusSeen, m.Status)
		}
	}
	// bob's own message keeps its stored status: alice has not fetched yet.
	require.Equal(t, models.MessageStatusSent, msgs[1].Status)
	require.Equal(t, 0, f.unread(t, "bob"))

	stored, err := f.store.ListMessages(f.convID)
	require.NoError(t, err)
	require.True(t, stored[0].ReadByMember("bob"))
	require.Equal(t, models.MessageStatusSeen, stored[0].Status)

	for i := 1; i < len(msgs); i++ {
		require.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}

func TestListMessages_PerViewerStatus(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendMessage(f.convID, "alice", "hi")
	require.NoError(t, err)

	asSender, err := f.svc.ListMessages(f.convID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.MessageStatusSent, asSender[0].Status)

	asRecipient, err := f.svc.ListMessages(f.convID, "bob")
	require.NoError(t, err)
	require.Equal(t, models.MessageStatusSeen, asRecipient[0].Status)

	asSender, err = f.svc.ListMessages(f.convID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.MessageStatusSeen, asSender[0].Status)
}

func TestScenario_SendThenFetch(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SendMessage(f.convID, "alice", "hi")
	require.NoError(t, err)

	views, err := f.svc.ListConversations("bob")
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, 1, views[0].UnreadCount)
	require.Equal(t, "hi", views[0].LastMessage.Text)

	msgs, err := f.svc.ListMessages(f.convID, "bob")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, models.MessageStatusSeen, msgs[0].Status)

	view, err := f.svc.GetConversation(f.convID, "bob")
	require.NoError(t, err)
	require.Equal(t, 0, view.UnreadCount)
}

func TestEnsureConversation(t *testing.T) {
	f := newFixture(t)

	again, err := f.svc.EnsureConversation("bob", "alice")
	require.NoError(t, err)
	require.Equal(t, f.convID, again.ID)
	require.Len(t, again.Members, 2)
	require.Equal(t, "Alice", again.Members[0].DisplayName)

	tests := []struct {
		name    string
		target  string
		wantErr error
	}{
		{"Empty target", " ", models.ErrInvalidArgument},
		{"Self", "alice", models.ErrInvalidArgument},
		{"Unknown user", "nobody", models.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.EnsureConversation("alice", tt.target)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("EnsureConversation() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestConcurrentSends(t *testing.T) {
	f := newFixture(t)

	const perSender = 10
	var wg sync.WaitGroup
	for _, sender := range []string{"alice", "bob"} {
		wg.Go(func() {
			for i := 0; i < perSender; i++ {
				if _, err := f.svc.SendMessage(f.convID, sender, "x"); err != nil {
					t.Errorf("SendMessage failed: %v", err)
				}
			}
		})
	}
	wg.Wait()

	msgs, err := f.store.ListMessages(f.convID)
	require.NoError(t, err)
	require.Len(t, msgs, 2*perSender)
	for i := 1; i < len(msgs); i++ {
		require.False(t, msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt))
	}
}
