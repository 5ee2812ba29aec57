package storage

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"chatrelay/internal/models"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketConversations = []byte("conversations")
	bucketDirect        = []byte("direct")
	bucketMessages      = []byte("messages")
	bucketProfiles      = []byte("profiles")
)

// BboltStorage keeps conversations, messages and profiles in a single bbolt file.
// bbolt runs one write transaction at a time, so every method below that reads and
// rewrites a conversation record inside a single Update is atomic with respect to
// concurrent requests.
type BboltStorage struct {
	db  *bbolt.DB
	now func() time.Time
}

func NewBboltStorage(path string) (*BboltStorage, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketConversations, bucketDirect, bucketMessages, bucketProfiles} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStorage{db: db, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

func put(b *bbolt.Bucket, item Storeable) error {
	data, err := item.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return b.Put(item.Key(), data)
}

func loadConversation(tx *bbolt.Tx, id string) (*DBConversation, error) {
	data := tx.Bucket(bucketConversations).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("conversation %s: %w", id, models.ErrNotFound)
	}
	var dbConv DBConversation
	if err := dbConv.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	if dbConv.UnreadCounts == nil {
		dbConv.UnreadCounts = make(map[string]int)
	}
	return &dbConv, nil
}

func createConversation(tx *bbolt.Tx, conv models.Conversation, now time.Time) (*DBConversation, error) {
	if conv.ID == "" {
		conv.ID = uuid.NewString()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	counts := make(map[string]int, len(conv.Members))
	for _, m := range conv.Members {
		counts[m] = conv.UnreadCounts[m]
	}
	conv.UnreadCounts = counts

	dbConv := newDBConversation(conv)
	if err := put(tx.Bucket(bucketConversations), dbConv); err != nil {
		return nil, err
	}
	return dbConv, nil
}

// CreateConversation stores a new conversation, assigning an id when none is set.
func (s *BboltStorage) CreateConversation(conv models.Conversation) (models.Conversation, error) {
	if len(conv.Members) == 0 {
		return models.Conversation{}, fmt.Errorf("conversation without members: %w", models.ErrInvalidArgument)
	}
	var created *DBConversation
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		created, err = createConversation(tx, conv, s.now().UTC())
		return err
	})
	if err != nil {
		return models.Conversation{}, err
	}
	return created.model(), nil
}

// GetConversation loads a single conversation.
func (s *BboltStorage) GetConversation(id string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		dbConv, err := loadConversation(tx, id)
		if err != nil {
			return err
		}
		conv = dbConv.model()
		return nil
	})
	return conv, err
}

// ListConversations returns the conversations userID belongs to, most recently active first.
func (s *BboltStorage) ListConversations(userID string) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConversations).ForEach(func(k, v []byte) error {
			var dbConv DBConversation
			if err := dbConv.UnmarshalBinary(v); err != nil {
				return err
			}
			conv := dbConv.model()
			if conv.HasMember(userID) {
				conversations = append(conversations, conv)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].SortKey().After(conversations[j].SortKey())
	})
	return conversations, nil
}

func directKey(a, b string) []byte {
	if b < a {
		a, b = b, a
	}
	return []byte(a + "\x00" + b)
}

// EnsureDirectConversation returns the direct conversation between a and b,
// creating it on first use. The pair index makes repeated calls idempotent.
func (s *BboltStorage) EnsureDirectConversation(a, b string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket(bucketDirect)
		key := directKey(a, b)
		if id := index.Get(key); id != nil {
			dbConv, err := loadConversation(tx, string(id))
			if err != nil {
				return err
			}
			conv = dbConv.model()
			return nil
		}

		dbConv, err := createConversation(tx, models.Conversation{Members: []string{a, b}}, s.now().UTC())
		if err != nil {
			return err
		}
		if err := index.Put(key, []byte(dbConv.ID)); err != nil {
			return err
		}
		conv = dbConv.model()
		return nil
	})
	return conv, err
}

// AppendMessage persists a new message. The id and timestamps are assigned here;
// createdAt never goes backwards within a conversation and the bucket sequence
// breaks ties in insertion order.
func (s *BboltStorage) AppendMessage(message models.Message) (models.Message, error) {
	if message.ConversationID == "" {
		return models.Message{}, errors.New("message missing conversationID")
	}

	var stored models.Message
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbConv, err := loadConversation(tx, message.ConversationID)
		if err != nil {
			return err
		}
		if !dbConv.model().HasMember(message.SenderID) {
			return fmt.Errorf("sender %s: %w", message.SenderID, models.ErrAccessDenied)
		}

		convBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(message.ConversationID))
		if err != nil {
			return fmt.Errorf("failed to create conversation bucket: %w", err)
		}

		now := s.now().UTC().UnixNano()
		if k, v := convBucket.Cursor().Last(); k != nil {
			var last DBMessage
			if err := last.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			if now < last.CreatedAt {
				now = last.CreatedAt
			}
		}

		seq, err := convBucket.NextSequence()
		if err != nil {
			return err
		}

		id := message.ID
		if id == "" {
			id = uuid.NewString()
		}
		status := message.Status
		if status == "" {
			status = models.MessageStatusSent
		}
		readBy := message.ReadBy
		if !contains(readBy, message.SenderID) {
			readBy = append([]string{message.SenderID}, readBy...)
		}

		dbMsg := &DBMessage{
			Seq:            seq,
			ID:             id,
			ConversationID: message.ConversationID,
			SenderID:       message.SenderID,
			SenderName:     message.SenderName,
			SenderAvatar:   message.SenderAvatar,
			Text:           message.Text,
			Status:         string(status),
			ReadBy:         readBy,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := put(convBucket, dbMsg); err != nil {
			return fmt.Errorf("failed to put message: %w", err)
		}
		stored = dbMsg.model()
		return nil
	})
	return stored, err
}

// ListMessages returns every message of a conversation in storage order.
func (s *BboltStorage) ListMessages(conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		convBucket := tx.Bucket(bucketMessages).Bucket([]byte(conversationID))
		if convBucket == nil {
			return nil // No messages for this conversation
		}
		return convBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, dbMsg.model())
			return nil
		})
	})
	return messages, err
}

// GetMessage looks a message up by id, newest messages first.
func (s *BboltStorage) GetMessage(conversationID, messageID string) (models.Message, error) {
	var message models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		convBucket := tx.Bucket(bucketMessages).Bucket([]byte(conversationID))
		if convBucket == nil {
			return fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
		}
		c := convBucket.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbMsg.ID == messageID {
				message = dbMsg.model()
				return nil
			}
		}
		return fmt.Errorf("message %s: %w", messageID, models.ErrNotFound)
	})
	return message, err
}

// RecordSend applies the counter and preview changes of a sent message in one
// transaction: the sender's counter goes to zero, every other member's counter
// grows by one.
func (s *BboltStorage) RecordSend(conversationID, senderID string, last models.LastMessage) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbConv, err := loadConversation(tx, conversationID)
		if err != nil {
			return err
		}

		for _, member := range dbConv.Members {
			if member == senderID {
				dbConv.UnreadCounts[member] = 0
				continue
			}
			dbConv.UnreadCounts[member]++
		}

		dbConv.LastMessage = &DBLastMessage{
			Text:         last.Text,
			SenderID:     last.SenderID,
			SenderName:   last.SenderName,
			SenderAvatar: last.SenderAvatar,
			CreatedAt:    toUnix(last.CreatedAt),
		}
		if created := toUnix(last.CreatedAt); created > dbConv.LastMessageAt {
			dbConv.LastMessageAt = created
		}

		if err := put(tx.Bucket(bucketConversations), dbConv); err != nil {
			return err
		}
		conv = dbConv.model()
		return nil
	})
	return conv, err
}

// MarkRead adds readerID to readBy of every message it did not author and returns
// the conversation's messages as they are after the update, in storage order.
// A message becomes seen once every member other than its sender has read it.
func (s *BboltStorage) MarkRead(conversationID, readerID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbConv, err := loadConversation(tx, conversationID)
		if err != nil {
			return err
		}

		convBucket := tx.Bucket(bucketMessages).Bucket([]byte(conversationID))
		if convBucket == nil {
			return nil
		}

		now := s.now().UTC().UnixNano()
		var changed []*DBMessage
		err = convBucket.ForEach(func(k, v []byte) error {
			dbMsg := &DBMessage{}
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbMsg.SenderID != readerID && !contains(dbMsg.ReadBy, readerID) {
				dbMsg.ReadBy = append(dbMsg.ReadBy, readerID)
				dbMsg.Status = string(statusFor(dbMsg, dbConv.Members))
				dbMsg.UpdatedAt = now
				changed = append(changed, dbMsg)
			}
			messages = append(messages, dbMsg.model())
			return nil
		})
		if err != nil {
			return err
		}

		// Writes are deferred until iteration is over; bbolt forbids mutating a bucket mid-ForEach.
		for _, dbMsg := range changed {
			if err := put(convBucket, dbMsg); err != nil {
				return fmt.Errorf("failed to put message: %w", err)
			}
		}
		return nil
	})
	return messages, err
}

// ResetUnread zeroes a single member's unread counter.
func (s *BboltStorage) ResetUnread(conversationID, memberID string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.Update(func(tx *bbolt.Tx) error {
		dbConv, err := loadConversation(tx, conversationID)
		if err != nil {
			return err
		}
		if dbConv.UnreadCounts[memberID] != 0 {
			dbConv.UnreadCounts[memberID] = 0
			if err := put(tx.Bucket(bucketConversations), dbConv); err != nil {
				return err
			}
		}
		conv = dbConv.model()
		return nil
	})
	return conv, err
}

// UpsertProfile saves a directory profile.
func (s *BboltStorage) UpsertProfile(profile models.UserProfile) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return put(tx.Bucket(bucketProfiles), &DBProfile{
			ID:          profile.ID,
			DisplayName: profile.DisplayName,
			AvatarURL:   profile.AvatarURL,
			Email:       profile.Email,
			LastSeenAt:  toUnix(profile.LastSeenAt),
		})
	})
}

func (s *BboltStorage) GetProfile(id string) (models.UserProfile, error) {
	var profile models.UserProfile
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketProfiles).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("profile %s: %w", id, models.ErrNotFound)
		}
		var dbProfile DBProfile
		if err := dbProfile.UnmarshalBinary(data); err != nil {
			return err
		}
		profile = dbProfile.model()
		return nil
	})
	return profile, err
}

// ListProfiles returns all profiles ordered by display name.
func (s *BboltStorage) ListProfiles() ([]models.UserProfile, error) {
	var profiles []models.UserProfile
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProfiles).ForEach(func(k, v []byte) error {
			var dbProfile DBProfile
			if err := dbProfile.UnmarshalBinary(v); err != nil {
				return err
			}
			profiles = append(profiles, dbProfile.model())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(profiles, func(i, j int) bool {
		return profiles[i].DisplayName < profiles[j].DisplayName
	})
	return profiles, nil
}

func statusFor(m *DBMessage, members []string) models.MessageStatus {
	for _, member := range members {
		if member != m.SenderID && !contains(m.ReadBy, member) {
			return models.MessageStatusSent
		}
	}
	return models.MessageStatusSeen
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
