package memory

import (
	"context"
	"sync"

	"github.com/omarshaarawi/rosterbot/internal/repository"
)

var _ repository.NotificationSink = (*Notifier)(nil)

type DirectMessage struct {
	UserID int64
	Text   string
}

// Notifier records announcements and direct messages instead of sending them.
type Notifier struct {
	mu            sync.Mutex
	announcements []string
	dms           []DirectMessage
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) PostAnnouncement(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.announcements = append(n.announcements, text)
	return nil
}

func (n *Notifier) DMUser(_ context.Context, userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dms = append(n.dms, DirectMessage{UserID: userID, Text: text})
	return nil
}

func (n *Notifier) Announcements() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.announcements...)
}

func (n *Notifier) DirectMessages() []DirectMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]DirectMessage(nil), n.dms...)
}
