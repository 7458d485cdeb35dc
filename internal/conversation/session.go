package conversation

import (
	"time"

	"github.com/google/uuid"

	"tradelink/internal/model"
)

// Session is one user's conversation. It is created by the generate
// command, touched only by that user's serialized events, and dropped when
// the conversation terminates or restarts.
type Session struct {
	ID        string
	UserID    int64
	ChatID    int64
	State     State
	StartedAt time.Time

	ProductURL     string
	Variants       model.VariantMap
	Capacity       string
	Color          string
	Device         *model.TradeInDevice
	DeviceCapacity string
	RequestedLinks int

	// PromptMessageID is the bot message edited at every step.
	PromptMessageID int64
	// UserMessageIDs are user messages deleted with the prompt at the end.
	UserMessageIDs []int64

	// option lists shown as buttons, indexed by callback payloads
	catalogSize      int
	capacities       []string
	colors           []string
	deviceCapacities []string
}

func newSession(userID, chatID int64, catalogSize int) *Session {
	return &Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		ChatID:      chatID,
		State:       StateSelectProduct,
		StartedAt:   time.Now(),
		catalogSize: catalogSize,
	}
}

// variant returns the selected capacity's variant.
func (s *Session) variant() (model.Variant, bool) {
	v, ok := s.Variants[s.Capacity]
	return v, ok
}

// itemID returns the item id of the selected capacity and color.
func (s *Session) itemID() string {
	v, _ := s.variant()
	return v.Colors[s.Color]
}

// trackUserMessage records a user message for deletion at termination.
func (s *Session) trackUserMessage(id int64) {
	if id != 0 {
		s.UserMessageIDs = append(s.UserMessageIDs, id)
	}
}

// trackedMessages returns every message tied to the session.
func (s *Session) trackedMessages() []int64 {
	ids := make([]int64, 0, len(s.UserMessageIDs)+1)
	if s.PromptMessageID != 0 {
		ids = append(ids, s.PromptMessageID)
	}
	return append(ids, s.UserMessageIDs...)
}

// resetSelections clears everything chosen after the product step.
func (s *Session) resetSelections() {
	s.ProductURL = ""
	s.Variants = nil
	s.Capacity = ""
	s.Color = ""
	s.Device = nil
	s.DeviceCapacity = ""
	s.RequestedLinks = 0
	s.capacities = nil
	s.colors = nil
	s.deviceCapacities = nil
}
