package conversation

import "context"

// Button is one inline button; Payload is returned on press.
type Button struct {
	Text    string
	Payload string
}

// Keyboard is an inline button layout, one slice per row.
type Keyboard [][]Button

// Messenger is the outbound side of the chat transport.
type Messenger interface {
	// Send posts a message and returns its id.
	Send(ctx context.Context, chatID int64, text string, kb Keyboard) (int64, error)
	// Edit replaces the text and buttons of a message. A nil keyboard removes the buttons.
	Edit(ctx context.Context, chatID, messageID int64, text string, kb Keyboard) error
	// Delete removes messages.
	Delete(ctx context.Context, chatID int64, messageIDs ...int64) error
}

// column lays out one button per row.
func column(buttons []Button) Keyboard {
	kb := make(Keyboard, 0, len(buttons))
	for _, b := range buttons {
		kb = append(kb, []Button{b})
	}
	return kb
}

// grid lays out buttons in rows of width.
func grid(buttons []Button, width int) Keyboard {
	var kb Keyboard
	for start := 0; start < len(buttons); start += width {
		end := min(start+width, len(buttons))
		kb = append(kb, buttons[start:end])
	}
	return kb
}
