package telegram

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zelenin/go-tdlib/client"

	"tradelink/internal/conversation"
)

var _ conversation.Messenger = (*Bot)(nil)

// Send posts text with optional inline buttons and returns the message's
// permanent id.
func (b *Bot) Send(ctx context.Context, chatID int64, text string, kb conversation.Keyboard) (int64, error) {
	msg, err := b.api.SendMessage(&client.SendMessageRequest{
		ChatId:              chatID,
		ReplyMarkup:         inlineKeyboard(kb),
		InputMessageContent: textContent(text),
	})
	if err != nil {
		return 0, fmt.Errorf("send message to %d: %w", chatID, err)
	}

	// bots get the final id with the send update
	if _, pending := msg.SendingState.(*client.MessageSendingStatePending); !pending {
		return msg.Id, nil
	}

	ctx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()
	id, err := b.sends.wait(ctx, msg.Id)
	if err != nil {
		return 0, fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return id, nil
}

// Edit replaces a message's text and buttons.
func (b *Bot) Edit(_ context.Context, chatID, messageID int64, text string, kb conversation.Keyboard) error {
	_, err := b.api.EditMessageText(&client.EditMessageTextRequest{
		ChatId:              chatID,
		MessageId:           messageID,
		ReplyMarkup:         inlineKeyboard(kb),
		InputMessageContent: textContent(text),
	})
	if err != nil {
		return fmt.Errorf("edit message %d: %w", messageID, err)
	}
	return nil
}

// Delete removes messages for everyone.
func (b *Bot) Delete(_ context.Context, chatID int64, messageIDs ...int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if _, err := b.api.DeleteMessages(&client.DeleteMessagesRequest{
		ChatId:     chatID,
		MessageIds: messageIDs,
		Revoke:     true,
	}); err != nil {
		return fmt.Errorf("delete %d messages: %w", len(messageIDs), err)
	}
	return nil
}

// answerCallback clears the spinner of a pressed button.
func (b *Bot) answerCallback(id client.JsonInt64) {
	if _, err := b.api.AnswerCallbackQuery(&client.AnswerCallbackQueryRequest{
		CallbackQueryId: id,
	}); err != nil {
		b.logger.Debug("answering callback failed", slog.String("error", err.Error()))
	}
}

func textContent(text string) *client.InputMessageText {
	return &client.InputMessageText{
		Text: &client.FormattedText{Text: text},
	}
}

// inlineKeyboard converts kb; nil keeps the message without buttons.
func inlineKeyboard(kb conversation.Keyboard) client.ReplyMarkup {
	if len(kb) == 0 {
		return nil
	}
	rows := make([][]*client.InlineKeyboardButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]*client.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, &client.InlineKeyboardButton{
				Text: btn.Text,
				Type: &client.InlineKeyboardButtonTypeCallback{Data: []byte(btn.Payload)},
			})
		}
		rows = append(rows, buttons)
	}
	return &client.ReplyMarkupInlineKeyboard{Rows: rows}
}
