package telegram

import (
	"context"
	"strings"

	"github.com/zelenin/go-tdlib/client"

	"tradelink/internal/conversation"
)

// SubmitFunc hands one event to the router. It must not block: Run calls it
// on the listener goroutine, which also resolves the sends the event's
// handling waits for.
type SubmitFunc func(ctx context.Context, ev conversation.Event)

// Run reads TDLib updates until ctx ends, resolving sent message ids and
// submitting chat events in arrival order.
func (b *Bot) Run(ctx context.Context, submit SubmitFunc) error {
	listener := b.tdlib.GetListener()
	defer listener.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-listener.Updates:
			if !ok {
				return nil
			}
			if ev, ok := b.handleUpdate(update); ok {
				submit(ctx, ev)
			}
		}
	}
}

func (b *Bot) handleUpdate(update client.Type) (conversation.Event, bool) {
	switch upd := update.(type) {
	case *client.UpdateMessageSendSucceeded:
		b.sends.resolve(upd.OldMessageId, upd.Message.Id, nil)
	case *client.UpdateMessageSendFailed:
		b.sends.resolve(upd.OldMessageId, 0, errSendFailed)
	case *client.UpdateNewCallbackQuery:
		b.answerCallback(upd.Id)
		return callbackEvent(upd)
	case *client.UpdateNewMessage:
		return messageEvent(upd.Message)
	}
	return conversation.Event{}, false
}

func callbackEvent(upd *client.UpdateNewCallbackQuery) (conversation.Event, bool) {
	data, ok := upd.Payload.(*client.CallbackQueryPayloadData)
	if !ok {
		return conversation.Event{}, false
	}
	return conversation.Event{
		Kind:      conversation.EventButton,
		UserID:    upd.SenderUserId,
		ChatID:    upd.ChatId,
		MessageID: upd.MessageId,
		Payload:   string(data.Data),
	}, true
}

// messageEvent converts an incoming private text message. Group messages
// and everything the bot sent are ignored.
func messageEvent(msg *client.Message) (conversation.Event, bool) {
	if msg == nil || msg.IsOutgoing {
		return conversation.Event{}, false
	}
	sender, ok := msg.SenderId.(*client.MessageSenderUser)
	if !ok || sender.UserId != msg.ChatId {
		return conversation.Event{}, false
	}
	content, ok := msg.Content.(*client.MessageText)
	if !ok || content.Text == nil {
		return conversation.Event{}, false
	}

	ev := conversation.Event{
		UserID:    sender.UserId,
		ChatID:    msg.ChatId,
		MessageID: msg.Id,
	}
	if name, ok := parseCommand(content.Text.Text); ok {
		ev.Kind = conversation.EventCommand
		ev.Command = name
		return ev, true
	}
	ev.Kind = conversation.EventText
	ev.Text = content.Text.Text
	return ev, true
}

// parseCommand extracts "gerar" from "/gerar", "/gerar@bot" or "/gerar args".
func parseCommand(text string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(text), "/")
	if !ok {
		return "", false
	}
	name, _, _ := strings.Cut(rest, " ")
	name, _, _ = strings.Cut(name, "@")
	if name == "" {
		return "", false
	}
	return strings.ToLower(name), true
}
