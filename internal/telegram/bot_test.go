//go:build tdlib

// Linking go-tdlib needs libtdjson: go test -tags tdlib ./internal/telegram

package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/zelenin/go-tdlib/client"

	"tradelink/internal/conversation"
)

type fakeAPI struct {
	sent     []*client.SendMessageRequest
	edited   []*client.EditMessageTextRequest
	deleted  []*client.DeleteMessagesRequest
	answered []client.JsonInt64
	member   *client.ChatMember
	err      error
}

func (f *fakeAPI) SendMessage(req *client.SendMessageRequest) (*client.Message, error) {
	f.sent = append(f.sent, req)
	return &client.Message{Id: 1, ChatId: req.ChatId, SendingState: &client.MessageSendingStatePending{}}, nil
}

func (f *fakeAPI) EditMessageText(req *client.EditMessageTextRequest) (*client.Message, error) {
	f.edited = append(f.edited, req)
	return &client.Message{Id: req.MessageId}, f.err
}

func (f *fakeAPI) DeleteMessages(req *client.DeleteMessagesRequest) (*client.Ok, error) {
	f.deleted = append(f.deleted, req)
	return &client.Ok{}, f.err
}

func (f *fakeAPI) GetChatMember(*client.GetChatMemberRequest) (*client.ChatMember, error) {
	return f.member, f.err
}

func (f *fakeAPI) AnswerCallbackQuery(req *client.AnswerCallbackQueryRequest) (*client.Ok, error) {
	f.answered = append(f.answered, req.CallbackQueryId)
	return &client.Ok{}, nil
}

func newTestBot(api *fakeAPI) *Bot {
	return &Bot{
		api:         api,
		sends:       newSendTracker(),
		sendTimeout: time.Second,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSend_WaitsForPermanentID(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(api)

	go func() {
		time.Sleep(10 * time.Millisecond)
		b.handleUpdate(&client.UpdateMessageSendSucceeded{OldMessageId: 1, Message: &client.Message{Id: 1 << 20}})
	}()

	kb := conversation.Keyboard{{{Text: "256 GB", Payload: "c:0"}}, {{Text: "512 GB", Payload: "c:1"}}}
	id, err := b.Send(context.Background(), 42, "Choose the capacity:", kb)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1<<20 {
		t.Errorf("id = %d, want permanent id", id)
	}

	req := api.sent[0]
	markup, ok := req.ReplyMarkup.(*client.ReplyMarkupInlineKeyboard)
	if !ok || len(markup.Rows) != 2 {
		t.Fatalf("markup = %#v", req.ReplyMarkup)
	}
	cb := markup.Rows[1][0].Type.(*client.InlineKeyboardButtonTypeCallback)
	if string(cb.Data) != "c:1" || markup.Rows[1][0].Text != "512 GB" {
		t.Errorf("button = %q %q", markup.Rows[1][0].Text, cb.Data)
	}
}

func TestSend_Failed(t *testing.T) {
	b := newTestBot(&fakeAPI{})
	b.handleUpdate(&client.UpdateMessageSendFailed{OldMessageId: 1, Message: &client.Message{Id: 1}})

	if _, err := b.Send(context.Background(), 42, "x", nil); !errors.Is(err, errSendFailed) {
		t.Fatalf("got %v, want errSendFailed", err)
	}
}

func TestEdit_NilKeyboardRemovesButtons(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(api)

	if err := b.Edit(context.Background(), 42, 7, "Checking stock...", nil); err != nil {
		t.Fatal(err)
	}
	if api.edited[0].ReplyMarkup != nil {
		t.Errorf("markup = %#v, want nil", api.edited[0].ReplyMarkup)
	}
}

func TestDelete(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(api)

	if err := b.Delete(context.Background(), 42); err != nil || len(api.deleted) != 0 {
		t.Fatalf("empty delete: err=%v calls=%d", err, len(api.deleted))
	}
	if err := b.Delete(context.Background(), 42, 3, 4); err != nil {
		t.Fatal(err)
	}
	if got := api.deleted[0]; !got.Revoke || len(got.MessageIds) != 2 {
		t.Errorf("request = %#v", got)
	}
}

func TestGetMembership(t *testing.T) {
	tests := []struct {
		status client.ChatMemberStatus
		want   string
	}{
		{&client.ChatMemberStatusCreator{}, "owner"},
		{&client.ChatMemberStatusAdministrator{}, "administrator"},
		{&client.ChatMemberStatusMember{}, "member"},
		{&client.ChatMemberStatusRestricted{}, "restricted"},
		{&client.ChatMemberStatusLeft{}, "left"},
		{&client.ChatMemberStatusBanned{}, "kicked"},
	}
	for _, tt := range tests {
		b := newTestBot(&fakeAPI{member: &client.ChatMember{Status: tt.status}})
		got, found, err := b.GetMembership(context.Background(), -100, 7)
		if err != nil || !found || got != tt.want {
			t.Errorf("%T: got %q found=%v err=%v", tt.status, got, found, err)
		}
	}

	b := newTestBot(&fakeAPI{err: client.ResponseError{Err: &client.Error{Code: 400, Message: "Member not found"}}})
	if _, found, err := b.GetMembership(context.Background(), -100, 7); found || err != nil {
		t.Errorf("unknown member: found=%v err=%v", found, err)
	}

	b = newTestBot(&fakeAPI{err: client.ResponseError{Err: &client.Error{Code: 500, Message: "Internal"}}})
	if _, _, err := b.GetMembership(context.Background(), -100, 7); err == nil {
		t.Error("expected error")
	}
}

func TestHandleUpdate(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(api)

	text := func(s string) *client.UpdateNewMessage {
		return &client.UpdateNewMessage{Message: &client.Message{
			Id:       5,
			ChatId:   7,
			SenderId: &client.MessageSenderUser{UserId: 7},
			Content:  &client.MessageText{Text: &client.FormattedText{Text: s}},
		}}
	}

	ev, ok := b.handleUpdate(text("/gerar@tradelink_bot"))
	if !ok || ev.Kind != conversation.EventCommand || ev.Command != "gerar" || ev.MessageID != 5 {
		t.Errorf("command: %+v ok=%v", ev, ok)
	}

	ev, ok = b.handleUpdate(text("352099001761481"))
	if !ok || ev.Kind != conversation.EventText || ev.Text != "352099001761481" || ev.UserID != 7 {
		t.Errorf("text: %+v ok=%v", ev, ok)
	}

	outgoing := text("Link generated")
	outgoing.Message.IsOutgoing = true
	if _, ok := b.handleUpdate(outgoing); ok {
		t.Error("outgoing message dispatched")
	}

	group := text("/gerar")
	group.Message.ChatId = -100
	if _, ok := b.handleUpdate(group); ok {
		t.Error("group message dispatched")
	}

	ev, ok = b.handleUpdate(&client.UpdateNewCallbackQuery{
		Id:           99,
		SenderUserId: 7,
		ChatId:       7,
		MessageId:    12,
		Payload:      &client.CallbackQueryPayloadData{Data: []byte("q:5")},
	})
	if !ok || ev.Kind != conversation.EventButton || ev.Payload != "q:5" || ev.MessageID != 12 {
		t.Errorf("callback: %+v ok=%v", ev, ok)
	}
	if len(api.answered) != 1 || api.answered[0] != 99 {
		t.Errorf("answered = %v", api.answered)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"/start", "start", true},
		{"/GERAR extra", "gerar", true},
		{"/gerar@bot", "gerar", true},
		{"gerar", "", false},
		{"/", "", false},
	}
	for _, tt := range tests {
		got, ok := parseCommand(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseCommand(%q) = %q, %v", tt.in, got, ok)
		}
	}
}

func TestSendTracker_Timeout(t *testing.T) {
	tr := newSendTracker()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := tr.wait(ctx, 3); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
	if len(tr.waiters) != 0 {
		t.Error("waiter left behind")
	}
}

func TestSendTracker_LateResultAfterTimeoutIsDropped(t *testing.T) {
	tr := newSendTracker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	if _, err := tr.wait(ctx, 7); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v", err)
	}
	tr.resolve(7, 700, nil)

	if early, abandoned := tr.pending(); early != 0 || abandoned != 0 {
		t.Errorf("pending = %d early, %d abandoned; want none", early, abandoned)
	}
}

func TestSendTracker_EarlyResultIsClaimed(t *testing.T) {
	tr := newSendTracker()
	tr.resolve(8, 800, nil)

	id, err := tr.wait(context.Background(), 8)
	if err != nil || id != 800 {
		t.Fatalf("wait = %d, %v", id, err)
	}
	if early, _ := tr.pending(); early != 0 {
		t.Errorf("early = %d after claim", early)
	}
}

func TestSendTracker_SweepsStaleEntries(t *testing.T) {
	tr := newSendTracker()
	now := time.Unix(1_700_000_000, 0)
	tr.now = func() time.Time { return now }

	tr.resolve(9, 900, nil) // never claimed
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.wait(ctx, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if early, abandoned := tr.pending(); early != 1 || abandoned != 1 {
		t.Fatalf("pending = %d, %d", early, abandoned)
	}

	now = now.Add(staleAfter + time.Second)
	tr.resolve(11, 1100, nil)

	if early, abandoned := tr.pending(); early != 1 || abandoned != 0 {
		t.Errorf("pending = %d early, %d abandoned; want only the fresh result", early, abandoned)
	}
}
