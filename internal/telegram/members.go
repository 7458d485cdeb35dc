package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/zelenin/go-tdlib/client"
)

// GetMembership returns the user's status in groupID using the Bot API
// status names: owner, administrator, member, restricted, left, kicked.
// found is false when Telegram does not know the user as a member.
func (b *Bot) GetMembership(_ context.Context, groupID, userID int64) (string, bool, error) {
	member, err := b.api.GetChatMember(&client.GetChatMemberRequest{
		ChatId:   groupID,
		MemberId: &client.MessageSenderUser{UserId: userID},
	})
	if err != nil {
		var tdErr client.ResponseError
		if errors.As(err, &tdErr) && tdErr.Err != nil && tdErr.Err.Code == 400 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get chat member %d in %d: %w", userID, groupID, err)
	}
	return memberStatus(member.Status)
}

func memberStatus(status client.ChatMemberStatus) (string, bool, error) {
	switch status.(type) {
	case *client.ChatMemberStatusCreator:
		return "owner", true, nil
	case *client.ChatMemberStatusAdministrator:
		return "administrator", true, nil
	case *client.ChatMemberStatusMember:
		return "member", true, nil
	case *client.ChatMemberStatusRestricted:
		return "restricted", true, nil
	case *client.ChatMemberStatusLeft:
		return "left", true, nil
	case *client.ChatMemberStatusBanned:
		return "kicked", true, nil
	default:
		return "", false, nil
	}
}
