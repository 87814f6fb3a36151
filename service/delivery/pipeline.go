package delivery

import (
	"context"
	"strings"
	"time"

	"RentChat/logger"
	"RentChat/service/events"
	"RentChat/store"
	"RentChat/tools/errs"
	"RentChat/tools/ids"
)

const previewMax = 80

// Pipeline 消息投递流水线：校验 -> 落库 -> 会话房间广播 -> 通知副作用。
// 落库成功即算发送成功；之后的广播/通知失败只记日志，绝不把一条已
// 持久化的消息报成发送失败。
type Pipeline struct {
	store  store.Store
	bc     Broadcaster
	unread *Aggregator

	now func() int64 // unix ms，可注入（单测用）
}

func NewPipeline(st store.Store, bc Broadcaster, unread *Aggregator) *Pipeline {
	return &Pipeline{
		store:  st,
		bc:     bc,
		unread: unread,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// Send 处理一次 message.send。tempID 原样回显给会话房间，
// 发送端靠它做乐观替换。
func (p *Pipeline) Send(ctx context.Context, conversationID, senderID, text, attachment, tempID string) (*store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && attachment == "" {
		return nil, &errs.ErrEmptyMessage
	}

	sender, err := p.store.FindUser(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if sender.Blocked {
		return nil, &errs.ErrUserBlocked
	}

	conv, err := p.store.FindConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, &errs.ErrForbidden
	}

	msg := &store.Message{
		ID:             ids.GenerateString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		Attachment:     attachment,
		CreatedAt:      p.now(),
		UnreadBy:       othersOf(conv, senderID),
	}
	if err := p.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}

	// 这条消息已安全：以下全部尽力而为
	preview := buildPreview(text, attachment)
	if err := p.store.TouchConversation(ctx, conversationID, msg.CreatedAt, preview); err != nil {
		logger.Errorf("[pipeline] touch conversation conv=%s: %v", conversationID, err)
	}

	p.broadcastNew(conversationID, msg, tempID)
	p.notifyParticipants(ctx, conv, sender, msg, preview)

	return msg, nil
}

func (p *Pipeline) broadcastNew(conversationID string, msg *store.Message, tempID string) {
	payload, err := events.Build(events.TypeMessageNew, events.MessageNewPayload{
		ConversationID: conversationID,
		Message:        msg,
		TempID:         tempID,
	})
	if err != nil {
		logger.Errorf("[pipeline] build message.new conv=%s: %v", conversationID, err)
		return
	}
	n := p.bc.ToRoom(events.ConversationRoom(conversationID), payload)
	logger.Debugf("[pipeline] message.new conv=%s msg=%s pushed=%d", conversationID, msg.ID, n)
}

// notifyParticipants 给发送者以外的每个参与者落通知、推 notification.new、
// 重算未读角标。任何一步失败只影响该参与者的推送，不影响其他人。
func (p *Pipeline) notifyParticipants(ctx context.Context, conv *store.Conversation, sender *store.User, msg *store.Message, preview string) {
	for _, uid := range conv.Participants {
		if uid == msg.SenderID {
			continue
		}

		n := &store.Notification{
			ID:             ids.GenerateString(),
			RecipientID:    uid,
			SenderID:       sender.ID,
			SenderName:     sender.Name,
			ConversationID: conv.ID,
			Preview:        preview,
			CreatedAt:      msg.CreatedAt,
		}
		if err := p.store.CreateNotification(ctx, n); err != nil {
			logger.Errorf("[pipeline] create notification user=%s: %v", uid, err)
		} else if payload, err := events.Build(events.TypeNotificationNew, n); err == nil {
			p.bc.ToRoom(events.UserRoom(uid), payload)
		} else {
			logger.Errorf("[pipeline] build notification.new user=%s: %v", uid, err)
		}

		// 消息已落库、UnreadBy 已含该参与者：通知挂了角标也得推
		p.unread.Push(ctx, uid)
	}
}

func othersOf(conv *store.Conversation, senderID string) []string {
	out := make([]string, 0, len(conv.Participants))
	for _, uid := range conv.Participants {
		if uid != senderID {
			out = append(out, uid)
		}
	}
	return out
}

func buildPreview(text, attachment string) string {
	if text == "" {
		return "[attachment] " + attachment
	}
	if r := []rune(text); len(r) > previewMax {
		return string(r[:previewMax])
	}
	return text
}
