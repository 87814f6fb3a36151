package delivery

import (
	"context"
	"time"

	"RentChat/logger"
	"RentChat/service/events"
	"RentChat/store"
)

// Aggregator 已读回执与未读角标。角标数永远从持久层重新推导后整体下发，
// 客户端不自行累加——离线期间发生的变化只有这样才能对上。
type Aggregator struct {
	store store.Store
	bc    Broadcaster

	now func() int64 // unix ms，可注入（单测用）
}

func NewAggregator(st store.Store, bc Broadcaster) *Aggregator {
	return &Aggregator{
		store: st,
		bc:    bc,
		now:   func() int64 { return time.Now().UnixMilli() },
	}
}

// MarkRead 把会话内他人发来的未读全部置已读，向会话房间广播回执，
// 并刷新本人角标。幂等：重复调用第二次 markedCount 为 0，且不再广播回执。
func (a *Aggregator) MarkRead(ctx context.Context, conversationID, userID string) (int64, error) {
	marked, err := a.store.MarkRead(ctx, conversationID, userID, a.now())
	if err != nil {
		return 0, err
	}

	if marked > 0 {
		payload, berr := events.Build(events.TypeMessageReadUpdate, events.ReadUpdatePayload{
			ConversationID: conversationID,
			UserID:         userID,
			MarkedCount:    marked,
		})
		if berr != nil {
			logger.Errorf("[unread] build read_update conv=%s: %v", conversationID, berr)
		} else {
			a.bc.ToRoom(events.ConversationRoom(conversationID), payload)
		}
	}

	a.Push(ctx, userID)
	return marked, nil
}

// Push 重算并下发 unread.update 到用户个人房间。
// 计数失败只记日志：角标晚一拍好过推错数。
func (a *Aggregator) Push(ctx context.Context, userID string) {
	msgs, err := a.store.CountUnreadMessages(ctx, userID)
	if err != nil {
		logger.Errorf("[unread] count messages user=%s: %v", userID, err)
		return
	}
	notifs, err := a.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		logger.Errorf("[unread] count notifications user=%s: %v", userID, err)
		return
	}

	payload, err := events.Build(events.TypeUnreadUpdate, events.UnreadUpdatePayload{
		Messages:      msgs,
		Notifications: notifs,
	})
	if err != nil {
		logger.Errorf("[unread] build unread.update user=%s: %v", userID, err)
		return
	}
	a.bc.ToRoom(events.UserRoom(userID), payload)
}

// UnreadMessageCount 拉取口径与推送口径同源。
func (a *Aggregator) UnreadMessageCount(ctx context.Context, userID string) (int64, error) {
	return a.store.CountUnreadMessages(ctx, userID)
}

func (a *Aggregator) UnreadNotificationCount(ctx context.Context, userID string) (int64, error) {
	return a.store.CountUnreadNotifications(ctx, userID)
}
