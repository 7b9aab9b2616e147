package notification

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tajong-backend/internal/model"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// Message is the JSON payload delivered to subscribed browsers.
type Message struct {
	Title      string       `json:"title"`
	Body       string       `json:"body"`
	Result     model.Result `json:"result"`
	ScheduleID int64        `json:"schedule_id"`
	OccurredAt string       `json:"occurred_at"`
}

var resultLabels = map[model.Result]string{
	model.ResultPlayed:  "재생",
	model.ResultMissed:  "누락",
	model.ResultSkipped: "건너뜀",
	model.ResultFailed:  "실패",
}

// NewMessage renders the push payload for a logged decision.
func NewMessage(entry model.EventLog) Message {
	label, ok := resultLabels[entry.Result]
	if !ok {
		label = string(entry.Result)
	}
	body := entry.ScheduleName + " " + label
	if entry.Detail != "" {
		body += " (" + entry.Detail + ")"
	}
	return Message{
		Title:      "타종 " + label,
		Body:       body,
		Result:     entry.Result,
		ScheduleID: entry.ScheduleID,
		OccurredAt: entry.OccurredAt.Format("2006-01-02 15:04:05"),
	}
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan model.EventLog
	db      *gorm.DB
	webpush *webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewWorkerPool creates a new worker pool with a queue of queueSize decisions.
func NewWorkerPool(size, queueSize int, db *gorm.DB, webpushOptions *webpush.Options, log *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan model.EventLog, queueSize),
		db:      db,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
		log:     log,
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	wp.log.Debug("notification worker started", zap.Int("worker", id))
	for {
		select {
		case entry := <-wp.jobs:
			wp.notifySubscribers(ctx, entry)
		case <-ctx.Done():
			wp.log.Debug("notification worker stopped", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues a decision without blocking. It reports false when the
// queue is full and the decision was dropped.
func (wp *WorkerPool) Dispatch(entry model.EventLog) bool {
	select {
	case wp.jobs <- entry:
		return true
	default:
		return false
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan model.EventLog {
	return wp.jobs
}

func (wp *WorkerPool) notifySubscribers(ctx context.Context, entry model.EventLog) {
	var subscriptions []model.PushSubscription
	err := wp.db.WithContext(ctx).
		Joins("JOIN subscription_schedule_mapping ssm ON ssm.push_subscription_endpoint = push_subscriptions.endpoint").
		Where("ssm.schedule_id = ?", entry.ScheduleID).
		Find(&subscriptions).Error
	if err != nil {
		wp.log.Error("failed to fetch subscriptions", zap.Int64("schedule_id", entry.ScheduleID), zap.Error(err))
		return
	}
	if len(subscriptions) == 0 {
		return
	}

	payload, err := json.Marshal(NewMessage(entry))
	if err != nil {
		wp.log.Error("failed to encode push message", zap.Error(err))
		return
	}
	wp.log.Info("sending push notifications",
		zap.Int("count", len(subscriptions)),
		zap.Int64("schedule_id", entry.ScheduleID),
		zap.String("result", string(entry.Result)))
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		wp.log.Warn("push send failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		wp.log.Info("deleting expired subscription", zap.String("endpoint", sub.Endpoint))
		if err := wp.db.WithContext(ctx).Delete(&sub).Error; err != nil {
			wp.log.Error("failed to delete expired subscription", zap.String("endpoint", sub.Endpoint), zap.Error(err))
		}
	}
}
