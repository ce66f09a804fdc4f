package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Pusher is the slice of the gateway the worker needs.
type Pusher interface {
	PushNotification(userID string, notification json.RawMessage)
}

// Worker consumes delivery tasks and pushes them to live connections.
// A recipient with no live connection is a silent drop; the persisted
// notification remains available through the HTTP collaborators.
type Worker struct {
	srv    *asynq.Server
	mux    *asynq.ServeMux
	logger *slog.Logger
}

func NewWorker(logger *slog.Logger, redisAddr string, concurrency int, pusher Pusher) *Worker {
	if concurrency <= 0 {
		concurrency = 10
	}
	w := &Worker{
		srv: asynq.NewServer(
			asynq.RedisClientOpt{Addr: redisAddr},
			asynq.Config{Concurrency: concurrency},
		),
		mux:    asynq.NewServeMux(),
		logger: logger.With(slog.String("component", "notify_worker")),
	}
	w.mux.HandleFunc(TypeNotificationDeliver, func(ctx context.Context, task *asynq.Task) error {
		return w.handleDeliver(task, pusher)
	})
	return w
}

func (w *Worker) handleDeliver(task *asynq.Task, pusher Pusher) error {
	var payload DeliverPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// Malformed payloads never succeed on retry.
		return fmt.Errorf("notify: unmarshal deliver payload: %v: %w", err, asynq.SkipRetry)
	}
	pusher.PushNotification(payload.UserID, payload.Notification)
	w.logger.Debug("Delivered notification task", slog.String("userID", payload.UserID))
	return nil
}

// Run blocks until Shutdown is called or the server fails.
func (w *Worker) Run() error {
	return w.srv.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}
