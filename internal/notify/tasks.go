// Package notify bridges the notification subsystem to the gateway: the
// CRUD side persists a notification, enqueues a delivery task, and the
// worker in whichever process holds the recipient's connection pushes it
// out. Persistence itself lives with the collaborator; this package only
// carries the delivery trigger.
package notify

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const TypeNotificationDeliver = "notification:deliver"

type DeliverPayload struct {
	UserID       string          `json:"userId"`
	Notification json.RawMessage `json:"notification"`
}

// NewDeliverTask builds the delivery task for an already-persisted
// notification.
func NewDeliverTask(userID string, notification json.RawMessage) (*asynq.Task, error) {
	payload, err := json.Marshal(DeliverPayload{UserID: userID, Notification: notification})
	if err != nil {
		return nil, fmt.Errorf("notify: marshal deliver payload: %w", err)
	}
	return asynq.NewTask(TypeNotificationDeliver, payload), nil
}

// Enqueuer is the producer half, used by the notification-persistence
// collaborator after a successful write.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(redisAddr string) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})}
}

func (e *Enqueuer) EnqueueDeliver(userID string, notification json.RawMessage) error {
	task, err := NewDeliverTask(userID, notification)
	if err != nil {
		return err
	}
	if _, err := e.client.Enqueue(task); err != nil {
		return fmt.Errorf("notify: enqueue deliver task: %w", err)
	}
	return nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}
