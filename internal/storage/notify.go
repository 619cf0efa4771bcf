package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Postgres LISTEN/NOTIFY channel names.
const (
	// ChannelConflicts carries a JSON ConflictNotification after a detection
	// run recorded events.
	ChannelConflicts = "kioku_conflicts"
	// ChannelKnowledge carries a JSON KnowledgeNotification when an item is
	// created or deleted.
	ChannelKnowledge = "kioku_knowledge"
)

// Listen starts listening on the specified channel using the dedicated notify connection.
// Returns an error if no notify connection is configured.
func (db *DB) Listen(ctx context.Context, channel string) error {
	if db.notifyConn == nil {
		return fmt.Errorf("storage: notify connection not configured")
	}
	_, err := db.notifyConn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize())
	if err != nil {
		return fmt.Errorf("storage: listen %s: %w", channel, err)
	}
	return nil
}

// WaitForNotification blocks until a notification arrives on any listened channel.
// Returns the channel name and payload.
func (db *DB) WaitForNotification(ctx context.Context) (channel, payload string, err error) {
	if db.notifyConn == nil {
		return "", "", fmt.Errorf("storage: notify connection not configured")
	}
	notification, err := db.notifyConn.WaitForNotification(ctx)
	if err != nil {
		return "", "", fmt.Errorf("storage: wait for notification: %w", err)
	}
	return notification.Channel, notification.Payload, nil
}

// Notify sends a notification on the specified channel.
func (db *DB) Notify(ctx context.Context, channel, payload string) error {
	_, err := db.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload)
	if err != nil {
		return fmt.Errorf("storage: notify %s: %w", channel, err)
	}
	return nil
}

// ConflictNotification is the payload sent on ChannelConflicts.
type ConflictNotification struct {
	ProjectID      uuid.UUID `json:"project_id"`
	ItemType       string    `json:"item_type"`
	Conflicts      int       `json:"conflicts"`
	EventsRecorded int       `json:"events_recorded"`
}

// KnowledgeNotification is the payload sent on ChannelKnowledge.
type KnowledgeNotification struct {
	ProjectID uuid.UUID `json:"project_id"`
	ItemType  string    `json:"item_type"`
	ItemID    uuid.UUID `json:"item_id"`
	Action    string    `json:"action"`
}

// NotifyJSON marshals payload and sends it on channel.
func (db *DB) NotifyJSON(ctx context.Context, channel string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("storage: marshal %s payload: %w", channel, err)
	}
	return db.Notify(ctx, channel, string(b))
}
