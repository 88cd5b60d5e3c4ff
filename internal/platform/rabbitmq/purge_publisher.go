package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StoragePurgeEvent asks the purge worker to remove every stored object of a
// deleted session.
type StoragePurgeEvent struct {
	UserID      string    `json:"userId"`
	SessionID   string    `json:"sessionId"`
	RequestedAt time.Time `json:"requestedAt"`
}

func EncodePurgeEvent(e StoragePurgeEvent) ([]byte, error) {
	if e.UserID == "" || e.SessionID == "" {
		return nil, fmt.Errorf("purge event requires user and session")
	}
	return json.Marshal(e)
}

func DecodePurgeEvent(body []byte) (StoragePurgeEvent, error) {
	var e StoragePurgeEvent
	if err := json.Unmarshal(body, &e); err != nil {
		return e, fmt.Errorf("decode purge event failed: %w", err)
	}
	if e.UserID == "" || e.SessionID == "" {
		return e, fmt.Errorf("purge event missing user or session")
	}
	return e, nil
}

type PurgePublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewPurgePublisher(conn *amqp.Connection, queueName string) *PurgePublisher {
	return &PurgePublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *PurgePublisher) PublishPurge(ctx context.Context, userID, sessionID string) error {
	payload, err := EncodePurgeEvent(StoragePurgeEvent{
		UserID:      userID,
		SessionID:   sessionID,
		RequestedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, p.queueName); err != nil {
		return err
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish purge event failed: %w", err)
	}
	return nil
}
