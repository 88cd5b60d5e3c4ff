package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"gopherai-docqa/internal/platform/rabbitmq"
	"gopherai-docqa/internal/storage"
)

// PrefixDeleter is the part of the object store the worker needs.
type PrefixDeleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// StoragePurgeWorker consumes purge events published after a session
// cascade and removes the session's uploaded files.
type StoragePurgeWorker struct {
	conn      *amqp.Connection
	store     PrefixDeleter
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewStoragePurgeWorker(conn *amqp.Connection, store PrefixDeleter, queueName string) *StoragePurgeWorker {
	return &StoragePurgeWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
	}
}

func (w *StoragePurgeWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if _, err := ch.QueueDeclare(w.queueName, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	if err := ch.Qos(4, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(w.queueName, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				switch err := w.Handle(workerCtx, d.Body); {
				case err == nil:
					_ = d.Ack(false)
				case isPermanent(err):
					slog.Error("drop storage purge event", "err", err)
					_ = d.Nack(false, false)
				default:
					slog.Warn("storage purge failed, requeueing", "err", err)
					_ = d.Nack(false, !d.Redelivered)
				}
			}
		}
	}()

	return nil
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func isPermanent(err error) bool {
	var pe permanentError
	return errors.As(err, &pe)
}

// Handle processes one purge event body. Malformed events are reported as
// permanent failures.
func (w *StoragePurgeWorker) Handle(ctx context.Context, body []byte) error {
	event, err := rabbitmq.DecodePurgeEvent(body)
	if err != nil {
		return permanentError{err: err}
	}
	prefix := storage.SessionPrefix(event.UserID, event.SessionID)
	n, err := w.store.DeletePrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("purge %s failed after %d objects: %w", prefix, n, err)
	}
	slog.Info("storage purged", "user_id", event.UserID, "session_id", event.SessionID, "objects", n)
	return nil
}

func (w *StoragePurgeWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
