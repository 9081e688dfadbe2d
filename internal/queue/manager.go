package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/vigil/internal/models"
)

// ErrNoMessage is returned when the queue has no visible messages
var ErrNoMessage = models.ErrNoMessage

// Queue names used by the pipeline
const (
	QueueLogs   = "logs"
	QueueIssues = "issues"
)

// storedMessage is the internal structure persisted in Badger
type storedMessage struct {
	ID           string              `json:"id"`
	Body         models.QueueMessage `json:"body"`
	EnqueuedAt   time.Time           `json:"enqueued_at"`
	VisibleAt    time.Time           `json:"visible_at"`
	ReceiveCount int                 `json:"receive_count"`
}

// Delivery is one received message plus its delivery bookkeeping
type Delivery struct {
	Message  models.QueueMessage
	Attempts int // how many times this message has been delivered, including this one
}

// Manager implements a persistent queue on BadgerDB.
//
// Messages are stored under queue:{name}:msg:{id} with a separate
// visibility index queue:{name}:index:{visibleAt}:{id}; index keys are
// zero-padded nanosecond timestamps so iterating the prefix yields
// ready messages first. Re-delivery delay grows exponentially with the
// receive count, which gives failed jobs their retry backoff without a
// separate scheduler.
type Manager struct {
	db                *badgerdb.DB
	queueName         string
	visibilityTimeout time.Duration
	maxReceive        int
}

// NewManager creates a new Badger-backed queue manager
func NewManager(db *badgerdb.DB, queueName string, visibilityTimeout time.Duration, maxReceive int) (*Manager, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = time.Minute
	}
	if maxReceive <= 0 {
		maxReceive = 3
	}

	return &Manager{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
		maxReceive:        maxReceive,
	}, nil
}

// Name returns the queue name
func (m *Manager) Name() string {
	return m.queueName
}

// MaxReceive returns the configured retry budget
func (m *Manager) MaxReceive() int {
	return m.maxReceive
}

// Enqueue adds a message to the queue, immediately visible
func (m *Manager) Enqueue(ctx context.Context, msg models.QueueMessage) error {
	id := uuid.New().String()

	sMsg := storedMessage{
		ID:           id,
		Body:         msg,
		EnqueuedAt:   time.Now(),
		VisibleAt:    time.Now(),
		ReceiveCount: 0,
	}

	data, err := json.Marshal(sMsg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return m.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(m.msgKey(id), data); err != nil {
			return err
		}
		return txn.Set(m.indexKey(sMsg.VisibleAt, id), []byte{})
	})
}

// Receive pulls the next visible message. The returned ack function
// deletes the message after successful processing; without an ack the
// message re-appears after an exponentially backed-off visibility
// window. Messages already past the retry budget are skipped and
// reported through the returned exhausted slice so the caller can park
// them.
func (m *Manager) Receive(ctx context.Context) (*Delivery, func() error, []Delivery, error) {
	var sMsg storedMessage
	var msgID string
	var oldIndexKey []byte
	var exhausted []Delivery
	found := false

	err := m.db.Update(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()

			ts, id, err := m.parseIndexKey(key)
			if err != nil {
				continue // Skip invalid keys
			}

			if ts.After(now) {
				// Index keys sort by timestamp: nothing later is ready either
				break
			}

			itemMsg, err := txn.Get(m.msgKey(id))
			if err != nil {
				if err == badgerdb.ErrKeyNotFound {
					// Orphaned index entry, clean it up
					if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
						return err
					}
					continue
				}
				return err
			}

			if err := itemMsg.Value(func(val []byte) error {
				return json.Unmarshal(val, &sMsg)
			}); err != nil {
				return err
			}

			// Retry budget exhausted: remove from the queue and hand
			// the message back for parking instead of silent deletion
			if sMsg.ReceiveCount >= m.maxReceive {
				if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
					return err
				}
				if err := txn.Delete(m.msgKey(id)); err != nil {
					return err
				}
				exhausted = append(exhausted, Delivery{Message: sMsg.Body, Attempts: sMsg.ReceiveCount})
				continue
			}

			found = true
			msgID = id
			oldIndexKey = it.Item().KeyCopy(nil)
			break
		}

		if !found {
			// Returning an error here would roll back the deletes for
			// exhausted messages, so commit and report absence after
			return nil
		}

		// Claim: bump receive count and push visibility out with
		// exponential backoff (1x, 2x, 4x the base timeout)
		sMsg.ReceiveCount++
		sMsg.VisibleAt = time.Now().Add(m.backoff(sMsg.ReceiveCount))

		newData, err := json.Marshal(sMsg)
		if err != nil {
			return err
		}
		if err := txn.Set(m.msgKey(msgID), newData); err != nil {
			return err
		}
		if err := txn.Delete(oldIndexKey); err != nil {
			return err
		}
		return txn.Set(m.indexKey(sMsg.VisibleAt, msgID), []byte{})
	})

	if err != nil {
		return nil, nil, exhausted, err
	}
	if !found {
		return nil, nil, exhausted, ErrNoMessage
	}

	delivery := &Delivery{Message: sMsg.Body, Attempts: sMsg.ReceiveCount}

	ack := func() error {
		return m.db.Update(func(txn *badgerdb.Txn) error {
			item, err := txn.Get(m.msgKey(msgID))
			if err != nil {
				if err == badgerdb.ErrKeyNotFound {
					return nil // Already deleted
				}
				return err
			}

			var current storedMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &current)
			}); err != nil {
				return err
			}

			if err := txn.Delete(m.indexKey(current.VisibleAt, msgID)); err != nil {
				if err != badgerdb.ErrKeyNotFound {
					return err
				}
			}
			return txn.Delete(m.msgKey(msgID))
		})
	}

	return delivery, ack, exhausted, nil
}

// Depth returns the number of messages currently in the queue,
// visible or in-flight
func (m *Manager) Depth(ctx context.Context) (int, error) {
	count := 0
	err := m.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", m.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queue depth: %w", err)
	}
	return count, nil
}

// backoff returns the visibility delay for the given delivery attempt
func (m *Manager) backoff(attempt int) time.Duration {
	d := m.visibilityTimeout
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

// Helpers

func (m *Manager) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", m.queueName, id))
}

func (m *Manager) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so string sorting matches numeric sorting
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", m.queueName, visibleAt.UnixNano(), id))
}

func (m *Manager) parseIndexKey(key []byte) (time.Time, string, error) {
	prefixStr := fmt.Sprintf("queue:%s:index:", m.queueName)
	if len(key) <= len(prefixStr) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefixStr):])
	if len(suffix) < 21 { // 20 digits + 1 colon
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	tsStr := suffix[:20]
	id := suffix[21:]

	var ts int64
	if _, err := fmt.Sscanf(tsStr, "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), id, nil
}
