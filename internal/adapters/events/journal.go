package events

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/ports"
	"github.com/weftworks/weft/internal/xjson"
)

// Journal is an append-only badger log of published lifecycle events,
// keyed so one run's events read back in append order. Entries carry a
// TTL; history is an operational trail, not a system of record.
type Journal struct {
	db     *badger.DB
	logger *slog.Logger
	ttl    time.Duration

	mu   sync.Mutex
	seqs map[string]uint64
}

func NewJournal(config domain.JournalConfig, dataDir string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	path := config.Path
	if path == "" {
		path = filepath.Join(dataDir, "journal")
	}

	opts := badger.DefaultOptions(path).
		WithInMemory(config.InMemory).
		WithLogger(nil)
	if config.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, domain.NewTransientError("opening journal", err)
	}

	ttl := config.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	return &Journal{
		db:     db,
		logger: logger.With("component", "event-journal"),
		ttl:    ttl,
		seqs:   make(map[string]uint64),
	}, nil
}

func (j *Journal) Append(ctx context.Context, event domain.Event) error {
	if event == nil {
		return domain.NewValidationError("event cannot be nil")
	}
	runID := event.RunIDOf()
	if runID == "" {
		return domain.NewValidationError("event has no run id")
	}

	payload, err := xjson.Marshal(event)
	if err != nil {
		return domain.NewInternalError("marshaling event", err)
	}

	name := event.EventName()
	seq := j.nextSeq(runID, name)

	record := domain.EventRecord{
		Seq:       seq,
		Name:      name,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	data, err := xjson.Marshal(record)
	if err != nil {
		return domain.NewInternalError("marshaling record", err)
	}

	key := domain.JournalKey(runID, seq)
	err = j.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data).WithTTL(j.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return domain.NewTransientError("storing event", err)
	}

	j.logger.Debug("journaled event", "run_id", runID, "event", name, "seq", seq)
	return nil
}

// nextSeq hands out the per-run sequence number. Terminal events end the
// run, so their counter is released afterwards.
func (j *Journal) nextSeq(runID, name string) uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	seq := j.seqs[runID] + 1
	switch name {
	case domain.EventExecutionCompleted, domain.EventExecutionFailed, domain.EventExecutionCancelled:
		delete(j.seqs, runID)
	default:
		j.seqs[runID] = seq
	}
	return seq
}

func (j *Journal) History(ctx context.Context, runID string) ([]domain.EventRecord, error) {
	if runID == "" {
		return nil, domain.NewValidationError("run id is required")
	}

	var records []domain.EventRecord
	prefix := []byte(domain.JournalRunPrefix(runID))

	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var record domain.EventRecord
				if err := xjson.Unmarshal(val, &record); err != nil {
					j.logger.Warn("skipping malformed journal entry",
						"key", string(item.Key()),
						"error", err)
					return nil
				}
				records = append(records, record)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, domain.NewTransientError("reading journal", err)
	}

	return records, nil
}

// Follow journals every event the manager publishes until the returned
// stop func is called or the manager closes.
func (j *Journal) Follow(em ports.EventManager) func() {
	ch, cancel := em.Subscribe()
	go func() {
		for event := range ch {
			if err := j.Append(context.Background(), event); err != nil {
				j.logger.Warn("failed to journal event",
					"event", event.EventName(),
					"error", err)
			}
		}
	}()
	return cancel
}

func (j *Journal) Close() error {
	return j.db.Close()
}

var _ ports.EventJournal = (*Journal)(nil)
