package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"liquefier/pkg/log"
)

const (
	lastRunKey   = "last_run"
	runKeyPrefix = "run:"
)

// StatusSuccess is the Status of a run that completed.
const StatusSuccess = "success"

var ErrNoRun = errors.New("no successful run recorded")

// Run describes one finished command.
type Run struct {
	Id        string `json:"id"`
	Command   string `json:"command"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Start     int64  `json:"start,omitempty"`
	End       int64  `json:"end,omitempty"`
	Smoothing string `json:"smoothing,omitempty"`
	Rows      int    `json:"rows"`
	// LastSample is the epoch time of the newest rate row, 0 when there was none.
	LastSample int64     `json:"lastSample,omitempty"`
	Completed  time.Time `json:"completed"`
}

func (r *Run) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Registry keeps the last successful run and a history of all runs in
// badger. History entries expire after the TTL; the last successful run
// does not.
type Registry struct {
	db     *badger.DB
	ttl    time.Duration
	logger *logrus.Entry
}

// Open opens the registry in dir, or in memory when dir is empty.
func Open(dir string, ttl time.Duration) (*Registry, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open status registry: %w", err)
	}
	return &Registry{
		db:     db,
		ttl:    ttl,
		logger: log.Component("status"),
	}, nil
}

func (r *Registry) Close() error {
	return r.db.Close()
}

func runKey(run *Run) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", runKeyPrefix, run.Completed.UnixNano(), run.Id))
}

// Record adds run to the history. Only a successful run replaces the one
// returned by Last.
func (r *Registry) Record(run *Run) error {
	val, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if run.Succeeded() {
			if err := txn.Set([]byte(lastRunKey), val); err != nil {
				return err
			}
		}
		e := badger.NewEntry(runKey(run), val)
		if r.ttl > 0 {
			e = e.WithTTL(r.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Last returns the newest successful run.
func (r *Registry) Last() (*Run, error) {
	run := &Run{}
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(lastRunKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, run)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNoRun
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// History returns up to limit runs, newest first. A limit of 0 returns all.
func (r *Registry) History(limit int) ([]*Run, error) {
	prefix := []byte(runKeyPrefix)
	runs := make([]*Run, 0, 10)
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(prefix, 0xff)); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			run := &Run{}
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, run)
			})
			if err != nil {
				r.logger.WithError(err).Errorf("unmarshal run %s", item.Key())
				continue
			}
			runs = append(runs, run)
			if limit > 0 && len(runs) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}
