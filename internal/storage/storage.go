// Package storage keeps a registry of training runs in a BoltDB file. Each
// trainer invocation records one run; the newest run is marked active and
// can be rolled back to an earlier one.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// DBFile is the registry file name inside the data directory.
	DBFile = "housing-forest.db"

	runsBucket = "runs" // Bucket name for training run records
	metaBucket = "meta" // Bucket name for registry pointers
	activeKey  = "active"
)

// ErrRunNotFound is returned when no run matches the requested id.
var ErrRunNotFound = errors.New("training run not found")

// TrainingRun describes one completed training.
type TrainingRun struct {
	ID           string        `json:"id"`
	Version      string        `json:"version"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	DatasetPath  string        `json:"dataset_path"`
	ModelPath    string        `json:"model_path"`
	NumTrees     int           `json:"num_trees"`
	Seed         int64         `json:"seed"`
	TrainingRows int           `json:"training_rows"`
	HoldoutRows  int           `json:"holdout_rows"`
	R2           float64       `json:"r2"`
	MAE          float64       `json:"mae"`
	RMSE         float64       `json:"rmse"`
}

// Store provides persistent storage for training runs using BoltDB.
type Store struct {
	db *bbolt.DB // BoltDB database instance
}

// New opens (or creates) the registry inside dataPath. The directory must
// already exist.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, DBFile)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(runsBucket)); err != nil {
			return fmt.Errorf("create runs bucket: %w", err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return fmt.Errorf("create meta bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// runKey orders runs chronologically under a cursor scan.
func runKey(run TrainingRun) []byte {
	return []byte(fmt.Sprintf("%020d_%s", run.StartedAt.UnixNano(), run.ID))
}

// RecordRun stores run and marks it as the active run.
func (s *Store) RecordRun(run TrainingRun) error {
	if run.ID == "" {
		return errors.New("run id is required")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("marshal run: %w", err)
		}
		key := runKey(run)
		if err := tx.Bucket([]byte(runsBucket)).Put(key, data); err != nil {
			return fmt.Errorf("store run: %w", err)
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(activeKey), key)
	})
}

// ListRuns returns up to limit runs, newest first. A non-positive limit
// returns every run.
func (s *Store) ListRuns(limit int) ([]TrainingRun, error) {
	var runs []TrainingRun

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var run TrainingRun
			if err := json.Unmarshal(v, &run); err != nil {
				continue // Skip malformed records
			}
			runs = append(runs, run)
			if limit > 0 && len(runs) >= limit {
				break
			}
		}
		return nil
	})

	return runs, err
}

// RunsInRange returns the runs started within [start, end], oldest first.
func (s *Store) RunsInRange(start, end time.Time) ([]TrainingRun, error) {
	var runs []TrainingRun

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(runsBucket)).Cursor()
		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%020d~", end.UnixNano()))

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) <= 0; k, v = c.Next() {
			var run TrainingRun
			if err := json.Unmarshal(v, &run); err != nil {
				continue
			}
			runs = append(runs, run)
		}
		return nil
	})

	return runs, err
}

// ActiveRun returns the run currently marked active.
func (s *Store) ActiveRun() (*TrainingRun, error) {
	var run *TrainingRun

	err := s.db.View(func(tx *bbolt.Tx) error {
		key := tx.Bucket([]byte(metaBucket)).Get([]byte(activeKey))
		if key == nil {
			return ErrRunNotFound
		}
		data := tx.Bucket([]byte(runsBucket)).Get(key)
		if data == nil {
			return ErrRunNotFound
		}
		run = &TrainingRun{}
		return json.Unmarshal(data, run)
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Activate marks the run with the given id as active.
func (s *Store) Activate(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		key, err := findRunKey(tx, id)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(activeKey), key)
	})
}

// Rollback activates the run recorded just before the active one and
// returns it.
func (s *Store) Rollback() (*TrainingRun, error) {
	var previous *TrainingRun

	err := s.db.Update(func(tx *bbolt.Tx) error {
		active := tx.Bucket([]byte(metaBucket)).Get([]byte(activeKey))
		if active == nil {
			return ErrRunNotFound
		}

		c := tx.Bucket([]byte(runsBucket)).Cursor()
		k, _ := c.Seek(active)
		if k == nil || !bytes.Equal(k, active) {
			return ErrRunNotFound
		}
		prevKey, prevVal := c.Prev()
		if prevKey == nil {
			return errors.New("no previous run available for rollback")
		}

		previous = &TrainingRun{}
		if err := json.Unmarshal(prevVal, previous); err != nil {
			return fmt.Errorf("decode run: %w", err)
		}
		// copy: the key slice is only valid inside the transaction
		return tx.Bucket([]byte(metaBucket)).Put([]byte(activeKey), append([]byte(nil), prevKey...))
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

func findRunKey(tx *bbolt.Tx, id string) ([]byte, error) {
	suffix := []byte("_" + id)
	c := tx.Bucket([]byte(runsBucket)).Cursor()
	for k, _ := c.First(); k != nil; k, _ = c.Next() {
		if bytes.HasSuffix(k, suffix) {
			return append([]byte(nil), k...), nil
		}
	}
	return nil, ErrRunNotFound
}
