package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DBFile is the run database file name inside a results directory
const DBFile = "run.db"

var (
	// Bucket names
	bucketRun     = []byte("run")
	bucketSamples = []byte("samples")
	bucketBatches = []byte("batches")
	bucketPhases  = []byte("phases")

	keyRun = []byte("run")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates or opens the run database in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, DBFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketRun,
			bucketSamples,
			bucketBatches,
			bucketPhases,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// OpenReadOnly opens an existing run database for reporting
func OpenReadOnly(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, DBFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Run operations
func (s *BoltStore) SaveRun(run *RunRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRun)
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return b.Put(keyRun, data)
	})
}

func (s *BoltStore) GetRun() (*RunRecord, error) {
	var run RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRun)
		if b == nil {
			return fmt.Errorf("run not found")
		}
		data := b.Get(keyRun)
		if data == nil {
			return fmt.Errorf("run not found")
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Sample operations
func (s *BoltStore) AppendSample(sample *SampleRecord) error {
	return s.appendJSON(bucketSamples, sample)
}

func (s *BoltStore) ListSamples() ([]*SampleRecord, error) {
	var samples []*SampleRecord
	err := s.forEach(bucketSamples, func(v []byte) error {
		var sample SampleRecord
		if err := json.Unmarshal(v, &sample); err != nil {
			return err
		}
		samples = append(samples, &sample)
		return nil
	})
	return samples, err
}

// Batch operations
func (s *BoltStore) AppendBatch(batch *BatchRecord) error {
	return s.appendJSON(bucketBatches, batch)
}

func (s *BoltStore) ListBatches() ([]*BatchRecord, error) {
	var batches []*BatchRecord
	err := s.forEach(bucketBatches, func(v []byte) error {
		var batch BatchRecord
		if err := json.Unmarshal(v, &batch); err != nil {
			return err
		}
		batches = append(batches, &batch)
		return nil
	})
	return batches, err
}

// Phase operations
func (s *BoltStore) AppendPhase(phase *PhaseRecord) error {
	return s.appendJSON(bucketPhases, phase)
}

func (s *BoltStore) ListPhases() ([]*PhaseRecord, error) {
	var phases []*PhaseRecord
	err := s.forEach(bucketPhases, func(v []byte) error {
		var phase PhaseRecord
		if err := json.Unmarshal(v, &phase); err != nil {
			return err
		}
		phases = append(phases, &phase)
		return nil
	})
	return phases, err
}

// appendJSON stores v under the bucket's next sequence number so cursor order
// matches insertion order
func (s *BoltStore) appendJSON(bucket []byte, v interface{}) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return b.Put(itob(seq), data)
	})
}

func (s *BoltStore) forEach(bucket []byte, fn func(v []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	})
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
