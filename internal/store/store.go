// Package store keeps finalized reports in a bbolt database keyed by scan ID.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/yairfalse/warden/pkg/finding"
)

// Bucket names in bbolt
var (
	bucketReports = []byte("reports")
	bucketMeta    = []byte("meta")
	keyLatest     = []byte("latest")
)

// ErrNotFound is returned when a scan ID has no stored report.
var ErrNotFound = errors.New("report not found")

// Store persists reports. Scan IDs are ULIDs, so byte order is time order.
type Store struct {
	mu sync.Mutex
	db *bbolt.DB
}

// Entry summarizes one stored report.
type Entry struct {
	ScanID     string    `json:"scan_id"`
	Provider   string    `json:"provider"`
	StartedAt  time.Time `json:"started_at"`
	Total      int       `json:"total"`
	Failures   int       `json:"failures"`
	Incomplete bool      `json:"incomplete"`
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketReports, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores rep under its scan ID.
func (s *Store) Save(rep *finding.Report) error {
	if rep == nil || rep.ScanID == "" {
		return fmt.Errorf("save report: missing scan id")
	}
	value, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", rep.ScanID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketReports).Put([]byte(rep.ScanID), value); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyLatest, []byte(rep.ScanID))
	})
}

// Get loads the report stored under scanID.
func (s *Store) Get(scanID string) (*finding.Report, error) {
	var rep *finding.Report
	err := s.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(bucketReports).Get([]byte(scanID))
		if value == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, scanID)
		}
		var err error
		rep, err = decode(value)
		return err
	})
	return rep, err
}

// Recent returns up to n reports, newest first.
func (s *Store) Recent(n int) ([]*finding.Report, error) {
	var reports []*finding.Report
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketReports).Cursor()
		for k, v := c.Last(); k != nil && len(reports) < n; k, v = c.Prev() {
			rep, err := decode(v)
			if err != nil {
				return err
			}
			reports = append(reports, rep)
		}
		return nil
	})
	return reports, err
}

// Latest returns the most recently saved report.
func (s *Store) Latest() (*finding.Report, error) {
	var scanID string
	err := s.db.View(func(tx *bbolt.Tx) error {
		scanID = string(tx.Bucket(bucketMeta).Get(keyLatest))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if scanID == "" {
		return nil, fmt.Errorf("%w: store is empty", ErrNotFound)
	}
	return s.Get(scanID)
}

// List summarizes every stored report, newest first.
func (s *Store) List() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketReports).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			rep, err := decode(v)
			if err != nil {
				return err
			}
			entries = append(entries, Entry{
				ScanID:     rep.ScanID,
				Provider:   rep.Provider,
				StartedAt:  rep.StartedAt,
				Total:      rep.Summary.Total,
				Failures:   rep.Summary.Failures(),
				Incomplete: rep.Incomplete,
			})
		}
		return nil
	})
	return entries, err
}

// Prune deletes all but the newest keep reports and returns how many were
// removed.
func (s *Store) Prune(keep int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketReports)
		excess := bucket.Stats().KeyN - keep
		if excess <= 0 {
			return nil
		}
		var stale [][]byte
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil && len(stale) < excess; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func decode(value []byte) (*finding.Report, error) {
	var rep finding.Report
	if err := json.Unmarshal(value, &rep); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &rep, nil
}
