// Package store keeps calibration records per device in memory.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/ski_compute/internal/calibration"
)

var (
	ErrNotFound    = errors.New("store: record not found")
	ErrInvalidStep = errors.New("store: calibration step must be 1..4")
	ErrCompleted   = errors.New("store: record already completed")
)

// Record is one calibration attempt of a device.
type Record struct {
	ID            uuid.UUID                 `json:"id" yaml:"id"`
	DeviceID      string                    `json:"device_id" yaml:"device_id"`
	Step          int                       `json:"calibration_step" yaml:"calibration_step"`
	Status        calibration.Status        `json:"calibration_status" yaml:"calibration_status"`
	Result        *calibration.Result       `json:"result,omitempty" yaml:"result,omitempty"`
	FailureReason calibration.FailureReason `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	CreatedAt     time.Time                 `json:"created_at" yaml:"created_at"`
	CompletedAt   *time.Time                `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}

// Page is one slice of a device's records, newest first.
type Page struct {
	Items    []Record `json:"items" yaml:"items"`
	Total    int      `json:"total" yaml:"total"`
	Page     int      `json:"page" yaml:"page"`
	PageSize int      `json:"page_size" yaml:"page_size"`
	HasNext  bool     `json:"has_next" yaml:"has_next"`
}

// Store is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	records  map[uuid.UUID]*Record
	byDevice map[string][]uuid.UUID
	now      func() time.Time
}

func New() *Store {
	return &Store{
		records:  make(map[uuid.UUID]*Record),
		byDevice: make(map[string][]uuid.UUID),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create opens an in_progress record for deviceID.
func (s *Store) Create(deviceID string, step int) (Record, error) {
	if step < 1 || step > 4 {
		return Record{}, fmt.Errorf("%w: got %d", ErrInvalidStep, step)
	}
	if deviceID == "" {
		return Record{}, errors.New("store: empty device id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &Record{
		ID:        uuid.New(),
		DeviceID:  deviceID,
		Step:      step,
		Status:    calibration.StatusInProgress,
		CreatedAt: s.now(),
	}
	s.records[r.ID] = r
	s.byDevice[deviceID] = append(s.byDevice[deviceID], r.ID)
	return *r, nil
}

// Complete attaches the result and moves the record to completed or failed.
func (s *Store) Complete(id uuid.UUID, res calibration.Result) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if r.CompletedAt != nil {
		return Record{}, fmt.Errorf("%w: %s", ErrCompleted, id)
	}
	now := s.now()
	r.Result = &res
	r.Status = res.Status()
	r.FailureReason = res.FailureReason
	r.CompletedAt = &now
	return *r, nil
}

func (s *Store) Get(id uuid.UUID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *r, nil
}

// List pages through a device's records, newest first. page starts at 1.
func (s *Store) List(deviceID string, page, pageSize int) Page {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	s.mu.RLock()
	ids := s.byDevice[deviceID]
	all := make([]Record, 0, len(ids))
	for _, id := range ids {
		all = append(all, *s.records[id])
	}
	s.mu.RUnlock()

	// Creation order breaks ties between equal timestamps.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	out := Page{Total: len(all), Page: page, PageSize: pageSize, Items: []Record{}}
	from := (page - 1) * pageSize
	if from < len(all) {
		to := from + pageSize
		if to > len(all) {
			to = len(all)
		}
		out.Items = all[from:to]
		out.HasNext = to < len(all)
	}
	return out
}

// Latest returns the newest completed record of a device.
func (s *Store) Latest(deviceID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byDevice[deviceID]
	for i := len(ids) - 1; i >= 0; i-- {
		if r := s.records[ids[i]]; r.Status == calibration.StatusCompleted {
			return *r, true
		}
	}
	return Record{}, false
}
