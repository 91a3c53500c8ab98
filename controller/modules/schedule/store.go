package schedule

import (
	"encoding/json"

	"github.com/squaredose/doser/controller"
)

const key = "schedule"

// Store persists one Schedule per head under its own namespace
// ("schedule0".."schedule3"), keyed by a fixed "schedule" key rather
// than an auto-generated id since each bucket ever holds exactly one
// record.
type Store struct {
	store controller.Store
}

func NewStore(store controller.Store) (*Store, error) {
	for head := 0; head < 4; head++ {
		if err := store.CreateBucket(namespaceFor(head)); err != nil {
			return nil, controller.NewPersistenceError("create bucket", err)
		}
	}
	return &Store{store: store}, nil
}

// Get returns the persisted schedule for head, or a
// *controller.NotFoundError if none has been set yet.
func (s *Store) Get(head int) (Schedule, error) {
	raw, ok, err := s.store.GetBytes(namespaceFor(head), key)
	if err != nil {
		return Schedule{}, controller.NewPersistenceError("get schedule", err)
	}
	if !ok {
		return Schedule{}, &controller.NotFoundError{Namespace: namespaceFor(head), Key: key}
	}
	var sched Schedule
	if err := json.Unmarshal(raw, &sched); err != nil {
		return Schedule{}, controller.NewPersistenceError("decode schedule", err)
	}
	return sched, nil
}

// Put validates and persists sched, recomputing its derived fields
// first so a caller can never smuggle in a stale PerDoseVolumeML.
func (s *Store) Put(sched Schedule) error {
	sched.recomputeDerived()
	if err := sched.validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(sched)
	if err != nil {
		return controller.NewPersistenceError("encode schedule", err)
	}
	if err := s.store.PutBytes(namespaceFor(sched.Head), key, raw); err != nil {
		return controller.NewPersistenceError("put schedule", err)
	}
	return nil
}

// Delete removes head's schedule, if any.
func (s *Store) Delete(head int) error {
	if err := s.store.Delete(namespaceFor(head), key); err != nil {
		return controller.NewPersistenceError("delete schedule", err)
	}
	return nil
}
