package doselog

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/squaredose/doser/controller"
)

// Store persists HourlyEntry records as raw JSON blobs keyed by
// logKey, merging into any existing entry on write exactly like
// DosingLogStore::saveLog does — a head that doses twice in the same
// hour accumulates into one record rather than overwriting it.
type Store struct {
	store controller.Store
}

func NewStore(store controller.Store) (*Store, error) {
	if err := store.CreateBucket(Namespace); err != nil {
		return nil, controller.NewPersistenceError("create bucket", err)
	}
	return &Store{store: store}, nil
}

// Merge adds scheduledDelta/adhocDelta volume (one of which is
// normally zero) to the hour bucket covering wallSeconds for head, and
// increments its dose count.
func (s *Store) Merge(head int, wallSeconds int64, scheduledDelta, adhocDelta float64) error {
	if err := validateHead(head); err != nil {
		return err
	}
	offset := hourOffset(wallSeconds)
	key := logKey(head, offset)

	entry := HourlyEntry{Head: head, HourOffset: offset}
	raw, ok, err := s.store.GetBytes(Namespace, key)
	if err != nil {
		return controller.NewPersistenceError("load hourly entry", err)
	}
	if ok {
		if err := json.Unmarshal(raw, &entry); err != nil {
			return controller.NewPersistenceError("decode hourly entry", err)
		}
	}
	entry.ScheduledVolume += scheduledDelta
	entry.AdhocVolume += adhocDelta
	entry.DoseCount++

	out, err := json.Marshal(entry)
	if err != nil {
		return controller.NewPersistenceError("encode hourly entry", err)
	}
	if err := s.store.PutBytes(Namespace, key, out); err != nil {
		return controller.NewPersistenceError("save hourly entry", err)
	}
	return nil
}

// Get returns the hourly entry for head at the hour covering
// wallSeconds, or a zero-value entry if none exists.
func (s *Store) Get(head int, wallSeconds int64) (HourlyEntry, error) {
	offset := hourOffset(wallSeconds)
	raw, ok, err := s.store.GetBytes(Namespace, logKey(head, offset))
	if err != nil {
		return HourlyEntry{}, controller.NewPersistenceError("load hourly entry", err)
	}
	if !ok {
		return HourlyEntry{Head: head, HourOffset: offset}, nil
	}
	var entry HourlyEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return HourlyEntry{}, controller.NewPersistenceError("decode hourly entry", err)
	}
	return entry, nil
}

// Range returns every stored entry for head whose hour falls within
// [startWall, endWall), in ascending hour order — loadLogsInRange's
// Go equivalent, but driven off ListKeys instead of iterating every
// hour index one by one since most hours in a 14-day window have no
// entry at all.
func (s *Store) Range(head int, startWall, endWall int64) ([]HourlyEntry, error) {
	keys, err := s.store.ListKeys(Namespace)
	if err != nil {
		return nil, controller.NewPersistenceError("list hourly entries", err)
	}
	startOffset := hourOffset(startWall)
	endOffset := hourOffset(endWall)

	suffix := "_" + strconv.Itoa(head)
	var out []HourlyEntry
	for _, k := range keys {
		if !strings.HasSuffix(k, suffix) || !strings.HasPrefix(k, "h") {
			continue
		}
		offsetStr := strings.TrimSuffix(strings.TrimPrefix(k, "h"), suffix)
		offset, err := strconv.ParseInt(offsetStr, 10, 64)
		if err != nil {
			continue
		}
		if offset < startOffset || offset >= endOffset {
			continue
		}
		raw, ok, err := s.store.GetBytes(Namespace, k)
		if err != nil || !ok {
			continue
		}
		var entry HourlyEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// Prune deletes every entry older than LogRetentionHours relative to
// currentWall, matching DosingLogStore::pruneOldLogs.
func (s *Store) Prune(currentWall int64) (int, error) {
	keys, err := s.store.ListKeys(Namespace)
	if err != nil {
		return 0, controller.NewPersistenceError("list hourly entries", err)
	}
	cutoff := hourOffset(currentWall) - LogRetentionHours
	removed := 0
	for _, k := range keys {
		idx := strings.Index(k[1:], "_")
		if !strings.HasPrefix(k, "h") || idx < 0 {
			continue
		}
		offset, err := strconv.ParseInt(k[1:1+idx], 10, 64)
		if err != nil {
			continue
		}
		if offset < cutoff {
			if err := s.store.Delete(Namespace, k); err != nil {
				return removed, controller.NewPersistenceError("prune hourly entry", err)
			}
			removed++
		}
	}
	return removed, nil
}

// ClearAll wipes every stored entry.
func (s *Store) ClearAll() error {
	if err := s.store.Clear(Namespace); err != nil {
		return controller.NewPersistenceError("clear hourly entries", err)
	}
	return nil
}

// Count returns the number of stored hourly entries, for the activity
// dashboard.
func (s *Store) Count() (int, error) {
	keys, err := s.store.ListKeys(Namespace)
	if err != nil {
		return 0, controller.NewPersistenceError("count hourly entries", err)
	}
	return len(keys), nil
}
