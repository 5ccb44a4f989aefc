// Package feed is the row-level change feed. Store mutations publish
// insert/update/delete events after commit; subscribers receive them on
// buffered channels filtered by table, event type and an optional column
// equality. Delivery per subscription is ordered; a slow consumer drops
// events instead of blocking publishers.
package feed

import (
	"sync"
)

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Row is a typed store record that exposes the columns a subscription may
// filter on.
type Row interface {
	FeedColumns() map[string]string
}

// Event carries the old and new row snapshots. Old is nil for inserts, New is
// nil for deletes.
type Event struct {
	Table string
	Type  EventType
	Old   Row
	New   Row
}

// Filter is a column equality constraint. The zero value matches every row.
type Filter struct {
	Column string
	Equals string
}

func (f Filter) matches(e Event) bool {
	if f.Column == "" {
		return true
	}
	for _, row := range []Row{e.New, e.Old} {
		if row == nil {
			continue
		}
		if v, ok := row.FeedColumns()[f.Column]; ok && v == f.Equals {
			return true
		}
	}
	return false
}

type Subscription struct {
	C chan Event

	feed   *Feed
	id     uint64
	table  string
	types  map[EventType]struct{}
	filter Filter

	once sync.Once
}

func (s *Subscription) wants(e Event) bool {
	if e.Table != s.table {
		return false
	}
	if len(s.types) > 0 {
		if _, ok := s.types[e.Type]; !ok {
			return false
		}
	}
	return s.filter.matches(e)
}

// Unsubscribe releases the subscription and closes its channel. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.feed.remove(s)
		close(s.C)
	})
}

type Feed struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
}

func New() *Feed {
	return &Feed{subs: make(map[uint64]*Subscription)}
}

const subscriptionBuffer = 64

// Subscribe registers for events on table. An empty types list means every
// event type.
func (f *Feed) Subscribe(table string, types []EventType, filter Filter) *Subscription {
	s := &Subscription{
		C:      make(chan Event, subscriptionBuffer),
		feed:   f,
		table:  table,
		filter: filter,
	}
	if len(types) > 0 {
		s.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			s.types[t] = struct{}{}
		}
	}

	f.mu.Lock()
	f.nextID++
	s.id = f.nextID
	f.subs[s.id] = s
	f.mu.Unlock()

	return s
}

func (f *Feed) remove(s *Subscription) {
	f.mu.Lock()
	delete(f.subs, s.id)
	f.mu.Unlock()
}

func (f *Feed) Publish(e Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, s := range f.subs {
		if !s.wants(e) {
			continue
		}
		select {
		case s.C <- e:
		default:
			// slow consumer, drop
		}
	}
}
