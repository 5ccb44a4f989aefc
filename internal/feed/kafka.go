package feed

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/atelier-shop/backend/internal/models"
)

const (
	TopicSessionEvents = "session_events"
	TopicCartEvents    = "cart_events"
)

// Relay mirrors every feed event onto Kafka so downstream consumers (order
// pipeline, analytics) see the same change stream the clients do.
type Relay struct {
	writer *kafka.Writer
	log    *slog.Logger

	subs   []*Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

type relayMessage struct {
	Table string         `json:"table"`
	Type  EventType      `json:"type"`
	Old   map[string]any `json:"old,omitempty"`
	New   map[string]any `json:"new,omitempty"`
}

func NewRelay(address string, f *Feed, log *slog.Logger) *Relay {
	r := &Relay{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(address),
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: true,
		},
		log:  log,
		done: make(chan struct{}),
	}

	for _, table := range []string{
		models.TableSessions,
		models.TableSessionUsers,
		models.TableSessionCartItems,
		models.TablePersonalCartItems,
	} {
		r.subs = append(r.subs, f.Subscribe(table, nil, Filter{}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.run(ctx)

	return r
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.done)

	cases := make(chan Event)
	for _, s := range r.subs {
		s := s
		go func() {
			for e := range s.C {
				select {
				case cases <- e:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-cases:
			if err := r.publish(ctx, e); err != nil {
				r.log.Error("kafka relay publish", "table", e.Table, "error", err)
			}
		}
	}
}

func (r *Relay) publish(ctx context.Context, e Event) error {
	topic := TopicCartEvents
	if e.Table == models.TableSessions || e.Table == models.TableSessionUsers {
		topic = TopicSessionEvents
	}

	msg := relayMessage{Table: e.Table, Type: e.Type}
	if e.Old != nil {
		msg.Old = rowPayload(e.Old)
	}
	if e.New != nil {
		msg.New = rowPayload(e.New)
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return r.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(relayKey(e)),
		Value: value,
	})
}

func rowPayload(row Row) map[string]any {
	cols := row.FeedColumns()
	out := make(map[string]any, len(cols))
	for k, v := range cols {
		out[k] = v
	}
	return out
}

// relayKey partitions by scope so per-row ordering survives the relay.
func relayKey(e Event) string {
	row := e.New
	if row == nil {
		row = e.Old
	}
	cols := row.FeedColumns()
	if v, ok := cols["session_id"]; ok {
		return v
	}
	if v, ok := cols["user_id"]; ok {
		return v
	}
	return cols["id"]
}

func (r *Relay) Close() {
	for _, s := range r.subs {
		s.Unsubscribe()
	}
	r.cancel()
	<-r.done
	_ = r.writer.Close()
}
