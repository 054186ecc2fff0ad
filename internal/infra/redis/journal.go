package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"workflow-dashboard/internal/infra/durable"
)

var _ durable.Journal = (*StepJournal)(nil)

// StepJournal appends step events of a run to a Redis list that expires
// ttl after the last write.
type StepJournal struct {
	client RedisClient
	ttl    time.Duration
}

func NewStepJournal(client RedisClient, ttl time.Duration) *StepJournal {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &StepJournal{client: client, ttl: ttl}
}

func journalKey(runID string) string { return "durable:run:" + runID + ":steps" }

func (j *StepJournal) Record(ctx context.Context, ev durable.StepEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode step event: %w", err)
	}
	key := journalKey(ev.RunID)
	if err := j.client.RPush(ctx, key, b); err != nil {
		return err
	}
	return j.client.Expire(ctx, key, j.ttl)
}

// Events returns the journal of runID in write order.
func (j *StepJournal) Events(ctx context.Context, runID string) ([]durable.StepEvent, error) {
	raw, err := j.client.LRange(ctx, journalKey(runID), 0, -1)
	if err != nil {
		return nil, err
	}
	out := make([]durable.StepEvent, 0, len(raw))
	for _, s := range raw {
		var ev durable.StepEvent
		if err := json.Unmarshal([]byte(s), &ev); err != nil {
			return nil, fmt.Errorf("decode step event: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}
