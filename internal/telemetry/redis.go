// Package telemetry mirrors the teacher's pkg/redis/client.go: a thin
// wrapper over go-redis publishing operational state to hashes and
// pub/sub channels. Here it mirrors reader state (region, connection,
// last-read summary counts) instead of scooter state, and is wired behind
// a StatePublisher interface so it's an optional collaborator rather than a
// hard dependency of the core library.
package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys used in the reader-state hash, following the teacher's one-hash-per-
// subsystem convention (its KeyVehicle/KeyBatterySlot1/... constants).
const (
	KeyReader = "rfid-reader"

	FieldConnected    = "connected"
	FieldRegion       = "region"
	FieldLastEPC      = "last-epc"
	FieldReadCount    = "read-count"
	FieldLastReadTime = "last-read-time"
)

// Publisher publishes reader operational state to Redis, the way the
// teacher's Service publishes vehicle/battery state: a hash write plus a
// pub/sub notification so subscribers don't have to poll.
type Publisher struct {
	client *redis.Client
	ctx    context.Context
}

// New connects to addr and verifies reachability with a Ping, exactly as
// the teacher's redis.New does.
func New(addr, password string, db int) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("telemetry: connect to redis: %w", err)
	}
	return &Publisher{client: client, ctx: ctx}, nil
}

func (p *Publisher) writeAndPublish(field, value string) error {
	pipe := p.client.Pipeline()
	pipe.HSet(p.ctx, KeyReader, field, value)
	pipe.Publish(p.ctx, KeyReader, fmt.Sprintf("%s:%s", field, value))
	_, err := pipe.Exec(p.ctx)
	return err
}

// PublishConnected mirrors connection state.
func (p *Publisher) PublishConnected(connected bool) error {
	v := "0"
	if connected {
		v = "1"
	}
	return p.writeAndPublish(FieldConnected, v)
}

// PublishRegion mirrors the current regulatory region by name.
func (p *Publisher) PublishRegion(region string) error {
	return p.writeAndPublish(FieldRegion, region)
}

// PublishReadSummary mirrors a running tag count and the most recently
// observed EPC — operational state, never a per-tag history (spec.md
// Non-goals: no tag database).
func (p *Publisher) PublishReadSummary(count int, lastEPC string) error {
	if err := p.writeAndPublish(FieldReadCount, strconv.Itoa(count)); err != nil {
		return err
	}
	if err := p.writeAndPublish(FieldLastEPC, lastEPC); err != nil {
		return err
	}
	return p.writeAndPublish(FieldLastReadTime, time.Now().UTC().Format(time.RFC3339))
}

// Close closes the underlying Redis client.
func (p *Publisher) Close() error { return p.client.Close() }
