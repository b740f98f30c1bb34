// Package publish appends search results to a Redis stream so that
// downstream consumers can follow a run as it happens.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	backend "github.com/redis/go-redis/v9"

	"github.com/banshee-data/houghtrack/internal/hough/eventio"
	"github.com/banshee-data/houghtrack/internal/hough/pipeline"
)

// DefaultStream is the stream key used unless WithStream overrides it.
const DefaultStream = "houghtrack:results"

// Publisher writes one stream entry per event. It is a pipeline.Sink and
// is safe for concurrent use.
type Publisher struct {
	client *backend.Client
	stream string
	maxLen int64
}

type Option func(*Publisher)

// WithStream sets the stream key.
func WithStream(stream string) Option {
	return func(p *Publisher) {
		p.stream = stream
	}
}

// WithMaxLen trims the stream to at most n entries; zero keeps everything.
func WithMaxLen(n int64) Option {
	return func(p *Publisher) {
		p.maxLen = n
	}
}

// New creates a publisher with its own client.
func New(address, password string, db int, opts ...Option) *Publisher {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a publisher from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Publisher {
	p := &Publisher{client: client, stream: DefaultStream}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Stream returns the stream key.
func (p *Publisher) Stream() string { return p.stream }

// Ping checks the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the client.
func (p *Publisher) Close() error { return p.client.Close() }

// Publish appends rec and returns the entry ID.
func (p *Publisher) Publish(ctx context.Context, rec eventio.Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	args := &backend.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Values: map[string]interface{}{
			"event":  rec.Event,
			"tracks": len(rec.Tracks),
			"record": string(data),
		},
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}

func (p *Publisher) Write(ctx context.Context, res *pipeline.Result) error {
	_, err := p.Publish(ctx, eventio.NewRecord(res))
	return err
}

// Entry is one decoded stream entry.
type Entry struct {
	ID     string
	Record eventio.Record
}

// Range returns up to count entries after the entry with ID after ("" or
// "-" reads from the start). Pass the last returned ID to continue.
func (p *Publisher) Range(ctx context.Context, after string, count int64) ([]Entry, error) {
	start := "-"
	if after != "" && after != "-" {
		next, err := nextID(after)
		if err != nil {
			return nil, err
		}
		start = next
	}
	msgs, err := p.client.XRangeN(ctx, p.stream, start, "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", p.stream, err)
	}
	out := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["record"].(string)
		if !ok {
			return nil, fmt.Errorf("entry %s has no record field", m.ID)
		}
		var rec eventio.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("entry %s: %w", m.ID, err)
		}
		out = append(out, Entry{ID: m.ID, Record: rec})
	}
	return out, nil
}

// nextID returns the smallest stream ID after id.
func nextID(id string) (string, error) {
	ms, seq, ok := strings.Cut(id, "-")
	if !ok {
		return "", fmt.Errorf("malformed stream id %q", id)
	}
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return "", fmt.Errorf("malformed stream id %q: %w", id, err)
	}
	return ms + "-" + strconv.FormatUint(n+1, 10), nil
}

// Len returns the number of entries in the stream.
func (p *Publisher) Len(ctx context.Context) (int64, error) {
	return p.client.XLen(ctx, p.stream).Result()
}
