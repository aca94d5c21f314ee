package linkcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"git.home.luguber.info/inful/docgate/internal/config"
	ferrors "git.home.luguber.info/inful/docgate/internal/foundation/errors"
	"git.home.luguber.info/inful/docgate/internal/logfields"
)

// NATSClient publishes run and broken-link events to JetStream and keeps the
// external link cache in a KV bucket.
type NATSClient struct {
	conn          *nats.Conn
	js            jetstream.JetStream
	kv            jetstream.KeyValue
	runSubject    string
	brokenSubject string
	ttl           time.Duration
	now           func() time.Time
}

// NewNATSClient connects to NATS and opens (or creates) the cache bucket.
func NewNATSClient(ctx context.Context, cfg *config.NATSConfig) (*NATSClient, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, ferrors.MessagingError("NATS is not configured").Build()
	}
	ttl, err := time.ParseDuration(cfg.CacheTTL)
	if err != nil {
		return nil, ferrors.ValidationError("invalid nats.cache_ttl").WithCause(err).Build()
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("docgate"))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryMessaging, "failed to connect to NATS").WithContext("url", cfg.URL).Build()
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryMessaging, "failed to create JetStream context").Build()
	}

	c := &NATSClient{
		conn:          conn,
		js:            js,
		runSubject:    cfg.RunSubject,
		brokenSubject: cfg.BrokenSubject,
		ttl:           ttl,
		now:           time.Now,
	}
	if err := c.initKVBucket(ctx, cfg.KVBucket); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("NATS client initialized",
		logfields.URL(cfg.URL),
		slog.String("run_subject", cfg.RunSubject),
		slog.String("broken_subject", cfg.BrokenSubject),
		slog.String("kv_bucket", cfg.KVBucket))
	return c, nil
}

func (c *NATSClient) initKVBucket(ctx context.Context, bucket string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	kv, err := c.js.KeyValue(ctx, bucket)
	if err == nil {
		c.kv = kv
		return nil
	}
	kv, err = c.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "docgate external link cache",
		MaxBytes:    64 * 1024 * 1024,
		History:     1,
		TTL:         c.ttl,
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryMessaging, "failed to create KV bucket").WithContext("bucket", bucket).Build()
	}
	c.kv = kv
	slog.Info("Created KV bucket for link cache", slog.String("bucket", bucket))
	return nil
}

// PublishBrokenLink publishes a broken link event.
func (c *NATSClient) PublishBrokenLink(ctx context.Context, event *BrokenLinkEvent) error {
	return c.publish(ctx, c.brokenSubject, event)
}

// PublishRunEvent publishes an arbitrary run lifecycle payload on the run subject.
func (c *NATSClient) PublishRunEvent(ctx context.Context, payload any) error {
	return c.publish(ctx, c.runSubject, payload)
}

func (c *NATSClient) publish(ctx context.Context, subject string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := c.js.Publish(ctx, subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryMessaging, "failed to publish event").WithContext("subject", subject).Build()
	}
	return nil
}

// Lookup implements Cache.
func (c *NATSClient) Lookup(ctx context.Context, url string) (*CacheEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	kve, err := c.kv.Get(ctx, cacheKey(url))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}
	var entry CacheEntry
	if err := json.Unmarshal(kve.Value(), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	if !usable(&entry, c.ttl, c.now()) {
		return nil, nil
	}
	return &entry, nil
}

// Store implements Cache.
func (c *NATSClient) Store(ctx context.Context, entry *CacheEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	entry.LastChecked = c.now()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if _, err := c.kv.Put(ctx, cacheKey(entry.URL), data); err != nil {
		return fmt.Errorf("failed to put cache entry: %w", err)
	}
	return nil
}

// Close drains the connection.
func (c *NATSClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Drain()
}
