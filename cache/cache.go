// Package cache keeps the live dashboard view of accepted records in Redis:
// the latest device state, a bounded per-device history, the set of active
// devices per kind, a ranking by primary metric and the latest alert per type.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sensor-ingest/confs"
	"sensor-ingest/entities"
	"sensor-ingest/errs"
	"sensor-ingest/etl"
)

func DeviceKey(name string) string { return "device:" + name }
func HistoryKey(kind entities.SensorKind, name string) string {
	return fmt.Sprintf("history:%s:%s", kind, name)
}
func ActiveKey(kind entities.SensorKind) string    { return "active_devices:" + string(kind) }
func DashboardKey(kind entities.SensorKind) string { return "dashboard:" + string(kind) }
func AlertKey(name, alertType string) string {
	return fmt.Sprintf("alert:%s:%s:latest", name, alertType)
}

// HistoryEntry is one JSON element of a history list.
type HistoryEntry struct {
	Timestamp string            `json:"timestamp"`
	Data      map[string]string `json:"data"`
}

type RankedDevice struct {
	DeviceName string  `json:"device_name"`
	Score      float64 `json:"score"`
}

type RedisCache struct {
	client  *redis.Client
	cfg     confs.CacheConfig
	ranking entities.SensorKind
	log     *slog.Logger
	now     func() time.Time
}

func NewRedisCache(client *redis.Client, cfg confs.CacheConfig, ranking entities.SensorKind, log *slog.Logger) *RedisCache {
	return &RedisCache{
		client:  client,
		cfg:     cfg,
		ranking: ranking,
		log:     log.With("component", "cache"),
		now:     time.Now,
	}
}

// NewClient builds a Redis client and checks it once. A failed ping is
// returned to the caller together with the client, which keeps reconnecting
// lazily on later commands.
func NewClient(ctx context.Context, cfg confs.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return client, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// WriteRecord refreshes every cache structure for one accepted record in a
// single pipelined round trip. The commands are not transactional.
func (c *RedisCache) WriteRecord(ctx context.Context, rec *entities.CanonicalRecord) error {
	fields := rec.Flatten()
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = etl.TimestampOrReceipt(fields["timestamp"], c.now())
		fields["timestamp"] = ts.UTC().Format(time.RFC3339Nano)
	}

	entry, err := json.Marshal(HistoryEntry{Timestamp: fields["timestamp"], Data: fields})
	if err != nil {
		return errs.Invalid("cache write", fmt.Errorf("encode history entry: %w", err))
	}

	hash := make(map[string]any, len(fields))
	for k, v := range fields {
		hash[k] = v
	}

	deviceKey := DeviceKey(rec.DeviceName)
	historyKey := HistoryKey(rec.Kind, rec.DeviceName)
	activeKey := ActiveKey(rec.Kind)

	pipe := c.client.Pipeline()
	pipe.Del(ctx, deviceKey)
	pipe.HSet(ctx, deviceKey, hash)
	pipe.Expire(ctx, deviceKey, c.cfg.DeviceTTL)

	pipe.LPush(ctx, historyKey, entry)
	pipe.LTrim(ctx, historyKey, 0, int64(c.cfg.HistoryCap-1))
	pipe.Expire(ctx, historyKey, c.cfg.HistoryTTL)

	pipe.SAdd(ctx, activeKey, rec.DeviceName)
	pipe.Expire(ctx, activeKey, c.cfg.ActiveTTL)

	if rec.Kind == c.ranking {
		if score, ok := rec.PrimaryMetric(); ok {
			pipe.ZAdd(ctx, DashboardKey(rec.Kind), redis.Z{Score: score, Member: rec.DeviceName})
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Transient("cache write", fmt.Errorf("device %s: %w", rec.DeviceName, err))
	}
	return nil
}

// WriteAlert overwrites the latest alert of its type for the device.
func (c *RedisCache) WriteAlert(ctx context.Context, alert entities.Alert) error {
	key := AlertKey(alert.DeviceName, alert.AlertType)
	ts := alert.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}

	pipe := c.client.Pipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		"message":        alert.Message,
		"severity":       string(alert.Severity),
		"timestamp":      ts.UTC().Format(time.RFC3339Nano),
		"value":          strconv.FormatFloat(alert.Value, 'f', -1, 64),
		"threshold":      strconv.FormatFloat(alert.Threshold, 'f', -1, 64),
		"measurement_id": alert.MeasurementID,
	})
	pipe.Expire(ctx, key, c.cfg.AlertTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Transient("cache alert", fmt.Errorf("%s: %w", key, err))
	}
	return nil
}

func (c *RedisCache) DeviceState(ctx context.Context, name string) (map[string]string, error) {
	return c.client.HGetAll(ctx, DeviceKey(name)).Result()
}

// History returns up to limit entries, newest first. A limit of zero or less
// returns the whole list.
func (c *RedisCache) History(ctx context.Context, kind entities.SensorKind, name string, limit int64) ([]HistoryEntry, error) {
	stop := limit - 1
	if limit <= 0 {
		stop = -1
	}
	raw, err := c.client.LRange(ctx, HistoryKey(kind, name), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]HistoryEntry, 0, len(raw))
	for _, r := range raw {
		var e HistoryEntry
		if err := json.Unmarshal([]byte(r), &e); err != nil {
			c.log.Warn("skipping undecodable history entry", "kind", kind, "device", name, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (c *RedisCache) HistoryLen(ctx context.Context, kind entities.SensorKind, name string) (int64, error) {
	return c.client.LLen(ctx, HistoryKey(kind, name)).Result()
}

func (c *RedisCache) ActiveDevices(ctx context.Context, kind entities.SensorKind) ([]string, error) {
	names, err := c.client.SMembers(ctx, ActiveKey(kind)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// TopDevices returns the n devices with the highest ranking score.
func (c *RedisCache) TopDevices(ctx context.Context, kind entities.SensorKind, n int64) ([]RankedDevice, error) {
	zs, err := c.client.ZRevRangeWithScores(ctx, DashboardKey(kind), 0, n-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]RankedDevice, 0, len(zs))
	for _, z := range zs {
		name, _ := z.Member.(string)
		out = append(out, RankedDevice{DeviceName: name, Score: z.Score})
	}
	return out, nil
}

func (c *RedisCache) LatestAlert(ctx context.Context, name, alertType string) (map[string]string, error) {
	return c.client.HGetAll(ctx, AlertKey(name, alertType)).Result()
}
