package hooks

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bromq-dev/fixhdr/pkg/inspect"
)

// StreamClient is the subset of *redis.Client used by RedisHook.
type StreamClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	Close() error
}

// RedisHook publishes inspection records to Redis/Valkey.
// Features:
//   - Every record is appended to a capped stream as msgpack
//   - Per-type and per-error-kind counters kept in a hash
type RedisHook struct {
	inspect.HookBase
	client   StreamClient
	owned    bool
	stream   string
	counters string
	maxLen   int64
	timeout  time.Duration
}

// RedisConfig configures the Redis hook.
type RedisConfig struct {
	// Addr is the Redis server address (default: "localhost:6379").
	Addr string

	// Password for Redis authentication (optional).
	Password string

	// DB is the Redis database number (default: 0).
	DB int

	// KeyPrefix is prepended to all Redis keys (default: "fixhdr:").
	KeyPrefix string

	// MaxLen caps the stream length, trimmed approximately (default: 100000).
	MaxLen int64

	// Timeout bounds every Redis call (default: 2s).
	Timeout time.Duration

	// Client allows providing a pre-configured Redis client.
	// If set, Addr/Password/DB are ignored and Stop does not close it.
	Client StreamClient
}

// Stream field names.
const (
	RedisFieldRecord = "rec"
	RedisFieldType   = "type"
	RedisFieldKind   = "kind"
)

func (h *RedisHook) ID() string { return "redis" }

// Init connects to Redis.
func (h *RedisHook) Init(opts *inspect.HookOptions, config any) error {
	if err := h.HookBase.Init(opts, config); err != nil {
		return err
	}

	cfg := &RedisConfig{}
	if c, ok := config.(*RedisConfig); ok && c != nil {
		cfg = c
	}

	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "fixhdr:"
	}
	if cfg.MaxLen == 0 {
		cfg.MaxLen = 100000
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}

	h.stream = cfg.KeyPrefix + "headers"
	h.counters = cfg.KeyPrefix + "counters"
	h.maxLen = cfg.MaxLen
	h.timeout = cfg.Timeout

	if cfg.Client != nil {
		h.client = cfg.Client
	} else {
		h.client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		h.owned = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.client.Ping(ctx).Err(); err != nil {
		if h.owned {
			_ = h.client.Close()
		}
		return err
	}

	h.Log.Info("redis hook initialized",
		"addr", cfg.Addr,
		"stream", h.stream,
		"max_len", h.maxLen,
	)
	return nil
}

// Stop closes the Redis connection if the hook opened it.
func (h *RedisHook) Stop() error {
	if h.client != nil && h.owned {
		return h.client.Close()
	}
	return nil
}

func (h *RedisHook) OnHeader(ctx context.Context, rec *inspect.Record) {
	h.append(ctx, rec, "type:"+rec.Type.String())
}

func (h *RedisHook) OnReject(ctx context.Context, rec *inspect.Record, err error) {
	h.append(ctx, rec, "kind:"+rec.ErrKind)
}

// append writes rec to the stream. Failures are logged, never propagated.
func (h *RedisHook) append(ctx context.Context, rec *inspect.Record, counter string) {
	data, err := msgpack.Marshal(rec)
	if err != nil {
		h.fail("encode record", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.timeout)
	defer cancel()

	err = h.client.XAdd(ctx, &redis.XAddArgs{
		Stream: h.stream,
		MaxLen: h.maxLen,
		Approx: true,
		Values: map[string]any{
			RedisFieldType:   rec.Type.String(),
			RedisFieldKind:   rec.ErrKind,
			RedisFieldRecord: data,
		},
	}).Err()
	if err != nil {
		h.fail("xadd", err)
		return
	}

	if err := h.client.HIncrBy(ctx, h.counters, counter, 1).Err(); err != nil {
		h.fail("hincrby", err)
	}
}

func (h *RedisHook) fail(op string, err error) {
	h.Log.Warn("redis hook error", "op", op, "error", err)
}

// DecodeStreamRecord decodes the record field of a stream entry.
func DecodeStreamRecord(values map[string]any) (*inspect.Record, error) {
	var data []byte
	switch v := values[RedisFieldRecord].(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, errors.New("stream entry has no record field")
	}
	rec := &inspect.Record{}
	if err := msgpack.Unmarshal(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}
