package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agenticaivc/intentgraph/internal/config"
)

// RateLimitStore is a sliding-window counter keyed by bucket id. Increment
// bumps the current one-second sub-bucket and returns the sum across every
// sub-bucket still inside window.
type RateLimitStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
	Close() error
}

// MemoryRateLimitStore is the single-process fallback: an in-memory
// per-second bucket map bounded by maxKeys, absorbing short shared-store
// outages (spec.md §4.8's "in-process fallback bucket").
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]map[int64]int64
	maxKeys int
}

// NewMemoryRateLimitStore constructs a bounded in-memory store.
func NewMemoryRateLimitStore(maxKeys int) *MemoryRateLimitStore {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	return &MemoryRateLimitStore{buckets: make(map[string]map[int64]int64), maxKeys: maxKeys}
}

func (m *MemoryRateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().Unix()
	sub, ok := m.buckets[key]
	if !ok {
		if len(m.buckets) >= m.maxKeys {
			m.evictOneLocked()
		}
		sub = make(map[int64]int64)
		m.buckets[key] = sub
	}

	sub[now]++

	windowStart := now - int64(window.Seconds())
	var total int64
	for sec, count := range sub {
		if sec <= windowStart {
			delete(sub, sec)
			continue
		}
		total += count
	}
	return total, nil
}

func (m *MemoryRateLimitStore) evictOneLocked() {
	for k := range m.buckets {
		delete(m.buckets, k)
		return
	}
}

func (m *MemoryRateLimitStore) Close() error { return nil }

// RedisRateLimitStore keeps a shared Redis counter per one-second
// sub-bucket: the current sub-bucket is bumped with INCR+EXPIRE in one
// transaction pipeline, then the window is summed with a separate MGET.
type RedisRateLimitStore struct {
	client *redis.Client
}

// NewRedisRateLimitStore constructs a RedisRateLimitStore from RedisConfig.
func NewRedisRateLimitStore(cfg config.RedisConfig) (*RedisRateLimitStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.PoolSize = cfg.PoolSize
	return &RedisRateLimitStore{client: redis.NewClient(opts)}, nil
}

func (r *RedisRateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now().Unix()
	subKey := fmt.Sprintf("%s:%d", key, now)

	pipe := r.client.TxPipeline()
	pipe.Incr(ctx, subKey)
	pipe.Expire(ctx, subKey, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	windowSeconds := int64(window.Seconds())
	keys := make([]string, 0, windowSeconds)
	for s := now - windowSeconds + 1; s <= now; s++ {
		keys = append(keys, fmt.Sprintf("%s:%d", key, s))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, v := range values {
		if v == nil {
			continue
		}
		s, _ := v.(string)
		n, _ := strconv.ParseInt(s, 10, 64)
		total += n
	}
	return total, nil
}

func (r *RedisRateLimitStore) Close() error { return r.client.Close() }

// RateLimitConfig is the rate_limit guard declaration's type-specific
// config blob (spec.md §4.8).
type RateLimitConfig struct {
	MaxRequests   int64
	WindowSeconds int64
	BurstLimit    int64
	BypassRoles   []string
}

// RateLimitGuard implements the sliding-window rate-limit decision.
type RateLimitGuard struct {
	name         string
	cfg          RateLimitConfig
	primary      RateLimitStore
	fallback     RateLimitStore
	failMode     string
	downSince    time.Time
	downTimeout  time.Duration
	trustedProxies map[string]bool
	ipv6PrefixBits int

	mu sync.Mutex
}

// NewRateLimitGuard constructs a RateLimitGuard. primary is typically a
// RedisRateLimitStore; fallback is a MemoryRateLimitStore absorbing short
// primary outages.
func NewRateLimitGuard(name string, cfg RateLimitConfig, primary, fallback RateLimitStore, opConf config.RateLimitConfig) *RateLimitGuard {
	trusted := make(map[string]bool, len(opConf.TrustedProxies))
	for _, p := range opConf.TrustedProxies {
		trusted[p] = true
	}
	return &RateLimitGuard{
		name:           name,
		cfg:            cfg,
		primary:        primary,
		fallback:       fallback,
		failMode:       opConf.FailMode,
		downTimeout:    opConf.StoreDownTimeout,
		trustedProxies: trusted,
		ipv6PrefixBits: opConf.IPv6PrefixBits,
	}
}

func (g *RateLimitGuard) Name() string { return g.name }

func (g *RateLimitGuard) Init(ctx context.Context) error { return nil }

func (g *RateLimitGuard) Validate(ctx context.Context, in Input) (Result, error) {
	return Result{Status: StatusSuccess}, nil
}

func (g *RateLimitGuard) Execute(ctx context.Context, in Input) (Result, error) {
	for _, role := range in.User.Roles {
		for _, bypass := range g.cfg.BypassRoles {
			if role == bypass {
				return Result{Status: StatusSuccess}, nil
			}
		}
	}

	key := g.buildKey(in)
	window := time.Duration(g.cfg.WindowSeconds) * time.Second

	count, err := g.primary.Increment(ctx, key, window)
	if err != nil {
		return g.handleStoreError(ctx, key, window, err)
	}
	g.mu.Lock()
	g.downSince = time.Time{}
	g.mu.Unlock()

	if count > g.cfg.MaxRequests {
		return Result{
			Status:       StatusBlock,
			Message:      "rate limit exceeded",
			RetryAfterMs: g.cfg.WindowSeconds * 1000,
		}, nil
	}
	return Result{Status: StatusSuccess}, nil
}

func (g *RateLimitGuard) handleStoreError(ctx context.Context, key string, window time.Duration, storeErr error) (Result, error) {
	g.mu.Lock()
	if g.downSince.IsZero() {
		g.downSince = time.Now()
	}
	downFor := time.Since(g.downSince)
	g.mu.Unlock()

	// fail_strict blocks once the store has been down longer than
	// downTimeout; before that, and always in fail_open mode, the
	// in-process fallback bucket absorbs the outage.
	if g.failMode == "fail_strict" && downFor > g.downTimeout {
		return Result{Status: StatusBlock, Message: "rate limit store unavailable", RetryAfterMs: 30000}, nil
	}

	if g.fallback != nil {
		if count, err := g.fallback.Increment(ctx, key, window); err == nil {
			if count > g.cfg.MaxRequests {
				return Result{Status: StatusBlock, Message: "rate limit exceeded (fallback)", RetryAfterMs: g.cfg.WindowSeconds * 1000}, nil
			}
			return Result{Status: StatusWarn, Message: "rate limit store unavailable, using fallback bucket"}, nil
		}
	}

	return Result{Status: StatusWarn, Message: "rate limit store unavailable: " + storeErr.Error()}, nil
}

func (g *RateLimitGuard) buildKey(in Input) string {
	method, _ := in.Parameters["method"].(string)
	path, _ := in.Parameters["path"].(string)
	pathHash := hashValue(path)

	if in.User.ID != "" {
		return fmt.Sprintf("rl:user:%s:%s:%s", hashValue(in.User.ID), method, pathHash)
	}

	ip, _ := in.Parameters["ip"].(string)
	ip = g.resolveClientIP(ip, in.Parameters)
	return fmt.Sprintf("rl:ip:%s:%s:%s", g.bucketIP(ip), method, pathHash)
}

// resolveClientIP honors X-Forwarded-For only when the direct peer is a
// trusted proxy, taking the left-most (original client) entry, capped in
// chain length.
func (g *RateLimitGuard) resolveClientIP(directIP string, params map[string]any) string {
	if !g.trustedProxies[directIP] {
		return directIP
	}
	forwarded, _ := params["x_forwarded_for"].(string)
	if forwarded == "" {
		return directIP
	}
	chain := strings.Split(forwarded, ",")
	if len(chain) > 10 {
		chain = chain[len(chain)-10:]
	}
	return strings.TrimSpace(chain[0])
}

// bucketIP truncates an IPv6 address to the configured CIDR prefix so
// distinct addresses in one allocation share a bucket; IPv4 is used
// as-is.
func (g *RateLimitGuard) bucketIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() != nil {
		return ip
	}
	mask := net.CIDRMask(g.ipv6PrefixBits, 128)
	return parsed.Mask(mask).String()
}

func hashValue(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

func (g *RateLimitGuard) Cleanup(ctx context.Context) error {
	if g.primary != nil {
		return g.primary.Close()
	}
	return nil
}
