package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/room4-2/bookingline/config"
	"github.com/room4-2/bookingline/logger"
)

const activeCallsKey = "active_calls"

func hashKey(id string) string     { return "session:" + id }
func snapshotKey(id string) string { return "session:" + id + ":snapshot" }

// Options tune the registry.
type Options struct {
	MaxSessions int
	Timeout     time.Duration // idle time after which a session is evicted
}

// EvictFunc is called, outside the registry lock, for every session evicted
// because it went idle.
type EvictFunc func(ctx context.Context, cs *CallSession)

// Manager is the registry of live calls. Sessions live in memory and are
// mirrored to Redis so another instance can pick a call up.
type Manager struct {
	sessions map[string]*CallSession
	mu       sync.RWMutex
	redis    *redis.Client
	opts     Options
	log      *zap.Logger

	onEvict EvictFunc
}

// NewManager creates a session manager with Redis connection
func NewManager(cfg *config.Config, log *zap.Logger) (*Manager, error) {
	// Try to connect to Redis, but don't fail if unavailable
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		if log != nil {
			log.Warn("⚠️ Redis unavailable, sessions kept in memory only", zap.String("addr", cfg.RedisURL), zap.Error(err))
		}
		_ = redisClient.Close()
		redisClient = nil
	}

	return NewManagerWithRedis(Options{
		MaxSessions: cfg.MaxSessions,
		Timeout:     cfg.SessionTimeout,
	}, redisClient, log), nil
}

// NewManagerWithRedis creates a manager over an existing client. A nil
// client keeps sessions in memory only.
func NewManagerWithRedis(opts Options, rdb *redis.Client, log *zap.Logger) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*CallSession),
		redis:    rdb,
		opts:     opts,
		log:      log,
	}
}

// OnEvict registers the hook run for idle sessions.
func (sm *Manager) OnEvict(fn EvictFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onEvict = fn
}

// Create registers a new call. A call id that is already registered is
// replaced, since providers retry the start webhook with the same id.
func (sm *Manager) Create(ctx context.Context, callID, caller string) (*CallSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sessions[callID]; !exists && len(sm.sessions) >= sm.opts.MaxSessions {
		return nil, ErrMaxSessions
	}

	cs := NewCallSession(callID, caller)
	sm.sessions[callID] = cs
	sm.mirror(ctx, cs)

	sm.log.Info("✅ Session created", zap.String("call_id", logger.ShortID(callID)), zap.Int("active", len(sm.sessions)))
	return cs, nil
}

// Get returns a live session. When the call is not in memory it is restored
// from the Redis snapshot, if one exists.
func (sm *Manager) Get(ctx context.Context, callID string) (*CallSession, error) {
	sm.mu.RLock()
	cs, ok := sm.sessions[callID]
	sm.mu.RUnlock()
	if ok {
		return cs, nil
	}

	if sm.redis == nil {
		return nil, ErrSessionNotFound
	}

	raw, err := sm.redis.Get(ctx, snapshotKey(callID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session snapshot: %w", err)
	}

	var snap Snapshot
	if err := sonic.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	// another request may have restored it meanwhile
	if cs, ok := sm.sessions[callID]; ok {
		return cs, nil
	}
	cs = FromSnapshot(snap)
	sm.sessions[callID] = cs

	sm.log.Info("♻️ Session restored from Redis", zap.String("call_id", logger.ShortID(callID)))
	return cs, nil
}

// Save refreshes the Redis mirror of a session.
func (sm *Manager) Save(ctx context.Context, cs *CallSession) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if _, ok := sm.sessions[cs.ID]; !ok {
		return
	}
	sm.mirror(ctx, cs)
}

// mirror writes the session to Redis. Caller holds sm.mu.
func (sm *Manager) mirror(ctx context.Context, cs *CallSession) {
	if sm.redis == nil {
		return
	}

	snap := cs.Snapshot()
	data, err := sonic.Marshal(snap)
	if err != nil {
		sm.log.Error("❌ Failed to encode session snapshot", zap.String("call_id", logger.ShortID(cs.ID)), zap.Error(err))
		return
	}

	_, err = sm.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey(cs.ID), map[string]interface{}{
			"caller":        snap.Caller,
			"phone":         snap.Phone,
			"stage":         string(snap.Stage),
			"turns":         len(snap.Turns),
			"created_at":    snap.CreatedAt.Format(time.RFC3339),
			"last_activity": snap.LastActivity.Format(time.RFC3339),
		})
		pipe.Expire(ctx, hashKey(cs.ID), sm.opts.Timeout)
		pipe.Set(ctx, snapshotKey(cs.ID), data, sm.opts.Timeout)
		pipe.SAdd(ctx, activeCallsKey, cs.ID)
		return nil
	})
	if err != nil {
		sm.log.Warn("⚠️ Failed to mirror session to Redis", zap.String("call_id", logger.ShortID(cs.ID)), zap.Error(err))
	}
}

// Remove closes and unregisters a session. Unknown ids are ignored.
func (sm *Manager) Remove(ctx context.Context, callID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if cs, ok := sm.sessions[callID]; ok {
		cs.Close()
		delete(sm.sessions, callID)
	}
	sm.forget(ctx, callID)
}

func (sm *Manager) forget(ctx context.Context, callID string) {
	if sm.redis == nil {
		return
	}
	if err := sm.redis.Del(ctx, hashKey(callID), snapshotKey(callID)).Err(); err != nil {
		sm.log.Warn("⚠️ Failed to delete session from Redis", zap.String("call_id", logger.ShortID(callID)), zap.Error(err))
	}
	sm.redis.SRem(ctx, activeCallsKey, callID)
}

// Count returns current session count
func (sm *Manager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CallSummary is a per-call line of the stats endpoint.
type CallSummary struct {
	CallID    string    `json:"call_id"`
	Phone     string    `json:"phone,omitempty"`
	Stage     Stage     `json:"stage"`
	Turns     int       `json:"turns"`
	StartedAt time.Time `json:"started_at"`
}

// Summaries lists live calls, oldest first.
func (sm *Manager) Summaries() []CallSummary {
	sm.mu.RLock()
	out := make([]CallSummary, 0, len(sm.sessions))
	for _, cs := range sm.sessions {
		out = append(out, CallSummary{
			CallID:    cs.ID,
			Phone:     cs.Phone(),
			Stage:     cs.Stage(),
			Turns:     cs.HistoryLen(),
			StartedAt: cs.CreatedAt,
		})
	}
	sm.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// CleanupInactive evicts sessions idle for longer than the timeout and
// returns how many were evicted.
func (sm *Manager) CleanupInactive(ctx context.Context) int {
	sm.mu.Lock()
	now := time.Now()
	var evicted []*CallSession
	for id, cs := range sm.sessions {
		if now.Sub(cs.LastActivity()) > sm.opts.Timeout {
			delete(sm.sessions, id)
			sm.forget(ctx, id)
			evicted = append(evicted, cs)
		}
	}
	hook := sm.onEvict
	sm.mu.Unlock()

	for _, cs := range evicted {
		sm.log.Info("🧹 Evicting idle session", zap.String("call_id", logger.ShortID(cs.ID)))
		if hook != nil {
			hook(ctx, cs)
		}
		cs.Close()
	}
	return len(evicted)
}

// StartCleanupRoutine starts periodic cleanup of inactive sessions
func (sm *Manager) StartCleanupRoutine(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.CleanupInactive(ctx)
		}
	}
}

// Shutdown closes all sessions. The Redis mirror is left in place so calls
// survive a restart.
func (sm *Manager) Shutdown() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for id, cs := range sm.sessions {
		cs.Close()
		delete(sm.sessions, id)
	}

	if sm.redis != nil {
		sm.redis.Close()
	}
}
