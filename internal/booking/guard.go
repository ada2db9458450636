package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/carebook/pkg/logging"
)

// ErrSubmissionInFlight means the patient already has a booking attempt running.
var ErrSubmissionInFlight = errors.New("booking: submission already in flight")

const submitLockKeyPrefix = "booking_submit:"

// SubmissionGuard serializes booking attempts per patient. Acquire returns a
// release func that must be called once the attempt reaches a result.
type SubmissionGuard interface {
	Acquire(ctx context.Context, patientID string) (release func(), err error)
}

// releaseScript deletes the lock only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSubmissionGuard holds a SET NX PX lock per patient so that double
// submits are refused across API replicas. The TTL bounds how long a crashed
// holder blocks the patient.
type RedisSubmissionGuard struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewRedisSubmissionGuard returns nil when client is nil.
func NewRedisSubmissionGuard(client *redis.Client, ttl time.Duration, logger *logging.Logger) *RedisSubmissionGuard {
	if client == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisSubmissionGuard{redis: client, ttl: ttl, logger: logger}
}

func (g *RedisSubmissionGuard) Acquire(ctx context.Context, patientID string) (func(), error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return func() {}, nil
	}
	key := submitLockKeyPrefix + patientID
	token := uuid.NewString()

	ok, err := g.redis.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("booking: acquire submit lock: %w", err)
	}
	if !ok {
		return nil, ErrSubmissionInFlight
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done when the attempt ends.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, g.redis, []string{key}, token).Err(); err != nil {
				g.logger.Warn("failed to release submit lock", "error", err, "patient_id", patientID)
			}
		})
	}, nil
}

// MemorySubmissionGuard is the single-process fallback when Redis is absent.
type MemorySubmissionGuard struct {
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewMemorySubmissionGuard() *MemorySubmissionGuard {
	return &MemorySubmissionGuard{inFlight: make(map[string]struct{})}
}

func (g *MemorySubmissionGuard) Acquire(_ context.Context, patientID string) (func(), error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return func() {}, nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[patientID]; busy {
		return nil, ErrSubmissionInFlight
	}
	g.inFlight[patientID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inFlight, patientID)
			g.mu.Unlock()
		})
	}, nil
}
