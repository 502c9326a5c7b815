package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"tour-booking/internal/data/entity"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Reasons a request ends up in the dead-letter store.
const (
	ReasonExhausted      = "exhausted"
	ReasonQueueFull      = "queue_full"
	ReasonShutdown       = "shutdown"
	ReasonBookingMissing = "booking_missing"
)

var ErrDeadLetterNotFound = errors.New("dead letter not found")

// DeadLetter is a notification the dispatcher gave up on. It is kept for
// inspection and manual resend.
type DeadLetter struct {
	ID        uuid.UUID       `json:"id"`
	BookingID uuid.UUID       `json:"booking_id"`
	Kind      entity.EdgeKind `json:"kind"`
	Reason    string          `json:"reason"`
	Error     string          `json:"error,omitempty"`
	Attempts  int             `json:"attempts"`
	FailedAt  time.Time       `json:"failed_at"`
}

type DeadLetterStore interface {
	Put(ctx context.Context, dl DeadLetter) error
	// List returns the newest dead letters first.
	List(ctx context.Context, limit int) ([]DeadLetter, error)
	// Take removes and returns one dead letter.
	Take(ctx context.Context, id uuid.UUID) (*DeadLetter, error)
}

// ==================== REDIS ====================

const (
	deadLetterHashKey  = "notify:dead_letters"
	deadLetterIndexKey = "notify:dead_letters:by_time"
)

type redisDeadLetterStore struct {
	client redis.Cmdable
}

func NewRedisDeadLetterStore(client redis.Cmdable) DeadLetterStore {
	return &redisDeadLetterStore{client: client}
}

func (s *redisDeadLetterStore) Put(ctx context.Context, dl DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter %s: %w", dl.ID, err)
	}

	id := dl.ID.String()
	if err := s.client.HSet(ctx, deadLetterHashKey, id, data).Err(); err != nil {
		return fmt.Errorf("store dead letter %s: %w", id, err)
	}
	if err := s.client.ZAdd(ctx, deadLetterIndexKey, redis.Z{
		Score:  float64(dl.FailedAt.Unix()),
		Member: id,
	}).Err(); err != nil {
		return fmt.Errorf("index dead letter %s: %w", id, err)
	}
	return nil
}

func (s *redisDeadLetterStore) List(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := s.client.ZRevRange(ctx, deadLetterIndexKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	if len(ids) == 0 {
		return []DeadLetter{}, nil
	}

	values, err := s.client.HMGet(ctx, deadLetterHashKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load dead letters: %w", err)
	}

	out := make([]DeadLetter, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var dl DeadLetter
		if err := json.Unmarshal([]byte(raw), &dl); err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

func (s *redisDeadLetterStore) Take(ctx context.Context, id uuid.UUID) (*DeadLetter, error) {
	key := id.String()

	raw, err := s.client.HGet(ctx, deadLetterHashKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("take %s: %w", key, ErrDeadLetterNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("take dead letter %s: %w", key, err)
	}

	var dl DeadLetter
	if err := json.Unmarshal([]byte(raw), &dl); err != nil {
		return nil, fmt.Errorf("decode dead letter %s: %w", key, err)
	}

	// HDEL is the claim: of two concurrent takes only one removes the field.
	removed, err := s.client.HDel(ctx, deadLetterHashKey, key).Result()
	if err != nil {
		return nil, fmt.Errorf("remove dead letter %s: %w", key, err)
	}
	if removed == 0 {
		return nil, fmt.Errorf("take %s: %w", key, ErrDeadLetterNotFound)
	}
	if err := s.client.ZRem(ctx, deadLetterIndexKey, key).Err(); err != nil {
		return nil, fmt.Errorf("unindex dead letter %s: %w", key, err)
	}
	return &dl, nil
}

// ==================== MEMORY ====================

type memoryDeadLetterStore struct {
	mu      sync.Mutex
	letters map[uuid.UUID]DeadLetter
}

func NewMemoryDeadLetterStore() DeadLetterStore {
	return &memoryDeadLetterStore{letters: make(map[uuid.UUID]DeadLetter)}
}

func (s *memoryDeadLetterStore) Put(ctx context.Context, dl DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters[dl.ID] = dl
	return nil
}

func (s *memoryDeadLetterStore) List(ctx context.Context, limit int) ([]DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	out := make([]DeadLetter, 0, len(s.letters))
	for _, dl := range s.letters {
		out = append(out, dl)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].FailedAt.After(out[j].FailedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryDeadLetterStore) Take(ctx context.Context, id uuid.UUID) (*DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dl, ok := s.letters[id]
	if !ok {
		return nil, fmt.Errorf("take %s: %w", id, ErrDeadLetterNotFound)
	}
	delete(s.letters, id)
	return &dl, nil
}
