package session

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/careportal/careportal/internal/shared"
)

// Record is the server-side view of an authenticated session.
type Record struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	RefreshHash string    `json:"refresh_hash"`
	RemoteAddr  string    `json:"remote_addr,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Store keeps session records, refresh credential hashes and the server
// mirror of the activity marker in Redis.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	idle   time.Duration
}

// touchScript advances the activity mirror only forward in time.
var touchScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local candidate = tonumber(ARGV[1])
if candidate > current then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
  return candidate
end
return current
`)

// NewStore constructs a Store. ttl bounds the session record (the refresh
// credential lifetime); idle bounds the activity mirror.
func NewStore(client *redis.Client, ttl, idle time.Duration) *Store {
	return &Store{client: client, ttl: ttl, idle: idle}
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// HashRefresh returns the stored fingerprint of a refresh credential.
func HashRefresh(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create persists rec.
func (s *Store) Create(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		return errors.New("session: record id required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, recordKey(rec.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

// Get loads a session record. A missing record yields shared.ErrSessionRevoked.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, shared.ErrSessionRevoked
	}
	payload, err := s.client.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, shared.ErrSessionRevoked
		}
		return Record{}, fmt.Errorf("session: get: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, fmt.Errorf("session: decode: %w", err)
	}
	return rec, nil
}

// Active reports whether the session has not been revoked or expired.
func (s *Store) Active(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	n, err := s.client.Exists(ctx, recordKey(id)).Result()
	if err != nil {
		return false, fmt.Errorf("session: exists: %w", err)
	}
	return n > 0, nil
}

// Rotate swaps the refresh credential of a session. A presented credential
// that does not match the stored hash is treated as replay: the session is
// revoked and shared.ErrSessionRevoked returned.
func (s *Store) Rotate(ctx context.Context, id, presented, next string, now time.Time) (Record, error) {
	var rotated Record
	key := recordKey(id)
	txf := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return shared.ErrSessionRevoked
			}
			return err
		}
		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return err
		}
		if subtle.ConstantTimeCompare([]byte(rec.RefreshHash), []byte(HashRefresh(presented))) != 1 {
			return errRefreshReplay
		}
		rec.RefreshHash = HashRefresh(next)
		rec.RefreshedAt = now.UTC()
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		rotated = rec
		return err
	}
	err := s.client.Watch(ctx, txf, key)
	switch {
	case err == nil:
		return rotated, nil
	case errors.Is(err, errRefreshReplay):
		if revokeErr := s.Revoke(ctx, id); revokeErr != nil {
			return Record{}, revokeErr
		}
		return Record{}, shared.ErrSessionRevoked
	case errors.Is(err, shared.ErrSessionRevoked):
		return Record{}, err
	case errors.Is(err, redis.TxFailedErr):
		return Record{}, fmt.Errorf("session: concurrent rotation: %w", shared.ErrSessionRevoked)
	default:
		return Record{}, fmt.Errorf("session: rotate: %w", err)
	}
}

// Revoke deletes the session record and its activity mirror. Revoking an
// unknown session is not an error.
func (s *Store) Revoke(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, recordKey(id), activityKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: revoke: %w", err)
	}
	return nil
}

// Touch advances the activity mirror of a session to at. Older timestamps
// never overwrite newer ones.
func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	if id == "" {
		return nil
	}
	ms := at.UnixMilli()
	err := touchScript.Run(ctx, s.client, []string{activityKey(id)}, ms, s.idle.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("session: touch: %w", err)
	}
	return nil
}

// LastActivity returns the mirrored activity marker.
func (s *Store) LastActivity(ctx context.Context, id string) (time.Time, bool, error) {
	if id == "" {
		return time.Time{}, false, nil
	}
	raw, err := s.client.Get(ctx, activityKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("session: last activity: %w", err)
	}
	at, ok := ParseMarker(raw)
	return at, ok, nil
}

// ClearActivity drops the activity mirror.
func (s *Store) ClearActivity(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, activityKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: clear activity: %w", err)
	}
	return nil
}

var errRefreshReplay = errors.New("session: refresh credential replayed")

func recordKey(id string) string {
	return "session:" + id
}

func activityKey(id string) string {
	return "session:" + id + ":activity"
}
