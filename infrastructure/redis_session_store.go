package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"colorgame/domain/entities"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	sessionKeyPrefix    = "PL:"
	membershipKeyPrefix = "RM:"
	bindingKeyPrefix    = "PS:"

	membershipTTL = 24 * time.Hour
	maxTxRetries  = 5
)

// RedisSessionStore keeps sessions, room membership and the
// player-to-session binding in redis
type RedisSessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisSessionStore creates a session store; ttl applies to sessions and bindings
func NewRedisSessionStore(rdb *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func membershipKey(p entities.PlayerKey) string {
	return membershipKeyPrefix + p.String()
}

func bindingKey(p entities.PlayerKey) string {
	return bindingKeyPrefix + p.String()
}

func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*entities.PlayerSession, error) {
	data, err := s.rdb.Get(ctx, sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, entities.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess entities.PlayerSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, session *entities.PlayerSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(session.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// AdjustBalance updates the cached balance with optimistic locking so
// concurrent bets and payouts never overwrite each other.
func (s *RedisSessionStore) AdjustBalance(ctx context.Context, sessionID string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.update(ctx, sessionID, func(sess *entities.PlayerSession) {
		sess.Balance = sess.Balance.Add(delta)
		balance = sess.Balance
	})
	if err != nil {
		if errors.Is(err, entities.ErrSessionNotFound) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("failed to adjust balance: %w", err)
	}
	return balance, nil
}

// SetRoom changes only the session's room; the balance is never rewritten
func (s *RedisSessionStore) SetRoom(ctx context.Context, sessionID string, roomID int) error {
	err := s.update(ctx, sessionID, func(sess *entities.PlayerSession) {
		sess.RoomID = roomID
	})
	if err != nil {
		if errors.Is(err, entities.ErrSessionNotFound) {
			return err
		}
		return fmt.Errorf("failed to set room: %w", err)
	}
	return nil
}

// update applies fn to the stored session under WATCH, keeping its TTL
func (s *RedisSessionStore) update(ctx context.Context, sessionID string, fn func(sess *entities.PlayerSession)) error {
	key := sessionKey(sessionID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return entities.ErrSessionNotFound
		}
		if err != nil {
			return err
		}

		var sess entities.PlayerSession
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("failed to decode session: %w", err)
		}
		// Apply the change to the freshly read copy
		fn(&sess)

		updated, err := json.Marshal(&sess)
		if err != nil {
			return fmt.Errorf("failed to encode session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, updated, redis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}

	return s.watch(ctx, txf, key)
}

func (s *RedisSessionStore) ClaimRoom(ctx context.Context, player entities.PlayerKey, roomID int) error {
	key := membershipKey(player)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Int()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		// Re-claiming the held room is allowed
		if err == nil && current != 0 && current != roomID {
			return fmt.Errorf("%w: room %d", entities.ErrAlreadyInRoom, current)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, strconv.Itoa(roomID), membershipTTL)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txf, key); err != nil {
		if errors.Is(err, entities.ErrAlreadyInRoom) {
			return err
		}
		return fmt.Errorf("failed to claim room: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) ReleaseRoom(ctx context.Context, player entities.PlayerKey, roomID int) error {
	key := membershipKey(player)

	txf := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Int()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		// The player already moved on
		if current != roomID {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}

	if err := s.watch(ctx, txf, key); err != nil {
		return fmt.Errorf("failed to release room: %w", err)
	}
	return nil
}

func (s *RedisSessionStore) CurrentRoom(ctx context.Context, player entities.PlayerKey) (int, error) {
	roomID, err := s.rdb.Get(ctx, membershipKey(player)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read room membership: %w", err)
	}
	return roomID, nil
}

func (s *RedisSessionStore) BindPlayer(ctx context.Context, player entities.PlayerKey, sessionID string) (string, error) {
	previous, err := s.rdb.SetArgs(ctx, bindingKey(player), sessionID, redis.SetArgs{Get: true, TTL: s.ttl}).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to bind player session: %w", err)
	}
	return previous, nil
}

func (s *RedisSessionStore) PlayerSessionID(ctx context.Context, player entities.PlayerKey) (string, error) {
	sessionID, err := s.rdb.Get(ctx, bindingKey(player)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read player session: %w", err)
	}
	return sessionID, nil
}

// watch runs txf under WATCH, retrying when another client touched the key
func (s *RedisSessionStore) watch(ctx context.Context, txf func(*redis.Tx) error, key string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		// Another writer touched the key, retry
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("key %s kept changing after %d attempts", key, maxTxRetries)
}
