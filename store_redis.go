package session

import (
	"context"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the access token in Redis, shared by every process that
// opens the same profile. Combined with WatchInvalidations it closes the
// cross-tab gap: one tab's logout reaches the others.
type RedisStore struct {
	client  *redis.Client
	profile string
	logger  Logger
}

var _ CredentialStore = (*RedisStore)(nil)

// RedisStoreOption customizes RedisStore construction.
type RedisStoreOption func(*RedisStore)

// WithRedisLogger overrides the logger.
func WithRedisLogger(logger Logger) RedisStoreOption {
	return func(s *RedisStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewRedisStore returns a store scoped to the given profile identifier.
func NewRedisStore(client *redis.Client, profile string, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:  client,
		profile: profile,
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *RedisStore) key() string {
	return fmt.Sprintf("session:%s:%s", s.profile, DefaultStorageKey)
}

func (s *RedisStore) channel() string {
	return fmt.Sprintf("session:%s:invalidate", s.profile)
}

func (s *RedisStore) Get(ctx context.Context) (string, error) {
	token, err := s.client.Get(ctx, s.key()).Result()
	if err == redis.Nil {
		return "", ErrStoreMiss
	}
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "could not read stored credential")
	}
	return token, nil
}

func (s *RedisStore) Set(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, s.key(), token, 0).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not persist credential")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key()).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not clear credential")
	}

	// Best effort broadcast so other attached managers drop their session.
	if err := s.client.Publish(ctx, s.channel(), "logout").Err(); err != nil {
		s.logger.Warn("redis store invalidation publish failed: %v", err)
	}

	return nil
}

// WatchInvalidations subscribes to logout broadcasts for this profile and
// logs the given manager out when one lands. Blocks until ctx is done.
func (s *RedisStore) WatchInvalidations(ctx context.Context, manager SessionManager) error {
	sub := s.client.Subscribe(ctx, s.channel())
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			if msg.Payload != "logout" {
				continue
			}

			state := manager.Snapshot()
			if !state.IsAuthenticated {
				continue
			}

			s.logger.Info("session invalidation received for profile %s", s.profile)
			if err := manager.Logout(ctx); err != nil {
				s.logger.Error("broadcast logout failed: %v", err)
			}
		}
	}
}
