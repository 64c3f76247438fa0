package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"io"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/nacl/secretbox"
)

// MemoryStore is a process-lifetime credential store, used for ephemeral
// profiles and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
	set   bool
}

var _ CredentialStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return "", ErrStoreMiss
	}
	return s.token, nil
}

func (s *MemoryStore) Set(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.set = true
	return nil
}

func (s *MemoryStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.set = false
	return nil
}

// SealedStore wraps another store and seals the token at rest with
// secretbox. Plaintext storage is the accepted default; sealing is an
// opt-in hardening for shared machines.
type SealedStore struct {
	inner CredentialStore
	key   [32]byte
}

var _ CredentialStore = (*SealedStore)(nil)

// NewSealedStore wraps inner with a 32-byte sealing key.
func NewSealedStore(inner CredentialStore, key []byte) (*SealedStore, error) {
	if inner == nil {
		return nil, goerrors.New("sealed store requires an inner store", goerrors.CategoryBadInput)
	}
	if len(key) != 32 {
		return nil, goerrors.New("sealing key must be exactly 32 bytes", goerrors.CategoryBadInput)
	}

	s := &SealedStore{inner: inner}
	copy(s.key[:], key)
	return s, nil
}

func (s *SealedStore) Get(ctx context.Context) (string, error) {
	sealed, err := s.inner.Get(ctx)
	if err != nil {
		return "", err
	}

	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < 24 {
		return "", goerrors.New("stored credential is not a sealed token", goerrors.CategoryInternal)
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])

	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &s.key)
	if !ok {
		return "", goerrors.New("failed to unseal stored credential", goerrors.CategoryInternal)
	}

	return string(plain), nil
}

func (s *SealedStore) Set(ctx context.Context, token string) error {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate sealing nonce")
	}

	sealed := secretbox.Seal(nonce[:], []byte(token), &nonce, &s.key)
	return s.inner.Set(ctx, base64.RawStdEncoding.EncodeToString(sealed))
}

func (s *SealedStore) Delete(ctx context.Context) error {
	return s.inner.Delete(ctx)
}
