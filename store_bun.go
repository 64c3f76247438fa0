package session

import (
	"context"
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// NewCredentialsRepository builds the repository backing BunStore.
func NewCredentialsRepository(db *bun.DB) repository.Repository[*Credential] {
	handlers := repository.ModelHandlers[*Credential]{
		NewRecord: func() *Credential {
			return &Credential{}
		},
		GetID: func(record *Credential) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Credential, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "profile"
		},
	}
	return repository.NewRepository(db, handlers)
}

// BunStore is a durable credential store over a local SQLite database, the
// per-browser-profile storage of this design. One record per profile.
type BunStore struct {
	db         *bun.DB
	repo       repository.Repository[*Credential]
	profile    string
	storageKey string
}

var _ CredentialStore = (*BunStore)(nil)

// BunStoreOption customizes BunStore construction.
type BunStoreOption func(*BunStore)

// WithBunStorageKey overrides the storage key recorded on credentials.
func WithBunStorageKey(key string) BunStoreOption {
	return func(s *BunStore) {
		if key != "" {
			s.storageKey = key
		}
	}
}

// NewBunStore returns a store scoped to the given profile identifier.
func NewBunStore(db *bun.DB, profile string, opts ...BunStoreOption) *BunStore {
	s := &BunStore{
		db:         db,
		repo:       NewCredentialsRepository(db),
		profile:    profile,
		storageKey: DefaultStorageKey,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

func (s *BunStore) Get(ctx context.Context) (string, error) {
	record, err := s.repo.GetByIdentifier(ctx, s.profile)
	if err != nil {
		if goerrors.IsNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return "", ErrStoreMiss
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "could not read stored credential")
	}

	if record == nil || record.Token == "" {
		return "", ErrStoreMiss
	}

	return record.Token, nil
}

func (s *BunStore) Set(ctx context.Context, token string) error {
	record := &Credential{
		Profile:    s.profile,
		StorageKey: s.storageKey,
		Token:      token,
	}

	// Deterministic ID so repeated writes for the same profile upsert the
	// same row.
	if id, err := hashid.NewUUID(s.profile); err == nil {
		record.ID = id
	}

	if _, err := s.repo.Upsert(ctx, record); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not persist credential")
	}

	return nil
}

func (s *BunStore) Delete(ctx context.Context) error {
	_, err := s.db.NewDelete().
		Model((*Credential)(nil)).
		Where("profile = ?", s.profile).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not clear credential")
	}
	return nil
}

// OpenSQLite opens a SQLite-backed bun.DB suitable for BunStore and creates
// the credentials table when missing.
func OpenSQLite(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not open credential database")
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	if _, err := db.NewCreateTable().
		Model((*Credential)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create credentials table")
	}

	return db, nil
}
