package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xjonsson/kin-api-server/internal/crypto"
	"github.com/xjonsson/kin-api-server/internal/model"
)

// Store loads and saves users against a Client, encrypting refresh tokens
// at rest through the configured Encryptor.
type Store struct {
	client Client
	enc    crypto.Encryptor

	// now is stubbed in tests.
	now func() int64
}

// New creates a Store. enc may be a MockEncryptor outside production.
func New(client Client, enc crypto.Encryptor) *Store {
	return &Store{
		client: client,
		enc:    enc,
		now:    func() int64 { return time.Now().Unix() },
	}
}

// Load reads a user's misc, sources and selected-layers hashes. A user with
// no misc hash is unknown: callers get an Unauthenticated error, not an
// empty profile.
func (s *Store) Load(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, model.NewUnauthenticatedError()
	}

	misc, err := s.client.GetHash(ctx, miscKey(userID))
	if err != nil {
		return nil, err
	}
	if len(misc) == 0 {
		return nil, model.NewUnauthenticatedError()
	}

	rawSources, err := s.client.GetHash(ctx, sourcesKey(userID))
	if err != nil {
		return nil, err
	}
	rawLayers, err := s.client.GetHash(ctx, selectedLayersKey(userID))
	if err != nil {
		return nil, err
	}

	u := newUser(s, userID)
	u.decodeMisc(misc)

	for id, raw := range rawSources {
		src, err := s.decodeSource(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("decode source %q: %w", id, err)
		}
		u.sources[id] = src
	}
	for id, raw := range rawLayers {
		u.selectedLayers[id] = raw == "true"
	}
	return u, nil
}

// LookupAlias resolves a source's global identity to the owning user id.
// found is false when no alias exists; there is no error-driven control
// flow for the missing case.
func (s *Store) LookupAlias(ctx context.Context, sourceID string) (userID string, found bool, err error) {
	fields, err := s.client.GetHash(ctx, aliasKey(sourceID))
	if err != nil {
		return "", false, err
	}
	owner, ok := fields["alias"]
	if !ok || owner == "" {
		return "", false, nil
	}
	return owner, true, nil
}

// CreateAlias registers sourceID as owned by userID.
func (s *Store) CreateAlias(ctx context.Context, sourceID, userID string) error {
	return s.client.SetHashFields(ctx, aliasKey(sourceID), map[string]string{"alias": userID})
}

// DeleteAlias releases the source's alias.
func (s *Store) DeleteAlias(ctx context.Context, sourceID string) error {
	return s.client.DeleteKey(ctx, aliasKey(sourceID))
}

// encodeSource JSON-encodes a source with its refresh token encrypted.
// The in-memory source keeps the plaintext token.
func (s *Store) encodeSource(ctx context.Context, src *model.Source) (string, error) {
	stored := *src
	if stored.RefreshToken != "" && s.enc != nil {
		encrypted, err := s.enc.Encrypt(ctx, stored.RefreshToken)
		if err != nil {
			return "", fmt.Errorf("encrypt refresh token: %w", err)
		}
		stored.RefreshToken = encrypted
	}
	b, err := json.Marshal(&stored)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Store) decodeSource(ctx context.Context, raw string) (*model.Source, error) {
	var src model.Source
	if err := json.Unmarshal([]byte(raw), &src); err != nil {
		return nil, err
	}
	if src.RefreshToken != "" && s.enc != nil {
		plaintext, err := s.enc.Decrypt(ctx, src.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("decrypt refresh token: %w", err)
		}
		src.RefreshToken = plaintext
	}
	return &src, nil
}
