package keys

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/eidwallet/eidwallet/internal/p256"
	"github.com/eidwallet/eidwallet/internal/plugins/store"
)

const (
	// SoftwareStore is the store holding software key pairs
	SoftwareStore = "eid-wallet-software-keys"

	softwareKeyPrefix = "software-key-"
)

// SoftwareKeyPair is the persisted form of a software key
type SoftwareKeyPair struct {
	PrivateKey string    `json:"privateKey"`
	PublicKey  string    `json:"publicKey"`
	KeyID      string    `json:"keyId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SoftwareManager keeps ECDSA P-256 key pairs in the key-value store
type SoftwareManager struct {
	db     *store.DB
	now    func() time.Time
	logger zerolog.Logger
}

var _ KeyManager = (*SoftwareManager)(nil)

// NewSoftwareManager creates a manager persisting keys in db. The key store
// is reserved: private keys never leave the process through the store
// plugin or its change events.
func NewSoftwareManager(db *store.DB, logger zerolog.Logger) *SoftwareManager {
	db.Reserve(SoftwareStore)
	return &SoftwareManager{
		db:     db,
		now:    time.Now,
		logger: logger.With().Str("component", "keys.software").Logger(),
	}
}

func (m *SoftwareManager) Type() Type { return TypeSoftware }

func (m *SoftwareManager) Exists(ctx context.Context, keyID string) (bool, error) {
	ok, err := m.db.Has(ctx, SoftwareStore, storageKey(keyID))
	if err != nil {
		return false, newError(ErrorCodeStorageError, "failed to check if software key exists", keyID, err)
	}
	return ok, nil
}

// Generate creates and stores a key pair unless one already exists
func (m *SoftwareManager) Generate(ctx context.Context, keyID string) (string, error) {
	exists, err := m.Exists(ctx, keyID)
	if err != nil {
		return "", err
	}
	if exists {
		m.logger.Debug().Str("keyId", keyID).Msg("software key already exists")
		return KeyExists, nil
	}

	pair, err := p256.Generate()
	if err != nil {
		return "", newError(ErrorCodeKeyGenerationFailed, "failed to generate software key", keyID, err)
	}

	data, err := json.Marshal(SoftwareKeyPair{
		PrivateKey: pair.PrivateKey,
		PublicKey:  pair.PublicKey,
		KeyID:      keyID,
		CreatedAt:  m.now().UTC(),
	})
	if err != nil {
		return "", newError(ErrorCodeKeyGenerationFailed, "failed to encode software key", keyID, err)
	}
	if err := m.db.Set(ctx, SoftwareStore, storageKey(keyID), data); err != nil {
		return "", newError(ErrorCodeKeyGenerationFailed, "failed to store software key", keyID, err)
	}

	m.logger.Info().Str("keyId", keyID).Msg("software key pair generated")
	return KeyGenerated, nil
}

// PublicKey returns "z" followed by the hex encoded SPKI public key
func (m *SoftwareManager) PublicKey(ctx context.Context, keyID string) (string, error) {
	pair, err := m.keyPair(ctx, keyID)
	if err != nil {
		return "", err
	}
	pub, err := p256.Multibase(pair.PublicKey)
	if err != nil {
		return "", newError(ErrorCodeKeyNotFound, "failed to get software public key", keyID, err)
	}
	return pub, nil
}

func (m *SoftwareManager) Sign(ctx context.Context, keyID string, payload []byte) (string, error) {
	pair, err := m.keyPair(ctx, keyID)
	if err != nil {
		return "", err
	}
	sig, err := p256.Sign(pair.PrivateKey, payload)
	if err != nil {
		return "", newError(ErrorCodeSigningFailed, "failed to sign payload with software key", keyID, err)
	}
	return sig, nil
}

// Verify reports false for signatures that do not match
func (m *SoftwareManager) Verify(ctx context.Context, keyID string, payload []byte, signature string) (bool, error) {
	pair, err := m.keyPair(ctx, keyID)
	if err != nil {
		return false, err
	}
	ok, err := p256.Verify(pair.PublicKey, payload, signature)
	if err != nil {
		return false, newError(ErrorCodeVerificationFailed, "failed to verify signature with software key", keyID, err)
	}
	return ok, nil
}

func (m *SoftwareManager) keyPair(ctx context.Context, keyID string) (SoftwareKeyPair, error) {
	raw, ok, err := m.db.Get(ctx, SoftwareStore, storageKey(keyID))
	if err != nil {
		return SoftwareKeyPair{}, newError(ErrorCodeStorageError, "failed to read software key", keyID, err)
	}
	if !ok {
		return SoftwareKeyPair{}, newError(ErrorCodeKeyNotFound, "software key not found", keyID, nil)
	}

	var pair SoftwareKeyPair
	if err := json.Unmarshal(raw, &pair); err != nil {
		return SoftwareKeyPair{}, newError(ErrorCodeKeyNotFound, "software key is corrupt", keyID, err)
	}
	return pair, nil
}

func storageKey(keyID string) string {
	return softwareKeyPrefix + keyID
}
