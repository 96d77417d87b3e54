package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/ports"
)

// ErrNoEnvelope is returned when an encrypted store finds a dialogue that was never sealed.
var ErrNoEnvelope = errors.New("dialogue is missing its encrypted envelope")

// ErrUnsealable is returned when no configured key opens an envelope.
var ErrUnsealable = errors.New("envelope cannot be opened with any configured key")

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey seals every saved dialogue. Must be 32 bytes (AES-256).
	ActiveKey []byte

	// FallbackKeys are tried, in order, on envelopes the active key cannot open.
	// Rotating keys means moving the old ActiveKey here.
	FallbackKeys [][]byte
}

// envelopeRole marks the single opaque message that carries the sealed dialogue.
const envelopeRole domain.Role = "encrypted"

type encryptionMiddleware struct {
	passthrough
	active cipher.AEAD
	// open holds the active AEAD followed by the fallbacks.
	open []cipher.AEAD
}

// NewEncryptionMiddleware seals each dialogue with AES-GCM before it reaches the store.
// The stored state is an envelope: the session ID and one message whose content is
// the base64 ciphertext. The session ID is bound as additional data, so an envelope
// copied under another session ID does not open.
// It panics if any key is not 32 bytes.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	active := mustAEAD(config.ActiveKey, "active key")
	open := []cipher.AEAD{active}
	for i, key := range config.FallbackKeys {
		open = append(open, mustAEAD(key, fmt.Sprintf("fallback key #%d", i+1)))
	}

	return func(next ports.DialogueStore) ports.DialogueStore {
		return &encryptionMiddleware{passthrough: passthrough{next: next}, active: active, open: open}
	}
}

func mustAEAD(key []byte, what string) cipher.AEAD {
	if len(key) != 32 {
		panic(what + " must be 32 bytes (AES-256)")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return aead
}

func (m *encryptionMiddleware) Save(ctx context.Context, sessionID string, state *domain.DialogueState) error {
	plain, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal dialogue: %w", err)
	}

	nonce := make([]byte, m.active.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := m.active.Seal(nonce, nonce, plain, []byte(sessionID))

	envelope := &domain.DialogueState{
		SessionID: sessionID,
		Messages: []domain.Message{{
			Role:    envelopeRole,
			Content: base64.StdEncoding.EncodeToString(sealed),
		}},
	}
	return m.next.Save(ctx, sessionID, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, sessionID string) (*domain.DialogueState, error) {
	envelope, err := m.next.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// A plain dialogue is never returned once encryption is configured.
	if envelope.Len() != 1 || envelope.Messages[0].Role != envelopeRole {
		return nil, fmt.Errorf("session %q: %w", sessionID, ErrNoEnvelope)
	}

	sealed, err := base64.StdEncoding.DecodeString(envelope.Messages[0].Content)
	if err != nil {
		return nil, fmt.Errorf("session %q: malformed envelope: %w", sessionID, err)
	}

	plain, err := m.unseal(sealed, []byte(sessionID))
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", sessionID, err)
	}

	var state domain.DialogueState
	if err := json.Unmarshal(plain, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted dialogue: %w", err)
	}
	return &state, nil
}

func (m *encryptionMiddleware) unseal(sealed, additional []byte) ([]byte, error) {
	for _, aead := range m.open {
		n := aead.NonceSize()
		if len(sealed) < n {
			return nil, errors.New("ciphertext too short")
		}
		if plain, err := aead.Open(nil, sealed[:n], sealed[n:], additional); err == nil {
			return plain, nil
		}
	}
	return nil, ErrUnsealable
}
