package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

// ErrDecryptionFailed is returned when a payload cannot be opened with the
// given passphrase.
var ErrDecryptionFailed = errors.New("decryption failed")

// EncryptionConfig defines the scrypt and AES-GCM parameters
type EncryptionConfig struct {
	SCryptN      int
	SCryptR      int
	SCryptP      int
	SCryptKeyLen int
	SaltSize     int
}

// EncryptedPayload is the at-rest form of a sealed value
type EncryptedPayload struct {
	Version    uint8  `json:"v"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
}

// DefaultEncryptionConfig returns OWASP recommended scrypt parameters
func DefaultEncryptionConfig() *EncryptionConfig {
	return &EncryptionConfig{
		SCryptN:      32768,
		SCryptR:      8,
		SCryptP:      1,
		SCryptKeyLen: 32, // AES-256
		SaltSize:     16,
	}
}

// Sealer encrypts small secrets with a key derived from a passphrase, for
// example the device fingerprint.
type Sealer struct {
	passphrase []byte
	config     *EncryptionConfig
}

// NewSealer creates a Sealer. A nil config uses DefaultEncryptionConfig.
func NewSealer(passphrase string, config *EncryptionConfig) *Sealer {
	if config == nil {
		config = DefaultEncryptionConfig()
	}
	return &Sealer{passphrase: []byte(passphrase), config: config}
}

// Seal encrypts plaintext
func (s *Sealer) Seal(plaintext []byte) (*EncryptedPayload, error) {
	salt := make([]byte, s.config.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := s.gcm(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &EncryptedPayload{
		Version:    1,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, plaintext, []byte{1}),
	}, nil
}

// Open decrypts a payload produced by Seal
func (s *Sealer) Open(payload *EncryptedPayload) ([]byte, error) {
	if payload == nil || payload.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported payload", ErrDecryptionFailed)
	}

	gcm, err := s.gcm(payload.Salt)
	if err != nil {
		return nil, err
	}

	if len(payload.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce", ErrDecryptionFailed)
	}

	plaintext, err := gcm.Open(nil, payload.Nonce, payload.Ciphertext, []byte{payload.Version})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// SealString seals s and returns the payload as a base64 encoded JSON token
func (s *Sealer) SealString(plaintext string) (string, error) {
	payload, err := s.Seal([]byte(plaintext))
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// OpenString reverses SealString
func (s *Sealer) OpenString(token string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	var payload EncryptedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	plaintext, err := s.Open(&payload)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (s *Sealer) gcm(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.passphrase, salt, s.config.SCryptN, s.config.SCryptR, s.config.SCryptP, s.config.SCryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
