package license

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ernyzasxash/clientt/internal/config"
	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/internal/security"
)

// KeyStore persists the license key between launches
type KeyStore interface {
	// Load returns the stored key, or "" when none is stored.
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

// FileKeyStore keeps the key in a small JSON preferences file. Values are
// sealed with the device bound Sealer, so a copied file is useless on
// another machine. A nil sealer stores plaintext.
type FileKeyStore struct {
	path   string
	sealer *security.Sealer
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileKeyStore creates a store backed by the file at path
func NewFileKeyStore(path string, sealer *security.Sealer, logger *slog.Logger) *FileKeyStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileKeyStore{
		path:   path,
		sealer: sealer,
		logger: logger.With(slog.String("component", "key_store")),
	}
}

// Path returns the preferences file location
func (s *FileKeyStore) Path() string {
	return s.path
}

// Load returns the stored key. Unreadable or undecryptable values are
// reported as no key.
func (s *FileKeyStore) Load(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.read()
	if err != nil {
		s.logger.WarnContext(ctx, "preferences unreadable, ignoring stored key",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return "", nil
	}

	raw := prefs[config.PrefsKeyLicense]
	if raw == "" {
		return "", nil
	}

	if s.sealer == nil {
		return raw, nil
	}

	key, err := s.sealer.OpenString(raw)
	if err != nil {
		s.logger.WarnContext(ctx, "stored key cannot be decrypted, ignoring",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return "", nil
	}
	return key, nil
}

// Save stores key, keeping any other preferences in the file
func (s *FileKeyStore) Save(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := key
	if s.sealer != nil {
		sealed, err := s.sealer.SealString(key)
		if err != nil {
			return apperrors.NewStorageError("failed to seal license key", err)
		}
		value = sealed
	}

	prefs, err := s.read()
	if err != nil {
		prefs = make(map[string]string)
	}
	prefs[config.PrefsKeyLicense] = value

	if err := s.write(prefs); err != nil {
		return err
	}

	s.logger.DebugContext(ctx, "license key stored",
		slog.String("license_key_masked", security.MaskLicenseKey(key)))
	return nil
}

// Clear removes the stored key
func (s *FileKeyStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs, err := s.read()
	if err != nil || prefs[config.PrefsKeyLicense] == "" {
		return nil
	}
	delete(prefs, config.PrefsKeyLicense)

	if err := s.write(prefs); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "license key cleared")
	return nil
}

func (s *FileKeyStore) read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}

	prefs := make(map[string]string)
	if err := json.Unmarshal(data, &prefs); err != nil {
		return nil, fmt.Errorf("invalid preferences file: %w", err)
	}
	return prefs, nil
}

// write replaces the file atomically
func (s *FileKeyStore) write(prefs map[string]string) error {
	data, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return apperrors.NewStorageError("failed to encode preferences", err)
	}

	dir := filepath.Dir(s.path)
	if err := config.EnsureDir(dir); err != nil {
		return apperrors.NewStorageError("failed to create preferences directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".prefs-*")
	if err != nil {
		return apperrors.NewStorageError("failed to create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.NewStorageError("failed to write preferences", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return apperrors.NewStorageError("failed to set preferences permissions", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewStorageError("failed to close preferences", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return apperrors.NewStorageError("failed to replace preferences", err)
	}
	return nil
}
