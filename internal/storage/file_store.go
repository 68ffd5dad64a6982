package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ernyzasxash/clientt/internal/config"
	apperrors "github.com/ernyzasxash/clientt/internal/errors"
	"github.com/ernyzasxash/clientt/pkg/contracts/domain"
)

// FileStoreOptions configures a FileStore
type FileStoreOptions struct {
	// MaxEntries caps the failed login list and the attempts log.
	MaxEntries int
	Logger     *slog.Logger
	Now        func() time.Time
}

// FileStore implements KeyStore, BanStore and ActivityStore on JSON files
type FileStore struct {
	dir        string
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex
	// attempts appended since the log was last compacted
	appended int
}

var (
	_ KeyStore      = (*FileStore)(nil)
	_ BanStore      = (*FileStore)(nil)
	_ ActivityStore = (*FileStore)(nil)
)

// NewFileStore opens a store in dir, creating the directory if needed
func NewFileStore(dir string, opts FileStoreOptions) (*FileStore, error) {
	if err := config.EnsureDir(dir); err != nil {
		return nil, apperrors.NewStorageError("failed to create data directory", err)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &FileStore{
		dir:        dir,
		maxEntries: opts.MaxEntries,
		logger:     opts.Logger.With(slog.String("component", "file_store")),
		now:        opts.Now,
	}, nil
}

// Dir returns the data directory
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name)
}

// HasKey implements KeyStore
func (s *FileStore) HasKey(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.loadKeys()
	if err != nil {
		return false, err
	}
	return indexOf(keys, key) >= 0, nil
}

// AddKey implements KeyStore
func (s *FileStore) AddKey(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.loadKeys()
	if err != nil {
		return false, err
	}
	if indexOf(keys, key) >= 0 {
		return false, nil
	}
	if err := s.writeJSON(config.AuthorizedKeysFile, append(keys, key)); err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "key added", slog.Int("total", len(keys)+1))
	return true, nil
}

// RemoveKey implements KeyStore
func (s *FileStore) RemoveKey(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.loadKeys()
	if err != nil {
		return false, err
	}
	i := indexOf(keys, key)
	if i < 0 {
		return false, nil
	}
	keys = append(keys[:i], keys[i+1:]...)
	if err := s.writeJSON(config.AuthorizedKeysFile, keys); err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "key removed", slog.Int("total", len(keys)))
	return true, nil
}

// ListKeys implements KeyStore
func (s *FileStore) ListKeys(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadKeys()
}

func (s *FileStore) loadKeys() ([]string, error) {
	keys := []string{}
	if err := s.readJSON(config.AuthorizedKeysFile, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// AddBan implements BanStore
func (s *FileStore) AddBan(ctx context.Context, ban domain.Ban) (bool, error) {
	if !ban.Type.Valid() {
		return false, apperrors.ErrInvalidBanType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bans, err := s.loadBans()
	if err != nil {
		return false, err
	}
	for _, b := range bans {
		if b.Type == ban.Type && b.Value == ban.Value {
			return false, nil
		}
	}
	if ban.CreatedAt.IsZero() {
		ban.CreatedAt = s.now().UTC()
	}
	if err := s.writeJSON(config.BansFile, append(bans, ban)); err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "ban added",
		slog.String("type", string(ban.Type)),
		slog.String("reason", ban.Reason))
	return true, nil
}

// RemoveBan implements BanStore
func (s *FileStore) RemoveBan(ctx context.Context, banType domain.BanType, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bans, err := s.loadBans()
	if err != nil {
		return false, err
	}
	kept := bans[:0]
	for _, b := range bans {
		if b.Type == banType && b.Value == value {
			continue
		}
		kept = append(kept, b)
	}
	if len(kept) == len(bans) {
		return false, nil
	}
	if err := s.writeJSON(config.BansFile, kept); err != nil {
		return false, err
	}
	s.logger.InfoContext(ctx, "ban removed", slog.String("type", string(banType)))
	return true, nil
}

// ListBans implements BanStore
func (s *FileStore) ListBans(context.Context) ([]domain.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadBans()
}

// FindBan implements BanStore
func (s *FileStore) FindBan(_ context.Context, candidates map[domain.BanType]string) (*domain.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bans, err := s.loadBans()
	if err != nil {
		return nil, err
	}
	return matchBan(bans, candidates), nil
}

func (s *FileStore) loadBans() ([]domain.Ban, error) {
	bans := []domain.Ban{}
	if err := s.readJSON(config.BansFile, &bans); err != nil {
		return nil, err
	}
	return bans, nil
}

// RecordConnection implements ActivityStore. Connections are keyed by
// license key; a newer record replaces the previous one.
func (s *FileStore) RecordConnection(_ context.Context, conn domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, err := s.loadConnections()
	if err != nil {
		return err
	}
	conn.Active = false
	replaced := false
	for i := range conns {
		if conns[i].Key == conn.Key {
			conns[i] = conn
			replaced = true
			break
		}
	}
	if !replaced {
		conns = append(conns, conn)
	}
	sort.Slice(conns, func(i, j int) bool { return conns[i].Key < conns[j].Key })
	return s.writeJSON(config.ConnectionsFile, conns)
}

// Connections implements ActivityStore
func (s *FileStore) Connections(context.Context) ([]domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadConnections()
}

func (s *FileStore) loadConnections() ([]domain.Connection, error) {
	conns := []domain.Connection{}
	if err := s.readJSON(config.ConnectionsFile, &conns); err != nil {
		return nil, err
	}
	return conns, nil
}

// RecordFailedLogin implements ActivityStore
func (s *FileStore) RecordFailedLogin(_ context.Context, failed domain.FailedLogin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := []domain.FailedLogin{}
	if err := s.readJSON(config.FailedLoginsFile, &list); err != nil {
		return err
	}
	list = append(list, failed)
	if s.maxEntries > 0 && len(list) > s.maxEntries {
		list = list[len(list)-s.maxEntries:]
	}
	return s.writeJSON(config.FailedLoginsFile, list)
}

// FailedLogins implements ActivityStore
func (s *FileStore) FailedLogins(context.Context) ([]domain.FailedLogin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := []domain.FailedLogin{}
	if err := s.readJSON(config.FailedLoginsFile, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// AppendAttempt implements ActivityStore. The log is JSON lines and is
// compacted to MaxEntries once it has grown past twice that.
func (s *FileStore) AppendAttempt(_ context.Context, attempt domain.Attempt) error {
	line, err := json.Marshal(attempt)
	if err != nil {
		return apperrors.NewStorageError("failed to encode attempt", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(config.AttemptsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return apperrors.NewStorageError("failed to open attempts log", err)
	}
	_, werr := f.Write(append(line, '\n'))
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return apperrors.NewStorageError("failed to append attempt", err)
	}

	s.appended++
	if s.maxEntries > 0 && s.appended >= s.maxEntries {
		s.appended = 0
		return s.compactAttempts()
	}
	return nil
}

// Attempts implements ActivityStore
func (s *FileStore) Attempts(_ context.Context, limit int) ([]domain.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	attempts, err := s.readAttempts()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(attempts) > limit {
		attempts = attempts[len(attempts)-limit:]
	}
	return attempts, nil
}

func (s *FileStore) readAttempts() ([]domain.Attempt, error) {
	data, err := os.ReadFile(s.path(config.AttemptsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return []domain.Attempt{}, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read attempts log", err)
	}

	attempts := []domain.Attempt{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var a domain.Attempt
		if err := json.Unmarshal(scanner.Bytes(), &a); err != nil {
			// a torn final line after a crash
			continue
		}
		attempts = append(attempts, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.NewStorageError("failed to scan attempts log", err)
	}
	return attempts, nil
}

func (s *FileStore) compactAttempts() error {
	attempts, err := s.readAttempts()
	if err != nil {
		return err
	}
	if len(attempts) <= s.maxEntries {
		return nil
	}
	attempts = attempts[len(attempts)-s.maxEntries:]

	var buf bytes.Buffer
	for _, a := range attempts {
		line, err := json.Marshal(a)
		if err != nil {
			return apperrors.NewStorageError("failed to encode attempt", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return s.writeFile(config.AttemptsFile, buf.Bytes())
}

// readJSON decodes the named file into v. A missing or empty file leaves v
// untouched.
func (s *FileStore) readJSON(name string, v interface{}) error {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to read %s", name), err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to decode %s", name), err)
	}
	return nil
}

func (s *FileStore) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to encode %s", name), err)
	}
	return s.writeFile(name, append(data, '\n'))
}

// writeFile replaces the named file atomically
func (s *FileStore) writeFile(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+name+"-*")
	if err != nil {
		return apperrors.NewStorageError("failed to create temp file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.NewStorageError(fmt.Sprintf("failed to write %s", name), err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return apperrors.NewStorageError(fmt.Sprintf("failed to chmod %s", name), err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to close %s", name), err)
	}
	if err := os.Rename(tmpName, s.path(name)); err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to replace %s", name), err)
	}
	return nil
}

func indexOf(keys []string, key string) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}
