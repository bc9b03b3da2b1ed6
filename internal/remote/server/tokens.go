package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileTokenStore is a JSON-file-backed TokenStore. Only token hashes are
// persisted; the raw token is returned once, at creation.
type FileTokenStore struct {
	path   string
	mu     sync.RWMutex
	tokens map[string]*TokenInfo // keyed by token hash
	logger *slog.Logger
}

// NewFileTokenStore creates a store persisted at path. Call Load to read
// existing tokens.
func NewFileTokenStore(path string, logger *slog.Logger) *FileTokenStore {
	return &FileTokenStore{
		path:   path,
		tokens: make(map[string]*TokenInfo),
		logger: logger,
	}
}

// Load reads the token file. A missing file leaves the store empty.
func (s *FileTokenStore) Load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	var tokens []*TokenInfo
	if err := json.Unmarshal(data, &tokens); err != nil {
		return fmt.Errorf("parse token store: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]*TokenInfo, len(tokens))
	for _, t := range tokens {
		s.tokens[t.TokenHash] = t
	}

	s.logger.Info("loaded tokens", "count", len(tokens))
	return nil
}

// GetByHash returns the token for hash, or nil if there is none.
func (s *FileTokenStore) GetByHash(hash string) (*TokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens[hash], nil
}

// UpdateLastUsed is a no-op; the file store does not track usage.
func (s *FileTokenStore) UpdateLastUsed(_ string) error {
	return nil
}

// save writes all tokens to disk through a temp file and rename.
func (s *FileTokenStore) save() error {
	s.mu.RLock()
	tokens := make([]*TokenInfo, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokens = append(tokens, t)
	}
	s.mu.RUnlock()
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })

	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tokens-*.json")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write tokens: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

// CreateToken generates and persists a new bearer token.
func (s *FileTokenStore) CreateToken(desc, permission string) (string, *TokenInfo, error) {
	rawToken := "qcat_" + randomHex()
	hash := HashToken(rawToken)
	info := &TokenInfo{
		ID:         randomHex()[:16],
		TokenHash:  hash,
		Desc:       desc,
		Permission: permission,
	}

	s.mu.Lock()
	s.tokens[hash] = info
	s.mu.Unlock()

	if err := s.save(); err != nil {
		s.mu.Lock()
		delete(s.tokens, hash)
		s.mu.Unlock()
		return "", nil, fmt.Errorf("persist token: %w", err)
	}
	return rawToken, info, nil
}

// ListTokens returns all tokens ordered by id.
func (s *FileTokenStore) ListTokens() ([]*TokenInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]*TokenInfo, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].ID < tokens[j].ID })
	return tokens, nil
}

// DeleteToken removes the token with the given id.
func (s *FileTokenStore) DeleteToken(id string) error {
	s.mu.Lock()
	var removed *TokenInfo
	for hash, t := range s.tokens {
		if t.ID == id {
			removed = t
			delete(s.tokens, hash)
			break
		}
	}
	s.mu.Unlock()

	if removed == nil {
		return fmt.Errorf("token '%s' not found", id)
	}
	if err := s.save(); err != nil {
		s.mu.Lock()
		s.tokens[removed.TokenHash] = removed
		s.mu.Unlock()
		return fmt.Errorf("persist token removal: %w", err)
	}
	return nil
}

func randomHex() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
