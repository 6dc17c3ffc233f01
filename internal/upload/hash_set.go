package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"
)

// HashSet is the set of content hashes the service already holds
type HashSet struct {
	mu     sync.RWMutex
	hashes map[string]struct{}
}

// NewHashSet creates an empty hash set
func NewHashSet() *HashSet {
	return &HashSet{hashes: make(map[string]struct{})}
}

// Has reports whether hash is known
func (s *HashSet) Has(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hashes[hash]
	return ok
}

// Add records hash as known; empty hashes are ignored
func (s *HashSet) Add(hash string) {
	if hash == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[hash] = struct{}{}
}

// Replace swaps the whole set
func (s *HashSet) Replace(hashes []string) {
	next := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		if h != "" {
			next[h] = struct{}{}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes = next
}

// Reset empties the set
func (s *HashSet) Reset() {
	s.Replace(nil)
}

// Len returns the number of known hashes
func (s *HashSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hashes)
}

// HashFile returns the lowercase hex SHA-256 of the file's full contents
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
