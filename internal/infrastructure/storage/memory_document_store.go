package storage

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/saas/backend/internal/domain/billing"
)

var _ billing.DocumentStore = (*MemoryDocumentStore)(nil)

// Document is a stored object
type Document struct {
	Data        []byte
	ContentType string
}

// MemoryDocumentStore keeps documents in memory. It is used when object
// storage is disabled; download URLs point at BaseURL and are not signed.
type MemoryDocumentStore struct {
	BaseURL string

	mu   sync.RWMutex
	docs map[string]Document
	now  func() time.Time
}

// NewMemoryDocumentStore creates an empty store
func NewMemoryDocumentStore(baseURL string) *MemoryDocumentStore {
	if baseURL == "" {
		baseURL = "http://localhost:8080/documents"
	}
	return &MemoryDocumentStore{
		BaseURL: baseURL,
		docs:    make(map[string]Document),
		now:     time.Now,
	}
}

// Put stores a copy of data
func (s *MemoryDocumentStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return ErrKeyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = Document{Data: append([]byte(nil), data...), ContentType: contentType}
	return nil
}

// DownloadURL returns BaseURL/key with an expiry parameter
func (s *MemoryDocumentStore) DownloadURL(_ context.Context, key string, expiresIn time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, ErrKeyRequired
	}
	if expiresIn <= 0 {
		expiresIn = 15 * time.Minute
	}
	expiresAt := s.now().Add(expiresIn)
	return s.BaseURL + "/" + key + "?expires=" + url.QueryEscape(expiresAt.UTC().Format(time.RFC3339)), expiresAt, nil
}

// Exists reports whether key is stored
func (s *MemoryDocumentStore) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrKeyRequired
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[key]
	return ok, nil
}

// Delete removes key
func (s *MemoryDocumentStore) Delete(_ context.Context, key string) error {
	if key == "" {
		return ErrKeyRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
	return nil
}

// Get returns a stored document
func (s *MemoryDocumentStore) Get(key string) (Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	return doc, ok
}
