package archive

import "sync"

// FakeStore collects pages in memory for tests.
type FakeStore struct {
	mu   sync.Mutex
	Keys []string
	Data map[string][]byte
}

func NewFakeStore() *FakeStore {
	return &FakeStore{Data: map[string][]byte{}}
}

func (s *FakeStore) Put(key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Keys = append(s.Keys, key)
	s.Data[key] = append([]byte(nil), body...)
	return nil
}
