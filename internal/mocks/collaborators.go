package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ejournal-workflow-api/internal/apperrors"
	"github.com/ejournal-workflow-api/internal/blobstore"
	"github.com/ejournal-workflow-api/internal/transport"
)

// SentEmail records one call to MockTransport.Send
type SentEmail struct {
	To      string
	Subject string
	Body    string
}

// MockTransport is a scriptable email transport
type MockTransport struct {
	mu        sync.Mutex
	Calls     []SentEmail
	Delivered []SentEmail
	// FailTimes makes the next N sends fail with Err
	FailTimes int
	Err       error
	counter   int
}

// Verify interface compliance
var _ transport.Transport = (*MockTransport)(nil)

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func (m *MockTransport) Name() string { return "mock" }

func (m *MockTransport) Send(ctx context.Context, to, subject, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := SentEmail{To: to, Subject: subject, Body: body}
	m.Calls = append(m.Calls, email)
	if m.FailTimes > 0 {
		m.FailTimes--
		err := m.Err
		if err == nil {
			err = errors.New("mock transport failure")
		}
		return "", &apperrors.TransportError{Transport: m.Name(), Err: err}
	}
	m.counter++
	m.Delivered = append(m.Delivered, email)
	return fmt.Sprintf("mock-%d", m.counter), nil
}

// CallCount returns the number of Send invocations
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// DeliveredTo returns the delivered emails addressed to `to`
func (m *MockTransport) DeliveredTo(to string) []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []SentEmail
	for _, e := range m.Delivered {
		if e.To == to {
			out = append(out, e)
		}
	}
	return out
}

// MockBlobStore keeps blobs in memory
type MockBlobStore struct {
	mu     sync.Mutex
	Blobs  map[string][]byte
	PutErr error
	n      int
}

// Verify interface compliance
var _ blobstore.Store = (*MockBlobStore)(nil)

func NewMockBlobStore() *MockBlobStore {
	return &MockBlobStore{Blobs: make(map[string][]byte)}
}

func (m *MockBlobStore) Put(ctx context.Context, name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PutErr != nil {
		return "", m.PutErr
	}
	m.n++
	loc := fmt.Sprintf("blobs/%d/%s", m.n, name)
	m.Blobs[loc] = append([]byte(nil), data...)
	return loc, nil
}

func (m *MockBlobStore) URL(ctx context.Context, locator string) (string, error) {
	if locator == "" {
		return "", nil
	}
	return "https://files.test/" + locator, nil
}
