package messaging

import (
	"context"
	"sync"

	"github.com/livreo/livreo/internal/models"
)

// MockService is a Service double for tests: sent replies are recorded and
// inbound messages are injected with Inject.
type MockService struct {
	mu       sync.Mutex
	Sent     []SentReply
	messages chan models.Message
}

// SentReply records one reply passed to SendReply.
type SentReply struct {
	To    string
	Reply models.Reply
}

// NewMockService creates an empty mock service.
func NewMockService() *MockService {
	return &MockService{messages: make(chan models.Message, DefaultChannelBufferSize)}
}

// ValidateAndCanonicalizeRecipient implements Service.
func (m *MockService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalizePhone(recipient)
}

// SendReply implements Service.
func (m *MockService) SendReply(ctx context.Context, to string, reply models.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentReply{To: to, Reply: reply})
	return nil
}

// Start implements Service.
func (m *MockService) Start(ctx context.Context) error { return nil }

// Stop implements Service.
func (m *MockService) Stop() error {
	close(m.messages)
	return nil
}

// Messages implements Service.
func (m *MockService) Messages() <-chan models.Message { return m.messages }

// Inject queues an inbound message as if it arrived from the provider.
func (m *MockService) Inject(msg models.Message) {
	m.messages <- msg
}

// SentCount returns how many replies were sent.
func (m *MockService) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
