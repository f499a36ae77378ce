package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockLLM provides deterministic model responses for testing.
// It matches user message content against registered patterns and returns
// the corresponding response, streaming it in fixed-size fragments when a
// stream callback is present.
//
// Thread-safe for concurrent use.
type MockLLM struct {
	mu        sync.Mutex
	responses []mockRule
	fallback  string
	calls     []MockCall
	streamErr error
}

type mockRule struct {
	pattern  string // substring match in user message (lowercased)
	response string
}

// MockCall records a single call to the mock model.
type MockCall struct {
	UserMessage string // last user message text
	Prompt      string // full concatenated request text
	Response    string
	HadDeadline bool // whether the call context carried a deadline
}

// NewMockLLM creates a mock model with the given fallback response.
// The fallback is returned when no pattern matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a pattern-response pair.
// Patterns are checked in registration order; first match wins.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// FailStreamAfterFirstChunk makes the next generate call emit exactly one
// fragment and then fail, simulating a provider stream dying mid-response.
func (m *MockLLM) FailStreamAfterFirstChunk(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamErr = err
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// RegisterModel registers the mock as a Genkit model named "mock/test-model".
func (m *MockLLM) RegisterModel(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, "mock/test-model", &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
		},
	}, m.generate)
}

// streamFragmentSize controls how the response is cut into stream chunks.
const streamFragmentSize = 8

func (m *MockLLM) generate(ctx context.Context, req *ai.ModelRequest, cb ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	var prompt strings.Builder
	for _, msg := range req.Messages {
		prompt.WriteString(msg.Text())
		prompt.WriteString("\n")
		if msg.Role == ai.RoleUser {
			userText = msg.Text()
		}
	}

	m.mu.Lock()
	responseText := m.fallback
	lower := strings.ToLower(prompt.String())
	for _, rule := range m.responses {
		if strings.Contains(lower, rule.pattern) {
			responseText = rule.response
			break
		}
	}
	streamErr := m.streamErr
	m.streamErr = nil
	_, hadDeadline := ctx.Deadline()
	m.calls = append(m.calls, MockCall{
		UserMessage: userText,
		Prompt:      prompt.String(),
		Response:    responseText,
		HadDeadline: hadDeadline,
	})
	m.mu.Unlock()

	if cb != nil {
		runes := []rune(responseText)
		for start := 0; start < len(runes); start += streamFragmentSize {
			end := min(start+streamFragmentSize, len(runes))
			err := cb(ctx, &ai.ModelResponseChunk{
				Content: []*ai.Part{ai.NewTextPart(string(runes[start:end]))},
			})
			if err != nil {
				return nil, err
			}
			if streamErr != nil {
				return nil, streamErr
			}
		}
	} else if streamErr != nil {
		return nil, streamErr
	}

	return &ai.ModelResponse{
		FinishReason: ai.FinishReasonStop,
		Message:      ai.NewModelTextMessage(responseText),
	}, nil
}

// ErrMockStream is a convenience error for stream-failure tests.
var ErrMockStream = errors.New("mock provider stream failed")
