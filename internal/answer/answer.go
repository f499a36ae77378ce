// Package answer turns retrieved context and a question into a grounded
// model response, streaming fragments to the caller as they arrive.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/lorekeep/lorekeep/internal/retrieve"
)

// Conversation roles for history turns.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

const (
	// maxHistoryTurns caps how much prior conversation is replayed to
	// the model.
	maxHistoryTurns = 12

	// noContextPlaceholder stands in for retrieved content when the
	// store had nothing relevant. The system prompt tells the model to
	// admit the gap rather than invent an answer.
	noContextPlaceholder = "No relevant context available."

	// fallbackResponse covers the rare case of the model returning an
	// empty completion.
	fallbackResponse = "I couldn't generate a response. Please try rephrasing your question."

	// defaultCallTimeout bounds one model call, including the full
	// stream. A provider that stalls mid-stream gets cut off here.
	defaultCallTimeout = 2 * time.Minute
)

const systemPromptTemplate = `You are a helpful assistant for a developer's site.
The current year is %d.
Use the following context from the site's blog posts and knowledge base to answer the user's question:

%s

Instructions:
- Answer directly and concisely, in a few sentences.
- When referencing a page, include the exact URL from its "URL" field.
- Only use information present in the provided context.
- If the context does not contain enough information, say: "I don't have enough information about that in my knowledge base."
- Never invent URLs or details that are not in the context.`

// Turn is one prior exchange in the conversation.
type Turn struct {
	Role string // RoleUser or RoleModel
	Text string
}

// FragmentFunc receives response fragments as the model streams them.
// Returning an error aborts the stream.
type FragmentFunc func(ctx context.Context, fragment string) error

// Config assembles a Synthesizer.
type Config struct {
	Genkit    *genkit.Genkit
	ModelName string // provider-qualified, e.g. "googleai/gemini-2.5-flash"

	// BaseSiteURL prefixes document paths to form citation URLs.
	BaseSiteURL string

	CallTimeout time.Duration // per-call bound on generation (zero = 2m)

	Logger *slog.Logger // nil = slog.Default()
}

// Synthesizer produces grounded answers from retrieved context.
type Synthesizer struct {
	g           *genkit.Genkit
	modelName   string
	baseSiteURL string
	callTimeout time.Duration
	logger      *slog.Logger
}

// New creates a Synthesizer.
func New(cfg Config) (*Synthesizer, error) {
	if cfg.Genkit == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("model name is required")
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Synthesizer{
		g:           cfg.Genkit,
		modelName:   cfg.ModelName,
		baseSiteURL: strings.TrimRight(cfg.BaseSiteURL, "/"),
		callTimeout: timeout,
		logger:      logger,
	}, nil
}

// Answer generates a response to the question grounded in the retrieved
// context. When onFragment is non-nil the response is streamed through
// it; the full text is returned either way. A stream that dies after
// emitting fragments returns the provider's error as-is: the caller has
// already shown partial output, so a silent retry would repeat it.
func (s *Synthesizer) Answer(ctx context.Context, question string, res retrieve.Result, history []Turn, onFragment FragmentFunc) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("question is empty")
	}

	ctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	systemPrompt := fmt.Sprintf(systemPromptTemplate, time.Now().Year(), s.formatContext(res))

	messages := s.historyMessages(history)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(question)))

	opts := []ai.GenerateOption{
		ai.WithModelName(s.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithMessages(messages...),
	}
	if onFragment != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			return onFragment(ctx, chunk.Text())
		}))
	}

	s.logger.Debug("generating answer",
		"model", s.modelName,
		"context_chunks", len(res.Chunks),
		"history_turns", len(history))

	resp, err := genkit.Generate(ctx, s.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		s.logger.Warn("model returned empty response")
		return fallbackResponse, nil
	}
	return text, nil
}

// formatContext renders retrieved chunks for prompt injection. Chunks
// arrive ranked; order is preserved so the strongest match leads.
func (s *Synthesizer) formatContext(res retrieve.Result) string {
	if res.Empty() {
		return noContextPlaceholder
	}

	var b strings.Builder
	for _, match := range res.Chunks {
		c := match.Chunk
		fmt.Fprintf(&b, "URL: %s\n", s.documentURL(c.DocumentID))
		fmt.Fprintf(&b, "Type: %s\n", c.DocType)
		fmt.Fprintf(&b, "Similarity: %.2f\n", match.Similarity)
		fmt.Fprintf(&b, "Content: %s\n", c.Content)
		b.WriteString("-----\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Synthesizer) documentURL(documentID string) string {
	if s.baseSiteURL == "" {
		return documentID
	}
	return s.baseSiteURL + "/" + strings.TrimLeft(documentID, "/")
}

func (s *Synthesizer) historyMessages(history []Turn) []*ai.Message {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	messages := make([]*ai.Message, 0, len(history)+1)
	for _, turn := range history {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		if turn.Role == RoleUser {
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(turn.Text)))
		} else {
			messages = append(messages, ai.NewModelTextMessage(turn.Text))
		}
	}
	return messages
}
