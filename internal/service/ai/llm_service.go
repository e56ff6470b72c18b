package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/pdf-chatbot/backend/internal/config"
)

// ErrEmptyResponse is returned when the model produced no message at all.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Chain is a compiled (prompt template, chat model) pair.
// compose.Runnable[map[string]any, *schema.Message] satisfies it.
type Chain interface {
	Invoke(ctx context.Context, input map[string]any, opts ...compose.Option) (*schema.Message, error)
}

// Service builds document chains and answers questions through them.
type Service struct {
	chatModel    model.BaseChatModel
	template     prompt.ChatTemplate
	policy       RetryPolicy
	contextLimit int

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
}

// NewService creates a new AI service instance backed by the configured provider.
func NewService(ctx context.Context, cfg config.AIConfig, qa config.QAConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(chatModel, qa), nil
}

// NewServiceWithModel wires an existing chat model.
func NewServiceWithModel(chatModel model.BaseChatModel, qa config.QAConfig) *Service {
	contextLimit := qa.ContextLimit
	if contextLimit <= 0 {
		contextLimit = DefaultContextLimit
	}

	return &Service{
		chatModel:    chatModel,
		template:     NewDocumentPrompt(),
		policy:       RetryPolicyFromConfig(qa),
		contextLimit: contextLimit,
		sleep:        sleepContext,
		jitter:       randomJitter,
	}
}

// Policy returns the retry policy used by Ask.
func (s *Service) Policy() RetryPolicy {
	return s.policy
}

// NewChain compiles a chain for one uploaded document.
func (s *Service) NewChain(ctx context.Context) (Chain, error) {
	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(s.template)
	chain.AppendChatModel(s.chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile document chain: %w", err)
	}
	return runnable, nil
}

// Ask sends question with the truncated document text as context. Rate-limited
// calls are retried with exponential backoff; every other failure is returned
// after a single attempt.
func (s *Service) Ask(ctx context.Context, chain Chain, text, question string, onRetry RetryObserver) (string, error) {
	if chain == nil {
		return "", &AnswerError{Kind: KindUpstream, Err: ErrNoChain}
	}

	input := map[string]any{
		"context":  TruncateContext(text, s.contextLimit),
		"question": question,
	}

	attempts := s.policy.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		response, err := chain.Invoke(ctx, input)
		if err == nil {
			if response == nil {
				return "", &AnswerError{Kind: KindUpstream, Attempts: attempt + 1, Err: ErrEmptyResponse}
			}
			log.Printf("[ai] answered on attempt %d, length=%d", attempt+1, len(response.Content))
			return response.Content, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &AnswerError{Kind: KindCanceled, Attempts: attempt + 1, Err: ctxErr}
		}
		if !IsRateLimited(err) {
			log.Printf("[ai] upstream failure on attempt %d: %v", attempt+1, err)
			return "", &AnswerError{Kind: KindUpstream, Attempts: attempt + 1, Err: providerError(err)}
		}

		lastErr = err
		if attempt == attempts-1 {
			break
		}

		delay := s.policy.Delay(attempt, s.jitter(s.policy.MaxJitter))
		log.Printf("[ai] rate limited on attempt %d/%d, retrying in %s", attempt+1, attempts, delay)
		if onRetry != nil {
			onRetry(attempt+1, delay, err)
		}
		if err := s.sleep(ctx, delay); err != nil {
			return "", &AnswerError{Kind: KindCanceled, Attempts: attempt + 1, Err: err}
		}
	}

	log.Printf("[ai] giving up after %d rate-limited attempts: %v", attempts, lastErr)
	return "", &AnswerError{Kind: KindRateLimited, Attempts: attempts, Err: ErrMaxRetries}
}
