package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/internal/generator"
	"github.com/faizmisman/dosm-faq-chatbot/internal/textutil"
	"github.com/faizmisman/dosm-faq-chatbot/internal/vectorindex"
	"go.uber.org/zap"
)

const (
	DefaultGeneratorTimeout = 10 * time.Second

	maxKeyFacts      = 6
	maxFallbackRunes = 180
	leadingPhrase    = "Based on the context,"
)

// Synthesizer turns the answer candidates into answer text. It never fails:
// generator problems fall through to the template.
type Synthesizer struct {
	generator generator.Generator
	enabled   bool
	stub      string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewSynthesizer creates a synthesizer. gen may be nil.
func NewSynthesizer(gen generator.Generator, enabled bool, stub string, timeout time.Duration, logger *zap.Logger) *Synthesizer {
	if timeout <= 0 {
		timeout = DefaultGeneratorTimeout
	}
	return &Synthesizer{
		generator: gen,
		enabled:   enabled,
		stub:      strings.TrimSpace(stub),
		timeout:   timeout,
		logger:    logger,
	}
}

// Synthesize returns the stub, a grounded generator answer or the template
// answer, in that order of preference.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, candidates []vectorindex.Candidate) string {
	contexts := make([]string, len(candidates))
	for i, c := range candidates {
		contexts[i] = c.Chunk.Content
	}

	if s.enabled {
		if s.stub != "" {
			return s.stub
		}
		if s.generator != nil {
			if answer, err := s.generate(ctx, query, contexts); err == nil {
				return answer
			} else if KindOf(err) == KindGroundingRejected {
				s.logger.Debug("generator answer rejected", zap.String("generator", s.generator.Name()), zap.Error(err))
			} else {
				s.logger.Warn("generator failed, using template answer", zap.String("generator", s.generator.Name()), zap.Error(err))
			}
		}
	}

	return TemplateAnswer(query, candidates)
}

type generated struct {
	text string
	err  error
}

// generate calls the generator under the configured timeout. A generator
// that ignores its context is abandoned when the timeout fires.
func (s *Synthesizer) generate(ctx context.Context, query string, contexts []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan generated, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generated{err: fmt.Errorf("generator panic: %v", r)}
			}
		}()
		text, err := s.generator.Generate(ctx, query, contexts)
		done <- generated{text: text, err: err}
	}()

	var out generated
	select {
	case out = <-done:
	case <-ctx.Done():
		return "", NewError(KindBackendTransient, "generator timed out", ctx.Err())
	}
	if out.err != nil {
		return "", NewError(KindBackendTransient, "generator call failed", out.err)
	}

	answer := strings.TrimSpace(out.text)
	answer = strings.TrimSpace(strings.TrimPrefix(answer, leadingPhrase))
	if answer == "" {
		return "", NewError(KindBackendTransient, "generator returned empty text", generator.ErrEmptyResponse)
	}
	if err := CheckGrounded(answer, contexts); err != nil {
		return "", err
	}
	return answer, nil
}

// CheckGrounded rejects answers sharing no whitespace token with the
// evidence. Comparison is case-insensitive.
func CheckGrounded(answer string, contexts []string) error {
	evidence := textutil.WhitespaceTokenSet(strings.Join(contexts, " "))
	if !textutil.Overlaps(textutil.WhitespaceTokenSet(answer), evidence) {
		return ErrGroundingRejected
	}
	return nil
}

// TemplateAnswer renders the deterministic answer built from the top
// candidate row range and the key facts of every candidate.
func TemplateAnswer(query string, candidates []vectorindex.Candidate) string {
	if len(candidates) == 0 {
		return NoMatchAnswer
	}

	contexts := make([]string, len(candidates))
	for i, c := range candidates {
		contexts[i] = c.Chunk.Content
	}

	top := candidates[0].Chunk
	return fmt.Sprintf(
		"Based on dataset rows %d–%d, key facts: %s. Answer to \"%s\" is drawn only from the cited rows; "+
			"citations are provided and no extrapolation beyond the data was made.",
		top.StartRow, top.EndRow, keyFacts(contexts), query)
}

// keyFacts extracts up to maxKeyFacts key=value pairs, first occurrence of
// each key wins. Without pairs it falls back to a prefix of the evidence.
func keyFacts(contexts []string) string {
	seen := make(map[string]bool)
	var pairs []string

scan:
	for _, text := range contexts {
		for _, tok := range strings.Fields(text) {
			key, value, ok := strings.Cut(tok, "=")
			if !ok || key == "" || seen[key] {
				continue
			}
			seen[key] = true
			pairs = append(pairs, key+"="+value)
			if len(pairs) == maxKeyFacts {
				break scan
			}
		}
	}

	if len(pairs) > 0 {
		return strings.Join(pairs, ", ")
	}
	return textutil.Prefix(strings.Join(contexts, " "), maxFallbackRunes)
}
