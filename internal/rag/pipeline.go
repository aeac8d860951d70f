package rag

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faizmisman/dosm-faq-chatbot/internal/generator"
	"github.com/faizmisman/dosm-faq-chatbot/internal/textutil"
	"github.com/faizmisman/dosm-faq-chatbot/internal/vectorindex"
	"go.uber.org/zap"
)

const (
	DefaultSource        = "dosm_dataset"
	DefaultSnippetLength = 200
)

// Opener produces a fully built index. *vectorindex.Factory satisfies it.
type Opener interface {
	Open(ctx context.Context) (vectorindex.Index, error)
}

// Options configures a Pipeline.
type Options struct {
	Threshold        float64
	TopK             int
	Source           string
	SnippetMaxLength int
	GeneratorEnabled bool
	StubAnswer       string
	GeneratorTimeout time.Duration

	// RebuildOpener is used by Rebuild instead of the lazy-init opener,
	// so a rebuild can re-read the dataset rather than reopening a
	// persisted index. Nil falls back to the lazy-init opener.
	RebuildOpener Opener
}

// DefaultOptions returns the stock retrieval settings with the generator off.
func DefaultOptions() Options {
	return Options{
		Threshold:        DefaultThreshold,
		TopK:             DefaultTopK,
		Source:           DefaultSource,
		SnippetMaxLength: DefaultSnippetLength,
		GeneratorTimeout: DefaultGeneratorTimeout,
	}
}

// generation is one immutable published index. Queries hold a reference
// while they search it; a retired generation is closed once the last
// reference is released.
type generation struct {
	index   vectorindex.Index
	number  uint64
	builtAt time.Time

	refs      atomic.Int64
	retired   atomic.Bool
	closeOnce sync.Once
	closeErr  error
	logger    *zap.Logger
}

func (g *generation) release() {
	if g.refs.Add(-1) == 0 && g.retired.Load() {
		g.close()
	}
}

// retire marks g as superseded. It returns the close error when g could be
// closed immediately.
func (g *generation) retire() error {
	g.retired.Store(true)
	if g.refs.Load() == 0 {
		return g.close()
	}
	return nil
}

func (g *generation) close() error {
	g.closeOnce.Do(func() {
		c, ok := g.index.(io.Closer)
		if !ok {
			return
		}
		if g.closeErr = c.Close(); g.closeErr != nil {
			g.logger.Warn("failed to close retired index",
				zap.Uint64("generation", g.number),
				zap.Error(g.closeErr))
			return
		}
		g.logger.Debug("retired index closed", zap.Uint64("generation", g.number))
	})
	return g.closeErr
}

// Pipeline owns the active index generation and answers queries against it.
// Readers load the generation atomically; builds are serialized by mu.
type Pipeline struct {
	opener        Opener
	rebuildOpener Opener
	policy      Policy
	synthesizer *Synthesizer
	source      string
	snippetMax  int
	logger      *zap.Logger

	current   atomic.Pointer[generation]
	attempted atomic.Bool
	lastErr   atomic.Pointer[Error]

	mu  sync.Mutex
	seq uint64
}

// New creates a pipeline. The index is opened lazily on the first query,
// or eagerly through Warm. gen may be nil.
func New(opener Opener, gen generator.Generator, opts Options, logger *zap.Logger) *Pipeline {
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	if opts.SnippetMaxLength <= 0 {
		opts.SnippetMaxLength = DefaultSnippetLength
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}

	return &Pipeline{
		opener:        opener,
		rebuildOpener: opts.RebuildOpener,
		policy:      Policy{Threshold: opts.Threshold, TopK: opts.TopK},
		synthesizer: NewSynthesizer(gen, opts.GeneratorEnabled, opts.StubAnswer, opts.GeneratorTimeout, logger),
		source:      opts.Source,
		snippetMax:  opts.SnippetMaxLength,
		logger:      logger,
	}
}

// AnswerQuery runs one query end to end. It always returns a Result.
func (p *Pipeline) AnswerQuery(ctx context.Context, query string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("panic while answering query",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res = refuseResult()
		}
	}()

	g := p.acquire(ctx)
	if g == nil {
		return p.policy.Decide(false, nil).result()
	}
	defer g.release()
	idx := g.index

	candidates, err := idx.Search(ctx, query, p.policy.TopK)
	if err != nil {
		p.logger.Warn("index search failed",
			zap.String("kind", string(idx.Kind())),
			zap.Error(NewError(KindBackendTransient, "search failed", err)))
		return refuseResult()
	}

	decision := p.policy.Decide(true, candidates)
	if decision.Outcome != OutcomeAnswer {
		return decision.result()
	}

	return Result{
		Answer:      p.synthesizer.Synthesize(ctx, query, decision.Candidates),
		Citations:   p.citations(decision.Candidates),
		Confidence:  decision.Confidence,
		FailureMode: FailureNone,
	}
}

func (p *Pipeline) citations(candidates []vectorindex.Candidate) []Citation {
	out := make([]Citation, 0, len(candidates))
	for _, c := range candidates {
		row := c.Chunk.StartRow
		out = append(out, Citation{
			Source:       p.source,
			Snippet:      textutil.Truncate(c.Chunk.Content, p.snippetMax),
			RowReference: &row,
			Confidence:   Normalize(c.RawScore),
		})
	}
	return out
}

// acquire returns the active generation with a reference held, opening it
// first if needed. Callers must release it.
func (p *Pipeline) acquire(ctx context.Context) *generation {
	for {
		g := p.current.Load()
		if g == nil {
			if p.ensureIndex(ctx) == nil {
				return nil
			}
			continue
		}
		g.refs.Add(1)
		if p.current.Load() == g {
			return g
		}
		// swapped out between load and reference
		g.release()
	}
}

// ensureIndex returns the active index, opening it once if no attempt has
// been made yet. Concurrent first callers wait for the same build.
func (p *Pipeline) ensureIndex(ctx context.Context) vectorindex.Index {
	if g := p.current.Load(); g != nil {
		return g.index
	}
	if p.attempted.Load() {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if g := p.current.Load(); g != nil {
		return g.index
	}
	if p.attempted.Load() {
		return nil
	}

	g, err := p.build(ctx, p.opener)
	if err != nil {
		p.lastErr.Store(err)
		p.attempted.Store(true)
		p.logger.Error("index initialization failed", zap.Error(err))
		return nil
	}
	p.publish(g)
	return g.index
}

// Warm opens the index now instead of on the first query. It reports the
// reason when no index is available.
func (p *Pipeline) Warm(ctx context.Context) error {
	if p.ensureIndex(ctx) != nil {
		return nil
	}
	if err := p.lastErr.Load(); err != nil {
		return err
	}
	return ErrIndexUnavailable
}

// Rebuild opens a new generation through the rebuild opener and swaps it
// in. The previous generation is closed once in-flight queries finish with
// it. On failure the previous generation stays active.
func (p *Pipeline) Rebuild(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	opener := p.rebuildOpener
	if opener == nil {
		opener = p.opener
	}

	g, err := p.build(ctx, opener)
	if err != nil {
		p.lastErr.Store(err)
		p.attempted.Store(true)
		p.logger.Error("index rebuild failed, keeping current generation", zap.Error(err))
		return err
	}
	if old := p.publish(g); old != nil {
		old.retire()
	}
	return nil
}

// Reset drops the active generation so the next query opens a new one.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.attempted.Store(false)
	old := p.current.Swap(nil)
	p.lastErr.Store(nil)
	if old != nil {
		old.retire()
	}
}

// Status reports the active generation without blocking on builds.
func (p *Pipeline) Status() Status {
	st := Status{Attempted: p.attempted.Load()}
	if err := p.lastErr.Load(); err != nil {
		st.LastError = err.Error()
	}

	g := p.current.Load()
	if g == nil {
		return st
	}
	builtAt := g.builtAt
	st.Ready = true
	st.Kind = string(g.index.Kind())
	st.Size = g.index.Len()
	st.Generation = g.number
	st.BuiltAt = &builtAt
	return st
}

// Close retires the active generation. Its index is closed now, or after
// the last in-flight query when one is still searching it.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	g := p.current.Swap(nil)
	if g == nil {
		return nil
	}
	return g.retire()
}

// build must be called with mu held. The caller's cancellation does not
// abort it since other callers may be waiting on the result.
func (p *Pipeline) build(ctx context.Context, opener Opener) (g *generation, buildErr *Error) {
	defer func() {
		if r := recover(); r != nil {
			g, buildErr = nil, NewError(KindBackendTransient, "index build panicked", fmt.Errorf("%v", r))
		}
	}()

	start := time.Now()
	idx, err := opener.Open(context.WithoutCancel(ctx))
	if err != nil {
		return nil, classifyBuildError(err)
	}
	if idx == nil {
		return nil, NewError(KindIndexUnavailable, "opener returned no index", nil)
	}

	p.seq++
	p.logger.Info("index generation ready",
		zap.Uint64("generation", p.seq),
		zap.String("kind", string(idx.Kind())),
		zap.Int("chunks", idx.Len()),
		zap.Duration("took", time.Since(start)))
	return &generation{index: idx, number: p.seq, builtAt: time.Now().UTC(), logger: p.logger}, nil
}

// publish makes g visible before marking the attempt so that lock-free
// readers never see an attempted pipeline without its generation. It
// returns the generation g replaced.
func (p *Pipeline) publish(g *generation) *generation {
	p.lastErr.Store(nil)
	old := p.current.Swap(g)
	p.attempted.Store(true)
	return old
}
