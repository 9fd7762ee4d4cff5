package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"docqa/internal/adapter/cache"
	"docqa/internal/domain"
	"docqa/internal/logger"
	"docqa/internal/metrics"
)

// ProgressFunc is called after each question reaches a terminal state.
type ProgressFunc func(done, total int)

// PipelineOptions configures question answering.
type PipelineOptions struct {
	TopK        int
	Concurrency int
}

// Pipeline answers a batch of questions about one document.
type Pipeline struct {
	index    *IndexUseCase
	answerer *Answerer
	cache    *cache.AnswerCache
	opts     PipelineOptions
	metrics  *metrics.Metrics

	inflight singleflight.Group

	mu       sync.Mutex
	progress ProgressFunc
}

func NewPipeline(index *IndexUseCase, answerer *Answerer, answers *cache.AnswerCache, opts PipelineOptions, m *metrics.Metrics) *Pipeline {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if answers == nil {
		answers = cache.New("", true)
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Pipeline{
		index:    index,
		answerer: answerer,
		cache:    answers,
		opts:     opts,
		metrics:  m,
	}
}

// OnProgress registers fn to be called as questions complete.
func (p *Pipeline) OnProgress(fn ProgressFunc) {
	p.mu.Lock()
	p.progress = fn
	p.mu.Unlock()
}

// Run answers every question in req. Answers keep the order of
// req.Questions. A request-fatal error aborts the batch and no answers are
// returned; question-scoped failures become fallback text.
func (p *Pipeline) Run(ctx context.Context, req domain.Request) (*domain.Response, error) {
	documentURL := strings.TrimSpace(req.DocumentURL)
	if documentURL == "" {
		return nil, fmt.Errorf("%w: document URL is required", domain.ErrInvalidInput)
	}
	if len(req.Questions) == 0 {
		return nil, fmt.Errorf("%w: at least one question is required", domain.ErrInvalidInput)
	}

	if logger.RequestID(ctx) == "" {
		ctx = logger.WithRequestID(ctx, uuid.NewString())
	}
	log := logger.FromContext(ctx).With("component", "pipeline")
	start := time.Now()

	total := len(req.Questions)
	results := make([]domain.AnswerResult, total)
	var misses []int
	var done int

	for i, q := range req.Questions {
		results[i].Question = q
		if strings.TrimSpace(q) == "" {
			results[i].Answer = FailureAnswer
			results[i].Status = domain.StatusFailed
			done++
			continue
		}
		if answer, ok := p.cache.Get(cache.Key(documentURL, q)); ok {
			p.metrics.CacheHitsTotal.Inc()
			results[i].Answer = answer
			results[i].FromCache = true
			results[i].Status = domain.StatusCacheHit
			done++
			continue
		}
		p.metrics.CacheMissesTotal.Inc()
		misses = append(misses, i)
	}
	p.report(done, total)

	log.Info("request accepted", "questions", total, "cache_hits", total-len(misses))

	if len(misses) > 0 {
		idx, err := p.index.Build(ctx, documentURL)
		if err != nil {
			return nil, err
		}

		var mu sync.Mutex
		g := new(errgroup.Group)
		g.SetLimit(p.opts.Concurrency)
		for _, i := range misses {
			g.Go(func() error {
				res := p.answerOne(ctx, idx, documentURL, req.Questions[i])

				mu.Lock()
				defer mu.Unlock()
				results[i] = res
				done++
				p.report(done, total)
				return nil
			})
		}
		_ = g.Wait()
	}

	if err := p.cache.Flush(); err != nil {
		log.Warn("answer cache flush failed", "error", err)
	}

	resp := &domain.Response{
		Answers: make([]string, total),
		Results: results,
	}
	for i, r := range results {
		resp.Answers[i] = r.Answer
		p.metrics.QuestionsTotal.WithLabelValues(string(r.Status)).Inc()
	}

	log.Info("request completed", "questions", total, "duration", time.Since(start).Round(time.Millisecond))
	return resp, nil
}

// answerOne drives a single question from retrieval to a terminal state.
// Identical cache keys in flight at the same time share one generation,
// also across requests. The shared call is detached from the caller's
// cancellation and bounded by the answerer deadline; each caller stops
// waiting on its own context.
func (p *Pipeline) answerOne(ctx context.Context, idx *RetrievalIndex, documentURL, question string) domain.AnswerResult {
	key := cache.Key(documentURL, question)
	shared := context.WithoutCancel(ctx)
	ch := p.inflight.DoChan(key, func() (any, error) {
		return p.generate(shared, idx, key, question), nil
	})

	select {
	case r := <-ch:
		res := r.Val.(domain.AnswerResult)
		res.Question = question
		return res
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", domain.ErrGenerationTimeout, err)
		} else {
			err = fmt.Errorf("%w: %v", domain.ErrGeneration, err)
		}
		logger.FromContext(ctx).Warn("question abandoned", "component", "pipeline", "error", err)
		return domain.AnswerResult{Question: question, Answer: FallbackFor(err), Status: StatusFor(err)}
	}
}

func (p *Pipeline) generate(ctx context.Context, idx *RetrievalIndex, key, question string) domain.AnswerResult {
	log := logger.FromContext(ctx).With("component", "pipeline", "question", truncateText(question, 80))

	if answer, ok := p.cache.Get(key); ok {
		return domain.AnswerResult{Answer: answer, FromCache: true, Status: domain.StatusCacheHit}
	}

	chunks, err := idx.Search(ctx, question, p.opts.TopK)
	if err != nil {
		log.Error("retrieval failed", "error", err)
		return domain.AnswerResult{Answer: FailureAnswer, Status: domain.StatusFailed}
	}

	start := time.Now()
	answer, err := p.answerer.Answer(ctx, chunks, question)
	p.metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, domain.ErrGenerationTimeout) {
			log.Warn("generation timed out", "error", err)
		} else {
			log.Error("generation failed", "error", err)
		}
		return domain.AnswerResult{Answer: FallbackFor(err), Status: StatusFor(err)}
	}

	if err := p.cache.Put(key, answer); err != nil {
		log.Warn("answer cache write failed", "error", err)
	}
	log.Debug("question answered", "chunks", len(chunks), "duration", time.Since(start).Round(time.Millisecond))
	return domain.AnswerResult{Answer: answer, Status: domain.StatusAnswered}
}

func (p *Pipeline) report(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.progress != nil {
		p.progress(done, total)
	}
}

func truncateText(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
