package translator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

type Request struct {
	Text       string
	SourceLang string
	TargetLang string
}

type Result struct {
	OriginalText       string  `json:"original_text"`
	TranslatedText     string  `json:"translated_text"`
	SourceLang         string  `json:"source_lang"`
	TargetLang         string  `json:"target_lang"`
	DetectedSourceLang string  `json:"detected_source_lang,omitempty"`
	Confidence         float64 `json:"confidence"`
	FromCache          bool    `json:"from_cache"`
}

// Coordinator deduplicates translation lookups through a bounded cache.
// Concurrent requests for the same key share a single provider call.
type Coordinator struct {
	provider Provider
	cache    *Cache
	timeout  time.Duration
	inflight singleflight.Group
}

func NewCoordinator(provider Provider, cache *Cache, timeout time.Duration) *Coordinator {
	if cache == nil {
		cache = NewCache(DefaultCacheSize)
	}
	return &Coordinator{
		provider: provider,
		cache:    cache,
		timeout:  timeout,
	}
}

func (c *Coordinator) Translate(ctx context.Context, req Request) (Result, error) {
	text := strings.TrimSpace(req.Text)
	res := Result{
		OriginalText: req.Text,
		SourceLang:   req.SourceLang,
		TargetLang:   req.TargetLang,
	}
	if text == "" || req.TargetLang == "" {
		return res, fmt.Errorf("%w: text and target language are required", ErrTranslationFailed)
	}
	if SameLanguage(req.SourceLang, req.TargetLang) {
		res.TranslatedText = req.Text
		res.DetectedSourceLang = req.SourceLang
		res.Confidence = 1
		return res, nil
	}

	key := CacheKey{SourceLang: req.SourceLang, TargetLang: req.TargetLang, Text: text}
	if t, ok := c.cache.Get(key); ok {
		return fill(res, t, true), nil
	}

	// The shared call outlives any single caller, so one session stopping never
	// fails the others waiting on the same key.
	called := false
	ch := c.inflight.DoChan(flightKey(key), func() (any, error) {
		called = true
		// A previous flight may have completed between the miss above and this call.
		if t, ok := c.cache.Get(key); ok {
			called = false
			return t, nil
		}
		callCtx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, c.timeout)
			defer cancel()
		}
		t, err := c.provider.Translate(callCtx, text, req.SourceLang, req.TargetLang)
		if err != nil {
			return Translation{}, err
		}
		c.cache.Add(key, t)
		return t, nil
	})

	var flight singleflight.Result
	select {
	case flight = <-ch:
	case <-ctx.Done():
		return res, fmt.Errorf("%w: %w", ErrTranslationFailed, ctx.Err())
	}
	if flight.Err != nil {
		slog.Warn("translation provider call failed", "error", flight.Err, "source_lang", req.SourceLang, "target_lang", req.TargetLang)
		return res, fmt.Errorf("%w: %w", ErrTranslationFailed, flight.Err)
	}
	return fill(res, flight.Val.(Translation), !called), nil
}

func fill(res Result, t Translation, fromCache bool) Result {
	res.TranslatedText = t.TranslatedText
	res.DetectedSourceLang = t.DetectedSourceLang
	res.Confidence = t.Confidence
	res.FromCache = fromCache
	return res
}

func flightKey(k CacheKey) string {
	return k.SourceLang + "\x00" + k.TargetLang + "\x00" + k.Text
}
