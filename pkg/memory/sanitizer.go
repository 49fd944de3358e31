package memory

import (
	"context"
	"fmt"
	"regexp"

	"golang.org/x/time/rate"
)

// Sanitizer rewrites record text so it is safe to expose to other users.
// An error means the text could not be cleared for publication.
type Sanitizer interface {
	Sanitize(ctx context.Context, text string) (string, error)
}

// RedactingSanitizer is the built-in sanitizer. It masks obvious contact
// identifiers so a published record cannot carry them verbatim.
type RedactingSanitizer struct{}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`)
)

// Sanitize masks email addresses and phone numbers.
func (RedactingSanitizer) Sanitize(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text = emailPattern.ReplaceAllString(text, "[redacted-email]")
	text = phonePattern.ReplaceAllString(text, "[redacted-phone]")
	return text, nil
}

// RateLimitedSanitizer wraps a sanitizer with a token-bucket limiter, for
// backends that charge per call or throttle aggressively. Wait respects the
// caller's deadline, so an exhausted bucket surfaces as a sanitizer error
// and the record stays private.
type RateLimitedSanitizer struct {
	inner   Sanitizer
	limiter *rate.Limiter
}

// NewRateLimitedSanitizer wraps inner with a limiter of perSecond tokens and
// the given burst.
func NewRateLimitedSanitizer(inner Sanitizer, perSecond float64, burst int) *RateLimitedSanitizer {
	return &RateLimitedSanitizer{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Sanitize waits for a token, then delegates.
func (s *RateLimitedSanitizer) Sanitize(ctx context.Context, text string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("sanitizer rate limit: %w", err)
	}
	return s.inner.Sanitize(ctx, text)
}
