package domain

import (
	"context"
	"errors"
	"net"
)

// Category buckets a provider failure for the retry decision.
type Category string

const (
	CategoryAuth      Category = "auth"
	CategoryRateLimit Category = "rate_limit"
	CategoryServer    Category = "server"
	CategoryNotFound  Category = "not_found"
	CategoryInvalid   Category = "invalid"
	CategoryNetwork   Category = "network"
	CategoryUnknown   Category = "unknown"
)

// retryableByCategory is the explicit retry table: timeouts, rate limits
// and 5xx retry; auth and other 4xx do not. Unknown errors retry once
// through the normal budget rather than failing a tenant on a transient
// blip we could not classify.
var retryableByCategory = map[Category]bool{
	CategoryAuth:      false,
	CategoryRateLimit: true,
	CategoryServer:    true,
	CategoryNotFound:  false,
	CategoryInvalid:   false,
	CategoryNetwork:   true,
	CategoryUnknown:   true,
}

// Classify maps a provider error onto its category.
func Classify(err error) Category {
	switch {
	case err == nil:
		return CategoryUnknown
	case errors.Is(err, ErrAuth):
		return CategoryAuth
	case errors.Is(err, ErrRateLimited):
		return CategoryRateLimit
	case errors.Is(err, ErrServer):
		return CategoryServer
	case errors.Is(err, ErrNotFound):
		return CategoryNotFound
	case errors.Is(err, ErrInvalid):
		return CategoryInvalid
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}
	return CategoryUnknown
}

// Retryable reports whether the dispatcher should retry after err.
func Retryable(err error) bool {
	return retryableByCategory[Classify(err)]
}
