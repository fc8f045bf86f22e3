package usecase

import (
	"errors"
	"time"

	"auction-service/internal/domain"
)

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func isContention(err error) bool {
	return errors.Is(err, domain.ErrSettlementInProgress) ||
		errors.Is(err, domain.ErrAlreadySettled) ||
		errors.Is(err, domain.ErrAlreadyReleased) ||
		errors.Is(err, domain.ErrAlreadyRefunded) ||
		errors.Is(err, domain.ErrAlreadyEnded) ||
		errors.Is(err, domain.ErrPriceChanged)
}

func isBusiness(err error) bool {
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidState) ||
		errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrBidTooLow) ||
		errors.Is(err, domain.ErrForbidden) ||
		errors.Is(err, domain.ErrInsufficientFunds)
}
