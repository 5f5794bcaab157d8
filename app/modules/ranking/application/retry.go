package rankingservice

import (
	"context"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/uptrace/bun/driver/pgdriver"

	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
)

// SQLSTATE codes worth another attempt of the whole transaction.
var transientCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
	"57014": {}, // query_canceled (statement timeout)
}

// isTransient reports whether err may succeed on a fresh transaction.
func isTransient(err error) bool {
	if err == nil || rankingdomain.IsFatal(err) {
		return false
	}

	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		code := pgErr.Field('C')
		if _, ok := transientCodes[code]; ok {
			return true
		}
		return strings.HasPrefix(code, "08")
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.ErrUnexpectedEOF)
}

// retryInTx runs fn in a transaction and retries the whole transaction with
// exponential backoff while the failure is transient.
func retryInTx[T any](s *RankingService, ctx context.Context, operation string, fn txFunc[T]) (T, error) {
	policy := s.settings.Retry
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	tries := policy.MaxTries
	if tries == 0 {
		tries = 1
	}

	return backoff.Retry(ctx, func() (T, error) {
		res, err := runInTx(s, ctx, fn)
		if err != nil && !isTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.metrics.RecordTransientRetry(ctx, operation)
			s.logger.WarnContext(ctx, "Transient storage error, retrying transaction",
				slog.String("operation", operation),
				slog.Duration("backoff", next),
				slog.Any("error", err),
			)
		}),
	)
}
