package rankingservice

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "temporary", err: tempErr{}, want: true},
		{name: "wrapped temporary", err: fmt.Errorf("insert: %w", tempErr{}), want: true},
		{name: "bad connection", err: driver.ErrBadConn, want: true},
		{name: "unexpected eof", err: fmt.Errorf("read: %w", io.ErrUnexpectedEOF), want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "integrity fault", err: &rankingdomain.DataIntegrityError{Reason: "x"}, want: false},
		{name: "incomplete data", err: &rankingdomain.IncompleteGroupDataError{Reason: "x"}, want: false},
		{name: "invalid state", err: &rankingdomain.InvalidStateError{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isTransient(tt.err))
		})
	}
}

func TestRetryInTx(t *testing.T) {
	repo := NewFakeRankingRepo()
	svc, _ := newTestService(t, repo, afterWeekEnd)

	t.Run("stops at the first permanent error", func(t *testing.T) {
		calls := 0
		_, err := retryInTx(svc, context.Background(), "test", func(ctx context.Context, db bun.IDB) (int, error) {
			calls++
			return 0, errors.New("boom")
		})
		require.EqualError(t, err, "boom")
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient errors up to the limit", func(t *testing.T) {
		calls := 0
		_, err := retryInTx(svc, context.Background(), "test", func(ctx context.Context, db bun.IDB) (int, error) {
			calls++
			return 0, tempErr{}
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns the value once it succeeds", func(t *testing.T) {
		calls := 0
		got, err := retryInTx(svc, context.Background(), "test", func(ctx context.Context, db bun.IDB) (int, error) {
			calls++
			if calls < 2 {
				return 0, tempErr{}
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	})
}
