// internal/provider/refreshing.go
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/waabox/pipedeck/internal/domain"
)

// AuthExpiredError is returned when the provider token was rejected and
// refreshing it failed too, so new credentials must be configured.
type AuthExpiredError struct {
	Provider string
}

func (e *AuthExpiredError) Error() string {
	return fmt.Sprintf("%s credentials expired: configure a new token", e.Provider)
}

// RefreshingAdapter wraps a BuildAdapter and transparently handles 401 errors
// by fetching a new token and retrying the call once. If refresh fails, it
// returns AuthExpiredError.
type RefreshingAdapter struct {
	inner       domain.BuildAdapter
	provider    string
	refreshFn   func() (string, error)
	updateToken func(string)
}

// Ensure RefreshingAdapter implements BuildAdapter.
var _ domain.BuildAdapter = (*RefreshingAdapter)(nil)

// NewRefreshingAdapter creates a RefreshingAdapter.
// refreshFn is called on 401 to obtain a new access token.
// updateToken is called after a successful refresh to inject the token into the adapter.
func NewRefreshingAdapter(
	inner domain.BuildAdapter,
	providerName string,
	refreshFn func() (string, error),
	updateToken func(string),
) *RefreshingAdapter {
	return &RefreshingAdapter{
		inner:       inner,
		provider:    providerName,
		refreshFn:   refreshFn,
		updateToken: updateToken,
	}
}

// withRefresh runs call, and on ErrUnauthorized refreshes the token and runs it once more.
func withRefresh[T any](ra *RefreshingAdapter, call func() (T, error)) (T, error) {
	result, err := call()
	if err == nil || !errors.Is(err, domain.ErrUnauthorized) {
		return result, err
	}
	newToken, refreshErr := ra.refreshFn()
	if refreshErr != nil {
		var zero T
		return zero, &AuthExpiredError{Provider: ra.provider}
	}
	ra.updateToken(newToken)
	return call()
}

func (ra *RefreshingAdapter) Submit(ctx context.Context, tmpl domain.JobTemplate) (domain.JobHandle, error) {
	return withRefresh(ra, func() (domain.JobHandle, error) {
		return ra.inner.Submit(ctx, tmpl)
	})
}

func (ra *RefreshingAdapter) Poll(ctx context.Context, h domain.JobHandle) (domain.JobUpdate, error) {
	return withRefresh(ra, func() (domain.JobUpdate, error) {
		return ra.inner.Poll(ctx, h)
	})
}

func (ra *RefreshingAdapter) Cancel(ctx context.Context, h domain.JobHandle) error {
	_, err := withRefresh(ra, func() (struct{}, error) {
		return struct{}{}, ra.inner.Cancel(ctx, h)
	})
	return err
}
