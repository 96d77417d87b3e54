package openai

import (
	"context"
	"errors"
	"net/http"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/openai/openai-go"
)

// remoteError classifies a client failure into the remote error taxonomy.
// Cancellation by the caller is returned unchanged.
func remoteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewRemoteError(domain.RemoteTimeout, err)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return domain.NewRemoteError(domain.RemoteAuth, err)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return domain.NewRemoteError(domain.RemoteRateLimit, err)
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			return domain.NewRemoteError(domain.RemoteTimeout, err)
		}
	}

	return domain.NewRemoteError(domain.RemoteUnavailable, err)
}
