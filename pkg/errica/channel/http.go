package channel

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kart-io/errica/pkg/errica/errors"
)

// maxErrorBody bounds how much of a failed response body ends up in a Result.
const maxErrorBody = 512

// StatusError converts a non-2xx HTTP response into a coded error.
// 401 and 403 are auth failures, 408 and 504 timeouts, anything else a rejection.
func StatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := fmt.Sprintf("status %d", resp.StatusCode)
	if len(body) > 0 {
		msg += ": " + string(body)
	}

	code := errors.ErrChannelRejected
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = errors.ErrChannelAuth
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		code = errors.ErrChannelTimeout
	}
	return errors.New(code, msg).WithContext("status", resp.StatusCode)
}

// HTTPStatus returns the HTTP status recorded by StatusError, or 0.
func HTTPStatus(err error) int {
	var e *errors.Error
	if stderrors.As(err, &e) {
		if status, ok := e.Context["status"].(int); ok {
			return status
		}
	}
	return 0
}

// ProbeURL sends a HEAD request to url. Any 2xx answer, and 405 from endpoints
// that only accept POST, counts as reachable.
func ProbeURL(ctx context.Context, client *http.Client, url string, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrInvalidConfig, "build health check request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 || resp.StatusCode == http.StatusMethodNotAllowed {
		return nil
	}
	return StatusError(resp)
}
