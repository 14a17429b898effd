package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const userAgent = "Mozilla/5.0 (compatible; reviewdash/1.0)"

// doRequest executes req and returns the body of a 2xx response. Network
// failures are transient; other statuses are classified by statusErr.
func doRequest(ctx context.Context, client *http.Client, req *http.Request, source, op string) ([]byte, error) {
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, transientErr(source, op, fmt.Errorf("request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, transientErr(source, op, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusErr(source, op, resp.StatusCode, body)
	}
	return body, nil
}
