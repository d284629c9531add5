// Package rest is the HTTP adapter for the shared remote store. It speaks
// the hierarchical entry paths of the compliance backend and maps HTTP
// status codes onto the synchronizer's error taxonomy.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	readings "fieldlog/internal/readings/domain"
	"fieldlog/internal/retry"
	"fieldlog/internal/syncer"
)

const defaultTimeout = 15 * time.Second

// Client talks to the remote compliance store over HTTP.
type Client struct {
	http *resty.Client
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithAuthToken sends a bearer token on every request.
func WithAuthToken(token string) Option {
	return func(c *Client) { c.http.SetAuthToken(token) }
}

// NewClient builds a client against baseURL. Retries are owned by the
// synchronizer's executor, so the underlying HTTP client never retries on
// its own.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(defaultTimeout).
			SetRetryCount(0).
			SetHeader("Accept", "application/json"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// putRequest is the write envelope. The base version travels alongside the
// record so the server can run its optimistic check.
type putRequest struct {
	Reading     readings.Reading `json:"reading"`
	BaseVersion int64            `json:"base_version"`
}

type putResponse struct {
	Version int64 `json:"version"`
}

// conflictResponse is the 409 body. The server includes the current record
// so the resolver can merge without a second round trip.
type conflictResponse struct {
	RemoteVersion int64             `json:"remote_version"`
	Remote        *readings.Reading `json:"remote,omitempty"`
}

// Fetch retrieves the current record for id.
func (c *Client) Fetch(ctx context.Context, id readings.Identity) (*readings.Reading, error) {
	var record readings.Reading
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&record).
		Get("/" + id.RemotePath())
	if err != nil {
		return nil, retry.MarkTransient(fmt.Errorf("rest: fetch %s: %w", id.Key(), err))
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return &record, nil
	case http.StatusNotFound:
		return nil, syncer.ErrNotFound
	default:
		return nil, statusError("fetch", id, resp)
	}
}

// Put writes the reading if the remote record is still at baseVersion.
// A 409 is decoded into a *ConflictError carrying the current record.
func (c *Client) Put(ctx context.Context, reading readings.Reading, baseVersion int64) (int64, error) {
	id := reading.Identity()

	var ok putResponse
	var conflict conflictResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(putRequest{Reading: reading, BaseVersion: baseVersion}).
		SetResult(&ok).
		SetError(&conflict).
		Put("/" + id.RemotePath())
	if err != nil {
		return 0, retry.MarkTransient(fmt.Errorf("rest: put %s: %w", id.Key(), err))
	}

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusCreated:
		return ok.Version, nil
	case http.StatusConflict:
		return 0, &syncer.ConflictError{
			BaseVersion:   baseVersion,
			RemoteVersion: conflict.RemoteVersion,
			Remote:        conflict.Remote,
		}
	default:
		return 0, statusError("put", id, resp)
	}
}

// statusError classifies a non-2xx response for the retry executor. Auth
// and client errors will not heal on their own; throttling and server
// errors might.
func statusError(op string, id readings.Identity, resp *resty.Response) error {
	err := fmt.Errorf("rest: %s %s: %s", op, id.Key(), resp.Status())
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests,
		resp.StatusCode() == http.StatusRequestTimeout:
		return retry.MarkTransient(err)
	case resp.StatusCode() >= http.StatusInternalServerError:
		return retry.MarkTransient(err)
	case resp.StatusCode() == http.StatusUnauthorized,
		resp.StatusCode() == http.StatusForbidden:
		return retry.MarkPermanent(err)
	default:
		return retry.MarkPermanent(err)
	}
}
