// Package effects provides ready-made effect descriptors for the impure
// operations applications need most: HTTP requests, timers, identifier and
// random-number generation, and persistent storage. Each effect follows the
// errors-as-data protocol: outcomes re-enter the application as dispatched
// actions, success and failure alike, and only a failure with no failure
// action configured is surfaced to the runtime as a lost failure.
package effects

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/comalice/dispatchx"
)

// DefaultClient is used by Request when RequestData.Client is nil.
var DefaultClient = &http.Client{Timeout: 30 * time.Second}

// RequestData configures a Request effect.
type RequestData[S any] struct {
	// Method defaults to GET.
	Method string
	URL    string
	// Body and ContentType are sent when Body is non-empty.
	Body        []byte
	ContentType string
	// Timeout bounds this one request when positive; otherwise the client's
	// own timeout applies.
	Timeout time.Duration
	// Client overrides DefaultClient.
	Client *http.Client
	// OnOK receives a Response payload for statuses below 400.
	OnOK dispatchx.Action[S]
	// OnErr receives an error payload for transport failures and statuses
	// of 400 and above. When nil, failures are lost failures.
	OnErr dispatchx.Action[S]
}

// Response is the payload delivered to OnOK.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// JSON decodes the response body into out.
func (r Response) JSON(out any) error {
	return json.Unmarshal(r.Body, out)
}

// Request performs one HTTP request and reports the outcome through the
// configured actions.
func Request[S any](data RequestData[S]) dispatchx.Effect[S] {
	return dispatchx.Effect[S]{Runner: httpRunner[S]{}, Data: data}
}

// Get requests url and reports the outcome through onOK and onErr.
func Get[S any](url string, onOK, onErr dispatchx.Action[S]) dispatchx.Effect[S] {
	return Request(RequestData[S]{URL: url, OnOK: onOK, OnErr: onErr})
}

// Post sends body to url with the given content type.
func Post[S any](url, contentType string, body []byte, onOK, onErr dispatchx.Action[S]) dispatchx.Effect[S] {
	return Request(RequestData[S]{
		Method:      http.MethodPost,
		URL:         url,
		Body:        body,
		ContentType: contentType,
		OnOK:        onOK,
		OnErr:       onErr,
	})
}

type httpRunner[S any] struct{}

func (httpRunner[S]) Run(ctx context.Context, dispatch dispatchx.Dispatch[S], data any) error {
	cfg, ok := data.(RequestData[S])
	if !ok {
		return fmt.Errorf("http effect: unexpected data %T", data)
	}
	resp, err := do(ctx, cfg)
	if err != nil {
		if cfg.OnErr == nil {
			return err
		}
		dispatch(cfg.OnErr, err)
		return nil
	}
	if cfg.OnOK != nil {
		dispatch(cfg.OnOK, resp)
	}
	return nil
}

func do[S any](ctx context.Context, cfg RequestData[S]) (Response, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if len(cfg.Body) > 0 {
		body = bytes.NewReader(cfg.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, body)
	if err != nil {
		return Response{}, fmt.Errorf("build request %s %s: %w", method, cfg.URL, err)
	}
	if cfg.ContentType != "" {
		req.Header.Set("Content-Type", cfg.ContentType)
	}
	client := cfg.Client
	if client == nil {
		client = DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response from %s: %w", cfg.URL, err)
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("%s %s: %s", method, cfg.URL, resp.Status)
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: raw}, nil
}
