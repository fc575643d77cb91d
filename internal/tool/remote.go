package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/toolhub/internal/resilience"
	"github.com/MrWong99/toolhub/pkg/types"
)

// maxRemoteBody caps how much of a remote response is read.
const maxRemoteBody = 4 << 20

// RemoteConfig describes a tool served by a third-party HTTP endpoint.
type RemoteConfig struct {
	// Descriptor is declared locally; the remote API is not asked for it.
	Descriptor types.ToolDescriptor

	// URL receives the call.
	URL string

	// Method defaults to POST. For GET the arguments are sent as query
	// parameters instead of a JSON body.
	Method string

	// Headers are added to every request (API keys, content negotiation).
	Headers map[string]string

	// Client overrides the HTTP client. Default: a client with no timeout;
	// deadlines come from the call context.
	Client *http.Client

	// Breaker tunes the circuit breaker guarding the endpoint.
	Breaker resilience.Config

	// Timeout is reported to the hub as this tool's default deadline.
	Timeout time.Duration
}

// Remote is a thin proxy to an HTTP API.
//
// A 2xx response becomes the result value: decoded JSON when the body parses,
// otherwise the raw text. A 4xx response is the remote tool refusing the
// request and becomes a tool-level failure. Connection errors, 5xx responses
// and an open circuit are transport errors.
type Remote struct {
	cfg     RemoteConfig
	client  *http.Client
	breaker *resilience.Breaker
}

var _ Adapter = (*Remote)(nil)

// errRemoteRejected marks 4xx responses so they do not trip the breaker.
var errRemoteRejected = errors.New("remote rejected request")

// NewRemote validates cfg and returns a remote adapter.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if err := cfg.Descriptor.Validate(); err != nil {
		return nil, fmt.Errorf("tool: remote: %w", err)
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("tool: remote %q: url must not be empty", cfg.Descriptor.Name)
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	cfg.Method = strings.ToUpper(cfg.Method)
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	bc := cfg.Breaker
	if bc.Name == "" {
		bc.Name = cfg.Descriptor.Name
	}
	if bc.IsFailure == nil {
		bc.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, errRemoteRejected) && !errors.Is(err, context.Canceled)
		}
	}
	return &Remote{cfg: cfg, client: client, breaker: resilience.New(bc)}, nil
}

// Describe returns the locally declared descriptor.
func (r *Remote) Describe(context.Context) (types.ToolDescriptor, error) {
	return r.cfg.Descriptor, nil
}

// Kind returns [KindRemoteHTTP].
func (r *Remote) Kind() AdapterKind { return KindRemoteHTTP }

// DefaultTimeout returns the configured default deadline, or zero.
func (r *Remote) DefaultTimeout() time.Duration { return r.cfg.Timeout }

// Close releases idle connections.
func (r *Remote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// Run forwards the arguments to the endpoint.
func (r *Remote) Run(ctx context.Context, args types.Arguments) (types.Result, error) {
	name := r.cfg.Descriptor.Name
	var res types.Result

	err := r.breaker.Do(ctx, func(ctx context.Context) error {
		req, err := r.newRequest(ctx, args)
		if err != nil {
			return err
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBody))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("remote returned %s", resp.Status)
		case resp.StatusCode >= 400:
			res = types.Failf("remote returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
			return errRemoteRejected
		}
		res = types.OK(DecodeBody(body))
		return nil
	})

	switch {
	case err == nil, errors.Is(err, errRemoteRejected):
		return res, nil
	case ctx.Err() != nil:
		return types.Result{}, Timeout(name, ctx.Err())
	default:
		return types.Result{}, Transport(name, err)
	}
}

func (r *Remote) newRequest(ctx context.Context, args types.Arguments) (*http.Request, error) {
	var (
		body   io.Reader
		target = r.cfg.URL
	)
	if r.cfg.Method == http.MethodGet {
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		q := u.Query()
		for k, v := range args {
			s, ok := v.Str()
			if !ok {
				s = v.String()
			}
			q.Set(k, s)
		}
		u.RawQuery = q.Encode()
		target = u.String()
	} else {
		data, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode arguments: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, r.cfg.Method, target, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range r.cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// DecodeBody parses body as JSON, falling back to the raw text.
func DecodeBody(body []byte) types.Value {
	var v types.Value
	if len(bytes.TrimSpace(body)) > 0 && v.UnmarshalJSON(body) == nil {
		return v
	}
	return types.String(string(body))
}
