// Package apicaller implements the api_caller tool: a generic HTTP request
// whose response status and body are handed back to the caller.
package apicaller

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
	"github.com/MrWong99/toolhub/internal/tool"
	"github.com/MrWong99/toolhub/pkg/types"
)

// Name is the registry key of the tool.
const Name = "api_caller"

// DefaultTimeout bounds one request when the hub supplies no deadline.
const DefaultTimeout = 15 * time.Second

const maxBody = 4 << 20

// errServer marks 5xx responses. They are reported to the caller like any
// other response but count against the host's breaker.
var errServer = errors.New("server error")

var descriptor = types.ToolDescriptor{
	Name:        Name,
	Description: "Performs an HTTP request against a REST API and returns the status code and body.",
	Parameters: types.Parameters{
		{Name: "url", Type: types.TypeString, Description: "Absolute http or https URL.", Required: true},
		{Name: "method", Type: types.TypeString, Description: "HTTP method. Defaults to GET."},
		{Name: "headers", Type: types.TypeObject, Description: "Request headers with string values."},
		{Name: "json_body", Type: types.TypeAny, Description: "JSON request body."},
	},
}

// Config wires the tool's HTTP client and breakers.
type Config struct {
	// Client defaults to http.DefaultClient semantics with no timeout.
	Client *http.Client

	// Breakers holds one breaker per target host. Default: a fresh set.
	Breakers *resilience.BreakerSet
}

// New returns the tool.
func New(cfg Config) *tool.Func {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	breakers := cfg.Breakers
	if breakers == nil {
		breakers = resilience.NewBreakerSet(resilience.Config{})
	}

	return tool.MustFunc(descriptor, func(ctx context.Context, args types.Arguments) (types.Value, error) {
		req, err := newRequest(ctx, args)
		if err != nil {
			return types.Value{}, err
		}

		var out types.Value
		err = breakers.Get(req.URL.Host).Do(ctx, func(ctx context.Context) error {
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
			if err != nil {
				return fmt.Errorf("read response: %w", err)
			}
			out = types.Object(map[string]types.Value{
				"status_code": types.Int(int64(resp.StatusCode)),
				"body":        tool.DecodeBody(body),
			})
			if resp.StatusCode >= 500 {
				return errServer
			}
			return nil
		})
		if err != nil && !errors.Is(err, errServer) {
			return types.Value{}, fmt.Errorf("request %s %s: %w", req.Method, req.URL.Redacted(), err)
		}
		return out, nil
	}, tool.WithDefaultTimeout(DefaultTimeout))
}

func newRequest(ctx context.Context, args types.Arguments) (*http.Request, error) {
	raw, _ := args.Str("url")
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q: want an absolute http(s) URL", raw)
	}
	method := strings.ToUpper(args.StrOr("method", http.MethodGet))

	var body io.Reader
	if jb, ok := args["json_body"]; ok && !jb.IsNull() {
		data, err := json.Marshal(jb)
		if err != nil {
			return nil, fmt.Errorf("encode json_body: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if hs, ok := args.Object("headers"); ok {
		for k, v := range hs {
			s, ok := v.Str()
			if !ok {
				return nil, fmt.Errorf("header %q must be a string", k)
			}
			req.Header.Set(k, s)
		}
	}
	return req, nil
}
