package tool

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/toolhub/pkg/types"
)

// ─── Helpers ─────────────────────────────────────────────────────────────────

func searchDescriptor() types.ToolDescriptor {
	return types.ToolDescriptor{
		Name: "search",
		Parameters: types.Parameters{
			{Name: "query", Type: types.TypeString, Required: true},
			{Name: "limit", Type: types.TypeInteger},
			{Name: "filters", Type: types.TypeObject},
		},
	}
}

// ─── Errors ──────────────────────────────────────────────────────────────────

func TestErrorMatchesSentinels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want error
		kind ErrorKind
	}{
		{UnknownTool("x"), ErrUnknownTool, KindUnknownTool},
		{Validation("x", "bad"), ErrValidation, KindValidation},
		{Transport("x", errors.New("refused")), ErrTransport, KindTransport},
		{Timeout("x", context.DeadlineExceeded), ErrTimeout, KindTimeout},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.want)
		}
		if errors.Is(tt.err, ErrTool) {
			t.Errorf("%v unexpectedly matches ErrTool", tt.err)
		}
		if got := KindOf(tt.err); got != tt.kind {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.kind)
		}
	}
	if got := UnknownTool("nope").Error(); got != "unknown tool: nope" {
		t.Errorf("UnknownTool message = %q", got)
	}
	if !errors.Is(Timeout("x", context.DeadlineExceeded), context.DeadlineExceeded) {
		t.Error("Timeout does not unwrap to its cause")
	}
}

// ─── Schema ──────────────────────────────────────────────────────────────────

func TestValidateArgs(t *testing.T) {
	t.Parallel()

	desc := searchDescriptor()
	tests := []struct {
		name    string
		args    types.Arguments
		wantErr string
	}{
		{"minimal", types.Arguments{"query": types.String("go")}, ""},
		{"extra keys tolerated", types.Arguments{"query": types.String("go"), "future": types.Bool(true)}, ""},
		{"optional null tolerated", types.Arguments{"query": types.String("go"), "limit": types.Null()}, ""},
		{"missing required", types.Arguments{"limit": types.Int(3)}, `missing required argument "query"`},
		{"wrong required type", types.Arguments{"query": types.Int(1)}, `argument "query" must be string, got number`},
		{"fractional integer", types.Arguments{"query": types.String("go"), "limit": types.Number(2.5)}, `argument "limit" must be integer`},
		{"wrong optional type", types.Arguments{"query": types.String("go"), "filters": types.String("x")}, `argument "filters" must be object`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateArgs(desc, tt.args)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidateArgs = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("ValidateArgs = %v, want validation error", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

// ─── In-process adapter ──────────────────────────────────────────────────────

func TestFuncRun(t *testing.T) {
	t.Parallel()

	f := MustFunc(searchDescriptor(), func(_ context.Context, args types.Arguments) (types.Value, error) {
		q, _ := args.Str("query")
		if q == "fail" {
			return types.Value{}, errors.New("no results")
		}
		return types.String("found " + q), nil
	})

	res, err := f.Run(context.Background(), types.Arguments{"query": types.String("go")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s, _ := res.Value.Str(); s != "found go" {
		t.Errorf("value = %v", res.Value)
	}

	res, err = f.Run(context.Background(), types.Arguments{"query": types.String("fail")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Err != "no results" {
		t.Errorf("Err = %q, want tool error", res.Err)
	}
}

func TestFuncRecoversPanic(t *testing.T) {
	t.Parallel()

	f := MustFunc(types.ToolDescriptor{Name: "boom"}, func(context.Context, types.Arguments) (types.Value, error) {
		var m map[string]int
		m["x"] = 1
		return types.Null(), nil
	})
	res, err := f.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run returned Go error %v, want envelope", err)
	}
	if !strings.HasPrefix(res.Err, "panic: ") {
		t.Errorf("Err = %q, want panic prefix", res.Err)
	}
	if !res.Valid() {
		t.Error("envelope invalid after panic")
	}
}

func TestFuncAbandonsOnDeadline(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	defer close(release)
	f := MustFunc(types.ToolDescriptor{Name: "stuck"}, func(context.Context, types.Arguments) (types.Value, error) {
		<-release
		return types.Null(), nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := f.Run(ctx, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Run = %v, want timeout", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Run waited for the handler instead of abandoning it")
	}
}

func TestFuncAbandonedHandlerHoldsLease(t *testing.T) {
	t.Parallel()

	unblock := make(chan struct{})
	f := MustFunc(types.ToolDescriptor{Name: "stuck"}, func(context.Context, types.Arguments) (types.Value, error) {
		<-unblock
		return types.Null(), nil
	})

	var released atomic.Int64
	lease := NewLease(func() { released.Add(1) })
	ctx, cancel := context.WithTimeout(WithLease(context.Background(), lease), 20*time.Millisecond)
	defer cancel()

	if _, err := f.Run(ctx, nil); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Run = %v, want timeout", err)
	}
	lease.Done()
	if released.Load() != 0 {
		t.Fatal("lease released while the handler is still running")
	}

	close(unblock)
	deadline := time.Now().Add(2 * time.Second)
	for released.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("lease not released after the handler returned")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := released.Load(); n != 1 {
		t.Errorf("release ran %d times, want 1", n)
	}
}

func TestLease(t *testing.T) {
	t.Parallel()

	var released atomic.Int64
	l := NewLease(func() { released.Add(1) })
	drop := l.Extend()
	l.Done()
	if released.Load() != 0 {
		t.Fatal("released with an extension outstanding")
	}
	drop()
	drop()
	if n := released.Load(); n != 1 {
		t.Errorf("release ran %d times, want 1", n)
	}

	var nilLease *Lease
	nilLease.Extend()()
	if LeaseFrom(context.Background()) != nil {
		t.Error("LeaseFrom without a lease is not nil")
	}
}

func TestNewFuncRejectsBadDescriptor(t *testing.T) {
	t.Parallel()
	if _, err := NewFunc(types.ToolDescriptor{}, func(context.Context, types.Arguments) (types.Value, error) {
		return types.Null(), nil
	}); err == nil {
		t.Error("NewFunc accepted an unnamed descriptor")
	}
	if _, err := NewFunc(types.ToolDescriptor{Name: "x"}, nil); err == nil {
		t.Error("NewFunc accepted a nil handler")
	}
}

// ─── Remote adapter ──────────────────────────────────────────────────────────

func TestRemoteRun(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var args map[string]any
		_ = json.Unmarshal(body, &args)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"echo": args["query"]})
	}))
	defer srv.Close()

	r, err := NewRemote(RemoteConfig{
		Descriptor: searchDescriptor(),
		URL:        srv.URL,
		Headers:    map[string]string{"X-Api-Key": "secret"},
	})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	defer r.Close()

	res, err := r.Run(context.Background(), types.Arguments{"query": types.String("hi")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := types.MustFromAny(map[string]any{"echo": "hi"})
	if res.Value == nil || !res.Value.Equal(want) {
		t.Errorf("value = %v, want %v", res.Value, want)
	}
}

func TestRemoteStatusClassification(t *testing.T) {
	t.Parallel()

	var status atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", int(status.Load()))
	}))
	defer srv.Close()

	r, err := NewRemote(RemoteConfig{Descriptor: types.ToolDescriptor{Name: "api"}, URL: srv.URL})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}

	status.Store(http.StatusBadRequest)
	res, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("4xx: Run = %v, want tool-level failure", err)
	}
	if !strings.Contains(res.Err, "400") {
		t.Errorf("4xx: Err = %q", res.Err)
	}

	status.Store(http.StatusBadGateway)
	if _, err := r.Run(context.Background(), nil); !errors.Is(err, ErrTransport) {
		t.Errorf("5xx: Run = %v, want transport error", err)
	}
}

func TestRemoteUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r, err := NewRemote(RemoteConfig{Descriptor: types.ToolDescriptor{Name: "gone"}, URL: url})
	if err != nil {
		t.Fatalf("NewRemote: %v", err)
	}
	if _, err := r.Run(context.Background(), nil); !errors.Is(err, ErrTransport) {
		t.Errorf("Run = %v, want transport error", err)
	}
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()
	if v := DecodeBody([]byte(`{"a":1}`)); v.Kind() != types.KindObject {
		t.Errorf("JSON body decoded as %s", v.Kind())
	}
	if v := DecodeBody([]byte("plain text")); v.Kind() != types.KindString {
		t.Errorf("text body decoded as %s", v.Kind())
	}
}
