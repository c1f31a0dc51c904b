// Package errnorm maps low level failures onto stable, user presentable
// messages.
package errnorm

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
)

const DefaultProvider = "Pimlico"

var rateLimitMarkers = []string{"too many requests", "rate limit"}

var networkMarkers = []string{
	"connection refused",
	"no such host",
	"fetch failed",
	"network is unreachable",
	"connection reset",
	"dial tcp",
}

// Normalizer rewrites errors reported while talking to a bundler provider.
type Normalizer struct {
	Provider string
}

func New(provider string) Normalizer {
	if provider == "" {
		provider = DefaultProvider
	}
	return Normalizer{Provider: provider}
}

// Message returns the user facing text for err.
func (n Normalizer) Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if IsRateLimited(err) {
		provider := n.Provider
		if provider == "" {
			provider = DefaultProvider
		}
		return fmt.Sprintf("%s bundler rate limit reached. Please wait about 30 seconds and try again.", provider)
	}
	return msg
}

// Normalize returns an error whose message is Message(err). The cause stays
// reachable through errors.Is and errors.As.
func (n Normalizer) Normalize(err error) error {
	if err == nil {
		return nil
	}
	var normalized *Error
	if errors.As(err, &normalized) {
		return normalized
	}
	return &Error{msg: n.Message(err), cause: err}
}

// Error is a normalized error.
type Error struct {
	msg   string
	cause error
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.cause }

// IsRateLimited matches rate limiting replies, case-insensitively.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	return containsAny(strings.ToLower(err.Error()), rateLimitMarkers)
}

// UnreachableError reports a network level failure reaching a service.
type UnreachableError struct {
	Service string
	URL     string
	Err     error
}

func (e *UnreachableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s unreachable at %s", e.Service, e.URL)
	}
	return fmt.Sprintf("%s unreachable at %s: %v", e.Service, e.URL, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// Unreachable wraps err into an *UnreachableError when it is a network
// failure and returns it unchanged otherwise.
func Unreachable(service, endpoint string, err error) error {
	if err == nil || !IsNetworkError(err) {
		return err
	}
	return &UnreachableError{Service: service, URL: endpoint, Err: err}
}

// IsNetworkError reports whether err comes from the transport rather than
// from the remote service. A JSON-RPC error reply always came from the
// service, whatever its text says.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && !urlErr.Timeout() {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), networkMarkers)
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
