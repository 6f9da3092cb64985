package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidKey matches any *InvalidKeyError via errors.Is.
	ErrInvalidKey = errors.New("invalid geo key")
	// ErrUpstream matches any *UpstreamError via errors.Is.
	ErrUpstream = errors.New("upstream failure")
)

// InvalidKeyError is returned when a requested key is not in the registry.
type InvalidKeyError struct {
	Key     string
	Allowed []GeoKey
}

func (e *InvalidKeyError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("ZIP %s is not allowed", e.Key)
	}
	allowed := make([]string, len(e.Allowed))
	for i, k := range e.Allowed {
		allowed[i] = string(k)
	}
	return fmt.Sprintf("ZIP %s is not allowed. Use one of [%s].", e.Key, strings.Join(allowed, ", "))
}

func (e *InvalidKeyError) Is(target error) bool { return target == ErrInvalidKey }

// UpstreamError describes a failed call to a statistical source or the
// narrative service. Status is zero for transport failures, in which case Err
// carries the cause.
type UpstreamError struct {
	Source string
	Key    string
	Status int
	Body   string
	Err    error
}

func (e *UpstreamError) Error() string {
	var b strings.Builder
	b.WriteString(e.Source)
	b.WriteString(" error")
	if e.Key != "" {
		b.WriteString(" ")
		b.WriteString(e.Key)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, ": %d", e.Status)
		if body := strings.TrimSpace(e.Body); body != "" {
			b.WriteString(" ")
			b.WriteString(body)
		}
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }
