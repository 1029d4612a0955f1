// Package redisresolver reads receiver settings from a Redis hash and serves
// them as ssf address, auth and header resolvers.
//
// A receiver is stored as one hash:
//
//	HSET ssf:receiver:acme url https://receiver.example.com/events \
//	     auth_token s3cret headers '{"X-Tenant":"acme"}'
package redisresolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// KeyPrefix is prepended to receiver names by Key.
const KeyPrefix = "ssf:receiver:"

// ErrNotConfigured is returned when the hash or a required field is missing.
var ErrNotConfigured = errors.New("redisresolver: receiver not configured")

// Key returns the hash key of the named receiver.
func Key(name string) string {
	return KeyPrefix + name
}

// HashReader is the subset of the Redis client used here.
// goredis.UniversalClient satisfies it.
type HashReader interface {
	HGetAll(ctx context.Context, key string) *goredis.MapStringStringCmd
}

// Fields names the hash fields holding each setting.
type Fields struct {
	URL       string
	AuthToken string
	Headers   string
}

// DefaultFields returns the default field names.
func DefaultFields() Fields {
	return Fields{
		URL:       "url",
		AuthToken: "auth_token",
		Headers:   "headers",
	}
}

// Receiver is one decoded receiver hash.
type Receiver struct {
	URL       string
	AuthToken string
	Headers   map[string]string
}

// Resolver serves receiver settings from a Redis hash. Every call reads the
// hash afresh, so updates apply to the next transmission.
type Resolver struct {
	rdb    HashReader
	key    string
	fields Fields
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFields overrides the hash field names. Empty names keep their default.
func WithFields(f Fields) Option {
	return func(r *Resolver) {
		if f.URL != "" {
			r.fields.URL = f.URL
		}
		if f.AuthToken != "" {
			r.fields.AuthToken = f.AuthToken
		}
		if f.Headers != "" {
			r.fields.Headers = f.Headers
		}
	}
}

// New creates a resolver reading the hash at key.
func New(rdb HashReader, key string, opts ...Option) *Resolver {
	r := &Resolver{
		rdb:    rdb,
		key:    key,
		fields: DefaultFields(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads and decodes the receiver hash.
func (r *Resolver) Load(ctx context.Context) (*Receiver, error) {
	values, err := r.rdb.HGetAll(ctx, r.key).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("read receiver %q: %w", r.key, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: hash %q is empty", ErrNotConfigured, r.key)
	}

	rcv := &Receiver{
		URL:       values[r.fields.URL],
		AuthToken: values[r.fields.AuthToken],
	}
	if raw := values[r.fields.Headers]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rcv.Headers); err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", r.key, r.fields.Headers, err)
		}
	}
	return rcv, nil
}

// ResolveAddress implements ssf.AddressResolver.
func (r *Resolver) ResolveAddress(ctx context.Context) (string, error) {
	rcv, err := r.Load(ctx)
	if err != nil {
		return "", err
	}
	if rcv.URL == "" {
		return "", r.missing(r.fields.URL)
	}
	return rcv.URL, nil
}

// ResolveAuth implements ssf.AuthResolver.
func (r *Resolver) ResolveAuth(ctx context.Context) (string, error) {
	rcv, err := r.Load(ctx)
	if err != nil {
		return "", err
	}
	if rcv.AuthToken == "" {
		return "", r.missing(r.fields.AuthToken)
	}
	return rcv.AuthToken, nil
}

// ResolveHeaders implements ssf.HeaderResolver. A missing headers field
// yields no headers.
func (r *Resolver) ResolveHeaders(ctx context.Context) (map[string]string, error) {
	rcv, err := r.Load(ctx)
	if err != nil {
		return nil, err
	}
	return rcv.Headers, nil
}

func (r *Resolver) missing(field string) error {
	return fmt.Errorf("%w: field %q missing from %q", ErrNotConfigured, field, r.key)
}
