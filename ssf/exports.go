package ssf

import (
	"context"

	"github.com/ssfkit/ssf-transmit-go/internal/template"
)

// NoValue replaces placeholders that could not be resolved.
const NoValue = template.NoValue

// Transmit delivers token to url with a default client.
//
// This is a convenience function equivalent to:
//
//	client, _ := ssf.NewClient()
//	result, err := client.Transmit(ctx, token, url, opts)
//
// Example:
//
//	result, err := ssf.Transmit(ctx, token, "https://receiver.example.com/events", &ssf.TransmitOptions{
//		AuthToken: os.Getenv("RECEIVER_TOKEN"),
//	})
func Transmit(ctx context.Context, token, url string, opts *TransmitOptions) (*Result, error) {
	client, err := NewClient()
	if err != nil {
		return nil, err
	}
	return client.Transmit(ctx, token, url, opts)
}

// Resolve substitutes {$.path} placeholders in input with values from jobCtx
// using the wall clock and random UUIDs for the runtime namespace.
//
// Example:
//
//	params, errs := ssf.Resolve(map[string]any{
//		"subject": "{$.user.email}",
//		"reason":  "Signed out at {$.runtime.time.now}",
//	}, jobCtx, nil)
func Resolve(input any, jobCtx map[string]any, opts *ResolveOptions) (any, []string) {
	return template.Resolve(input, jobCtx, opts)
}

// Bool returns a pointer to b, for TransmitOptions.ParseResponse.
func Bool(b bool) *bool {
	return &b
}
