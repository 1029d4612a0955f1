// Package grpcsigner signs SET claims through a remote signing service over
// gRPC.
//
// The service exposes a single unary method, /ssf.signer.v1.Signer/Sign,
// taking and returning google.protobuf.Struct messages:
//
//	request:  {"key_id": "<key>", "claims": {...}}
//	response: {"token": "<compact JWS>"}
package grpcsigner

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// SignMethod is the full gRPC method name of the signing call.
const SignMethod = "/ssf.signer.v1.Signer/Sign"

// DefaultTimeout bounds a single signing call.
const DefaultTimeout = 10 * time.Second

// ErrEmptyToken is returned when the service answers without a token.
var ErrEmptyToken = errors.New("grpcsigner: signer returned an empty token")

// Signer is a remote Signer. It is safe for concurrent use.
type Signer struct {
	conn    *grpc.ClientConn
	apiKey  string
	keyID   string
	timeout time.Duration
}

// Options configures the signer client.
type Options struct {
	// Address is the gRPC server address (e.g., "signer.example.com:443")
	Address string
	// APIKey is sent as x-api-key metadata
	APIKey string
	// KeyID selects the signing key on the server
	KeyID string
	// UseTLS enables TLS (default: true for port 443)
	UseTLS *bool
	// TLSConfig is custom TLS configuration (optional)
	TLSConfig *tls.Config
	// DialOptions are additional gRPC dial options
	DialOptions []grpc.DialOption
	// Timeout bounds each Sign call
	Timeout time.Duration
}

// New creates a signer client. The connection is established lazily on the
// first call.
func New(opts Options) (*Signer, error) {
	if opts.Address == "" {
		return nil, errors.New("grpcsigner: address is required")
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	// Determine TLS setting
	useTLS := true
	if opts.UseTLS != nil {
		useTLS = *opts.UseTLS
	} else if !strings.HasSuffix(opts.Address, ":443") {
		// Default to TLS for :443, no TLS for localhost and plain ports
		useTLS = false
	}

	dialOpts := []grpc.DialOption{}

	if useTLS {
		tlsConfig := opts.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)))
	} else {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	dialOpts = append(dialOpts, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client: %w", err)
	}

	return &Signer{
		conn:    conn,
		apiKey:  opts.APIKey,
		keyID:   opts.KeyID,
		timeout: opts.Timeout,
	}, nil
}

// Close closes the gRPC connection.
func (s *Signer) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// withAuth adds authentication metadata to the context.
func (s *Signer) withAuth(ctx context.Context) context.Context {
	if s.apiKey != "" {
		return metadata.AppendToOutgoingContext(ctx, "x-api-key", s.apiKey)
	}
	return ctx
}

// Sign asks the service to sign claims and returns the compact token.
func (s *Signer) Sign(ctx context.Context, claims map[string]any) (string, error) {
	claimsStruct, err := toStruct(claims)
	if err != nil {
		return "", fmt.Errorf("failed to encode claims: %w", err)
	}

	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"claims": structpb.NewStructValue(claimsStruct),
	}}
	if s.keyID != "" {
		req.Fields["key_id"] = structpb.NewStringValue(s.keyID)
	}

	ctx, cancel := context.WithTimeout(s.withAuth(ctx), s.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, SignMethod, req, resp); err != nil {
		return "", fmt.Errorf("remote sign failed: %w", err)
	}

	token := resp.GetFields()["token"].GetStringValue()
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// toStruct converts claims through their JSON form so that any
// JSON-marshalable value is accepted.
func toStruct(claims map[string]any) (*structpb.Struct, error) {
	if claims == nil {
		claims = map[string]any{}
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}
