package ssf

import "context"

// AddressResolver supplies the receiver endpoint events are delivered to.
type AddressResolver interface {
	ResolveAddress(ctx context.Context) (string, error)
}

// AuthResolver supplies the bearer token presented to the receiver. An empty
// token sends no Authorization header.
type AuthResolver interface {
	ResolveAuth(ctx context.Context) (string, error)
}

// HeaderResolver supplies receiver-specific header overrides.
type HeaderResolver interface {
	ResolveHeaders(ctx context.Context) (map[string]string, error)
}

// Signer turns a SET claim set into a compact signed token.
type Signer interface {
	Sign(ctx context.Context, claims map[string]any) (string, error)
}

// AddressResolverFunc is a function adapter for AddressResolver.
type AddressResolverFunc func(ctx context.Context) (string, error)

// ResolveAddress implements AddressResolver.
func (f AddressResolverFunc) ResolveAddress(ctx context.Context) (string, error) {
	return f(ctx)
}

// AuthResolverFunc is a function adapter for AuthResolver.
type AuthResolverFunc func(ctx context.Context) (string, error)

// ResolveAuth implements AuthResolver.
func (f AuthResolverFunc) ResolveAuth(ctx context.Context) (string, error) {
	return f(ctx)
}

// SignerFunc is a function adapter for Signer.
type SignerFunc func(ctx context.Context, claims map[string]any) (string, error)

// Sign implements Signer.
func (f SignerFunc) Sign(ctx context.Context, claims map[string]any) (string, error) {
	return f(ctx, claims)
}

// StaticAddress always resolves to url.
func StaticAddress(url string) AddressResolver {
	return AddressResolverFunc(func(context.Context) (string, error) {
		return url, nil
	})
}

// StaticAuth always resolves to token.
func StaticAuth(token string) AuthResolver {
	return AuthResolverFunc(func(context.Context) (string, error) {
		return token, nil
	})
}
