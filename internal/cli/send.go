package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ssfkit/ssf-transmit-go/internal/config"
	"github.com/ssfkit/ssf-transmit-go/ssf"
	"github.com/ssfkit/ssf-transmit-go/ssf/grpcsigner"
	"github.com/ssfkit/ssf-transmit-go/ssf/redisresolver"
)

// eventAliases maps short names accepted by --type to event type URIs.
var eventAliases = map[string]string{
	"session-revoked":          ssf.EventSessionRevoked,
	"token-claims-change":      ssf.EventTokenClaimsChange,
	"credential-change":        ssf.EventCredentialChange,
	"assurance-level-change":   ssf.EventAssuranceLevelChange,
	"device-compliance-change": ssf.EventDeviceComplianceChange,
	"account-disabled":         ssf.EventAccountDisabled,
	"account-enabled":          ssf.EventAccountEnabled,
	"verification":             ssf.EventVerification,
}

func eventType(name string) (string, error) {
	if strings.Contains(name, "://") {
		return name, nil
	}
	if uri, ok := eventAliases[name]; ok {
		return uri, nil
	}
	names := make([]string, 0, len(eventAliases))
	for k := range eventAliases {
		names = append(names, k)
	}
	sort.Strings(names)
	return "", fmt.Errorf("unknown event type %q (use a URI or one of %s)", name, strings.Join(names, ", "))
}

// NewSendCmd returns the send command.
func NewSendCmd(g *globals) *cobra.Command {
	var (
		typ          string
		subjectEmail string
		subjectArg   string
		claimsArg    string
		contextArg   string
		txn          string
		audience     string
		url          string
		timeout      time.Duration
		strict       bool
	)

	cmd := &cobra.Command{
		Use:   "send --type session-revoked --subject-email alice@example.com",
		Short: "Build, sign and deliver a security event",
		Long: `Send builds a SET for one event, signs it with the configured gRPC signer
and delivers it to the configured receiver. Event claims may contain {$.path}
placeholders resolved against --context.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := eventType(typ)
			if err != nil {
				return err
			}

			jobCtx, err := readJSONObject(cmd, "context", contextArg)
			if err != nil {
				return err
			}
			claims, err := readJSONObject(cmd, "claims", claimsArg)
			if err != nil {
				return err
			}
			subject, err := readJSONObject(cmd, "subject", subjectArg)
			if err != nil {
				return err
			}
			if subjectEmail != "" {
				subject = ssf.EmailSubject(subjectEmail)
			}

			signer, err := newSigner(g.cfg.Signer)
			if err != nil {
				return err
			}
			defer signer.Close()

			opts := append(g.clientOptions(), ssf.WithSigner(signer))
			receiverOpts, release, err := receiverOptions(cmd.Context(), g.cfg.Receiver, url)
			if err != nil {
				return err
			}
			defer release()
			opts = append(opts, receiverOpts...)

			client, err := ssf.NewClient(opts...)
			if err != nil {
				return err
			}
			defer client.Close()

			if claims != nil {
				resolved, errs := client.Resolve(claims, jobCtx, &ssf.ResolveOptions{
					OmitNoValueForExactTemplates: true,
					InjectRuntimeNamespace:       true,
				})
				for _, e := range errs {
					slog.Warn("Unresolved placeholder", "error", e)
				}
				if strict && len(errs) > 0 {
					return fmt.Errorf("%d placeholder(s) could not be resolved", len(errs))
				}
				claims, _ = resolved.(map[string]any)
			}

			topts := g.transmitOptions()
			topts.Timeout = timeout

			result, err := client.Send(cmd.Context(), ssf.Event{
				Type:     uri,
				Subject:  subject,
				Claims:   claims,
				Audience: audience,
				TxnID:    txn,
			}, topts)
			return printResult(cmd, result, err)
		},
	}

	cmd.Flags().StringVarP(&typ, "type", "t", "", "event type URI or short name (e.g. session-revoked)")
	cmd.Flags().StringVar(&subjectEmail, "subject-email", "", "email subject identifier")
	cmd.Flags().StringVar(&subjectArg, "subject", "", "subject identifier as JSON (or @file)")
	cmd.Flags().StringVar(&claimsArg, "claims", "", "event claims as JSON (or @file), may contain {$.path} placeholders")
	cmd.Flags().StringVarP(&contextArg, "context", "c", "", "job context as JSON (or @file)")
	cmd.Flags().StringVar(&txn, "txn", "", "transaction identifier")
	cmd.Flags().StringVar(&audience, "audience", "", "aud claim (default audience)")
	cmd.Flags().StringVar(&url, "url", "", "receiver endpoint, overriding the configured receiver")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-attempt timeout (default transmit.timeout)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when any claim placeholder is unresolved")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newSigner(cfg config.SignerConfig) (*grpcsigner.Signer, error) {
	if cfg.Address == "" {
		return nil, errors.New("no signer configured: set signer.address")
	}
	opts := grpcsigner.Options{
		Address: cfg.Address,
		APIKey:  cfg.APIKey,
		KeyID:   cfg.KeyID,
		Timeout: cfg.Timeout,
	}
	if cfg.Insecure {
		opts.UseTLS = ssf.Bool(false)
	}
	return grpcsigner.New(opts)
}

// receiverOptions wires the receiver source: an explicit url, a Redis hash,
// or the static receiver section. release closes any connection opened here.
func receiverOptions(ctx context.Context, cfg config.ReceiverConfig, url string) (opts []ssf.Option, release func(), err error) {
	if url == "" && cfg.Redis.URL != "" {
		ropts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse redis URL: %w", err)
		}
		if cfg.Redis.Password != "" {
			ropts.Password = cfg.Redis.Password
		}
		rdb := goredis.NewClient(ropts)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}

		r := redisresolver.New(rdb, cfg.Redis.Key)
		return []ssf.Option{
			ssf.WithAddressResolver(r),
			ssf.WithAuthResolver(r),
			ssf.WithHeaderResolver(r),
		}, func() { rdb.Close() }, nil
	}

	if url == "" {
		url = cfg.URL
	}
	if url == "" {
		return nil, nil, errors.New("no receiver configured: pass --url or set receiver.url or receiver.redis")
	}
	opts = []ssf.Option{
		ssf.WithAddressResolver(ssf.StaticAddress(url)),
		ssf.WithHeaders(cfg.Headers),
	}
	if cfg.AuthToken != "" {
		opts = append(opts, ssf.WithAuthResolver(ssf.StaticAuth(cfg.AuthToken)))
	}
	return opts, func() {}, nil
}
