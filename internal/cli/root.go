// Package cli implements the ssfctl command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/ssfkit/ssf-transmit-go/internal/config"
	"github.com/ssfkit/ssf-transmit-go/internal/version"
	"github.com/ssfkit/ssf-transmit-go/ssf"
)

// Exit codes.
const (
	ExitOK       = 0
	ExitError    = 1
	ExitRejected = 2
)

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// globals are the persistent flags and the configuration loaded from them.
type globals struct {
	cfgPath string
	debug   bool
	cfg     *config.Config
}

// NewRootCmd builds the ssfctl command tree.
func NewRootCmd() *cobra.Command {
	g := &globals{}

	cmd := &cobra.Command{
		Use:           "ssfctl",
		Short:         "Deliver Security Event Tokens to SSF receivers",
		Long:          `ssfctl signs and transmits CAEP and RISC Security Event Tokens, and resolves {$.path} templates against a job context.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load(g.cfgPath)
			if err != nil {
				stylelog.InitDefault()
				return err
			}
			g.cfg = cfg

			slogLevel := slog.LevelInfo
			if g.debug || cfg.Logging.Level == "debug" {
				slogLevel = slog.LevelDebug
			}
			stylelog.InitDefault(&tint.Options{
				Level:      slogLevel,
				TimeFormat: time.RFC3339,
			})
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&g.cfgPath, "config", "", "config file (YAML, ${ENV} references are expanded)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		NewResolveCmd(g),
		NewTransmitCmd(g),
		NewSendCmd(g),
	)
	return cmd
}

// Execute runs ssfctl and returns the process exit code.
func Execute() int {
	return run(NewRootCmd(), os.Args[1:])
}

func run(cmd *cobra.Command, args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.code != ExitRejected {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error:", ee.err)
		}
		return ee.code
	}
	fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	return ExitError
}

// clientOptions translates the loaded configuration into client options.
func (g *globals) clientOptions() []ssf.Option {
	cfg := g.cfg
	opts := []ssf.Option{
		ssf.WithIssuer(cfg.Issuer),
		ssf.WithAudience(cfg.Audience),
		ssf.WithTimeout(cfg.Transmit.Timeout),
		ssf.WithRetry(cfg.Retry.SSF()),
		ssf.WithAcceptPolicy(cfg.Transmit.AcceptPolicy()),
		ssf.WithUserAgent(version.ShortUserAgent() + " ssfctl"),
	}
	if g.debug || cfg.Logging.Level == "debug" {
		opts = append(opts, ssf.WithLogger(ssf.SlogLogger(slog.Default())))
	}
	return opts
}

// transmitOptions returns per-call options from the transmit section.
func (g *globals) transmitOptions() *ssf.TransmitOptions {
	return &ssf.TransmitOptions{ParseResponse: g.cfg.Transmit.ParseResponse}
}

// writeJSON prints v as indented JSON.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// printResult prints the result and maps a failed delivery to ExitRejected.
func printResult(cmd *cobra.Command, result *ssf.Result, err error) error {
	if err != nil {
		return err
	}
	if werr := writeJSON(cmd, result); werr != nil {
		return werr
	}
	if result.Status != ssf.StatusSuccess {
		return &exitError{
			code: ExitRejected,
			err:  fmt.Errorf("receiver rejected the event with status %d", result.StatusCode),
		}
	}
	return nil
}

// readArg returns value, or the contents of the named file when value starts
// with "@". "@-" reads standard input.
func readArg(cmd *cobra.Command, value string) ([]byte, error) {
	name, ok := strings.CutPrefix(value, "@")
	if !ok {
		return []byte(value), nil
	}
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}

// readJSONObject decodes a JSON object argument. An empty value yields nil.
func readJSONObject(cmd *cobra.Command, flag, value string) (map[string]any, error) {
	if value == "" {
		return nil, nil
	}
	data, err := readArg(cmd, value)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("invalid --%s json: %w", flag, err)
	}
	return out, nil
}

// parseHeaders parses "Name: value" or "Name=value" pairs.
func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, v := range values {
		i := strings.IndexAny(v, ":=")
		if i <= 0 {
			return nil, fmt.Errorf("invalid header %q, want Name: value", v)
		}
		out[strings.TrimSpace(v[:i])] = strings.TrimSpace(v[i+1:])
	}
	return out, nil
}
