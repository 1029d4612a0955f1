package cli

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssfkit/ssf-transmit-go/ssf"
)

// NewTransmitCmd returns the transmit command.
func NewTransmitCmd(g *globals) *cobra.Command {
	var (
		url       string
		authToken string
		headers   []string
		timeout   time.Duration
		raw       bool
	)

	cmd := &cobra.Command{
		Use:   "transmit <token|@file|@->",
		Short: "POST an already signed SET to a receiver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readArg(cmd, args[0])
			if err != nil {
				return err
			}
			token := strings.TrimSpace(string(data))

			if url == "" {
				url = g.cfg.Receiver.URL
			}
			if url == "" {
				return errors.New("no receiver url: pass --url or set receiver.url")
			}
			if authToken == "" {
				authToken = g.cfg.Receiver.AuthToken
			}

			extra, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			client, err := ssf.NewClient(append(g.clientOptions(),
				ssf.WithHeaders(g.cfg.Receiver.Headers),
			)...)
			if err != nil {
				return err
			}
			defer client.Close()

			opts := g.transmitOptions()
			opts.AuthToken = authToken
			opts.Headers = extra
			opts.Timeout = timeout
			if raw {
				opts.ParseResponse = ssf.Bool(false)
			}

			result, err := client.Transmit(cmd.Context(), token, url, opts)
			return printResult(cmd, result, err)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "receiver endpoint (default receiver.url)")
	cmd.Flags().StringVar(&authToken, "auth-token", "", "receiver bearer token (default receiver.auth_token)")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "extra header as 'Name: value' (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-attempt timeout (default transmit.timeout)")
	cmd.Flags().BoolVar(&raw, "raw", false, "do not decode JSON response bodies")
	return cmd
}
