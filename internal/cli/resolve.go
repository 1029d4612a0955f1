package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ssfkit/ssf-transmit-go/ssf"
)

type resolveOutput struct {
	Result any      `json:"result"`
	Errors []string `json:"errors"`
}

// NewResolveCmd returns the resolve command.
func NewResolveCmd(g *globals) *cobra.Command {
	var (
		contextArg string
		omitEmpty  bool
		noRuntime  bool
		strict     bool
	)

	cmd := &cobra.Command{
		Use:   "resolve '{\"subject\":\"{$.user.email}\"}'",
		Short: "Resolve {$.path} placeholders against a job context",
		Long: `Resolve substitutes {$.path} placeholders in a JSON document with values
from the job context. Arguments starting with @ are read from a file, @- reads stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readArg(cmd, args[0])
			if err != nil {
				return err
			}
			var input any
			if err := json.Unmarshal(raw, &input); err != nil {
				return fmt.Errorf("invalid input json: %w", err)
			}
			jobCtx, err := readJSONObject(cmd, "context", contextArg)
			if err != nil {
				return err
			}

			client, err := ssf.NewClient(g.clientOptions()...)
			if err != nil {
				return err
			}
			defer client.Close()

			result, errs := client.Resolve(input, jobCtx, &ssf.ResolveOptions{
				OmitNoValueForExactTemplates: omitEmpty,
				InjectRuntimeNamespace:       !noRuntime,
			})
			for _, e := range errs {
				slog.Warn("Unresolved placeholder", "error", e)
			}

			if errs == nil {
				errs = []string{}
			}
			if err := writeJSON(cmd, resolveOutput{Result: result, Errors: errs}); err != nil {
				return err
			}
			if strict && len(errs) > 0 {
				return fmt.Errorf("%d placeholder(s) could not be resolved", len(errs))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&contextArg, "context", "c", "", "job context as JSON (or @file)")
	cmd.Flags().BoolVar(&omitEmpty, "omit-empty", false, "drop fields whose whole value is an unresolved placeholder")
	cmd.Flags().BoolVar(&noRuntime, "no-runtime", false, "do not inject the runtime namespace")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any placeholder is unresolved")
	return cmd
}
