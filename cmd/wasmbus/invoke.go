package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasmbus/link"
)

type invokeOptions struct {
	linkName string
	target   string
	data     string
	file     string
}

func newInvokeCmd(opts *rootOptions) *cobra.Command {
	iopts := &invokeOptions{}

	cmd := &cobra.Command{
		Use:   "invoke <instance> <function>",
		Short: "Invoke a function on the destination linked for an instance",
		Long: `Invoke encodes nothing on its own: the parameter bytes given with --data or
--file (use - for stdin) are sent as-is and the raw result bytes are written
to stdout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(iopts.target)
			if err != nil {
				return err
			}
			params, err := iopts.params(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return opts.withEnv(cmd.Context(), func(e *env) error {
				if err := selectLink(e, iopts.linkName, args[0]); err != nil {
					return err
				}
				return invoke(cmd.Context(), e, t, args[0], args[1], params, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVarP(&iopts.linkName, "link", "l", "", "link name to select before invoking")
	cmd.Flags().StringVarP(&iopts.target, "target", "t", "", "pin a well-known target, e.g. keyvalue/store")
	cmd.Flags().StringVarP(&iopts.data, "data", "d", "", "parameter bytes")
	cmd.Flags().StringVarP(&iopts.file, "file", "f", "", "read parameter bytes from a file (- for stdin)")
	cmd.MarkFlagsMutuallyExclusive("data", "file")
	return cmd
}

func (o *invokeOptions) params(stdin io.Reader) ([]byte, error) {
	switch o.file {
	case "":
		return []byte(o.data), nil
	case "-":
		return io.ReadAll(stdin)
	default:
		return os.ReadFile(o.file)
	}
}

// invoke runs one call through the handler and copies the results to w.
func invoke(ctx context.Context, e *env, t link.Target, instance, function string, params []byte, w io.Writer) error {
	out, in, err := e.handler.Invoke(ctx, t, instance, function, params)
	if err != nil {
		return fmt.Errorf("invocation failed (%s): %w", e.handler.InvocationErrorKind(err), err)
	}
	if err := out.Close(); err != nil {
		e.log.Debug("close outgoing", zap.Error(err))
	}
	defer in.Close()

	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("invocation failed (%s): %w", e.handler.InvocationErrorKind(err), err)
	}
	return nil
}
