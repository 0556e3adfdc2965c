package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/upb/askllm/app"
	"github.com/upb/askllm/internal/rpc"
)

func newRPCServer(deps *app.Dependencies) *rpc.Server {
	return rpc.NewServer(deps.Inference, rpc.Info{Name: "askllm", Version: Version}, deps.Logger)
}

func stdioCmd(setup setupFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve JSON-RPC and MCP over stdin/stdout",
		Long: `Read one JSON-RPC 2.0 request per line from stdin and write one response per
line to stdout. Supports the ask method and the MCP initialize, tools/list and
tools/call methods. Logs go to LOG_FILE or stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeDependencies(deps)

			return newRPCServer(deps).Serve(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func callCmd(setup setupFunc) *cobra.Command {
	return &cobra.Command{
		Use:     "call <json-rpc request>",
		Short:   "Handle a single JSON-RPC request and print the response",
		Example: `  askllm call '{"jsonrpc":"2.0","id":1,"method":"ask","params":["gemini","What is 2+2?"]}'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeDependencies(deps)

			resp := newRPCServer(deps).Call(cmd.Context(), []byte(args[0]))
			if err := writeJSONLine(cmd.OutOrStdout(), resp); err != nil {
				return err
			}
			if resp.Error != nil {
				return errReported
			}
			return nil
		},
	}
}

func writeJSONLine(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	return nil
}
