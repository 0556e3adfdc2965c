package main

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/upb/askllm/app"
	"github.com/upb/askllm/models"
	"github.com/upb/askllm/services/inference"
)

func askCmd(setup setupFunc) *cobra.Command {
	var (
		attach   string
		mimeType string
	)

	cmd := &cobra.Command{
		Use:   "ask <llm> <prompt>",
		Short: "Ask a configured provider and print its raw answer",
		Example: `  askllm ask gemini "What is 2+2?"
  askllm ask claude "Describe this image" --attach cat.png`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &inference.AskRequest{
				LLM:       args[0],
				Prompt:    args[1],
				Transport: models.TransportCLI,
			}
			if attach != "" {
				att, err := loadAttachment(attach, mimeType)
				if err != nil {
					return err
				}
				req.Attachment = att
			}

			deps, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeDependencies(deps)

			resp, err := deps.Inference.Ask(cmd.Context(), req)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), resp.Response)
			return err
		},
	}

	cmd.Flags().StringVar(&attach, "attach", "", "File to send with the prompt")
	cmd.Flags().StringVar(&mimeType, "mime-type", "", "MIME type of the attachment (detected when empty)")
	return cmd
}

// loadAttachment reads path and encodes it for the dispatch layer
func loadAttachment(path, mimeType string) (*inference.AttachmentPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attachment: %w", err)
	}
	if mimeType == "" {
		mimeType = detectMIMEType(path, data)
	}
	return &inference.AttachmentPayload{
		Name:     filepath.Base(path),
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

// detectMIMEType prefers the extension and falls back to sniffing. Parameters
// such as charset are dropped.
func detectMIMEType(path string, data []byte) string {
	detected := mime.TypeByExtension(filepath.Ext(path))
	if detected == "" {
		detected = http.DetectContentType(data)
	}
	if mediaType, _, err := mime.ParseMediaType(detected); err == nil {
		return mediaType
	}
	return "application/octet-stream"
}

// providerStatus is one row of "providers --check"
type providerStatus struct {
	inference.ProviderInfo
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// checkConcurrency caps simultaneous credential checks
const checkConcurrency = 4

func providersCmd(setup setupFunc) *cobra.Command {
	var (
		asJSON bool
		check  bool
	)

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List configured providers",
		Example: `  askllm providers
  askllm providers --check --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := setup(cmd)
			if err != nil {
				return err
			}
			defer closeDependencies(deps)

			list := deps.Inference.Providers()
			if !check {
				return printProviders(cmd, list, asJSON)
			}

			statuses := checkProviders(cmd, deps, list)
			if err := printStatuses(cmd, statuses, asJSON); err != nil {
				return err
			}
			for _, st := range statuses {
				if st.Error != "" {
					return errReported
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&check, "check", false, "Verify each credential against its provider")
	return cmd
}

func printProviders(cmd *cobra.Command, list []inference.ProviderInfo, asJSON bool) error {
	if asJSON {
		return writeJSONLine(cmd.OutOrStdout(), list)
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No providers configured. Set ASKLLM_CONFIG or ASKLLM_PROVIDERS_FILE.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LLM\tNAME\tMODEL\tCUSTOM URL")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", p.LLM, p.Name, p.Model, p.CustomURL)
	}
	return tw.Flush()
}

// checkProviders runs one credential check per alias. Rows keep the
// order of list, which follows the router's alias order.
func checkProviders(cmd *cobra.Command, deps *app.Dependencies, list []inference.ProviderInfo) []providerStatus {
	configs := deps.Router.Configs()
	statuses := make([]providerStatus, len(configs))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(checkConcurrency)
	for i, cfg := range configs {
		i, cfg := i, cfg
		statuses[i].ProviderInfo = list[i]
		g.Go(func() error {
			if err := deps.Providers.Check(ctx, cfg); err != nil {
				statuses[i].Status = "failed"
				statuses[i].Error = err.Error()
				return nil
			}
			statuses[i].Status = "ok"
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

func printStatuses(cmd *cobra.Command, statuses []providerStatus, asJSON bool) error {
	if asJSON {
		return writeJSONLine(cmd.OutOrStdout(), statuses)
	}
	if len(statuses) == 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), "No providers configured. Set ASKLLM_CONFIG or ASKLLM_PROVIDERS_FILE.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LLM\tNAME\tMODEL\tSTATUS")
	for _, st := range statuses {
		status := st.Status
		if st.Error != "" {
			status = st.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.LLM, st.Name, st.Model, status)
	}
	return tw.Flush()
}
