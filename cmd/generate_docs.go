package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sarahdorsten/newsletter-digest/internal/brief"
	"github.com/sarahdorsten/newsletter-digest/internal/gmail"
	"github.com/sarahdorsten/newsletter-digest/internal/pipeline"
	"github.com/sarahdorsten/newsletter-digest/internal/tools/digest_tools"
)

// errDocsOnly is returned by the placeholder digest used for documentation.
var errDocsOnly = errors.New("documentation mode")

// docsDigest satisfies digest_tools.Digest without credentials.
type docsDigest struct{}

func (docsDigest) Newsletters(context.Context) (brief.Window, []*gmail.Newsletter, error) {
	return brief.Window{}, nil, errDocsOnly
}

func (docsDigest) LatestBrief() (string, string, error) { return "", "", errDocsOnly }

func (docsDigest) Run(context.Context, pipeline.RunOptions) (*pipeline.Result, error) {
	return nil, errDocsOnly
}

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Print a Markdown reference of the tools exposed by "newsletter-digest serve",
built from the registered tool definitions.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputFile == "" {
				return writeToolDocs(cmd.OutOrStdout())
			}
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			if err := writeToolDocs(f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// writeToolDocs registers the tools with posting allowed so every argument
// is documented.
func writeToolDocs(w io.Writer) error {
	mcpSrv, err := newMCPServer(docsDigest{}, nil, digest_tools.Options{AllowPost: true})
	if err != nil {
		return err
	}

	tools := make([]mcp.Tool, 0, len(mcpSrv.ListTools()))
	for _, st := range mcpSrv.ListTools() {
		tools = append(tools, st.Tool)
	}
	_, err = io.WriteString(w, toolsMarkdown(tools))
	return err
}

func toolsMarkdown(tools []mcp.Tool) string {
	slices.SortFunc(tools, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })

	var sb strings.Builder
	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools available when running `newsletter-digest serve`. Generated from the tool definitions.\n\n")

	sb.WriteString("| Tool | Access | Summary |\n|---|---|---|\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "| [`%s`](#%s) | %s | %s |\n", t.Name, t.Name, toolAccess(t), firstSentence(t.Description))
	}
	sb.WriteString("\n")

	sb.WriteString("`digest_generate_brief` only archives the brief unless the server was started with `--allow-post` ")
	sb.WriteString("and `SLACK_BOT_TOKEN` is set. Briefs already delivered are never posted twice.\n\n")

	for _, t := range tools {
		sb.WriteString(toolSection(t))
	}
	return sb.String()
}

func toolSection(t mcp.Tool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", t.Name)
	if t.Description != "" {
		sb.WriteString(t.Description + "\n\n")
	}

	if len(t.InputSchema.Properties) == 0 {
		sb.WriteString("Takes no arguments.\n\n")
		return sb.String()
	}

	names := make([]string, 0, len(t.InputSchema.Properties))
	for name := range t.InputSchema.Properties {
		names = append(names, name)
	}
	slices.Sort(names)

	sb.WriteString("| Argument | Type | Required | Description |\n|---|---|---|---|\n")
	for _, name := range names {
		prop, _ := t.InputSchema.Properties[name].(map[string]any)
		typ, _ := prop["type"].(string)
		if typ == "" {
			typ = "any"
		}
		desc, _ := prop["description"].(string)
		required := "no"
		if slices.Contains(t.InputSchema.Required, name) {
			required = "yes"
		}
		fmt.Fprintf(&sb, "| `%s` | %s | %s | %s |\n", name, typ, required, desc)
	}
	sb.WriteString("\n")
	return sb.String()
}

func toolAccess(t mcp.Tool) string {
	if ro := t.Annotations.ReadOnlyHint; ro != nil && *ro {
		return "read-only"
	}
	return "writes"
}

func firstSentence(s string) string {
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}
