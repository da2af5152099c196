package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/rapture-inbox/internal/server"
	"github.com/teemow/rapture-inbox/internal/tools/inbox_tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate a markdown reference of the MCP tools exposed by "serve".
The reference is built from the registered tool definitions, so it always
matches what a client sees.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			markdown, err := toolsReference()
			if err != nil {
				return err
			}
			if outputFile == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), markdown)
				return err
			}
			if err := os.WriteFile(outputFile, []byte(markdown), 0o644); err != nil {
				return fmt.Errorf("failed to write output file: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// registeredTools returns the tools a server started with readOnly exposes.
// Registration never touches the inbox, so no App is needed.
func registeredTools(readOnly bool) (map[string]mcp.Tool, error) {
	sc := server.NewServerContext(context.Background(), nil)
	defer func() { _ = sc.Shutdown() }()

	s := mcpserver.NewMCPServer("rapture-inbox", version, mcpserver.WithToolCapabilities(true))
	if err := inbox_tools.RegisterInboxTools(s, sc, readOnly); err != nil {
		return nil, fmt.Errorf("failed to register inbox tools: %w", err)
	}

	tools := make(map[string]mcp.Tool)
	for name, st := range s.ListTools() {
		tools[name] = st.Tool
	}
	return tools, nil
}

func toolsReference() (string, error) {
	all, err := registeredTools(false)
	if err != nil {
		return "", err
	}
	readOnly, err := registeredTools(true)
	if err != nil {
		return "", err
	}

	writeTools := make(map[string]bool)
	for name := range all {
		if _, ok := readOnly[name]; !ok {
			writeTools[name] = true
		}
	}

	return generateToolsMarkdown(slices.Collect(maps.Values(all)), writeTools), nil
}

// generateToolsMarkdown renders tools grouped by category. Tools named in
// writeTools are flagged as unavailable in read-only mode.
func generateToolsMarkdown(tools []mcp.Tool, writeTools map[string]bool) string {
	byCategory := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		category := getCategoryFromToolName(tool.Name)
		byCategory[category] = append(byCategory[category], tool)
	}
	categories := slices.Sorted(maps.Keys(byCategory))

	var sb strings.Builder
	sb.WriteString("# MCP Tools Reference\n\n")
	sb.WriteString("Tools available when running `rapture-inbox serve`. Generated from the tool definitions.\n\n")

	sb.WriteString("## Table of Contents\n\n")
	for _, category := range categories {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", category, strings.ToLower(strings.ReplaceAll(category, " ", "-")))
	}

	sb.WriteString("\n## Read-Only Mode\n\n")
	sb.WriteString("`serve` starts read-only. Tools marked *requires --yolo* are registered only when the server ")
	sb.WriteString("is started with `--yolo`, because they move notes or change the stored credentials.\n\n")

	for _, category := range categories {
		fmt.Fprintf(&sb, "## %s\n\n", category)

		group := byCategory[category]
		slices.SortFunc(group, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })
		for _, tool := range group {
			writeToolMarkdown(&sb, tool, writeTools[tool.Name])
		}
	}

	return sb.String()
}

func getCategoryFromToolName(name string) string {
	switch {
	case name == "inbox_history" || strings.HasPrefix(name, "inbox_sync"):
		return "Sync Tools"
	case strings.HasPrefix(name, "inbox_auth") || name == "inbox_complete_login" || name == "inbox_logout":
		return "Connection Tools"
	default:
		return "Other"
	}
}

func writeToolMarkdown(sb *strings.Builder, tool mcp.Tool, requiresWrite bool) {
	fmt.Fprintf(sb, "### %s\n\n", tool.Name)
	if requiresWrite {
		sb.WriteString("*requires --yolo*\n\n")
	}
	if tool.Description != "" {
		fmt.Fprintf(sb, "%s\n\n", tool.Description)
	}

	if len(tool.InputSchema.Properties) == 0 {
		return
	}

	sb.WriteString("**Arguments:**\n")
	for _, name := range slices.Sorted(maps.Keys(tool.InputSchema.Properties)) {
		prop, ok := tool.InputSchema.Properties[name].(map[string]any)
		if !ok {
			continue
		}

		presence := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			presence = "required"
		}

		desc, _ := prop["description"].(string)
		if desc == "" {
			propType, _ := prop["type"].(string)
			desc = orDefault(propType, "any") + " parameter"
		}
		fmt.Fprintf(sb, "- `%s` (%s): %s\n", name, presence, desc)
	}
	sb.WriteString("\n")
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
