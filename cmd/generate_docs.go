package cmd

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxagent/internal/tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var (
		outputFile string
	)

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate tool documentation",
		Long: `Generate markdown documentation for the agent's tool catalog.
This command introspects the registry the model and MCP clients see, so the
documentation is always in sync with the tool definitions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(outputFile string) error {
	// No backends are needed to describe the catalog
	registry := tools.New(nil, nil, tools.Options{})

	markdown := generateToolsMarkdown(registry)

	// Write to output
	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Documentation written to: %s\n", outputFile)
	} else {
		fmt.Print(markdown)
	}

	return nil
}

// backendSections orders and titles the catalog sections.
var backendSections = []struct {
	backend string
	title   string
	intro   string
}{
	{tools.BackendMail, "Mail Tools", "Backed by the Gmail API. They need a token from `inboxagent auth login`; `message_id` accepts one id or an array of ids, in which case a per-id summary is returned."},
	{tools.BackendPage, "Page Tools", "Backed by the webmail tab attached to the DOM bridge. They fail when no page is attached."},
}

func generateToolsMarkdown(registry *tools.Registry) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Tools Reference\n\n")
	sb.WriteString("This document lists the tools the inboxagent model can call. The same catalog is served by `inboxagent mcp`.\n\n")
	sb.WriteString("**Note:** This documentation is automatically generated from the tool definitions.\n\n")

	// Table of contents
	sb.WriteString("## Table of Contents\n\n")
	for _, section := range backendSections {
		anchor := strings.ToLower(strings.ReplaceAll(section.title, " ", "-"))
		sb.WriteString(fmt.Sprintf("- [%s](#%s)\n", section.title, anchor))
	}
	sb.WriteString("\n")

	byBackend := groupToolsByBackend(registry)
	for _, section := range backendSections {
		sb.WriteString(fmt.Sprintf("## %s\n\n%s\n\n", section.title, section.intro))
		for _, tool := range byBackend[section.backend] {
			sb.WriteString(generateToolMarkdown(tool))
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// groupToolsByBackend keeps the catalog order within each backend.
func groupToolsByBackend(registry *tools.Registry) map[string][]mcp.Tool {
	groups := make(map[string][]mcp.Tool)
	for _, tool := range registry.Definitions() {
		backend, _ := registry.Backend(tool.Name)
		groups[backend] = append(groups[backend], tool)
	}
	return groups
}

func generateToolMarkdown(tool mcp.Tool) string {
	var sb strings.Builder

	// Tool name
	sb.WriteString(fmt.Sprintf("### %s\n\n", tool.Name))

	// Description
	if tool.Description != "" {
		sb.WriteString(fmt.Sprintf("%s\n\n", tool.Description))
	}

	// Input schema
	if tool.InputSchema.Properties != nil && len(tool.InputSchema.Properties) > 0 {
		sb.WriteString("**Arguments:**\n")

		// Sort properties for consistent output
		propNames := make([]string, 0, len(tool.InputSchema.Properties))
		for name := range tool.InputSchema.Properties {
			propNames = append(propNames, name)
		}
		sort.Strings(propNames)

		for _, name := range propNames {
			prop := tool.InputSchema.Properties[name]
			isRequired := slices.Contains(tool.InputSchema.Required, name)

			requiredStr := "optional"
			if isRequired {
				requiredStr = "required"
			}

			// Get property type and description from the property map
			propMap, ok := prop.(map[string]any)
			if !ok {
				continue
			}

			propType := getPropertyType(propMap)

			sb.WriteString(fmt.Sprintf("- `%s` (%s): ", name, requiredStr))

			// Get description
			if desc, ok := propMap["description"].(string); ok {
				sb.WriteString(desc)
			} else {
				sb.WriteString(fmt.Sprintf("%s parameter", propType))
			}

			if values := enumValues(propMap); len(values) > 0 {
				sb.WriteString(fmt.Sprintf(" One of: `%s`.", strings.Join(values, "`, `")))
			}

			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func enumValues(prop map[string]any) []string {
	switch v := prop["enum"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	}
	return nil
}

func getPropertyType(prop map[string]any) string {
	if t, ok := prop["type"].(string); ok {
		return t
	}
	return "any"
}
