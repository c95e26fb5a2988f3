package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"segment-assist/pkg/models"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)
	api := func() *apiClient { return newAPIClient(server, timeout) }

	defaultServer := os.Getenv("SEGMENT_ASSIST_HOST")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}

	rootCmd := &cobra.Command{
		Use:           "segctl",
		Short:         "Command line client for the segmentation assistant server",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	rootCmd.PersistentFlags().StringVar(&server, "server", defaultServer, "Server base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Request timeout")
	rootCmd.SetOut(out)

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			health, err := api().health(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), health)
		},
	}

	assistantsCmd := &cobra.Command{
		Use:   "assistants",
		Short: "Manage registered assistants",
	}

	var listName, listType string
	var page, pageSize int
	listCmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List assistants",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := api().listAssistants(cmd.Context(), listName, listType, page, pageSize)
			if err != nil {
				return err
			}
			renderAssistants(cmd.OutOrStdout(), list)
			return nil
		},
	}
	listCmd.Flags().StringVar(&listName, "name", "", "Filter by name substring")
	listCmd.Flags().StringVar(&listType, "type", "", "Filter by assistant type (sam2, zim)")
	listCmd.Flags().IntVar(&page, "page", 1, "Page number")
	listCmd.Flags().IntVar(&pageSize, "page-size", 20, "Page size")

	var createType, createParams string
	var assets []string
	createCmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Register an assistant and upload its assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			assistant, err := api().createAssistant(cmd.Context(), args[0], createType, createParams, assets)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), assistant)
		},
	}
	createCmd.Flags().StringVar(&createType, "type", "", "Assistant type (sam2, zim)")
	createCmd.Flags().StringVar(&createParams, "params", "{}", "Configuration parameters as a JSON object")
	createCmd.Flags().StringArrayVar(&assets, "asset", nil, "Asset file to upload; zip archives are extracted (repeatable)")
	_ = createCmd.MarkFlagRequired("type")

	deleteCmd := &cobra.Command{
		Use:     "delete NAME",
		Aliases: []string{"rm"},
		Short:   "Delete an assistant and its assets",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := api().deleteAssistant(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	assistantsCmd.AddCommand(listCmd, createCmd, deleteCmd)

	var segmentType, segmentParams string
	var rawPoints []string
	segmentCmd := &cobra.Command{
		Use:   "segment ASSISTANT IMAGE",
		Short: "Segment the object under the given foreground points",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, err := parsePoints(rawPoints)
			if err != nil {
				return err
			}
			result, err := api().segment(cmd.Context(), args[0], segmentType, args[1], points, segmentParams)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
	segmentCmd.Flags().StringVar(&segmentType, "type", "", "Assistant type; resolved from the registry when empty")
	segmentCmd.Flags().StringArrayVarP(&rawPoints, "point", "p", nil, "Foreground point as x,y (repeatable)")
	segmentCmd.Flags().StringVar(&segmentParams, "params", "", "Run parameters as a JSON object")
	_ = segmentCmd.MarkFlagRequired("point")

	rootCmd.AddCommand(healthCmd, assistantsCmd, segmentCmd)
	return rootCmd
}

// parsePoints разбирает точки вида "x,y"
func parsePoints(raw []string) ([][2]float64, error) {
	points := make([][2]float64, 0, len(raw))
	for _, p := range raw {
		xs, ys, ok := strings.Cut(p, ",")
		if !ok {
			return nil, fmt.Errorf("invalid point %q: expected x,y", p)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid point %q: %w", p, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid point %q: %w", p, err)
		}
		points = append(points, [2]float64{x, y})
	}
	return points, nil
}

func renderAssistants(out io.Writer, list *models.ListAssistantsResponse) {
	var data [][]string
	for _, a := range list.Assistants {
		data = append(data, []string{a.Name, a.AssistantType, formatParameters(a.Parameters), a.CreatedAt.Format(time.DateTime)})
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"NAME", "TYPE", "PARAMETERS", "CREATED"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()

	fmt.Fprintf(out, "page %d, %d of %d assistants\n", list.Page, len(list.Assistants), list.Total)
}

func formatParameters(parameters map[string]any) string {
	if len(parameters) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(parameters))
	for k := range parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, parameters[k]))
	}
	return strings.Join(parts, " ")
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
