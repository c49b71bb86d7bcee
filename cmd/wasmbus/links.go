package main

import (
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasmbus/link"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	localStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98")).Padding(0, 1)
)

func renderTable(headers []string, rows [][]string, highlight int) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == highlight && row >= 0 && row < len(rows) && rows[row][col] == "local" {
				return localStyle
			}
			return cellStyle
		}).
		String()
}

func newLinksCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "links",
		Short: "List the link graph and where each destination runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withEnv(cmd.Context(), func(e *env) error {
				rows := linkRows(e)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no links configured")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"LINK", "INTERFACE", "DESTINATION", "RUNS"}, rows, 3))
				return nil
			})
		},
	}
}

func linkRows(e *env) [][]string {
	snap := e.handler.Links().Snapshot()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	var rows [][]string
	for _, name := range names {
		instances := make([]string, 0, len(snap[name]))
		for instance := range snap[name] {
			instances = append(instances, instance)
		}
		sort.Strings(instances)
		for _, instance := range instances {
			dest := snap[name][instance]
			rows = append(rows, []string{name, instance, dest, runsAt(e, dest)})
		}
	}
	return rows
}

func runsAt(e *env, dest string) string {
	if _, ok := e.handler.Components().Get(dest); ok {
		return "local"
	}
	return "lattice"
}

func newResolveCmd(opts *rootOptions) *cobra.Command {
	var (
		linkName string
		target   string
	)

	cmd := &cobra.Command{
		Use:   "resolve <instance>",
		Short: "Resolve an interface instance to its destination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTarget(target)
			if err != nil {
				return err
			}
			return opts.withEnv(cmd.Context(), func(e *env) error {
				if err := selectLink(e, linkName, args[0]); err != nil {
					return err
				}
				res, err := e.handler.Resolve(t, args[0])
				if err != nil {
					return err
				}
				rows := [][]string{{res.Instance, res.LinkName, res.Destination, runsAt(e, res.Destination)}}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"INSTANCE", "LINK", "DESTINATION", "RUNS"}, rows, 3))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&linkName, "link", "l", "", "link name to select before resolving")
	cmd.Flags().StringVarP(&target, "target", "t", "", "pin a well-known target, e.g. keyvalue/store")
	return cmd
}

func parseTarget(s string) (link.Target, error) {
	if s == "" {
		return link.TargetNone, nil
	}
	t, ok := link.ParseTarget(s)
	if !ok {
		return link.TargetNone, fmt.Errorf("unknown target %q", s)
	}
	return t, nil
}

// selectLink validates and activates name for instance. An empty name
// keeps the default.
func selectLink(e *env, name, instance string) error {
	if name == "" {
		return nil
	}
	iface, err := link.ParseInterface(instance)
	if err != nil {
		return err
	}
	return e.handler.SetLinkName(name, iface)
}
