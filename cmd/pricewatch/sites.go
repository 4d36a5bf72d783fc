package main

import (
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/use-agent/pricewatch/site"
)

var sitesCmd = &cobra.Command{
	Use:   "sites",
	Short: "List the supported sites.",
	Run: func(cmd *cobra.Command, args []string) {
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Site", "Hosts", "Engine", "Result file", "Fallback"})

		for _, s := range site.DefaultRegistry().All() {
			t.AppendRow(table.Row{s.Name, strings.Join(s.Hosts, ", "), s.Engine, s.ResultFile, s.Fallback})
		}

		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}

func init() {
	rootCmd.AddCommand(sitesCmd)
}
