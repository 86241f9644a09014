package main

import (
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/storyreel/api/internal/catalog"
	"github.com/storyreel/api/internal/model"
)

var storiesCmd = &cobra.Command{
	Use:   "stories",
	Short: "List the stories videos can be generated for",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		printStories(os.Stdout, cat.List())
		return nil
	},
}

func printStories(w io.Writer, stories []model.Story) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Title"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, s := range stories {
		table.Append([]string{s.ID, s.Title})
	}
	table.Render()
}
