// Package cmd defines the bookmarkhub command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bookmarkhub",
	Short: "BookmarkHub - self-hosted bookmark archive with semantic search",
	Long: `BookmarkHub ingests submitted URLs into a searchable personal archive:
pages are fetched, reduced to their readable article, enriched with tags,
a summary and vector embeddings, and made queryable through retrieval-augmented
question answering over your own corpus.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
