package main

import (
	"github.com/spf13/cobra"

	"igfetch/pkg/instagram"
	"igfetch/pkg/models"
)

var storiesCmd = &cobra.Command{
	Use:   "stories <username>",
	Short: "List the current story media of a user",
	Long: `List the media links of a user's current stories.

A user without stories is not an error: the run ends with "no content".`,
	Example: `  # Validate story links of a user
  igfetch stories natgeo

  # Save the media, three links at a time
  igfetch stories @natgeo --download --concurrency 3 -o ./media`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, func() (models.ScrapeRequest, error) {
			return instagram.NewStoriesRequest(args[0])
		})
	},
}

var reelCmd = &cobra.Command{
	Use:   "reel <url>",
	Short: "List the download links of a reel or post",
	Example: `  igfetch reel https://www.instagram.com/reel/C1a2b3c4d5e/
  igfetch reel instagram.com/p/C1a2b3c4d5e --download --tui`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, func() (models.ScrapeRequest, error) {
			return instagram.NewReelRequest(args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(storiesCmd)
	rootCmd.AddCommand(reelCmd)
}
