package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	var universityID, tags string
	factsCmd := &cobra.Command{
		Use:   "facts",
		Short: "List verified facts for a university",
		RunE: func(cmd *cobra.Command, args []string) error {
			if universityID == "" {
				return fmt.Errorf("--university required")
			}
			q := url.Values{"universityId": {universityID}}
			if tags != "" {
				q.Set("tags", tags)
			}
			data, err := doGet(fmt.Sprintf("%s/v0/facts?%s", apiFlag, q.Encode()))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	factsCmd.Flags().StringVarP(&universityID, "university", "U", "", "University ID (required)")
	factsCmd.Flags().StringVarP(&tags, "tags", "t", "", "Comma-separated tag filter")
	_ = factsCmd.MarkFlagRequired("university")
	rootCmd.AddCommand(factsCmd)
}
