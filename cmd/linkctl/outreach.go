package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	outreachCmd := &cobra.Command{Use: "outreach", Short: "Outreach run operations"}

	getCmd := &cobra.Command{
		Use:   "get RUN_ID",
		Short: "Get an outreach run by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doGet(fmt.Sprintf("%s/v0/outreach/%s", apiFlag, args[0]))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	outreachCmd.AddCommand(getCmd)

	collectCmd := &cobra.Command{
		Use:   "collect RUN_ID",
		Short: "Poll replies and advance a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON(fmt.Sprintf("%s/v0/outreach/%s/collect", apiFlag, args[0]), nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	outreachCmd.AddCommand(collectCmd)

	var requesterOk, targetOk bool
	consentCmd := &cobra.Command{
		Use:   "consent RUN_ID",
		Short: "Resolve consent for a suggested candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]interface{}{"requesterOk": requesterOk, "targetOk": targetOk}
			data, err := doPostJSON(fmt.Sprintf("%s/v0/outreach/%s/consent", apiFlag, args[0]), payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	consentCmd.Flags().BoolVar(&requesterOk, "requester-ok", false, "Requester accepted the introduction")
	consentCmd.Flags().BoolVar(&targetOk, "target-ok", false, "Candidate accepted the introduction")
	outreachCmd.AddCommand(consentCmd)

	cancelCmd := &cobra.Command{
		Use:   "cancel RUN_ID",
		Short: "Cancel an active run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := doPostJSON(fmt.Sprintf("%s/v0/outreach/%s/cancel", apiFlag, args[0]), nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	outreachCmd.AddCommand(cancelCmd)

	rootCmd.AddCommand(outreachCmd)
}
