package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	var userID string
	sendCmd := &cobra.Command{
		Use:   "send TEXT",
		Short: "Send a message to the assistant as a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			payload := map[string]interface{}{"userId": userID, "text": args[0]}
			data, err := doPostJSON(fmt.Sprintf("%s/v0/messages", apiFlag), payload)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(os.Stdout, string(data))
			return nil
		},
	}
	sendCmd.Flags().StringVarP(&userID, "user", "u", "", "User ID (required)")
	_ = sendCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(sendCmd)
}
