package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func quotaCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "quota", Short: "inspect or set the local storage quota"}
	cmd.AddCommand(quotaStatusCmd(), quotaSetCmd())
	return cmd
}

func quotaStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "print current usage, quota and percent full",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := store.CheckQuota()
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	}
}

func quotaSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [bytes]",
		Short: "set the storage quota in bytes, 0 for unlimited",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var bytes uint64
			if _, err := fmt.Sscanf(args[0], "%d", &bytes); err != nil {
				return err
			}
			return store.SetQuota(bytes)
		},
	}
}
