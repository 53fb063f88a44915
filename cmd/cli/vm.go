package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"civicmesh/core"
)

func vmCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "vm", Short: "inspect contract state and render web pages"}
	cmd.AddCommand(vmStateCmd(), vmRenderCmd())
	return cmd
}

func vmStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state [contract-event-id]",
		Short: "derive a contract's current state by replaying its calls",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm := core.NewVM(log)
			state, err := vm.ComputeState(store, args[0])
			if err != nil {
				return err
			}
			fmt.Println(string(state))
			return nil
		},
	}
}

func vmRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render [web-event-id]",
		Short: "render a web:v1 event's content to HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := store.Get(args[0])
			if err != nil {
				return err
			}
			page, ok := e.Payload.(*core.WebPayload)
			if !ok {
				return fmt.Errorf("event %s is not a web:v1 page", args[0])
			}
			vm := core.NewVM(log)
			html, err := vm.RenderWebPage(page.Content)
			if err != nil {
				return err
			}
			fmt.Println(html)
			return nil
		},
	}
}
