package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"civicmesh/core"
)

// peerCmd spins up its own short-lived overlay (a second libp2p identity,
// distinct from any running civicd's) to dial and inspect the network.
// It is a standalone probe, not a proxy into a running daemon's peer set.
func peerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "peer", Short: "inspect or dial the overlay network"}
	cmd.AddCommand(peerDialCmd(), peerIDCmd())
	return cmd
}

func peerDialCmd() *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "dial [multiaddr]",
		Short: "connect to a peer and report success",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := core.NewOverlay(core.OverlayConfig{ListenAddr: listenAddr}, log)
			if err != nil {
				return err
			}
			defer o.Close()
			if err := o.DialSeed(args[0]); err != nil {
				return err
			}
			time.Sleep(500 * time.Millisecond)
			fmt.Printf("connected, %d peer(s)\n", len(o.Peers()))
			return nil
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "/ip4/0.0.0.0/tcp/0", "local listen multiaddr")
	return cmd
}

func peerIDCmd() *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "id",
		Short: "print this tool's overlay peer id",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := core.NewOverlay(core.OverlayConfig{ListenAddr: listenAddr}, log)
			if err != nil {
				return err
			}
			defer o.Close()
			fmt.Println(o.LocalPeerID().String())
			return nil
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "/ip4/0.0.0.0/tcp/0", "local listen multiaddr")
	return cmd
}
