// Command civic-cli is the operator tool for a civicmesh node: it
// publishes signed events directly into the local store, runs the
// read-only projections, and inspects overlay peers and storage quota.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"civicmesh/core"
	"civicmesh/pkg/utils"
)

var (
	dbPath  string
	keyDir  string
	log     = logrus.New()
	store   *core.Store
	id      *core.Identity
	vcache  *core.VerifyCache
)

func main() {
	root := &cobra.Command{
		Use:   "civic-cli",
		Short: "operate a civicmesh node's local store",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return openLocal()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if store != nil {
				store.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&dbPath, "db", utils.EnvOrDefault("CIVICMESH_DB_PATH", "./data/civicmesh.db"), "path to the event store")
	root.PersistentFlags().StringVar(&keyDir, "keys", utils.EnvOrDefault("CIVICMESH_KEY_DIR", "./data/identity"), "path to this node's identity keys")

	root.AddCommand(publishCmd())
	root.AddCommand(queryCmd())
	root.AddCommand(peerCmd())
	root.AddCommand(quotaCmd())
	root.AddCommand(vmCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openLocal() error {
	var err error
	store, err = core.OpenStore(dbPath, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	id, err = core.LoadOrCreateIdentity(keyDir, log)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	vcache = core.NewVerifyCache(store)
	return nil
}

// publishEvent validates payload against the same policy gates the node
// loop enforces, signs it, stores it as a local head, and prints its id.
func publishEvent(payload core.Payload, prev []string) error {
	_, err := publishEventReturning(payload, prev)
	return err
}

// publishEventReturning is publishEvent but hands back the stored event,
// for callers that need to chain a follow-up event off its id (e.g. the
// tax-on-transfer burn-split).
func publishEventReturning(payload core.Payload, prev []string) (*core.Event, error) {
	now := time.Now().UTC()
	author := id.AuthorID()
	if err := core.ValidatePayload(store, vcache, author, payload, now); err != nil {
		return nil, err
	}
	e, err := core.NewEvent(id, payload, prev, uint64(now.UnixNano()))
	if err != nil {
		return nil, err
	}
	if err := store.Put(e, true); err != nil {
		return nil, err
	}
	if core.InvalidatesVerification(e.Type) {
		vcache.Invalidate()
	}
	fmt.Println(e.ID)
	return e, nil
}

func headOrArg(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	if h, ok := store.Head(id.AuthorID()); ok {
		return []string{h}
	}
	return nil
}
