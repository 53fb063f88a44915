package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"civicmesh/core"
)

func queryCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "query", Short: "run a read-only projection against the local store"}
	cmd.AddCommand(
		queryFeedCmd(),
		queryProfileCmd(),
		queryBalanceCmd(),
		queryProposalCmd(),
		queryResolveCmd(),
		queryReputationCmd(),
		queryInboxCmd(),
	)
	return cmd
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func queryFeedCmd() *cobra.Command {
	var author string
	var limit int
	cmd := &cobra.Command{
		Use:   "feed",
		Short: "recent posts, or a single author's following feed with --author",
		RunE: func(cmd *cobra.Command, args []string) error {
			if author == "" {
				events, err := core.RecentPosts(store, limit)
				if err != nil {
					return err
				}
				return printJSON(events)
			}
			events, err := core.FollowingFeed(store, author, limit)
			if err != nil {
				return err
			}
			return printJSON(events)
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "show this author's following feed instead of the global recent feed")
	cmd.Flags().IntVar(&limit, "limit", 50, "max results")
	return cmd
}

func queryProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile [author-id]",
		Short: "resolve an author's current profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := core.Profile(store, args[0])
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}
	return cmd
}

func queryBalanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance [author-id]",
		Short: "replay this author's token ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bal, err := core.Balance(store, args[0])
			if err != nil {
				return err
			}
			fmt.Println(bal)
			return nil
		},
	}
	return cmd
}

func queryProposalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proposal [proposal-id]",
		Short: "tally and status of a governance proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := core.ProposalStatus(store, args[0], time.Now().UTC())
			if err != nil {
				return err
			}
			return printJSON(status)
		},
	}
	return cmd
}

func queryResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve [name]",
		Short: "resolve a bound name to its target id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, ok, err := core.ResolveName(store, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no binding found for %q", args[0])
			}
			fmt.Println(target)
			return nil
		},
	}
	return cmd
}

// queryInboxCmd decrypts the received half of a thread only: the
// ephemeral private key used to seal an outgoing message is never
// retained after sending, so this identity's own sent messages show as
// undecryptable, the same sealed-sender property as the scheme they use.
func queryInboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox [other-author-id]",
		Short: "decrypt and print this identity's message thread with other",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := core.MessageThread(store, id.AuthorID(), args[0])
			if err != nil {
				return err
			}
			for _, e := range events {
				p, ok := e.Payload.(*core.MessagePayload)
				if !ok {
					continue
				}
				plaintext, err := core.DecryptMessage(id, p)
				if err != nil {
					fmt.Printf("%s  [undecryptable: %v]\n", e.Timestamp.Format(time.RFC3339), err)
					continue
				}
				fmt.Printf("%s  %s: %s\n", e.Timestamp.Format(time.RFC3339), e.Author, plaintext)
			}
			return nil
		},
	}
	return cmd
}

func queryReputationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reputation [author-id]",
		Short: "composite reputation score",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := core.Reputation(store, args[0])
			if err != nil {
				return err
			}
			fmt.Println(score)
			return nil
		},
	}
	return cmd
}
