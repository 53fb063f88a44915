package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"civicmesh/core"
)

func publishCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "publish", Short: "sign and store a new event"}
	cmd.AddCommand(
		publishProfileCmd(),
		publishPostCmd(),
		publishProofCmd(),
		publishFollowCmd(),
		publishMessageCmd(),
		publishTokenCmd(),
		publishTokenSendCmd(),
		publishNameCmd(),
		publishWebCmd(),
		publishProposalCmd(),
		publishVoteCmd(),
	)
	return cmd
}

// publishTokenSendCmd is the send-token command (§6): it splits amount
// into a Burn targeting the recipient plus a no-target system Burn of
// the current tax rate, chained off the first via ref_cid, so the tax
// is applied once at send time rather than again when the recipient
// claims it.
func publishTokenSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [recipient] [amount]",
		Short: "send tokens, splitting off the current tax rate as a system burn",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient := args[0]
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("bad amount: %w", err)
			}

			now := time.Now().UTC()
			rate, err := core.CurrentTaxRate(store, now)
			if err != nil {
				return err
			}
			net, tax := core.TaxSplit(int64(amount), rate)
			if net < 0 || tax < 0 {
				return fmt.Errorf("negative tax split")
			}

			send := &core.TokenPayload{Action: core.TokenBurn, Amount: uint64(net), Target: &recipient}
			sendEvent, err := publishEventReturning(send, headOrArg(""))
			if err != nil {
				return err
			}

			if tax > 0 {
				memo := "tax"
				burn := &core.TokenPayload{Action: core.TokenBurn, Amount: uint64(tax), Memo: &memo, RefCID: &sendEvent.ID}
				if err := publishEvent(burn, []string{sendEvent.ID}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}

func publishProfileCmd() *cobra.Command {
	var name, bio string
	var founderID uint32
	var claimFounder bool
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "publish a profile update",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &core.ProfilePayload{Name: name, Bio: bio}
			if claimFounder {
				p.FounderID = &founderID
			}
			pubHex := id.EncryptionPubKeyHex()
			p.EncryptionPubkey = &pubHex
			return publishEvent(p, headOrArg(""))
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&bio, "bio", "", "short biography")
	cmd.Flags().Uint32Var(&founderID, "founder-id", 0, "founder slot to claim, 0-100")
	cmd.Flags().BoolVar(&claimFounder, "claim-founder", false, "claim the given founder slot")
	return cmd
}

func publishPostCmd() *cobra.Command {
	var content, geohash string
	cmd := &cobra.Command{
		Use:   "post",
		Short: "publish a post",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := &core.PostPayload{Content: content}
			if geohash != "" {
				p.Geohash = &geohash
			}
			return publishEvent(p, headOrArg(""))
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "post body")
	cmd.Flags().StringVar(&geohash, "geohash", "", "locality geohash prefix")
	return cmd
}

func publishProofCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "vouch [target-author-id]",
		Short: "vouch for another author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target = args[0]
			return publishEvent(&core.ProofPayload{Target: target}, headOrArg(""))
		},
	}
	return cmd
}

func publishFollowCmd() *cobra.Command {
	var unfollow bool
	cmd := &cobra.Command{
		Use:   "follow [target-author-id]",
		Short: "follow or unfollow another author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return publishEvent(&core.FollowPayload{Target: args[0], Follow: !unfollow}, headOrArg(""))
		},
	}
	cmd.Flags().BoolVar(&unfollow, "remove", false, "unfollow instead of follow")
	return cmd
}

func publishMessageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "message [recipient-author-id] [plaintext]",
		Short: "seal and send a direct message to recipient's published key-agreement key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient, plaintext := args[0], args[1]
			recipientKey, err := core.RecipientAgreementKey(store, recipient)
			if err != nil {
				return err
			}
			ciphertext, nonce, ephemeralPub, err := core.EncryptMessage(recipientKey, []byte(plaintext))
			if err != nil {
				return err
			}
			return publishEvent(&core.MessagePayload{
				Recipient:       recipient,
				Ciphertext:      ciphertext,
				Nonce:           nonce,
				EphemeralPubkey: ephemeralPub,
			}, headOrArg(""))
		},
	}
	return cmd
}

func publishTokenCmd() *cobra.Command {
	var action, target, memo, refCID string
	var amount uint64
	cmd := &cobra.Command{
		Use:   "token [mint|burn|claim|escrow|reward]",
		Short: "publish a token action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var a core.TokenAction
			switch args[0] {
			case "mint":
				a = core.TokenMint
			case "burn":
				a = core.TokenBurn
			case "claim":
				a = core.TokenTransferClaim
			case "escrow":
				a = core.TokenEscrow
			case "reward":
				a = core.TokenMintReward
			default:
				return cmd.Help()
			}
			p := &core.TokenPayload{Action: a, Amount: amount}
			if target != "" {
				p.Target = &target
			}
			if memo != "" {
				p.Memo = &memo
			}
			if refCID != "" {
				p.RefCID = &refCID
			}
			return publishEvent(p, headOrArg(""))
		},
	}
	cmd.Flags().Uint64Var(&amount, "amount", 0, "token amount")
	cmd.Flags().StringVar(&target, "target", "", "beneficiary author id")
	cmd.Flags().StringVar(&memo, "memo", "", "memo, e.g. \"ubi\"")
	cmd.Flags().StringVar(&refCID, "ref", "", "referenced event id (e.g. the burn a claim matches)")
	return cmd
}

func publishNameCmd() *cobra.Command {
	var name, target string
	cmd := &cobra.Command{
		Use:   "name [name] [target]",
		Short: "bind a human-readable name to a target id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, target = args[0], args[1]
			return publishEvent(&core.NamePayload{Name: name, Target: target}, headOrArg(""))
		},
	}
	return cmd
}

func publishWebCmd() *cobra.Command {
	var url, title, content, description string
	cmd := &cobra.Command{
		Use:   "web [url]",
		Short: "publish a web page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url = args[0]
			return publishEvent(&core.WebPayload{URL: url, Title: title, Content: content, Description: description}, headOrArg(""))
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "page title")
	cmd.Flags().StringVar(&content, "content", "", "page content or base64/hex wasm renderer")
	cmd.Flags().StringVar(&description, "description", "", "page description")
	return cmd
}

func publishProposalCmd() *cobra.Command {
	var title, body, param string
	cmd := &cobra.Command{
		Use:   "proposal [standard|constitutional|emergency|set-tax|define-ministries]",
		Short: "submit a governance proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var k core.ProposalKind
			switch args[0] {
			case "standard":
				k = core.ProposalStandard
			case "constitutional":
				k = core.ProposalConstitutional
			case "emergency":
				k = core.ProposalEmergency
			case "set-tax":
				k = core.ProposalSetTax
			case "define-ministries":
				k = core.ProposalDefineMinistries
			default:
				return cmd.Help()
			}
			var paramPtr *string
			if param != "" {
				paramPtr = &param
			}
			return publishEvent(&core.ProposalPayload{Kind: k, Title: title, Body: body, Param: paramPtr}, headOrArg(""))
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "proposal title")
	cmd.Flags().StringVar(&body, "body", "", "proposal body")
	cmd.Flags().StringVar(&param, "param", "", "kind-specific parameter (tax rate, ministry list json)")
	return cmd
}

func publishVoteCmd() *cobra.Command {
	var proposalID, choice string
	cmd := &cobra.Command{
		Use:   "vote [proposal-id] [yes|no|abstain|petition]",
		Short: "vote or sign the petition on a proposal",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			proposalID, choice = args[0], args[1]
			var c core.VoteChoice
			switch choice {
			case "yes":
				c = core.VoteYes
			case "no":
				c = core.VoteNo
			case "abstain":
				c = core.VoteAbstain
			case "petition":
				c = core.VotePetitionSignature
			default:
				return cmd.Help()
			}
			return publishEvent(&core.VotePayload{ProposalID: proposalID, Choice: c}, headOrArg(""))
		},
	}
	return cmd
}
