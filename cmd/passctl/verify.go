package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"batterypass/pkg/domain"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Read content back and verify its integrity",
	Long: `Fetch the latest document for a token and action, checking the on-chain
commitment, the directory index, and the stored bytes against each other.
A document that fails any leg of the check is withheld.`,
	RunE: runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Uint64Var(&tokenFlag, "token", 0, "passport token id (required)")
	verifyCmd.Flags().StringVar(&actionFlag, "action", "", "action whose content to read (required)")
	verifyCmd.MarkFlagRequired("token")
	verifyCmd.MarkFlagRequired("action")
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	action, err := domain.ParseAction(strings.ToLower(actionFlag))
	if err != nil {
		return err
	}

	res, err := svc.orch.VerifyContent(ctx, svc.sess, tokenFlag, action)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	ok("content %s matches commitment %s", res.ContentID, res.Commitment.Hex())

	pretty, err := json.MarshalIndent(json.RawMessage(res.Payload), "", "  ")
	if err != nil {
		return fmt.Errorf("formatting payload: %w", err)
	}
	fmt.Println(string(pretty))
	return nil
}
