package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"batterypass/internal/orchestrator"
	"batterypass/pkg/domain"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Publish an authorized content update",
	Long: `Run the full update pipeline for one passport token: publish the payload
documents to the content store, sign the authorization with the configured
key, submit it on-chain, and index the published hashes in the directory.

Material composition updates take two payload files (composition, then due
diligence); every other action takes one.`,
	RunE: runUpdate,
}

var (
	actionFlag   string
	payloadFlags []string
	statusFlag   string
	newOwnerFlag string
	detailFlag   string
)

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().StringVar(&actionFlag, "action", "", "update action (required)")
	updateCmd.Flags().Uint64Var(&tokenFlag, "token", 0, "passport token id (required)")
	updateCmd.Flags().StringVar(&roleFlag, "role", "", "role to act under (required)")
	updateCmd.Flags().StringArrayVar(&payloadFlags, "payload", nil, "path to JSON payload, repeatable (required)")
	updateCmd.Flags().StringVar(&statusFlag, "status", "", "new status (lifecycle and status change)")
	updateCmd.Flags().StringVar(&newOwnerFlag, "new-owner", "", "new owner address (ownership transfer)")
	updateCmd.Flags().StringVar(&detailFlag, "detail", "", "free-form note for the activity log")
	updateCmd.MarkFlagRequired("action")
	updateCmd.MarkFlagRequired("token")
	updateCmd.MarkFlagRequired("role")
	updateCmd.MarkFlagRequired("payload")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}

	action, err := domain.ParseAction(strings.ToLower(actionFlag))
	if err != nil {
		return err
	}
	role, err := domain.ParseRole(strings.ToUpper(roleFlag))
	if err != nil {
		return err
	}

	payloads := make([]any, 0, len(payloadFlags))
	for _, path := range payloadFlags {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading payload: %w", err)
		}
		if !json.Valid(raw) {
			return fmt.Errorf("payload %s is not valid JSON", path)
		}
		payloads = append(payloads, json.RawMessage(raw))
	}

	req := orchestrator.UpdateRequest{
		Action:   action,
		TokenID:  tokenFlag,
		Role:     role,
		Payloads: payloads,
		Status:   statusFlag,
		Detail:   detailFlag,
	}
	if newOwnerFlag != "" {
		if req.NewOwner, err = domain.ParseAddress(newOwnerFlag); err != nil {
			return err
		}
	}

	res, err := svc.orch.Update(ctx, svc.sess, req)
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}

	for i, id := range res.ContentIDs {
		ok("published %s (commitment %s)", id, res.Commitments[i].Hex())
	}
	if !res.Reconciled {
		fmt.Println("warning: directory reconciliation incomplete; the index will lag until it converges")
	}
	ok("update accepted for token %d", tokenFlag)
	return nil
}
