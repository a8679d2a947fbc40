package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"batterypass/internal/directory"
	"batterypass/internal/ledger"
	"batterypass/pkg/domain"
)

// didCmd groups identity registry operations.
var didCmd = &cobra.Command{
	Use:   "did",
	Short: "Identity registry operations",
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a DID on-chain",
	Long: `Register a DID in the identity registry. The signing key must hold the
registrar role. The DID stays unverified until "passctl did verify" runs.`,
	RunE: runRegister,
}

var verifyDIDCmd = &cobra.Command{
	Use:   "verify",
	Short: "Mark a registered DID as verified",
	RunE:  runVerifyDID,
}

var checkRoleCmd = &cobra.Command{
	Use:   "check-role",
	Short: "Check that a DID may act in a role for the signing key",
	RunE:  runCheckRole,
}

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "File a pending DID request for admin approval",
	RunE:  runRequest,
}

var grantRoleCmd = &cobra.Command{
	Use:   "grant-role",
	Short: "Grant an on-chain passport role to an address",
	RunE:  runGrantRole,
}

var assignOrgCmd = &cobra.Command{
	Use:   "assign-org",
	Short: "Assign a passport token to an organization",
	RunE:  runAssignOrg,
}

var (
	didFlag    string
	ownerFlag  string
	trustFlag  uint8
	rolesFlag  []string
	roleFlag   string
	tokenFlag  uint64
	orgFlag    string
	granteeStr string
)

func init() {
	rootCmd.AddCommand(didCmd)
	didCmd.AddCommand(registerCmd)
	didCmd.AddCommand(verifyDIDCmd)
	didCmd.AddCommand(checkRoleCmd)
	didCmd.AddCommand(requestCmd)
	didCmd.AddCommand(grantRoleCmd)
	didCmd.AddCommand(assignOrgCmd)

	registerCmd.Flags().StringVar(&didFlag, "did", "", "DID to register (required)")
	registerCmd.Flags().StringVar(&ownerFlag, "owner", "", "owner address (required)")
	registerCmd.Flags().Uint8Var(&trustFlag, "trust", 0, "trust level 1-5 (required)")
	registerCmd.Flags().StringSliceVar(&rolesFlag, "roles", nil, "comma-separated roles (required)")
	registerCmd.MarkFlagRequired("did")
	registerCmd.MarkFlagRequired("owner")
	registerCmd.MarkFlagRequired("trust")
	registerCmd.MarkFlagRequired("roles")

	verifyDIDCmd.Flags().StringVar(&didFlag, "did", "", "DID to verify (required)")
	verifyDIDCmd.MarkFlagRequired("did")

	checkRoleCmd.Flags().StringVar(&didFlag, "did", "", "DID to check (required)")
	checkRoleCmd.Flags().StringVar(&roleFlag, "role", "", "role to check (required)")
	checkRoleCmd.MarkFlagRequired("did")
	checkRoleCmd.MarkFlagRequired("role")

	requestCmd.Flags().StringVar(&didFlag, "did", "", "DID to request (required)")
	requestCmd.Flags().StringVar(&roleFlag, "role", "", "requested role (required)")
	requestCmd.Flags().Uint8Var(&trustFlag, "trust", 0, "requested trust level (required)")
	requestCmd.MarkFlagRequired("did")
	requestCmd.MarkFlagRequired("role")
	requestCmd.MarkFlagRequired("trust")

	grantRoleCmd.Flags().StringVar(&roleFlag, "role", "", "role to grant (required)")
	grantRoleCmd.Flags().StringVar(&granteeStr, "grantee", "", "grantee address (required)")
	grantRoleCmd.MarkFlagRequired("role")
	grantRoleCmd.MarkFlagRequired("grantee")

	assignOrgCmd.Flags().Uint64Var(&tokenFlag, "token", 0, "passport token id (required)")
	assignOrgCmd.Flags().StringVar(&orgFlag, "org", "", "organization name (required)")
	assignOrgCmd.MarkFlagRequired("token")
	assignOrgCmd.MarkFlagRequired("org")
}

func parseRoles(raw []string) ([]domain.Role, error) {
	roles := make([]domain.Role, 0, len(raw))
	for _, s := range raw {
		role, err := domain.ParseRole(strings.ToUpper(strings.TrimSpace(s)))
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	owner, err := domain.ParseAddress(ownerFlag)
	if err != nil {
		return err
	}
	roles, err := parseRoles(rolesFlag)
	if err != nil {
		return err
	}

	if err := svc.identity.Register(ctx, ledger.RegisterDIDParams{
		DID:        didFlag,
		Owner:      owner,
		TrustLevel: trustFlag,
		Roles:      roles,
		Caller:     svc.signer.Address(),
	}); err != nil {
		return fmt.Errorf("registering DID: %w", err)
	}
	ok("registered %s for %s at trust %d", didFlag, owner.Hex(), trustFlag)
	return nil
}

func runVerifyDID(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	if err := svc.identity.Verify(ctx, didFlag, svc.signer.Address()); err != nil {
		return fmt.Errorf("verifying DID: %w", err)
	}
	ok("verified %s", didFlag)
	return nil
}

func runCheckRole(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	role, err := domain.ParseRole(strings.ToUpper(roleFlag))
	if err != nil {
		return err
	}
	if err := svc.identity.CheckRole(ctx, didFlag, role, svc.signer.Address()); err != nil {
		return err
	}
	ok("%s may act as %s for %s", didFlag, role, svc.signer.Address().Hex())
	return nil
}

func runRequest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	id, err := svc.identity.RequestRegistration(ctx, directory.PendingDIDRequest{
		DID:        didFlag,
		Address:    svc.signer.Address().Hex(),
		Role:       strings.ToUpper(roleFlag),
		TrustLevel: trustFlag,
	})
	if err != nil {
		return fmt.Errorf("filing request: %w", err)
	}
	ok("pending request filed: %s", id)
	return nil
}

func runGrantRole(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	role, err := domain.ParseRole(strings.ToUpper(roleFlag))
	if err != nil {
		return err
	}
	grantee, err := domain.ParseAddress(granteeStr)
	if err != nil {
		return err
	}
	if err := svc.identity.GrantRole(ctx, role, grantee, svc.signer.Address()); err != nil {
		return fmt.Errorf("granting role: %w", err)
	}
	ok("granted %s to %s", role, grantee.Hex())
	return nil
}

func runAssignOrg(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, err := buildServices(ctx)
	if err != nil {
		return err
	}
	if err := svc.identity.AssignOrganization(ctx, tokenFlag, orgFlag, svc.signer.Address()); err != nil {
		return fmt.Errorf("assigning organization: %w", err)
	}
	ok("assigned token %d to %q", tokenFlag, orgFlag)
	return nil
}
