package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"batterypass/internal/authz"
	"batterypass/internal/contentstore"
	"batterypass/internal/credential"
	"batterypass/internal/directory"
	"batterypass/internal/identity"
	"batterypass/internal/ledger"
	"batterypass/internal/orchestrator"
	"batterypass/internal/platform/config"
	"batterypass/internal/platform/logger"
	"batterypass/internal/session"
	"batterypass/internal/signer"
)

var (
	cfgFile string
	keyHex  string
	v       *viper.Viper
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "passctl",
	Short: "Battery passport authorization client",
	Long: `passctl drives the battery passport protocol from the command line:
registering DIDs, issuing verifiable credentials, publishing authorized
content updates, and verifying published content against its on-chain
commitments.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.passctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&keyHex, "key", "", "hex-encoded signing key (or BATTERYPASS_KEY)")

	v = viper.New()
	v.SetEnvPrefix("BATTERYPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func initConfig() {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
			v.SetConfigName(".passctl")
			v.SetConfigType("yaml")
		}
	}
	// A missing config file is fine; everything can come from env and flags.
	_ = v.ReadInConfig()
}

func loadConfig() (config.Config, error) {
	cfg := config.Config{
		ChainID:          v.GetUint64("chain_id"),
		RPCURL:           v.GetString("rpc_url"),
		DirectoryBaseURL: v.GetString("directory_url"),
		DirectoryJWTKey:  v.GetString("directory_jwt_key"),
		PinningURL:       v.GetString("pinning_url"),
		GatewayURL:       v.GetString("gateway_url"),
		Contracts: config.Contracts{
			IdentityRegistry:   common.HexToAddress(v.GetString("identity_registry")),
			CredentialRegistry: common.HexToAddress(v.GetString("credential_registry")),
			BatteryPassport:    common.HexToAddress(v.GetString("passport_contract")),
		},
		SigningDomainName:    v.GetString("signing_domain"),
		SigningDomainVersion: v.GetString("signing_version"),
	}
	if cfg.SigningDomainName == "" {
		cfg.SigningDomainName = "BatteryPassport"
	}
	if cfg.SigningDomainVersion == "" {
		cfg.SigningDomainVersion = "1"
	}
	return cfg, cfg.Validate()
}

// services bundles everything a command needs, wired once per invocation.
type services struct {
	cfg     config.Config
	clients ledger.Clients
	store   contentstore.Store
	dir     *directory.Client
	sess    *session.Session
	signer  *signer.LocalSigner

	identity *identity.Service
	issuer   *credential.Issuer
	orch     *orchestrator.Orchestrator
}

func buildServices(ctx context.Context) (*services, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	if keyHex == "" {
		keyHex = v.GetString("key")
	}
	if keyHex == "" {
		return nil, fmt.Errorf("no signing key: pass --key or set BATTERYPASS_KEY")
	}
	sig, err := signer.NewLocalFromHex(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing signing key: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", cfg.RPCURL, err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing signing key: %w", err)
	}
	evm, err := ledger.NewEVM(ctx, cfg.Contracts, eth, ledger.NewKeyedSender(eth, key, cfg.ChainID))
	if err != nil {
		return nil, err
	}
	clients := evm.Clients()

	var dirOpts []directory.ClientOption
	if cfg.DirectoryJWTKey != "" {
		dirOpts = append(dirOpts, directory.WithTokenMinter(
			directory.NewTokenMinter([]byte(cfg.DirectoryJWTKey), sig.Address().Hex(), 5*time.Minute)))
	}
	dir := directory.NewClient(cfg.DirectoryBaseURL, dirOpts...)

	store := contentstore.NewClient(cfg.PinningURL, cfg.GatewayURL)
	sess := session.New(sig, dir, session.WithUserAgent("passctl/"+Version))
	sd := authz.SigningDomain{
		Name:    cfg.SigningDomainName,
		Version: cfg.SigningDomainVersion,
		ChainID: cfg.ChainID,
	}

	log := logger.New()
	identitySvc := identity.NewService(clients.Identity, clients.Passport,
		identity.WithLogger(log), identity.WithPendingQueue(dir))
	issuer := credential.NewIssuer(clients.Credential, clients.Identity, sig, sd,
		cfg.Contracts.CredentialRegistry, credential.WithLogger(log))
	orch := orchestrator.New(clients.Passport, store, dir, identitySvc, issuer,
		sd, cfg.Contracts.BatteryPassport, orchestrator.WithLogger(log))

	return &services{
		cfg:      cfg,
		clients:  clients,
		store:    store,
		dir:      dir,
		sess:     sess,
		signer:   sig,
		identity: identitySvc,
		issuer:   issuer,
		orch:     orch,
	}, nil
}

func ok(format string, args ...any) {
	fmt.Println(color.GreenString("✓"), fmt.Sprintf(format, args...))
}
