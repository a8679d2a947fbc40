package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

// Contracts holds the deployed addresses of the three on-chain registries.
// Every address is required; the ledger client refuses to start against an
// address with no deployed bytecode.
type Contracts struct {
	IdentityRegistry   common.Address
	CredentialRegistry common.Address
	BatteryPassport    common.Address
}

// Config captures everything the orchestrator needs to talk to its
// collaborators. Built once at startup; fatal problems surface here, not at
// first use deep inside an update.
type Config struct {
	ChainID   uint64
	Contracts Contracts

	RPCURL           string
	DirectoryBaseURL string
	DirectoryJWTKey  string
	PinningURL       string
	GatewayURL       string // templated on the content id, e.g. https://gw.example/ipfs/%s

	// SigningDomain names the EIP-712 domain shared with the contracts.
	SigningDomainName    string
	SigningDomainVersion string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		RPCURL:               os.Getenv("BATTERYPASS_RPC_URL"),
		DirectoryBaseURL:     os.Getenv("BATTERYPASS_DIRECTORY_URL"),
		DirectoryJWTKey:      os.Getenv("BATTERYPASS_DIRECTORY_JWT_KEY"),
		PinningURL:           os.Getenv("BATTERYPASS_PINNING_URL"),
		GatewayURL:           os.Getenv("BATTERYPASS_GATEWAY_URL"),
		SigningDomainName:    envDefault("BATTERYPASS_SIGNING_DOMAIN", "BatteryPassport"),
		SigningDomainVersion: envDefault("BATTERYPASS_SIGNING_VERSION", "1"),
	}

	if raw := os.Getenv("BATTERYPASS_CHAIN_ID"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return Config{}, dErrors.New(dErrors.CodeInvalidConfig, fmt.Sprintf("invalid chain id %q", raw))
		}
		cfg.ChainID = id
	}

	var err error
	if cfg.Contracts.IdentityRegistry, err = envAddress("BATTERYPASS_IDENTITY_REGISTRY"); err != nil {
		return Config{}, err
	}
	if cfg.Contracts.CredentialRegistry, err = envAddress("BATTERYPASS_CREDENTIAL_REGISTRY"); err != nil {
		return Config{}, err
	}
	if cfg.Contracts.BatteryPassport, err = envAddress("BATTERYPASS_PASSPORT_CONTRACT"); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate checks the parts of the config every operation depends on. The
// role trust table is validated here as well so a bad build of the closed
// role set fails at load time rather than at call time.
func (c Config) Validate() error {
	if c.ChainID == 0 {
		return dErrors.New(dErrors.CodeInvalidConfig, "chain id is required")
	}
	for name, addr := range map[string]common.Address{
		"identity registry":   c.Contracts.IdentityRegistry,
		"credential registry": c.Contracts.CredentialRegistry,
		"passport contract":   c.Contracts.BatteryPassport,
	} {
		if addr == (common.Address{}) {
			return dErrors.New(dErrors.CodeInvalidConfig, name+" address is required")
		}
	}
	if c.SigningDomainName == "" || c.SigningDomainVersion == "" {
		return dErrors.New(dErrors.CodeInvalidConfig, "signing domain name and version are required")
	}
	for _, role := range domain.AllRoles {
		if role.MinTrust() == 0 {
			return dErrors.New(dErrors.CodeInvalidConfig, fmt.Sprintf("role %s has no minimum trust level", role))
		}
	}
	return nil
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envAddress(key string) (common.Address, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return common.Address{}, nil
	}
	addr, err := domain.ParseAddress(raw)
	if err != nil {
		return common.Address{}, dErrors.Wrap(err, dErrors.CodeInvalidConfig, key+" is not a valid address")
	}
	return addr, nil
}
