package ledger

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"batterypass/internal/platform/config"
	"batterypass/pkg/domain"
	dErrors "batterypass/pkg/domain-errors"
)

// ContractBackend is the read side of an EVM node. *ethclient.Client
// satisfies it.
type ContractBackend interface {
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TxSender submits a signed transaction carrying calldata to a contract.
// This is the wallet's half of a write: it owns the key, pays the gas, and
// its address becomes msg.sender.
type TxSender interface {
	SendTransaction(ctx context.Context, to common.Address, calldata []byte) (common.Hash, error)
}

// EVM implements the three registry facades against deployed contracts.
type EVM struct {
	backend ContractBackend
	sender  TxSender

	identityAddr   common.Address
	credentialAddr common.Address
	passportAddr   common.Address

	identityABI   abi.ABI
	credentialABI abi.ABI
	passportABI   abi.ABI

	roleByID map[common.Hash]domain.Role
}

// NewEVM builds the contract-backed ledger client. It verifies that bytecode
// is deployed at every configured address and fails fast with
// ContractNotDeployed otherwise; nothing else may be called after that.
func NewEVM(ctx context.Context, cfg config.Contracts, backend ContractBackend, sender TxSender) (*EVM, error) {
	e := &EVM{
		backend:        backend,
		sender:         sender,
		identityAddr:   cfg.IdentityRegistry,
		credentialAddr: cfg.CredentialRegistry,
		passportAddr:   cfg.BatteryPassport,
		roleByID:       make(map[common.Hash]domain.Role, len(domain.AllRoles)),
	}

	var err error
	if e.identityABI, err = abi.JSON(strings.NewReader(identityRegistryABI)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "parse identity registry abi")
	}
	if e.credentialABI, err = abi.JSON(strings.NewReader(credentialRegistryABI)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "parse credential registry abi")
	}
	if e.passportABI, err = abi.JSON(strings.NewReader(passportABI)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "parse passport abi")
	}
	for _, role := range domain.AllRoles {
		e.roleByID[role.OnChainID()] = role
	}

	for name, addr := range map[string]common.Address{
		"identity registry":   e.identityAddr,
		"credential registry": e.credentialAddr,
		"battery passport":    e.passportAddr,
	} {
		code, err := backend.CodeAt(ctx, addr, nil)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeTransport, "check deployed bytecode for "+name)
		}
		if len(code) == 0 {
			return nil, dErrors.New(dErrors.CodeContractNotDeployed, "no bytecode at "+name+" address "+addr.Hex())
		}
	}

	return e, nil
}

// Clients returns the facade bundle backed by this client.
func (e *EVM) Clients() Clients {
	return Clients{Identity: e, Credential: e, Passport: e}
}

// --- IdentityRegistry ---

func (e *EVM) RegisterDID(ctx context.Context, p RegisterDIDParams) error {
	roles := make([][32]byte, len(p.Roles))
	for i, r := range p.Roles {
		roles[i] = r.OnChainID()
	}
	return e.transact(ctx, e.identityAddr, e.identityABI, "registerDID", p.DID, p.Owner, p.TrustLevel, roles)
}

func (e *EVM) VerifyDID(ctx context.Context, did string, _ common.Address) error {
	// The caller is the tx sender; the contract reads msg.sender.
	return e.transact(ctx, e.identityAddr, e.identityABI, "verifyDID", did)
}

func (e *EVM) IsDIDRegistered(ctx context.Context, did string) (bool, error) {
	vals, err := e.call(ctx, e.identityAddr, e.identityABI, "isDIDRegistered", did)
	if err != nil {
		return false, err
	}
	return vals[0].(bool), nil
}

func (e *EVM) GetDID(ctx context.Context, did string) (domain.DIDRecord, error) {
	vals, err := e.call(ctx, e.identityAddr, e.identityABI, "getDID", did)
	if err != nil {
		return domain.DIDRecord{}, err
	}
	rec := domain.DIDRecord{
		Name:         did,
		Owner:        vals[0].(common.Address),
		TrustLevel:   vals[1].(uint8),
		Verified:     vals[3].(bool),
		RegisteredAt: vals[4].(*big.Int).Int64(),
	}
	for _, raw := range vals[2].([][32]byte) {
		if role, ok := e.roleByID[common.Hash(raw)]; ok {
			rec.Roles = append(rec.Roles, role)
		}
	}
	if rec.Owner == (common.Address{}) {
		return domain.DIDRecord{}, ErrNotFound
	}
	return rec, nil
}

func (e *EVM) ValidateDIDRole(ctx context.Context, did string, role domain.Role) (bool, error) {
	vals, err := e.call(ctx, e.identityAddr, e.identityABI, "validateDIDRole", did, [32]byte(role.OnChainID()))
	if err != nil {
		return false, err
	}
	return vals[0].(bool), nil
}

// --- CredentialRegistry ---

func (e *EVM) IssueVerifiableCredential(ctx context.Context, p IssueParams) error {
	return e.transact(ctx, e.credentialAddr, e.credentialABI, "issueVerifiableCredential",
		p.ID, p.SubjectDID, []byte(p.Claims), new(big.Int).SetInt64(p.ExpiresAt))
}

func (e *EVM) SignCredential(ctx context.Context, credentialID string, sig []byte) error {
	return e.transact(ctx, e.credentialAddr, e.credentialABI, "signCredential", credentialID, sig)
}

func (e *EVM) ValidateVerifiableCredential(ctx context.Context, credentialID string) (bool, error) {
	vals, err := e.call(ctx, e.credentialAddr, e.credentialABI, "validateVerifiableCredential", credentialID)
	if err != nil {
		return false, err
	}
	return vals[0].(bool), nil
}

func (e *EVM) RevokeCredential(ctx context.Context, credentialID string, _ common.Address) error {
	return e.transact(ctx, e.credentialAddr, e.credentialABI, "revokeCredential", credentialID)
}

func (e *EVM) GetIssuedTimestamp(ctx context.Context, credentialID string) (int64, error) {
	vals, err := e.call(ctx, e.credentialAddr, e.credentialABI, "getIssuedTimestamp", credentialID)
	if err != nil {
		return 0, err
	}
	return vals[0].(*big.Int).Int64(), nil
}

func (e *EVM) GetCredential(ctx context.Context, credentialID string) (Credential, error) {
	vals, err := e.call(ctx, e.credentialAddr, e.credentialABI, "getCredential", credentialID)
	if err != nil {
		return Credential{}, err
	}
	cred := Credential{
		ID:         credentialID,
		SubjectDID: vals[0].(string),
		Issuer:     vals[1].(common.Address),
		Claims:     vals[2].([]byte),
		IssuedAt:   vals[3].(*big.Int).Int64(),
		ExpiresAt:  vals[4].(*big.Int).Int64(),
		Signature:  vals[5].([]byte),
		Revoked:    vals[6].(bool),
	}
	if cred.SubjectDID == "" {
		return Credential{}, ErrNotFound
	}
	return cred, nil
}

// --- PassportRegistry ---

func (e *EVM) Exists(ctx context.Context, tokenID uint64) (bool, error) {
	vals, err := e.call(ctx, e.passportAddr, e.passportABI, "exists", tokenArg(tokenID))
	if err != nil {
		return false, err
	}
	return vals[0].(bool), nil
}

func (e *EVM) GetBatteryPassport(ctx context.Context, tokenID uint64) (Passport, error) {
	vals, err := e.call(ctx, e.passportAddr, e.passportABI, "getBatteryPassport", tokenArg(tokenID))
	if err != nil {
		return Passport{}, err
	}
	return Passport{
		TokenID:         tokenID,
		Owner:           vals[0].(common.Address),
		Organization:    vals[1].(string),
		LifecycleStatus: vals[2].(string),
		Status:          vals[3].(string),
	}, nil
}

func (e *EVM) GetLifecycleStatus(ctx context.Context, tokenID uint64) (string, error) {
	vals, err := e.call(ctx, e.passportAddr, e.passportABI, "getLifecycleStatus", tokenArg(tokenID))
	if err != nil {
		return "", err
	}
	return vals[0].(string), nil
}

func (e *EVM) Nonce(ctx context.Context, addr common.Address) (uint64, error) {
	vals, err := e.call(ctx, e.passportAddr, e.passportABI, "nonces", addr)
	if err != nil {
		return 0, err
	}
	return vals[0].(*big.Int).Uint64(), nil
}

func (e *EVM) GrantRole(ctx context.Context, role domain.Role, grantee, _ common.Address) error {
	return e.transact(ctx, e.passportAddr, e.passportABI, "grantRole", [32]byte(role.OnChainID()), grantee)
}

func (e *EVM) AssignOrganization(ctx context.Context, tokenID uint64, org string, _ common.Address) error {
	return e.transact(ctx, e.passportAddr, e.passportABI, "assignOrganization", tokenArg(tokenID), org)
}

func (e *EVM) SubmitUpdate(ctx context.Context, u Update) error {
	didHash := [32]byte(domain.Keccak([]byte(u.DID)))

	switch u.Action {
	case domain.ActionMaterialComposition:
		if len(u.ContentHashes) != 2 {
			return dErrors.New(dErrors.CodeBadRequest, "material composition commits two hashes")
		}
		return e.transact(ctx, e.passportAddr, e.passportABI, "updateMaterialComposition",
			tokenArg(u.TokenID), didHash, u.CredentialID, [32]byte(u.ContentHashes[0]), [32]byte(u.ContentHashes[1]), u.Signature)
	case domain.ActionDueDiligence:
		return e.transact(ctx, e.passportAddr, e.passportABI, "updateDueDiligence",
			tokenArg(u.TokenID), didHash, u.CredentialID, [32]byte(u.ContentHashes[0]), u.Signature)
	case domain.ActionLifecycleStatus:
		return e.transact(ctx, e.passportAddr, e.passportABI, "updateLifecycleStatus",
			tokenArg(u.TokenID), didHash, u.CredentialID, [32]byte(u.ContentHashes[0]), u.Status, new(big.Int).SetUint64(u.Nonce), u.Signature)
	case domain.ActionOwnershipTransfer:
		return e.transact(ctx, e.passportAddr, e.passportABI, "transferOwnership",
			tokenArg(u.TokenID), didHash, u.CredentialID, [32]byte(u.ContentHashes[0]), u.NewOwner, new(big.Int).SetUint64(u.Nonce), u.Signature)
	case domain.ActionStatusChange:
		return e.transact(ctx, e.passportAddr, e.passportABI, "updateStatus",
			tokenArg(u.TokenID), didHash, u.CredentialID, [32]byte(u.ContentHashes[0]), u.Status, u.Signature)
	case domain.ActionDiscrepancyReport:
		return e.transact(ctx, e.passportAddr, e.passportABI, "reportDiscrepancy",
			tokenArg(u.TokenID), didHash, u.CredentialID, [32]byte(u.ContentHashes[0]), u.Signature)
	}
	return dErrors.New(dErrors.CodeBadRequest, "unknown action "+string(u.Action))
}

func (e *EVM) GetContentCommitment(ctx context.Context, q ContentQuery) (common.Hash, error) {
	vals, err := e.call(ctx, e.passportAddr, e.passportABI, "getContentCommitment",
		tokenArg(q.TokenID), string(q.Action), q.Caller, q.Signature)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(vals[0].([32]byte)), nil
}

// --- plumbing ---

func (e *EVM) call(ctx context.Context, addr common.Address, contractABI abi.ABI, method string, args ...any) ([]any, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "pack "+method)
	}
	res, err := e.backend.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, wrapCallError(err, method)
	}
	vals, err := contractABI.Unpack(method, res)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "unpack "+method)
	}
	return vals, nil
}

func (e *EVM) transact(ctx context.Context, addr common.Address, contractABI abi.ABI, method string, args ...any) error {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "pack "+method)
	}
	if _, err := e.sender.SendTransaction(ctx, addr, data); err != nil {
		return wrapCallError(err, method)
	}
	return nil
}

// wrapCallError separates contract rejections (revert detail preserved) from
// transport failures; neither is retried here.
func wrapCallError(err error, method string) error {
	if strings.Contains(strings.ToLower(err.Error()), "revert") {
		return dErrors.Wrap(err, dErrors.CodeOnChainRejected, method+" reverted: "+err.Error())
	}
	return dErrors.Wrap(err, dErrors.CodeTransport, method+" call failed")
}

func tokenArg(tokenID uint64) *big.Int {
	return new(big.Int).SetUint64(tokenID)
}

var (
	_ IdentityRegistry   = (*EVM)(nil)
	_ CredentialRegistry = (*EVM)(nil)
	_ PassportRegistry   = (*EVM)(nil)
)
