package application

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	log "github.com/sirupsen/logrus"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
	"github.com/bitmasklabs/rgbd/internal/core/ports"
	"github.com/bitmasklabs/rgbd/pkg/amountutil"
)

// contractIDTag namespaces contract id hashes.
var contractIDTag = []byte("rgbd/contract/v1")

// IssueRequest carries the issuance metadata of a new contract. Supply is a
// decimal string parsed exactly against the requested precision.
type IssueRequest struct {
	Ticker      string `json:"ticker"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Supply      string `json:"supply"`
	Precision   uint8  `json:"precision"`
	Seal        string `json:"seal"`
	Iface       string `json:"iface"`
}

// FullIssueRequest extends IssueRequest with the media metadata of unique
// digital assets.
type FullIssueRequest struct {
	IssueRequest
	Meta *domain.ContractMeta `json:"meta,omitempty"`
}

// ContractView is a contract together with its current balance of unspent
// owned allocations.
type ContractView struct {
	domain.Contract
	Balance uint64 `json:"balance"`
}

// IfaceInfo describes a supported contract interface.
type IfaceInfo struct {
	Name    string `json:"name"`
	IfaceID string `json:"ifaceId"`
}

// SchemaInfo describes a supported contract schema.
type SchemaInfo struct {
	SchemaID string `json:"schemaId"`
	Iface    string `json:"iface"`
}

// RegistryService issues, imports and lists asset contracts. Contracts are
// immutable once issued; only their allocation sets change over time.
type RegistryService interface {
	// IssueContract is the plain issuance variant without media metadata.
	// It delegates to FullIssueContract, the canonical path.
	IssueContract(ctx context.Context, req IssueRequest) (*domain.Contract, error)
	FullIssueContract(ctx context.Context, req FullIssueRequest) (*domain.Contract, error)
	ImportContract(ctx context.Context, payload string) (*domain.Contract, error)
	ListContracts(ctx context.Context, includeHidden bool) ([]ContractView, error)
	ListInterfaces(ctx context.Context) []IfaceInfo
	ListSchemas(ctx context.Context) []SchemaInfo
	HideContract(ctx context.Context, contractID string) error
}

type registryService struct {
	repoManager ports.RepoManager
}

// NewRegistryService returns a RegistryService backed by the given
// repositories.
func NewRegistryService(repoManager ports.RepoManager) RegistryService {
	return &registryService{repoManager: repoManager}
}

// genesisPayload is the serialized genesis state a contract's interchange
// formats are derived from.
type genesisPayload struct {
	ContractID  string               `json:"contractId"`
	IfaceID     string               `json:"ifaceId"`
	SchemaID    string               `json:"schemaId"`
	Iface       string               `json:"iface"`
	Ticker      string               `json:"ticker"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Supply      uint64               `json:"supply"`
	Precision   uint8                `json:"precision"`
	Seal        string               `json:"seal"`
	Created     int64                `json:"created"`
	Meta        *domain.ContractMeta `json:"meta,omitempty"`
}

func (s *registryService) IssueContract(
	ctx context.Context, req IssueRequest,
) (*domain.Contract, error) {
	return s.FullIssueContract(ctx, FullIssueRequest{IssueRequest: req})
}

func (s *registryService) FullIssueContract(
	ctx context.Context, req FullIssueRequest,
) (*domain.Contract, error) {
	if err := validateIssuance(req); err != nil {
		return nil, err
	}
	supply, err := amountutil.Parse(req.Supply, req.Precision)
	if err != nil {
		return nil, err
	}
	if supply <= 0 {
		return nil, fmt.Errorf("%w: supply must be positive", ErrInvalidRequest)
	}

	created := time.Now().Unix()
	contractID := newContractID(req.Iface, req.Ticker, req.Seal, supply, created)
	payload := genesisPayload{
		ContractID:  contractID,
		IfaceID:     ifaceID(req.Iface),
		SchemaID:    schemaID(req.Iface),
		Iface:       req.Iface,
		Ticker:      req.Ticker,
		Name:        req.Name,
		Description: req.Description,
		Supply:      supply,
		Precision:   req.Precision,
		Seal:        req.Seal,
		Created:     created,
		Meta:        req.Meta,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding genesis: %w", err)
	}
	formats := encodeFormats(encoded)

	contract := domain.Contract{
		ContractID:  contractID,
		IfaceID:     payload.IfaceID,
		SchemaID:    payload.SchemaID,
		Iface:       req.Iface,
		Ticker:      req.Ticker,
		Name:        req.Name,
		Description: req.Description,
		Supply:      supply,
		Precision:   req.Precision,
		Created:     created,
		Genesis:     formats,
		Contract:    formats,
		Meta:        req.Meta,
	}
	if err := s.repoManager.ContractRepository().AddContract(ctx, contract); err != nil {
		return nil, err
	}

	// The whole supply starts allocated to the issuance seal.
	value := domain.NewFungibleValue(supply)
	if contract.IsUDA() {
		var tokenIndex uint32
		if req.Meta != nil {
			tokenIndex = req.Meta.TokenIndex
		}
		value = domain.NewUDAValue(tokenIndex, supply)
	}
	if err := s.repoManager.ContractRepository().AddAllocation(ctx, domain.Allocation{
		ContractID: contractID,
		Utxo:       req.Seal,
		Value:      value,
		Derivation: terminalPath(domain.ExternalChain, 0),
		IsMine:     true,
	}); err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"contract": contractID,
		"ticker":   req.Ticker,
		"supply":   supply,
	}).Debug("contract issued")
	return &contract, nil
}

func (s *registryService) ImportContract(
	ctx context.Context, encoded string,
) (*domain.Contract, error) {
	raw, err := decodeAnyFormat(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidContractData, err)
	}

	var payload genesisPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed genesis", domain.ErrInvalidContractData)
	}
	if err := revalidateGenesis(payload); err != nil {
		return nil, err
	}

	canonical, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding genesis: %w", err)
	}
	formats := encodeFormats(canonical)

	contract := domain.Contract{
		ContractID:  payload.ContractID,
		IfaceID:     payload.IfaceID,
		SchemaID:    payload.SchemaID,
		Iface:       payload.Iface,
		Ticker:      payload.Ticker,
		Name:        payload.Name,
		Description: payload.Description,
		Supply:      payload.Supply,
		Precision:   payload.Precision,
		Created:     payload.Created,
		Genesis:     formats,
		Contract:    formats,
		Meta:        payload.Meta,
	}
	if err := s.repoManager.ContractRepository().AddContract(ctx, contract); err != nil {
		return nil, err
	}
	log.WithField("contract", contract.ContractID).Debug("contract imported")
	return &contract, nil
}

func (s *registryService) ListContracts(
	ctx context.Context, includeHidden bool,
) ([]ContractView, error) {
	contracts, err := s.repoManager.ContractRepository().GetAllContracts(
		ctx, includeHidden,
	)
	if err != nil {
		return nil, err
	}

	views := make([]ContractView, 0, len(contracts))
	for _, contract := range contracts {
		allocations, err := s.repoManager.ContractRepository().GetAllocations(
			ctx, contract.ContractID,
		)
		if err != nil {
			return nil, err
		}
		views = append(views, ContractView{
			Contract: contract,
			Balance:  contract.Balance(allocations),
		})
	}
	return views, nil
}

func (s *registryService) ListInterfaces(ctx context.Context) []IfaceInfo {
	return []IfaceInfo{
		{Name: domain.IfaceRGB20, IfaceID: ifaceID(domain.IfaceRGB20)},
		{Name: domain.IfaceRGB21, IfaceID: ifaceID(domain.IfaceRGB21)},
	}
}

func (s *registryService) ListSchemas(ctx context.Context) []SchemaInfo {
	return []SchemaInfo{
		{SchemaID: schemaID(domain.IfaceRGB20), Iface: domain.IfaceRGB20},
		{SchemaID: schemaID(domain.IfaceRGB21), Iface: domain.IfaceRGB21},
	}
}

func (s *registryService) HideContract(ctx context.Context, contractID string) error {
	return s.repoManager.ContractRepository().UpdateContract(
		ctx, contractID,
		func(c *domain.Contract) (*domain.Contract, error) {
			c.Hidden = true
			return c, nil
		},
	)
}

func validateIssuance(req FullIssueRequest) error {
	if len(req.Ticker) <= 0 || len(req.Name) <= 0 {
		return fmt.Errorf("%w: missing ticker or name", ErrInvalidRequest)
	}
	if len(req.Seal) <= 0 {
		return fmt.Errorf("%w: missing issuance seal", ErrInvalidRequest)
	}
	switch req.Iface {
	case domain.IfaceRGB20:
		if req.Meta != nil {
			return fmt.Errorf("%w: media metadata requires %s",
				ErrInvalidRequest, domain.IfaceRGB21)
		}
	case domain.IfaceRGB21:
		// Unique tokens are indivisible: their numeric model has no
		// fractional digits.
		if req.Precision != 0 {
			return ErrPrecisionMismatch
		}
	default:
		return ErrUnknownIface
	}
	if req.Precision > amountutil.MaxPrecision {
		return ErrPrecisionMismatch
	}
	return nil
}

func revalidateGenesis(payload genesisPayload) error {
	if len(payload.ContractID) <= 0 || payload.Supply <= 0 {
		return domain.ErrInvalidContractData
	}
	switch payload.Iface {
	case domain.IfaceRGB20:
	case domain.IfaceRGB21:
		if payload.Precision != 0 {
			return domain.ErrInvalidContractData
		}
	default:
		return domain.ErrInvalidContractData
	}
	if payload.Precision > amountutil.MaxPrecision {
		return domain.ErrInvalidContractData
	}
	if payload.IfaceID != ifaceID(payload.Iface) ||
		payload.SchemaID != schemaID(payload.Iface) {
		return domain.ErrInvalidContractData
	}
	return nil
}

func newContractID(iface, ticker, seal string, supply uint64, created int64) string {
	hash := chainhash.TaggedHash(
		contractIDTag,
		[]byte(iface), []byte(ticker), []byte(seal),
		[]byte(fmt.Sprintf("%d/%d", supply, created)),
	)
	return hex.EncodeToString(hash[:])
}

func ifaceID(iface string) string {
	hash := chainhash.TaggedHash([]byte("rgbd/iface/v1"), []byte(iface))
	return hex.EncodeToString(hash[:])
}

func schemaID(iface string) string {
	hash := chainhash.TaggedHash([]byte("rgbd/schema/v1"), []byte(iface))
	return hex.EncodeToString(hash[:])
}
