package domain

import (
	"encoding/json"
	"fmt"
)

// UDAPosition locates a unique digital asset: the token index within its
// contract and the owned fraction of it.
type UDAPosition struct {
	TokenIndex uint32 `json:"tokenIndex"`
	Fraction   uint64 `json:"fraction"`
}

// AllocationValue is the asset value bound to a utxo: either a fungible
// amount or a unique-token position, never both.
type AllocationValue struct {
	fungible uint64
	uda      *UDAPosition
}

// NewFungibleValue returns an allocation value for a fungible amount in
// minimal units.
func NewFungibleValue(amount uint64) AllocationValue {
	return AllocationValue{fungible: amount}
}

// NewUDAValue returns an allocation value for a unique-token position.
func NewUDAValue(tokenIndex uint32, fraction uint64) AllocationValue {
	return AllocationValue{uda: &UDAPosition{tokenIndex, fraction}}
}

// IsUDA returns whether the value is a unique-token position.
func (v AllocationValue) IsUDA() bool {
	return v.uda != nil
}

// Amount returns the fungible amount, zero for unique tokens.
func (v AllocationValue) Amount() uint64 {
	if v.uda != nil {
		return 0
	}
	return v.fungible
}

// UDA returns the unique-token position, valid only if IsUDA.
func (v AllocationValue) UDA() *UDAPosition {
	return v.uda
}

func (v AllocationValue) String() string {
	if v.uda != nil {
		return fmt.Sprintf("%d:%d", v.uda.TokenIndex, v.uda.Fraction)
	}
	return fmt.Sprintf("%d", v.fungible)
}

type allocationValueJSON struct {
	Value *uint64      `json:"value,omitempty"`
	UDA   *UDAPosition `json:"uda,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v AllocationValue) MarshalJSON() ([]byte, error) {
	if v.uda != nil {
		return json.Marshal(allocationValueJSON{UDA: v.uda})
	}
	amount := v.fungible
	return json.Marshal(allocationValueJSON{Value: &amount})
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *AllocationValue) UnmarshalJSON(data []byte) error {
	var in allocationValueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.UDA != nil && in.Value != nil {
		return fmt.Errorf("allocation value cannot be both fungible and uda")
	}
	if in.UDA != nil {
		*v = NewUDAValue(in.UDA.TokenIndex, in.UDA.Fraction)
		return nil
	}
	if in.Value != nil {
		*v = NewFungibleValue(*in.Value)
		return nil
	}
	return fmt.Errorf("allocation value must be either fungible or uda")
}

// Allocation binds an asset value of a contract to a specific utxo and the
// derivation path that controls it. At most one allocation value may exist
// per (contract, utxo) pair; IsSpent flips to true exactly when the utxo is
// consumed by a transfer and never before.
type Allocation struct {
	ContractID string          `json:"contractId"`
	Utxo       string          `json:"utxo"`
	Value      AllocationValue `json:"value"`
	Derivation string          `json:"derivation"`
	IsMine     bool            `json:"isMine"`
	IsSpent    bool            `json:"isSpent"`
}

// Spend marks the allocation as consumed by a transfer.
func (a *Allocation) Spend() error {
	if a.IsSpent {
		return ErrAllocationSpent
	}
	a.IsSpent = true
	return nil
}
