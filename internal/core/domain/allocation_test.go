package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
)

func TestAllocationValueJSON(t *testing.T) {
	fungible := domain.NewFungibleValue(600)
	buf, err := json.Marshal(fungible)
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":600}`, string(buf))

	var decoded domain.AllocationValue
	require.NoError(t, json.Unmarshal(buf, &decoded))
	assert.Equal(t, uint64(600), decoded.Amount())
	assert.False(t, decoded.IsUDA())

	uda := domain.NewUDAValue(7, 1)
	buf, err = json.Marshal(uda)
	require.NoError(t, err)
	assert.JSONEq(t, `{"uda":{"tokenIndex":7,"fraction":1}}`, string(buf))

	require.NoError(t, json.Unmarshal(buf, &decoded))
	require.True(t, decoded.IsUDA())
	assert.Equal(t, uint32(7), decoded.UDA().TokenIndex)
	assert.Equal(t, uint64(1), decoded.UDA().Fraction)
	assert.Equal(t, uint64(0), decoded.Amount())

	// The value is exactly one of the two variants.
	err = json.Unmarshal(
		[]byte(`{"value":1,"uda":{"tokenIndex":0,"fraction":1}}`), &decoded,
	)
	require.Error(t, err)
	err = json.Unmarshal([]byte(`{}`), &decoded)
	require.Error(t, err)

	// The fungible zero value survives a round trip.
	buf, err = json.Marshal(domain.NewFungibleValue(0))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(buf, &decoded))
	assert.Equal(t, uint64(0), decoded.Amount())
}

func TestAllocationValueString(t *testing.T) {
	assert.Equal(t, "600", domain.NewFungibleValue(600).String())
	assert.Equal(t, "7:1", domain.NewUDAValue(7, 1).String())
}

func TestAllocationSpend(t *testing.T) {
	allocation := domain.Allocation{
		ContractID: "contract-1",
		Utxo:       "aa:0",
		Value:      domain.NewFungibleValue(1000),
		IsMine:     true,
	}
	require.NoError(t, allocation.Spend())
	assert.True(t, allocation.IsSpent)
	assert.ErrorIs(t, allocation.Spend(), domain.ErrAllocationSpent)
}

func TestContractBalance(t *testing.T) {
	contract := domain.Contract{ContractID: "contract-1", Iface: domain.IfaceRGB20}
	allocations := []domain.Allocation{
		{ContractID: "contract-1", Utxo: "aa:0", Value: domain.NewFungibleValue(600), IsMine: true},
		{ContractID: "contract-1", Utxo: "aa:1", Value: domain.NewFungibleValue(400), IsMine: false},
		{ContractID: "contract-1", Utxo: "aa:2", Value: domain.NewFungibleValue(50), IsMine: true, IsSpent: true},
		{ContractID: "contract-2", Utxo: "aa:3", Value: domain.NewFungibleValue(99), IsMine: true},
	}
	// Foreign, spent and other-contract allocations never count.
	assert.Equal(t, uint64(600), contract.Balance(allocations))

	uda := domain.Contract{ContractID: "uda-1", Iface: domain.IfaceRGB21}
	assert.Equal(t, uint64(1), uda.Balance([]domain.Allocation{
		{ContractID: "uda-1", Utxo: "bb:0", Value: domain.NewUDAValue(3, 1), IsMine: true},
	}))
}
