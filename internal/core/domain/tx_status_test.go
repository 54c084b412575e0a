package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitmasklabs/rgbd/internal/core/domain"
)

func TestTxStatusAdvance(t *testing.T) {
	notFound := domain.NewTxStatusNotFound()
	mempool := domain.NewTxStatusMempool()
	block := domain.NewTxStatusBlock(814000)
	failed := domain.NewTxStatusError("conflict")

	// Forward observations move the status.
	assert.Equal(t, mempool, notFound.Advance(mempool))
	assert.Equal(t, block, mempool.Advance(block))
	assert.Equal(t, block, notFound.Advance(block))

	// Stale observations never regress it.
	assert.Equal(t, mempool, mempool.Advance(notFound))
	assert.Equal(t, block, block.Advance(mempool))
	assert.Equal(t, block, block.Advance(notFound))

	// A re-org may raise the confirmation height, never lower it.
	higher := domain.NewTxStatusBlock(814001)
	assert.Equal(t, higher, block.Advance(higher))
	assert.Equal(t, higher, higher.Advance(block))

	// Error is terminal from any state.
	assert.Equal(t, failed, block.Advance(failed))
	assert.Equal(t, failed, failed.Advance(block))
	assert.Equal(t, failed, failed.Advance(mempool))
}

func TestTxStatusJSON(t *testing.T) {
	tests := []struct {
		name   string
		status domain.TxStatus
		json   string
	}{
		{"not_found", domain.NewTxStatusNotFound(), `{"status":"not_found"}`},
		{"mempool", domain.NewTxStatusMempool(), `{"status":"mempool"}`},
		{
			"block",
			domain.NewTxStatusBlock(99),
			`{"status":"block","height":99}`,
		},
		{
			"error",
			domain.NewTxStatusError("boom"),
			`{"status":"error","reason":"boom"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf, err := json.Marshal(tt.status)
			require.NoError(t, err)
			assert.JSONEq(t, tt.json, string(buf))

			var decoded domain.TxStatus
			require.NoError(t, json.Unmarshal(buf, &decoded))
			assert.Equal(t, tt.status, decoded)
		})
	}

	var status domain.TxStatus
	err := json.Unmarshal([]byte(`{"status":"orbit"}`), &status)
	require.Error(t, err)
}

func TestTxStatusString(t *testing.T) {
	assert.Equal(t, "not_found", domain.NewTxStatusNotFound().String())
	assert.Equal(t, "mempool", domain.NewTxStatusMempool().String())
	assert.Equal(t, "block(7)", domain.NewTxStatusBlock(7).String())
	assert.Equal(t, "error(boom)", domain.NewTxStatusError("boom").String())
}
