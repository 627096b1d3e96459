package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memtap/protocol"
)

func TestParseChain(t *testing.T) {
	offsets, err := parseChain("0x400000,0x10,-0x8")
	require.NoError(t, err)
	assert.Equal(t, []int64{0x400000, 0x10, -0x8}, offsets)

	offsets, err = parseChain("0x1b00, 0")
	require.NoError(t, err)
	assert.Equal(t, []int64{0x1b00, 0}, offsets)

	offsets, err = parseChain("4096")
	require.NoError(t, err)
	assert.Equal(t, []int64{4096}, offsets)

	_, err = parseChain("")
	assert.Error(t, err)
	_, err = parseChain("0x400000,wat")
	assert.Error(t, err)
}

func TestFinalAddress(t *testing.T) {
	req, err := protocol.NewReadRequest(1, 8, 0x400000, 0x10, 0x20)
	require.NoError(t, err)

	resp := protocol.ReadResponse{Status: protocol.ReadSuccess, ResolvedCount: 2}
	resp.ResolvedOffsets[0] = 0x500000
	resp.ResolvedOffsets[1] = 0x600000

	assert.Equal(t, uint64(0x600020), finalAddress(req, resp))
}

func TestFinalAddressNoHops(t *testing.T) {
	req, err := protocol.NewReadRequest(1, 8, 0x400000)
	require.NoError(t, err)

	assert.Equal(t, uint64(0x400000), finalAddress(req, protocol.ReadResponse{}))
}
