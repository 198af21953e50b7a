package main

import (
	"bytes"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"quote", "--amount", "10", "--in-reserve", "2000", "--out-reserve", "1000"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "4.925618189959699487\n", out.String())
}

func TestQuoteCommandRejectsEmptyPool(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"quote", "--amount", "1", "--in-reserve", "0", "--out-reserve", "5", "--decimals", "0"})

	assert.Error(t, root.Execute())
}

func TestParseAddress(t *testing.T) {
	addr, err := parseAddress("registry", "0x00000000000000000000000000000000000a3a3a")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xa3a3a"), addr)

	_, err = parseAddress("registry", "a3a3a")
	assert.Error(t, err)
}
