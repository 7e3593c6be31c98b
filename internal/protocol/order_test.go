package protocol

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testContract = common.HexToAddress("0x119c71D3BbAC22029622cbaEc24854d3D32D2828")

func sampleOrder(salt int64) *Order {
	return &Order{
		Salt:         big.NewInt(salt),
		MakerAsset:   common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		TakerAsset:   common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"),
		Maker:        common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		Receiver:     common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		MakingAmount: big.NewInt(1000),
		TakingAmount: big.NewInt(3000),
		Predicate:    hexutil.Bytes{},
		Permit:       hexutil.Bytes{},
		Interaction:  hexutil.Bytes{},
	}
}

func TestOrderHashDeterministic(t *testing.T) {
	h1, err := sampleOrder(1).Hash(1, testContract)
	require.NoError(t, err)
	h2, err := sampleOrder(1).Hash(1, testContract)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, common.Hash{}, h1)
}

func TestOrderHashVariesWithSalt(t *testing.T) {
	h1, err := sampleOrder(1).Hash(1, testContract)
	require.NoError(t, err)
	h2, err := sampleOrder(2).Hash(1, testContract)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestOrderHashVariesWithDomain(t *testing.T) {
	o := sampleOrder(1)
	mainnet, err := o.Hash(1, testContract)
	require.NoError(t, err)
	polygon, err := o.Hash(137, testContract)
	require.NoError(t, err)
	assert.NotEqual(t, mainnet, polygon)

	other, err := o.Hash(1, common.HexToAddress("0x0000000000000000000000000000000000000001"))
	require.NoError(t, err)
	assert.NotEqual(t, mainnet, other)
}

func TestNewSaltUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 64; i++ {
		s := NewSalt()
		require.False(t, seen[s.String()], "salt collision")
		seen[s.String()] = true
	}
}

func TestMarshalData(t *testing.T) {
	data, err := sampleOrder(42).MarshalData()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"salt":42`)
	assert.Contains(t, string(data), `"makingAmount":1000`)
}
