package protocol

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Order mirrors the on-chain limit order struct of the matching protocol.
// Field order matches the ABI tuple, do not reorder.
type Order struct {
	Salt         *big.Int       `json:"salt"`
	MakerAsset   common.Address `json:"makerAsset"`
	TakerAsset   common.Address `json:"takerAsset"`
	Maker        common.Address `json:"maker"`
	Receiver     common.Address `json:"receiver"`
	MakingAmount *big.Int       `json:"makingAmount"`
	TakingAmount *big.Int       `json:"takingAmount"`
	// Auxiliary byte fields reserved for protocol extensions.
	Predicate   hexutil.Bytes `json:"predicate"`
	Permit      hexutil.Bytes `json:"permit"`
	Interaction hexutil.Bytes `json:"interaction"`
}

// NewSalt returns a random 256-bit salt. Uniqueness keeps otherwise identical
// orders from colliding on their hash.
func NewSalt() *big.Int {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("protocol: cannot read random salt: %v", err))
	}
	return new(big.Int).SetBytes(buf[:])
}

// eip712Domain 与链上合约校验使用的 domain 保持一致，否则 fillOrder 会 revert
func eip712Domain(chainID int64, verifyingContract common.Address) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              "1inch Limit Order Protocol",
		Version:           "3",
		ChainId:           math.NewHexOrDecimal256(chainID),
		VerifyingContract: verifyingContract.Hex(),
	}
}

func (o *Order) typedData(chainID int64, verifyingContract common.Address) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "makerAsset", Type: "address"},
				{Name: "takerAsset", Type: "address"},
				{Name: "maker", Type: "address"},
				{Name: "receiver", Type: "address"},
				{Name: "makingAmount", Type: "uint256"},
				{Name: "takingAmount", Type: "uint256"},
				{Name: "predicate", Type: "bytes"},
				{Name: "permit", Type: "bytes"},
				{Name: "interaction", Type: "bytes"},
			},
		},
		PrimaryType: "Order",
		Domain:      eip712Domain(chainID, verifyingContract),
		Message: apitypes.TypedDataMessage{
			"salt":         o.Salt.String(),
			"makerAsset":   o.MakerAsset.Hex(),
			"takerAsset":   o.TakerAsset.Hex(),
			"maker":        o.Maker.Hex(),
			"receiver":     o.Receiver.Hex(),
			"makingAmount": o.MakingAmount.String(),
			"takingAmount": o.TakingAmount.String(),
			"predicate":    hexutil.Encode(o.Predicate),
			"permit":       hexutil.Encode(o.Permit),
			"interaction":  hexutil.Encode(o.Interaction),
		},
	}
}

// Hash computes the canonical EIP-712 digest of the order. This is the same
// digest the on-chain verifier recomputes, and the value that gets signed.
func (o *Order) Hash(chainID int64, verifyingContract common.Address) (common.Hash, error) {
	digest, _, err := apitypes.TypedDataAndHash(o.typedData(chainID, verifyingContract))
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash order: %w", err)
	}
	return common.BytesToHash(digest), nil
}

// MarshalData serializes the order payload for persistence.
func (o *Order) MarshalData() (json.RawMessage, error) {
	return json.Marshal(o)
}
