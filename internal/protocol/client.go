package protocol

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"dexflow.io/internal/config"
)

// fillOrderABI covers the single entrypoint the submitter needs.
const fillOrderABI = `[{"name":"fillOrder","type":"function","stateMutability":"payable","inputs":[{"name":"order","type":"tuple","components":[{"name":"salt","type":"uint256"},{"name":"makerAsset","type":"address"},{"name":"takerAsset","type":"address"},{"name":"maker","type":"address"},{"name":"receiver","type":"address"},{"name":"makingAmount","type":"uint256"},{"name":"takingAmount","type":"uint256"},{"name":"predicate","type":"bytes"},{"name":"permit","type":"bytes"},{"name":"interaction","type":"bytes"}]},{"name":"signature","type":"bytes"},{"name":"makingAmount","type":"uint256"},{"name":"takingAmount","type":"uint256"}],"outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"}]}]`

// SubmitResult normalizes success/failure of an on-chain submission.
type SubmitResult struct {
	Success     bool   `json:"success"`
	TxHash      string `json:"tx_hash,omitempty"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	GasUsed     uint64 `json:"gas_used,omitempty"`
	GasPrice    uint64 `json:"gas_price,omitempty"`
	Err         string `json:"error,omitempty"`
}

func failure(format string, args ...interface{}) *SubmitResult {
	return &SubmitResult{Success: false, Err: fmt.Sprintf(format, args...)}
}

// Client talks to the order-matching protocol contract: hashing, signing and
// fillOrder submission.
type Client struct {
	eth      *ethclient.Client
	chainID  int64
	contract common.Address
	key      *ecdsa.PrivateKey
	lopABI   abi.ABI
	dryRun   bool
	log      *zap.Logger
}

func NewClient(cfg config.ChainConfig, logger *zap.Logger) (*Client, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse signer key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(fillOrderABI))
	if err != nil {
		return nil, fmt.Errorf("parse protocol ABI: %w", err)
	}

	c := &Client{
		chainID:  cfg.ChainID,
		contract: common.HexToAddress(cfg.ProtocolAddress),
		key:      key,
		lopABI:   parsed,
		dryRun:   cfg.DryRun,
		log:      logger,
	}

	// DryRun 模式下允许没有节点连接
	if cfg.RPCURL != "" {
		eth, err := ethclient.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial rpc node: %w", err)
		}
		c.eth = eth
	} else if !cfg.DryRun {
		return nil, fmt.Errorf("chain.rpc_url is required unless dry_run is enabled")
	}

	if cfg.DryRun {
		logger.Warn("protocol client running in dry-run mode, transactions are simulated")
	}

	return c, nil
}

// MakerAddress is the address of the engine's signing wallet. Orders must be
// made by this address or their signatures will not verify on-chain.
func (c *Client) MakerAddress() common.Address {
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

// OrderHash computes the canonical order hash under this client's domain.
func (c *Client) OrderHash(o *Order) (common.Hash, error) {
	return o.Hash(c.chainID, c.contract)
}

// Sign produces the EIP-712 signature the protocol expects (v ∈ {27, 28}).
func (c *Client) Sign(o *Order) ([]byte, error) {
	digest, err := c.OrderHash(o)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign order: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// Submit fills the order on-chain. Gas estimation runs first; an estimation
// revert is surfaced as a structured failure, never as a fabricated receipt.
func (c *Client) Submit(ctx context.Context, o *Order, signature []byte) *SubmitResult {
	if c.dryRun {
		return c.simulate(o)
	}

	data, err := c.lopABI.Pack("fillOrder", *o, signature, o.MakingAmount, big.NewInt(0))
	if err != nil {
		return failure("pack fillOrder calldata: %v", err)
	}

	from := c.MakerAddress()
	msg := ethereum.CallMsg{From: from, To: &c.contract, Data: data}

	gasLimit, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		// 链上模拟 revert，不得猜测结果
		return failure("gas estimation reverted: %v", err)
	}

	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return failure("suggest gas price: %v", err)
	}

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return failure("fetch nonce: %v", err)
	}

	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), gasLimit*12/10, gasPrice, data)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(c.chainID)), c.key)
	if err != nil {
		return failure("sign transaction: %v", err)
	}

	if err := c.eth.SendTransaction(ctx, signedTx); err != nil {
		return failure("broadcast transaction: %v", err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, signedTx)
	if err != nil {
		return failure("wait for receipt: %v", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return failure("transaction reverted: %s", signedTx.Hash().Hex())
	}

	return &SubmitResult{
		Success:     true,
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		GasPrice:    gasPrice.Uint64(),
	}
}

// simulate returns a deterministic fake receipt. Reachable only with
// chain.dry_run enabled.
func (c *Client) simulate(o *Order) *SubmitResult {
	hash, err := c.OrderHash(o)
	if err != nil {
		return failure("hash order: %v", err)
	}
	fakeTx := crypto.Keccak256Hash(append(hash.Bytes(), []byte(time.Now().String())...))
	c.log.Warn("dry-run submission, no transaction broadcast",
		zap.String("order_hash", hash.Hex()),
		zap.String("simulated_tx", fakeTx.Hex()))
	return &SubmitResult{
		Success:     true,
		TxHash:      fakeTx.Hex(),
		BlockNumber: 0,
		GasUsed:     0,
	}
}
