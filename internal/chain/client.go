package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"golang.org/x/time/rate"

	"rangePilot/internal/model"
)

const receiptPollInterval = 2 * time.Second

// Client wraps go-ethereum RPC with rate limiting, transaction submission,
// and confirmation waiting.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	limiter   *rate.Limiter

	key  *ecdsa.PrivateKey
	from common.Address

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient creates a new chain client from the RPC URL. rps caps outgoing
// RPC calls per second; zero disables the limit.
func NewClient(ctx context.Context, rpcURL string, rps float64) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		limiter:   rate.NewLimiter(limit, 1),
	}, nil
}

// WithSigner loads the hex-encoded private key used for transaction
// submission and derives the sender address from it.
func (c *Client) WithSigner(keyHex string) error {
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return fmt.Errorf("parse signer key: %w", err)
	}
	c.key = key
	c.from = crypto.PubkeyToAddress(key.PublicKey)
	return nil
}

// From returns the sender address, zero if no signer is configured.
func (c *Client) From() common.Address {
	return c.from
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID, cached after the first call.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return c.chainID, nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.chainID = id
	return id, nil
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// EstimateGas estimates gas units for the given call.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return c.ethClient.EstimateGas(ctx, msg)
}

// SubmitCall signs and submits a contract call transaction, returning its
// hash. The transaction is submitted, not confirmed; callers must wait for
// the receipt before treating the step as done.
func (c *Client) SubmitCall(ctx context.Context, to common.Address, calldata []byte, gasLimit uint64) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, fmt.Errorf("%w: no signer configured", model.ErrTransactionFailed)
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("chain id: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return common.Hash{}, err
	}
	nonce, err := c.ethClient.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return common.Hash{}, err
	}
	gasPrice, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     calldata,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return common.Hash{}, err
	}
	if err := c.ethClient.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", model.ErrTransactionFailed, err)
	}

	return signed.Hash(), nil
}

// AwaitConfirmation polls for the transaction receipt until it is mined or
// the timeout elapses. A reverted transaction reports ErrTransactionFailed;
// an unobserved one reports ErrTransactionTimedOut.
func (c *Client) AwaitConfirmation(ctx context.Context, hash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		receipt, err := c.ethClient.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, fmt.Errorf("%w: tx %s reverted", model.ErrTransactionFailed, hash.Hex())
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("fetch receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("%w: tx %s after %s", model.ErrTransactionTimedOut, hash.Hex(), timeout)
		case <-ticker.C:
		}
	}
}
