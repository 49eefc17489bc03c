package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrAlreadyMinted       = errors.New("trader has already minted their mandala")
	ErrTokenNotFound       = errors.New("token not found")
	ErrReadOnly            = errors.New("contract client is read-only")
)

const (
	DefaultGasLimit      uint64 = 500000
	DefaultGasMultiplier        = 1.1
)

// Reader is the read and transaction-building side of PortfolioMandala.
type Reader interface {
	Info(ctx context.Context) (Info, error)
	HasTraderMinted(ctx context.Context, trader common.Address) (bool, error)
	TraderTokenID(ctx context.Context, trader common.Address) (*big.Int, error)
	TokenTrader(ctx context.Context, tokenID *big.Int) (common.Address, error)
	TotalSupply(ctx context.Context) (*big.Int, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	EstimateMintGas(ctx context.Context, trader common.Address) (uint64, error)
	BuildMintTransaction(ctx context.Context, trader common.Address) (MintTransaction, error)
	// VerifyTransaction returns ErrTransactionNotFound while the transaction is unmined.
	VerifyTransaction(ctx context.Context, hash common.Hash) (Verification, error)
}

// Admin sends owner-only transactions and returns their hashes.
type Admin interface {
	SetBaseURI(ctx context.Context, uri string) (common.Hash, error)
	SetContractURI(ctx context.Context, uri string) (common.Hash, error)
	PauseMinting(ctx context.Context) (common.Hash, error)
	UnpauseMinting(ctx context.Context) (common.Hash, error)
}

type Client interface {
	Reader
	Admin
}

// HealthChecker is implemented by clients with a remote dependency.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Info struct {
	Address     common.Address
	Name        string
	Symbol      string
	TotalSupply *big.Int
	ChainID     uint64
}

// MintTransaction is an unsigned mintMandala call for the trader's wallet to sign.
type MintTransaction struct {
	To       common.Address
	Data     []byte
	Gas      uint64
	GasPrice *big.Int
	Value    *big.Int
	ChainID  *big.Int
}

type Verification struct {
	TxHash      common.Hash
	Success     bool
	BlockNumber uint64
	GasUsed     uint64
	// TokenID and Trader come from the MandalaCreated log; nil and zero when absent.
	TokenID *big.Int
	Trader  common.Address
}

// EstimatedCost is gas × gas price in the native currency, formatted like "~0.012345 MATIC".
func EstimatedCost(gas uint64, gasPrice *big.Int, symbol string) string {
	if gasPrice == nil {
		gasPrice = big.NewInt(0)
	}
	wei := new(big.Int).Mul(new(big.Int).SetUint64(gas), gasPrice)
	native, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(1e18)).Float64()
	return fmt.Sprintf("~%.6f %s", native, symbol)
}
