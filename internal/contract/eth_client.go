package contract

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Backend is the node surface EthClient needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// EthClient talks to a deployed PortfolioMandala contract.
type EthClient struct {
	backend  Backend
	contract *bind.BoundContract
	abi      abi.ABI
	address  common.Address
	chainID  *big.Int
	owner    *bind.TransactOpts
	cfg      EthClientConfig
	logger   *slog.Logger
}

type EthClientConfig struct {
	RPCURL          string
	ContractAddress string
	// OwnerPrivateKeyHex enables the Admin methods. Without it the client is read-only.
	OwnerPrivateKeyHex string
	Name               string
	Symbol             string
	GasLimit           uint64
	GasMultiplier      float64
	Logger             *slog.Logger
}

func NewEthClient(ctx context.Context, cfg EthClientConfig) (*EthClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	cli, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	c, err := NewEthClientWithBackend(ctx, cli, cfg)
	if err != nil {
		cli.Close()
		return nil, err
	}
	return c, nil
}

// NewEthClientWithBackend binds the contract over an existing backend.
func NewEthClientWithBackend(ctx context.Context, backend Backend, cfg EthClientConfig) (*EthClient, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("contract address is required")
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	if cfg.GasMultiplier <= 0 {
		cfg.GasMultiplier = DefaultGasMultiplier
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	parsedABI, err := abi.JSON(strings.NewReader(PortfolioMandalaABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	bound := bind.NewBoundContract(address, parsedABI, backend, backend, backend)

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chain id: %w", err)
	}

	c := &EthClient{
		backend:  backend,
		contract: bound,
		abi:      parsedABI,
		address:  address,
		chainID:  chainID,
		cfg:      cfg,
		logger:   logger.With("component", "contract", "address", address.Hex()),
	}

	if cfg.OwnerPrivateKeyHex != "" {
		pk, err := parsePrivateKey(cfg.OwnerPrivateKeyHex)
		if err != nil {
			return nil, err
		}
		opts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
		if err != nil {
			return nil, fmt.Errorf("transactor: %w", err)
		}
		opts.GasLimit = 0 // let node estimate
		c.owner = opts
	}
	return c, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (c *EthClient) Address() common.Address { return c.address }

func (c *EthClient) Info(ctx context.Context) (Info, error) {
	supply, err := c.TotalSupply(ctx)
	if err != nil {
		return Info{}, err
	}
	name, symbol := c.cfg.Name, c.cfg.Symbol
	if name == "" {
		if out, err := c.call(ctx, "name"); err == nil {
			name = *abi.ConvertType(out[0], new(string)).(*string)
		}
	}
	if symbol == "" {
		if out, err := c.call(ctx, "symbol"); err == nil {
			symbol = *abi.ConvertType(out[0], new(string)).(*string)
		}
	}
	return Info{
		Address:     c.address,
		Name:        name,
		Symbol:      symbol,
		TotalSupply: supply,
		ChainID:     c.chainID.Uint64(),
	}, nil
}

func (c *EthClient) HasTraderMinted(ctx context.Context, trader common.Address) (bool, error) {
	out, err := c.call(ctx, "hasTraderMinted", trader)
	if err != nil {
		return false, err
	}
	return *abi.ConvertType(out[0], new(bool)).(*bool), nil
}

func (c *EthClient) TraderTokenID(ctx context.Context, trader common.Address) (*big.Int, error) {
	out, err := c.call(ctx, "getTraderTokenId", trader)
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *EthClient) TokenTrader(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	out, err := c.call(ctx, "getTokenTrader", tokenID)
	if err != nil {
		if strings.Contains(err.Error(), "execution reverted") {
			return common.Address{}, ErrTokenNotFound
		}
		return common.Address{}, err
	}
	trader := *abi.ConvertType(out[0], new(common.Address)).(*common.Address)
	if trader == (common.Address{}) {
		return common.Address{}, ErrTokenNotFound
	}
	return trader, nil
}

func (c *EthClient) TotalSupply(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, "totalSupply")
	if err != nil {
		return nil, err
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *EthClient) GasPrice(ctx context.Context) (*big.Int, error) {
	price, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	return price, nil
}

// EstimateMintGas pads the node's estimate by GasMultiplier. Estimation needs no funds
// but can still fail; the configured GasLimit is used then.
func (c *EthClient) EstimateMintGas(ctx context.Context, trader common.Address) (uint64, error) {
	data, err := c.abi.Pack("mintMandala")
	if err != nil {
		return 0, fmt.Errorf("pack mintMandala: %w", err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: trader, To: &c.address, Data: data})
	if err != nil {
		c.logger.Warn("mint gas estimation failed, using default", "trader", trader.Hex(), "gas_limit", c.cfg.GasLimit, "error", err)
		return c.cfg.GasLimit, nil
	}
	return uint64(float64(gas) * c.cfg.GasMultiplier), nil
}

func (c *EthClient) BuildMintTransaction(ctx context.Context, trader common.Address) (MintTransaction, error) {
	minted, err := c.HasTraderMinted(ctx, trader)
	if err != nil {
		return MintTransaction{}, err
	}
	if minted {
		return MintTransaction{}, ErrAlreadyMinted
	}

	gasPrice, err := c.GasPrice(ctx)
	if err != nil {
		return MintTransaction{}, err
	}
	gas, err := c.EstimateMintGas(ctx, trader)
	if err != nil {
		return MintTransaction{}, err
	}
	data, err := c.abi.Pack("mintMandala")
	if err != nil {
		return MintTransaction{}, fmt.Errorf("pack mintMandala: %w", err)
	}

	return MintTransaction{
		To:       c.address,
		Data:     data,
		Gas:      gas,
		GasPrice: gasPrice,
		Value:    big.NewInt(0),
		ChainID:  new(big.Int).Set(c.chainID),
	}, nil
}

func (c *EthClient) VerifyTransaction(ctx context.Context, hash common.Hash) (Verification, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return Verification{}, ErrTransactionNotFound
		}
		return Verification{}, fmt.Errorf("fetch receipt: %w", err)
	}

	v := Verification{
		TxHash:  hash,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
		GasUsed: receipt.GasUsed,
	}
	if receipt.BlockNumber != nil {
		v.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if v.Success {
		v.TokenID, v.Trader = c.mandalaCreated(receipt.Logs)
	}
	return v, nil
}

// mandalaCreated finds the first MandalaCreated log emitted by this contract.
func (c *EthClient) mandalaCreated(logs []*types.Log) (*big.Int, common.Address) {
	eventID := c.abi.Events["MandalaCreated"].ID
	for _, l := range logs {
		if l == nil || l.Address != c.address || len(l.Topics) < 3 || l.Topics[0] != eventID {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[1].Bytes()), common.BytesToAddress(l.Topics[2].Bytes())
	}
	return nil, common.Address{}
}

func (c *EthClient) SetBaseURI(ctx context.Context, uri string) (common.Hash, error) {
	return c.transact(ctx, "setBaseURI", uri)
}

func (c *EthClient) SetContractURI(ctx context.Context, uri string) (common.Hash, error) {
	return c.transact(ctx, "setContractURI", uri)
}

func (c *EthClient) PauseMinting(ctx context.Context) (common.Hash, error) {
	return c.transact(ctx, "pauseMinting")
}

func (c *EthClient) UnpauseMinting(ctx context.Context) (common.Hash, error) {
	return c.transact(ctx, "unpauseMinting")
}

func (c *EthClient) Ping(ctx context.Context) error {
	_, err := c.backend.BlockNumber(ctx)
	return err
}

func (c *EthClient) Close() {
	if closer, ok := c.backend.(interface{ Close() }); ok {
		closer.Close()
	}
}

func (c *EthClient) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...); err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("call %s: empty result", method)
	}
	return out, nil
}

func (c *EthClient) transact(ctx context.Context, method string, args ...interface{}) (common.Hash, error) {
	if c.owner == nil {
		return common.Hash{}, ErrReadOnly
	}
	opts := *c.owner
	opts.Context = ctx

	tx, err := c.contract.Transact(&opts, method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%s tx: %w", method, err)
	}
	c.logger.Info("owner transaction sent", "method", method, "tx_hash", tx.Hash().Hex())
	return tx.Hash(), nil
}
