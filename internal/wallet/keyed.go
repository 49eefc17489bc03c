package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/50zero/pm-trader-art/internal/address"
	"github.com/50zero/pm-trader-art/internal/event"
)

// Backend is the subset of ethclient.Client the keyed provider needs.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	Close()
}

type DialFunc func(ctx context.Context, rpcURL string) (Backend, error)

// DialEthClient dials a JSON-RPC endpoint with go-ethereum's ethclient.
func DialEthClient(ctx context.Context, rpcURL string) (Backend, error) {
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return cli, nil
}

type KeyedProviderConfig struct {
	PrivateKeyHex string
	Networks      []Network
	InitialChain  ChainID
	Dial          DialFunc
	Logger        *slog.Logger
}

// KeyedProvider is a Provider that signs with a local private key, for use outside a browser.
// Approval prompts are implicit: holding the key is consent.
type KeyedProvider struct {
	key     *ecdsa.PrivateKey
	account common.Address
	dial    DialFunc
	logger  *slog.Logger
	feed    event.Feed[ProviderEvent]

	mu       sync.Mutex
	networks map[ChainID]Network
	current  ChainID
	backend  Backend
	closed   bool
}

func NewKeyedProvider(cfg KeyedProviderConfig) (*KeyedProvider, error) {
	if cfg.PrivateKeyHex == "" {
		return nil, fmt.Errorf("private key is required")
	}
	key, err := parsePrivateKey(cfg.PrivateKeyHex)
	if err != nil {
		return nil, err
	}

	networks := make(map[ChainID]Network, len(cfg.Networks))
	for _, n := range cfg.Networks {
		networks[n.ChainID] = n
	}
	current := cfg.InitialChain
	if _, ok := networks[current]; !ok {
		return nil, fmt.Errorf("initial chain %s has no configured network", current)
	}

	dial := cfg.Dial
	if dial == nil {
		dial = DialEthClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &KeyedProvider{
		key:      key,
		account:  crypto.PubkeyToAddress(key.PublicKey),
		dial:     dial,
		logger:   logger.With("component", "keyed_provider"),
		networks: networks,
		current:  current,
	}, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func (p *KeyedProvider) Address() address.Account {
	return address.FromCommon(p.account)
}

func (p *KeyedProvider) Accounts(context.Context) ([]address.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, nil
	}
	return []address.Account{address.FromCommon(p.account)}, nil
}

func (p *KeyedProvider) RequestAccounts(ctx context.Context) ([]address.Account, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, &ProviderError{Code: CodeUnauthorized, Message: "provider is disconnected"}
	}
	return p.Accounts(ctx)
}

func (p *KeyedProvider) ChainID(context.Context) (ChainID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *KeyedProvider) SwitchChain(_ context.Context, id ChainID) error {
	p.mu.Lock()
	if p.current == id {
		p.mu.Unlock()
		return nil
	}
	if _, ok := p.networks[id]; !ok {
		p.mu.Unlock()
		return &ProviderError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain id %s", id.Hex())}
	}
	old := p.backend
	p.backend = nil
	p.current = id
	p.mu.Unlock()

	if old != nil {
		old.Close()
	}
	p.logger.Info("switched chain", "chain_id", id)
	p.feed.Send(ProviderEvent{Kind: ChainChanged, ChainID: id})
	return nil
}

// AddChain registers the network and switches to it, as browser wallets do after an add prompt.
func (p *KeyedProvider) AddChain(ctx context.Context, n Network) error {
	if n.ChainID == 0 || n.RPCURL == "" {
		return &ProviderError{Code: CodeInvalidParams, Message: "chain id and rpc url are required"}
	}
	p.mu.Lock()
	p.networks[n.ChainID] = n
	p.mu.Unlock()
	p.logger.Info("added chain", "chain_id", n.ChainID, "name", n.Name)
	return p.SwitchChain(ctx, n.ChainID)
}

// SendTransaction fills in nonce, gas and gas price where missing, signs for the current chain
// and broadcasts. It returns the transaction hash.
func (p *KeyedProvider) SendTransaction(ctx context.Context, req TransactionRequest) (string, error) {
	if !common.IsHexAddress(req.From) || common.HexToAddress(req.From) != p.account {
		return "", &ProviderError{Code: CodeUnauthorized, Message: "from address is not managed by this wallet"}
	}
	if !common.IsHexAddress(req.To) {
		return "", &ProviderError{Code: CodeInvalidParams, Message: "invalid to address"}
	}

	p.mu.Lock()
	chain := p.current
	p.mu.Unlock()

	if req.ChainID != "" {
		want, err := ParseChainID(req.ChainID)
		if err != nil {
			return "", &ProviderError{Code: CodeInvalidParams, Message: err.Error()}
		}
		if want != chain {
			return "", &ProviderError{Code: CodeInvalidParams, Message: fmt.Sprintf("transaction is for chain %s, wallet is on %s", want, chain)}
		}
	}

	backend, err := p.backendFor(ctx)
	if err != nil {
		return "", err
	}

	to := common.HexToAddress(req.To)
	data, err := decodeData(req.Data)
	if err != nil {
		return "", &ProviderError{Code: CodeInvalidParams, Message: err.Error()}
	}
	value, err := decodeBig(req.Value)
	if err != nil {
		return "", &ProviderError{Code: CodeInvalidParams, Message: "value: " + err.Error()}
	}

	nonce, err := backend.PendingNonceAt(ctx, p.account)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}

	gasPrice, err := decodeBig(req.GasPrice)
	if err != nil {
		return "", &ProviderError{Code: CodeInvalidParams, Message: "gasPrice: " + err.Error()}
	}
	if gasPrice.Sign() == 0 {
		if gasPrice, err = backend.SuggestGasPrice(ctx); err != nil {
			return "", fmt.Errorf("suggest gas price: %w", err)
		}
	}

	var gas uint64
	if req.Gas != "" {
		if gas, err = hexutil.DecodeUint64(req.Gas); err != nil {
			return "", &ProviderError{Code: CodeInvalidParams, Message: "gas: " + err.Error()}
		}
	} else {
		gas, err = backend.EstimateGas(ctx, ethereum.CallMsg{From: p.account, To: &to, Value: value, Data: data})
		if err != nil {
			return "", fmt.Errorf("estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(new(big.Int).SetUint64(uint64(chain))), p.key)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	if err := backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}

	hash := signed.Hash().Hex()
	p.logger.Info("transaction broadcast", "hash", hash, "nonce", nonce, "chain_id", chain)
	return hash, nil
}

func (p *KeyedProvider) Subscribe(fn func(ProviderEvent)) func() {
	return p.feed.Subscribe(fn)
}

// Close drops the RPC connection and notifies subscribers that the wallet went away.
func (p *KeyedProvider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	backend := p.backend
	p.backend = nil
	p.mu.Unlock()

	if backend != nil {
		backend.Close()
	}
	p.feed.Send(ProviderEvent{Kind: ProviderDisconnected})
}

func (p *KeyedProvider) backendFor(ctx context.Context) (Backend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, &ProviderError{Code: CodeUnauthorized, Message: "provider is disconnected"}
	}
	if p.backend != nil {
		return p.backend, nil
	}
	n := p.networks[p.current]
	b, err := p.dial(ctx, n.RPCURL)
	if err != nil {
		return nil, err
	}
	p.backend = b
	return b, nil
}

func decodeData(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return nil, nil
	}
	return hexutil.Decode(s)
}

func decodeBig(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	return hexutil.DecodeBig(s)
}
