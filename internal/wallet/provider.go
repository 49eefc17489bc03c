package wallet

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/50zero/pm-trader-art/internal/address"
)

// EIP-1193 / MetaMask error codes the session distinguishes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeInvalidParams     = -32602
	CodeRequestPending    = -32002
	CodeUnrecognizedChain = 4902
)

var (
	ErrProviderMissing     = errors.New("no wallet provider found, install a Web3 wallet")
	ErrUserRejected        = errors.New("request rejected by user")
	ErrRequestPending      = errors.New("a wallet request is already pending")
	ErrNetworkSwitchFailed = errors.New("network switch failed")
)

// ProviderError is an error returned by the host wallet, carrying its numeric code.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// Is lets errors.Is match the session's sentinel errors against provider codes.
func (e *ProviderError) Is(target error) bool {
	switch e.Code {
	case CodeUserRejected:
		return target == ErrUserRejected
	case CodeRequestPending:
		return target == ErrRequestPending
	}
	return false
}

// IsUnrecognizedChain reports whether err is the provider telling us it does not know a chain.
func IsUnrecognizedChain(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == CodeUnrecognizedChain
}

// ChainID identifies a network. Zero means unknown.
type ChainID uint64

// Hex renders the id the way wallet RPC calls expect it, e.g. 0x13882.
func (c ChainID) Hex() string {
	return "0x" + strconv.FormatUint(uint64(c), 16)
}

func (c ChainID) String() string {
	return strconv.FormatUint(uint64(c), 10)
}

// ParseChainID accepts decimal or 0x-prefixed hex.
func ParseChainID(s string) (ChainID, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("parse chain id %q: %w", s, err)
	}
	return ChainID(v), nil
}

// Network is what a wallet needs to switch to, or add, a chain.
type Network struct {
	ChainID        ChainID
	Name           string
	RPCURL         string
	CurrencyName   string
	CurrencySymbol string
	Decimals       int
	BlockExplorer  string
}

// PolygonAmoy is the default mint network.
var PolygonAmoy = Network{
	ChainID:        80002,
	Name:           "Polygon Amoy Testnet",
	RPCURL:         "https://rpc-amoy.polygon.technology/",
	CurrencyName:   "MATIC",
	CurrencySymbol: "MATIC",
	Decimals:       18,
	BlockExplorer:  "https://www.oklink.com/amoy",
}

// TransactionRequest is an eth_sendTransaction payload; numeric fields are 0x hex quantities.
type TransactionRequest struct {
	From     string
	To       string
	Data     string
	Gas      string
	GasPrice string
	Value    string
	ChainID  string
}

type ProviderEventKind int

const (
	AccountsChanged ProviderEventKind = iota + 1
	ChainChanged
	ProviderDisconnected
)

func (k ProviderEventKind) String() string {
	switch k {
	case AccountsChanged:
		return "accountsChanged"
	case ChainChanged:
		return "chainChanged"
	case ProviderDisconnected:
		return "disconnect"
	}
	return "unknown"
}

// ProviderEvent is a notification pushed by the host wallet.
type ProviderEvent struct {
	Kind     ProviderEventKind
	Accounts []address.Account
	ChainID  ChainID
}

// Provider is the host wallet. Request methods may block until the user answers a prompt.
type Provider interface {
	Accounts(ctx context.Context) ([]address.Account, error)
	RequestAccounts(ctx context.Context) ([]address.Account, error)
	ChainID(ctx context.Context) (ChainID, error)
	SwitchChain(ctx context.Context, id ChainID) error
	AddChain(ctx context.Context, network Network) error
	SendTransaction(ctx context.Context, req TransactionRequest) (string, error)
	Subscribe(fn func(ProviderEvent)) (unsubscribe func())
}
