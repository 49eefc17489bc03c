package nftapi

import (
	"encoding/json"
	"math/big"
)

// Wire types for the /nft endpoints. The server encodes these and the client decodes them.

type ContractInfo struct {
	Ready       bool            `json:"ready"`
	Address     string          `json:"address,omitempty"`
	Name        string          `json:"name,omitempty"`
	Symbol      string          `json:"symbol,omitempty"`
	TotalSupply *big.Int        `json:"total_supply,omitempty"`
	Network     string          `json:"network,omitempty"`
	ChainID     uint64          `json:"chain_id,omitempty"`
	ExplorerURL string          `json:"explorer_url,omitempty"`
	ABI         json.RawMessage `json:"abi,omitempty"`
}

type ContractInfoResponse struct {
	Success  bool          `json:"success"`
	Contract *ContractInfo `json:"contract,omitempty"`
	Message  string        `json:"message,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type MintStatusResponse struct {
	Success       bool     `json:"success"`
	HasMinted     bool     `json:"has_minted"`
	TokenID       *big.Int `json:"token_id"`
	EstimatedCost *string  `json:"estimated_cost"`
	CanMint       bool     `json:"can_mint"`
	Error         string   `json:"error,omitempty"`
}

type PrepareMintRequest struct {
	TraderAddress string `json:"trader_address"`
}

// TransactionPayload is an unsigned eth_sendTransaction body; quantities are 0x hex.
type TransactionPayload struct {
	From     string `json:"from,omitempty"`
	To       string `json:"to"`
	Data     string `json:"data"`
	Gas      string `json:"gas"`
	GasPrice string `json:"gasPrice"`
	Value    string `json:"value"`
	ChainID  string `json:"chainId"`
}

type GasEstimate struct {
	GasLimit  uint64 `json:"gas_limit"`
	Formatted string `json:"formatted"`
	Cost      string `json:"cost,omitempty"`
}

type PrepareMintResponse struct {
	Success     bool                `json:"success"`
	Transaction *TransactionPayload `json:"transaction,omitempty"`
	GasEstimate *GasEstimate        `json:"gas_estimate"`
	Error       string              `json:"error,omitempty"`
}

type TransactionStatusRequest struct {
	TxHash        string `json:"tx_hash"`
	TraderAddress string `json:"trader_address"`
}

type TxState string

const (
	TxPending   TxState = "pending"
	TxConfirmed TxState = "confirmed"
	TxFailed    TxState = "failed"
)

type TransactionStatusResponse struct {
	Status          TxState  `json:"status"`
	TokenID         *big.Int `json:"token_id,omitempty"`
	TransactionHash string   `json:"transaction_hash,omitempty"`
	ExplorerURL     string   `json:"explorer_url,omitempty"`
	BlockNumber     uint64   `json:"block_number,omitempty"`
	Message         string   `json:"message,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// MintStatus is a point-in-time view of one account's mint state.
type MintStatus struct {
	HasMinted     bool
	TokenID       *big.Int
	EstimatedCost string
}

// MintTransaction is what the preparer hands back: submit Payload once.
type MintTransaction struct {
	Payload     TransactionPayload
	GasEstimate *GasEstimate
}
