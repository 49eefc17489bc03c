package contract

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// FakeClient keeps PortfolioMandala state in memory for local development and tests.
// Transaction hashes are derived from their inputs so runs are deterministic.
type FakeClient struct {
	ContractAddress common.Address
	ChainID         uint64
	Name            string
	Symbol          string
	GasLimit        uint64
	GasPriceWei     *big.Int

	mu          sync.Mutex
	tokenOf     map[common.Address]*big.Int
	traderOf    map[string]common.Address
	receipts    map[common.Hash]Verification
	supply      int64
	paused      bool
	baseURI     string
	contractURI string
	adminNonce  int
}

func NewFakeClient(address common.Address, chainID uint64) *FakeClient {
	return &FakeClient{
		ContractAddress: address,
		ChainID:         chainID,
		Name:            "Portfolio Mandala",
		Symbol:          "PMANDALA",
		GasLimit:        DefaultGasLimit,
		GasPriceWei:     big.NewInt(30_000_000_000),
	}
}

func (f *FakeClient) init() {
	if f.tokenOf == nil {
		f.tokenOf = make(map[common.Address]*big.Int)
		f.traderOf = make(map[string]common.Address)
		f.receipts = make(map[common.Hash]Verification)
	}
}

// RecordMint mints the next token for trader and stores a successful receipt.
func (f *FakeClient) RecordMint(trader common.Address) (common.Hash, *big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()

	if f.paused {
		return common.Hash{}, nil, fmt.Errorf("minting is paused")
	}
	if _, ok := f.tokenOf[trader]; ok {
		return common.Hash{}, nil, ErrAlreadyMinted
	}
	f.supply++
	tokenID := big.NewInt(f.supply)
	f.tokenOf[trader] = tokenID
	f.traderOf[tokenID.String()] = trader

	hash := fakeHash("mint:" + trader.Hex())
	f.receipts[hash] = Verification{
		TxHash:      hash,
		Success:     true,
		BlockNumber: uint64(1000 + f.supply),
		GasUsed:     150000,
		TokenID:     new(big.Int).Set(tokenID),
		Trader:      trader,
	}
	return hash, new(big.Int).Set(tokenID), nil
}

// RecordFailure stores a reverted receipt for hash.
func (f *FakeClient) RecordFailure(hash common.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.init()
	f.receipts[hash] = Verification{TxHash: hash, Success: false, BlockNumber: 999, GasUsed: 21000}
}

func (f *FakeClient) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *FakeClient) URIs() (base, contract string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.baseURI, f.contractURI
}

func (f *FakeClient) Info(context.Context) (Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Info{
		Address:     f.ContractAddress,
		Name:        f.Name,
		Symbol:      f.Symbol,
		TotalSupply: big.NewInt(f.supply),
		ChainID:     f.ChainID,
	}, nil
}

func (f *FakeClient) HasTraderMinted(_ context.Context, trader common.Address) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tokenOf[trader]
	return ok, nil
}

func (f *FakeClient) TraderTokenID(_ context.Context, trader common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.tokenOf[trader]
	if !ok {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(id), nil
}

func (f *FakeClient) TokenTrader(_ context.Context, tokenID *big.Int) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	trader, ok := f.traderOf[tokenID.String()]
	if !ok {
		return common.Address{}, ErrTokenNotFound
	}
	return trader, nil
}

func (f *FakeClient) TotalSupply(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return big.NewInt(f.supply), nil
}

func (f *FakeClient) GasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.GasPriceWei), nil
}

func (f *FakeClient) EstimateMintGas(context.Context, common.Address) (uint64, error) {
	return f.GasLimit, nil
}

func (f *FakeClient) BuildMintTransaction(ctx context.Context, trader common.Address) (MintTransaction, error) {
	minted, _ := f.HasTraderMinted(ctx, trader)
	if minted {
		return MintTransaction{}, ErrAlreadyMinted
	}
	return MintTransaction{
		To:       f.ContractAddress,
		Data:     crypto.Keccak256([]byte("mintMandala()"))[:4],
		Gas:      f.GasLimit,
		GasPrice: new(big.Int).Set(f.GasPriceWei),
		Value:    big.NewInt(0),
		ChainID:  new(big.Int).SetUint64(f.ChainID),
	}, nil
}

func (f *FakeClient) VerifyTransaction(_ context.Context, hash common.Hash) (Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.receipts[hash]
	if !ok {
		return Verification{}, ErrTransactionNotFound
	}
	return v, nil
}

func (f *FakeClient) SetBaseURI(_ context.Context, uri string) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.baseURI = uri
	return f.adminHash("setBaseURI:" + uri), nil
}

func (f *FakeClient) SetContractURI(_ context.Context, uri string) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contractURI = uri
	return f.adminHash("setContractURI:" + uri), nil
}

func (f *FakeClient) PauseMinting(context.Context) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
	return f.adminHash("pauseMinting"), nil
}

func (f *FakeClient) UnpauseMinting(context.Context) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	return f.adminHash("unpauseMinting"), nil
}

func (f *FakeClient) adminHash(input string) common.Hash {
	f.adminNonce++
	return fakeHash(fmt.Sprintf("%d:%s", f.adminNonce, input))
}

func fakeHash(input string) common.Hash {
	return common.Hash(sha256.Sum256([]byte(input)))
}
