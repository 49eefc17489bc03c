package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/50zero/pm-trader-art/internal/address"
	"github.com/50zero/pm-trader-art/internal/config"
	"github.com/50zero/pm-trader-art/internal/contract"
	"github.com/50zero/pm-trader-art/internal/hmacauth"
	"github.com/50zero/pm-trader-art/internal/metadata"
	"github.com/50zero/pm-trader-art/internal/nftapi"
	"github.com/50zero/pm-trader-art/internal/portfolio"
	"github.com/50zero/pm-trader-art/internal/txstore"
)

const (
	requestIDHeader = "X-Request-Id"
	maxRequestBytes = 64 << 10
)

// PortfolioAnalyzer summarizes a trader's Polymarket activity.
type PortfolioAnalyzer interface {
	Analyze(ctx context.Context, trader string) (portfolio.Summary, error)
}

type Deps struct {
	Contract contract.Client
	Store    txstore.Store
	// Portfolio may be nil; token metadata then describes an empty portfolio.
	Portfolio PortfolioAnalyzer
	Metadata  *metadata.Generator
	Logger    *slog.Logger
}

type Server struct {
	cfg         *config.AppConfig
	contract    contract.Client
	store       txstore.Store
	portfolio   PortfolioAnalyzer
	metadata    *metadata.Generator
	admin       *hmacauth.Verifier
	metrics     *metricsRegistry
	logger      *slog.Logger
	handler     http.Handler
	httpServer  *http.Server
	now         func() time.Time
	dbHealthFn  func(context.Context) error
	rpcHealthFn func(context.Context) error
}

func NewServer(cfg *config.AppConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	gen := deps.Metadata
	if gen == nil {
		gen = metadata.NewGenerator(metadata.Config{
			BaseURI:         cfg.Metadata.BaseURI,
			ImageBaseURI:    cfg.Metadata.ImageBaseURI,
			ExternalURLBase: cfg.Metadata.ExternalURLBase,
			RoyaltyBPS:      cfg.Metadata.RoyaltyBPS,
			FeeRecipient:    cfg.Metadata.FeeRecipient,
		})
	}

	s := &Server{
		cfg:       cfg,
		contract:  deps.Contract,
		store:     deps.Store,
		portfolio: deps.Portfolio,
		metadata:  gen,
		admin: &hmacauth.Verifier{
			Secret:  cfg.Service.AdminHMACSecret,
			MaxSkew: cfg.Service.HMACClockSkew,
			Logger:  logger,
		},
		metrics: newMetricsRegistry(),
		logger:  logger,
		now:     time.Now,
	}

	if checker, ok := deps.Store.(interface{ Ping(context.Context) error }); ok {
		s.dbHealthFn = checker.Ping
	}
	if checker, ok := deps.Contract.(contract.HealthChecker); ok {
		s.rpcHealthFn = checker.Ping
	}

	s.handler = s.routes()
	s.httpServer = &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Service.HTTPPort),
		Handler:           s.handler,
		ReadHeaderTimeout: 15 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.handler }

// Start blocks serving HTTP. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("API listening", "addr", s.httpServer.Addr, "base_path", s.cfg.Service.BasePath)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Service.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader,
			hmacauth.DefaultSignatureHeader, hmacauth.DefaultTimestampHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Route(s.cfg.Service.BasePath, func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Method(http.MethodGet, "/metrics", s.metrics.handler())

		r.Get("/portfolio/{address}", s.handlePortfolio)

		r.Route("/nft", func(r chi.Router) {
			r.Get("/contract-info", s.handleContractInfo)
			r.Get("/mint-status/{address}", s.handleMintStatus)
			r.Post("/prepare-mint", s.handlePrepareMint)
			r.Post("/transaction-status", s.handleTransactionStatus)
			r.Get("/metadata/{tokenId}", s.handleTokenMetadata)
			r.Get("/contract-metadata", s.handleContractMetadata)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.admin.Middleware)
			r.Post("/base-uri", s.handleSetBaseURI)
			r.Post("/contract-uri", s.handleSetContractURI)
			r.Post("/pause", s.handlePause)
			r.Post("/unpause", s.handleUnpause)
		})
	})
	return r
}

func (s *Server) handleContractInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.contract.Info(r.Context())
	if err != nil {
		s.logger.Error("contract info failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "Contract not available")
		return
	}

	writeJSON(w, http.StatusOK, nftapi.ContractInfoResponse{
		Success: true,
		Contract: &nftapi.ContractInfo{
			Ready:       true,
			Address:     info.Address.Hex(),
			Name:        info.Name,
			Symbol:      info.Symbol,
			TotalSupply: info.TotalSupply,
			Network:     s.cfg.Chain.NetworkName,
			ChainID:     info.ChainID,
			ExplorerURL: s.cfg.Chain.BlockExplorer + "/address/" + info.Address.Hex(),
			ABI:         json.RawMessage(contract.PortfolioMandalaABI),
		},
	})
}

func (s *Server) handleMintStatus(w http.ResponseWriter, r *http.Request) {
	trader, ok := parseTrader(chi.URLParam(r, "address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid trader address")
		return
	}
	ctx := r.Context()

	minted, err := s.contract.HasTraderMinted(ctx, trader)
	if err != nil {
		s.contractError(w, "mint status", err)
		return
	}
	resp := nftapi.MintStatusResponse{Success: true, HasMinted: minted, CanMint: !minted}

	if minted {
		tokenID, err := s.contract.TraderTokenID(ctx, trader)
		if err != nil {
			s.contractError(w, "mint status", err)
			return
		}
		resp.TokenID = tokenID
		writeJSON(w, http.StatusOK, resp)
		return
	}

	var (
		gas      uint64
		gasPrice *big.Int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		gas, err = s.contract.EstimateMintGas(gctx, trader)
		return err
	})
	g.Go(func() (err error) {
		gasPrice, err = s.contract.GasPrice(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		s.contractError(w, "mint status", err)
		return
	}

	cost := contract.EstimatedCost(gas, gasPrice, s.cfg.Chain.CurrencySymbol)
	resp.EstimatedCost = &cost
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrepareMint(w http.ResponseWriter, r *http.Request) {
	var req nftapi.PrepareMintRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if strings.TrimSpace(req.TraderAddress) == "" {
		s.metrics.incPrepare("invalid")
		writeError(w, http.StatusBadRequest, "Trader address required")
		return
	}
	trader, ok := parseTrader(req.TraderAddress)
	if !ok {
		s.metrics.incPrepare("invalid")
		writeError(w, http.StatusBadRequest, "Invalid trader address")
		return
	}

	tx, err := s.contract.BuildMintTransaction(r.Context(), trader)
	switch {
	case errors.Is(err, contract.ErrAlreadyMinted):
		s.metrics.incPrepare("already_minted")
		writeError(w, http.StatusBadRequest, "Trader has already minted their NFT")
		return
	case err != nil:
		s.metrics.incPrepare("error")
		s.contractError(w, "prepare mint", err)
		return
	}

	s.metrics.incPrepare("prepared")
	s.logger.Info("mint prepared", "trader", trader.Hex(), "gas", tx.Gas, "request_id", r.Header.Get(requestIDHeader))

	writeJSON(w, http.StatusOK, nftapi.PrepareMintResponse{
		Success: true,
		Transaction: &nftapi.TransactionPayload{
			From:     trader.Hex(),
			To:       tx.To.Hex(),
			Data:     hexutil.Encode(tx.Data),
			Gas:      hexutil.EncodeUint64(tx.Gas),
			GasPrice: encodeBig(tx.GasPrice),
			Value:    encodeBig(tx.Value),
			ChainID:  encodeBig(tx.ChainID),
		},
		GasEstimate: &nftapi.GasEstimate{
			GasLimit:  tx.Gas,
			Formatted: formatGas(tx.Gas),
			Cost:      contract.EstimatedCost(tx.Gas, tx.GasPrice, s.cfg.Chain.CurrencySymbol),
		},
	})
}

func (s *Server) handleTransactionStatus(w http.ResponseWriter, r *http.Request) {
	var req nftapi.TransactionStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return
	}
	if strings.TrimSpace(req.TxHash) == "" {
		writeError(w, http.StatusBadRequest, "Transaction hash required")
		return
	}
	hash, ok := parseTxHash(req.TxHash)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid transaction hash")
		return
	}
	var trader common.Address
	hasTrader := strings.TrimSpace(req.TraderAddress) != ""
	if hasTrader {
		if trader, ok = parseTrader(req.TraderAddress); !ok {
			writeError(w, http.StatusBadRequest, "Invalid trader address")
			return
		}
	}
	ctx := r.Context()

	if rec, err := s.store.Get(ctx, hash.Hex()); err != nil {
		s.logger.Warn("transaction store lookup failed", "hash", hash.Hex(), "err", err)
	} else if rec != nil {
		s.metrics.incTxStatus(rec.Status, "store")
		writeJSON(w, http.StatusOK, responseFromRecord(*rec))
		return
	}

	v, err := s.contract.VerifyTransaction(ctx, hash)
	if errors.Is(err, contract.ErrTransactionNotFound) {
		s.metrics.incTxStatus(string(nftapi.TxPending), "chain")
		writeJSON(w, http.StatusOK, nftapi.TransactionStatusResponse{
			Status:          nftapi.TxPending,
			TransactionHash: hash.Hex(),
			Message:         "Transaction still pending",
		})
		return
	}
	if err != nil {
		s.contractError(w, "transaction status", err)
		return
	}

	resp := nftapi.TransactionStatusResponse{
		TransactionHash: hash.Hex(),
		ExplorerURL:     s.cfg.Chain.BlockExplorer + "/tx/" + hash.Hex(),
		BlockNumber:     v.BlockNumber,
	}
	if v.Success {
		resp.Status = nftapi.TxConfirmed
		resp.TokenID = v.TokenID
		if resp.TokenID == nil && hasTrader {
			// Receipt without a MandalaCreated log from this contract; ask the contract directly.
			if id, err := s.contract.TraderTokenID(ctx, trader); err != nil {
				s.logger.Warn("token id lookup failed", "trader", trader.Hex(), "err", err)
			} else if id.Sign() > 0 {
				resp.TokenID = id
			}
		}
		s.logger.Info("mint confirmed", "hash", hash.Hex(), "token_id", resp.TokenID, "block", v.BlockNumber)
	} else {
		resp.Status = nftapi.TxFailed
		resp.Error = "Transaction failed"
		s.logger.Warn("mint transaction reverted", "hash", hash.Hex(), "block", v.BlockNumber)
	}
	s.metrics.incTxStatus(string(resp.Status), "chain")

	s.remember(ctx, resp, trader, hasTrader)
	writeJSON(w, http.StatusOK, resp)
}

// remember stores a terminal outcome so repeated polls skip the RPC.
func (s *Server) remember(ctx context.Context, resp nftapi.TransactionStatusResponse, trader common.Address, hasTrader bool) {
	now := s.now()
	rec := txstore.Record{
		Hash:        resp.TransactionHash,
		Status:      string(resp.Status),
		BlockNumber: resp.BlockNumber,
		ExplorerURL: resp.ExplorerURL,
		Error:       resp.Error,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.Service.TxRecordTTL),
	}
	if hasTrader {
		rec.Trader = trader.Hex()
	}
	if resp.TokenID != nil {
		rec.TokenID = resp.TokenID.String()
	}
	if err := s.store.Save(ctx, rec); err != nil {
		s.logger.Warn("transaction store save failed", "hash", rec.Hash, "err", err)
	}
}

func responseFromRecord(rec txstore.Record) nftapi.TransactionStatusResponse {
	resp := nftapi.TransactionStatusResponse{
		Status:          nftapi.TxState(rec.Status),
		TransactionHash: rec.Hash,
		ExplorerURL:     rec.ExplorerURL,
		BlockNumber:     rec.BlockNumber,
		Error:           rec.Error,
	}
	if rec.TokenID != "" {
		if id, ok := new(big.Int).SetString(rec.TokenID, 10); ok {
			resp.TokenID = id
		}
	}
	return resp
}

func (s *Server) handleTokenMetadata(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := new(big.Int).SetString(chi.URLParam(r, "tokenId"), 10)
	if !ok || tokenID.Sign() < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid token id"})
		return
	}
	ctx := r.Context()

	trader, err := s.contract.TokenTrader(ctx, tokenID)
	if errors.Is(err, contract.ErrTokenNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Token not found"})
		return
	}
	if err != nil {
		s.logger.Error("token trader lookup failed", "token_id", tokenID, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	summary := portfolio.Summarize(trader.Hex(), nil)
	if s.portfolio != nil {
		if got, err := s.portfolio.Analyze(ctx, trader.Hex()); err != nil {
			s.metrics.incPortfolioError()
			s.logger.Warn("portfolio fetch failed, using empty portfolio", "trader", trader.Hex(), "err", err)
		} else {
			summary = got
		}
	}

	writeJSON(w, http.StatusOK, s.metadata.Token(tokenID, trader.Hex(), summary))
}

type portfolioResponse struct {
	Success bool              `json:"success"`
	Data    portfolio.Summary `json:"data"`
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	trader, ok := parseTrader(chi.URLParam(r, "address"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid trader address")
		return
	}
	if s.portfolio == nil {
		writeError(w, http.StatusServiceUnavailable, "Portfolio data not available")
		return
	}

	summary, err := s.portfolio.Analyze(r.Context(), trader.Hex())
	if err != nil {
		s.metrics.incPortfolioError()
		s.logger.Error("portfolio fetch failed", "trader", trader.Hex(), "err", err)
		writeError(w, http.StatusBadGateway, "Failed to fetch portfolio data")
		return
	}
	writeJSON(w, http.StatusOK, portfolioResponse{Success: true, Data: summary})
}

func (s *Server) handleContractMetadata(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metadata.Contract())
}

func (s *Server) contractError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "err", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func parseTrader(raw string) (common.Address, bool) {
	acct, err := address.Parse(raw)
	if err != nil {
		return common.Address{}, false
	}
	addr, err := acct.Common()
	return addr, err == nil
}

func parseTxHash(raw string) (common.Hash, bool) {
	b, err := hexutil.Decode(strings.TrimSpace(raw))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func encodeBig(v *big.Int) string {
	if v == nil {
		return "0x0"
	}
	return hexutil.EncodeBig(v)
}

// formatGas renders e.g. "500,000 gas units".
func formatGas(gas uint64) string {
	return message.NewPrinter(language.English).Sprintf("%d gas units", gas)
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return io.EOF
	}
	return json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, nftapi.ErrorResponse{Success: false, Error: msg})
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.observeRequest(route, status, elapsed)
		s.logger.Debug("request",
			"method", r.Method,
			"route", route,
			"status", status,
			"elapsed", elapsed,
			"request_id", r.Header.Get(requestIDHeader),
		)
	})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
