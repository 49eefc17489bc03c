package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/50zero/pm-trader-art/internal/config"
	"github.com/50zero/pm-trader-art/internal/contract"
	"github.com/50zero/pm-trader-art/internal/portfolio"
	"github.com/50zero/pm-trader-art/internal/server"
	"github.com/50zero/pm-trader-art/internal/txstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeStore()

	chain, closeChain, err := openContract(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeChain()

	fetcher := portfolio.NewFetcher(portfolio.FetcherConfig{
		BaseURL:           cfg.Portfolio.DataAPIURL,
		Limit:             cfg.Portfolio.ActivityLimit,
		RequestsPerSecond: cfg.Portfolio.RequestsPerSecond,
		Logger:            logger,
	})

	apiServer := server.NewServer(cfg, server.Deps{
		Contract:  chain,
		Store:     store,
		Portfolio: fetcher,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(apiServer.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return apiServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (txstore.Store, func(), error) {
	switch cfg.Driver {
	case "postgres":
		pg, err := txstore.NewPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	case "file":
		fs, err := txstore.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() {}, nil
	}
	return txstore.NewMemoryStore(), func() {}, nil
}

func openContract(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (contract.Client, func(), error) {
	if cfg.Contract.Fake {
		logger.Warn("serving an in-memory contract; nothing reaches the chain")
		fake := contract.NewFakeClient(common.HexToAddress(cfg.Contract.Address), cfg.Chain.ChainID)
		fake.Name = cfg.Contract.Name
		fake.Symbol = cfg.Contract.Symbol
		return fake, func() {}, nil
	}

	eth, err := contract.NewEthClient(ctx, contract.EthClientConfig{
		RPCURL:             cfg.Chain.RPCURL,
		ContractAddress:    cfg.Contract.Address,
		OwnerPrivateKeyHex: cfg.Chain.OwnerPrivateKey,
		Name:               cfg.Contract.Name,
		Symbol:             cfg.Contract.Symbol,
		GasLimit:           cfg.Contract.GasLimit,
		GasMultiplier:      cfg.Contract.GasMultiplier,
		Logger:             logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return eth, eth.Close, nil
}
