// Command mint mints a trader's Portfolio Mandala from the command line, signing with a
// local key in place of a browser wallet.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/50zero/pm-trader-art/internal/address"
	"github.com/50zero/pm-trader-art/internal/config"
	"github.com/50zero/pm-trader-art/internal/mint"
	"github.com/50zero/pm-trader-art/internal/mintstatus"
	"github.com/50zero/pm-trader-art/internal/nftapi"
	"github.com/50zero/pm-trader-art/internal/wallet"
)

type options struct {
	trader     string
	yes        bool
	statusOnly bool
}

func main() {
	var opts options
	flag.StringVar(&opts.trader, "trader", "", "trader whose mandala to mint (default: the wallet address)")
	flag.BoolVar(&opts.yes, "yes", false, "sign without asking for confirmation")
	flag.BoolVar(&opts.statusOnly, "status", false, "print the mint status and exit")
	flag.Parse()

	cfg, err := config.LoadClient()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func run(ctx context.Context, cfg *config.ClientConfig, opts options, logger *slog.Logger) error {
	if cfg.PrivateKey == "" {
		return errors.New("WALLET_PRIVATE_KEY is required")
	}

	network := targetNetwork(cfg)
	provider, err := wallet.NewKeyedProvider(wallet.KeyedProviderConfig{
		PrivateKeyHex: cfg.PrivateKey,
		Networks:      []wallet.Network{network},
		InitialChain:  network.ChainID,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	defer provider.Close()

	session := wallet.NewSession(provider, network, logger)
	defer session.Close()

	account, err := session.Connect(ctx)
	if err != nil {
		return fmt.Errorf("%s (%w)", mint.Describe(err).Message, err)
	}
	fmt.Printf("Wallet %s on %s\n", account.Short(), network.Name)

	trader := account
	if opts.trader != "" {
		if trader, err = address.Parse(opts.trader); err != nil {
			return err
		}
	}

	api := nftapi.NewClient(cfg.APIBaseURL, &http.Client{Timeout: cfg.RequestTimeout}, logger)
	statusSvc := mintstatus.NewService(api, session, logger)

	status := loadStatus(ctx, statusSvc, trader, os.Stdout)
	view := statusSvc.Resolve(trader, status)
	fmt.Println(view.Message)
	if opts.statusOnly || !view.Enabled {
		return nil
	}

	confirmer := mint.ConfirmFunc(func(ctx context.Context, c mint.Confirmation) (bool, error) {
		if opts.yes {
			return true, nil
		}
		return promptConfirm(ctx, os.Stdin, os.Stdout, c)
	})

	workflow := mint.NewWorkflow(mint.Deps{
		Preparer:  api,
		Confirmer: confirmer,
		Signer:    provider,
		Status:    api,
		Session:   session,
		Logger:    logger,
	}, mint.Config{
		PollInterval:    cfg.PollInterval,
		MaxPollAttempts: cfg.MaxPollAttempts,
	})
	unsubscribe := workflow.Subscribe(func(tr mint.Transition) {
		if line := progressLine(tr); line != "" {
			fmt.Println(line)
		}
	})
	defer unsubscribe()

	res, err := workflow.Mint(ctx, mint.Request{Trader: trader, Status: status})
	return report(os.Stdout, res, err, network)
}

func targetNetwork(cfg *config.ClientConfig) wallet.Network {
	network := wallet.PolygonAmoy
	if cfg.ChainID != 0 && wallet.ChainID(cfg.ChainID) != network.ChainID {
		network.ChainID = wallet.ChainID(cfg.ChainID)
		network.Name = fmt.Sprintf("chain %d", cfg.ChainID)
	}
	if cfg.RPCURL != "" {
		network.RPCURL = cfg.RPCURL
	}
	if cfg.BlockExplorer != "" {
		network.BlockExplorer = cfg.BlockExplorer
	}
	return network
}

func progressLine(tr mint.Transition) string {
	switch tr.To {
	case mint.StatePreparing:
		return "Preparing transaction..."
	case mint.StateAwaitingSignature:
		return "Signing..."
	case mint.StateSubmitted:
		if tr.Record != nil {
			return "Submitted " + tr.Record.Hash
		}
	case mint.StatePolling:
		return "Waiting for confirmation..."
	}
	return ""
}
