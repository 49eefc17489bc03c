package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/50zero/pm-trader-art/internal/address"
	"github.com/50zero/pm-trader-art/internal/mint"
	"github.com/50zero/pm-trader-art/internal/nftapi"
	"github.com/50zero/pm-trader-art/internal/wallet"
)

// Exit codes. A pending transaction was broadcast and may still confirm, so it is
// kept apart from outright failures.
const (
	exitFailed  = 1
	exitPending = 2
)

type statusFetcher interface {
	FetchStatus(ctx context.Context, account address.Account) (nftapi.MintStatus, error)
}

// loadStatus fetches the trader's mint status. A failed fetch is reported on out and
// yields nil, leaving the view to fall back to the wallet state alone.
func loadStatus(ctx context.Context, f statusFetcher, trader address.Account, out io.Writer) *nftapi.MintStatus {
	got, err := f.FetchStatus(ctx, trader)
	if err != nil {
		fmt.Fprintln(out, mint.Describe(err).Message)
		return nil
	}
	return &got
}

// report prints the outcome of a mint attempt. Declines and informational errors
// such as an already minted token are not failures.
func report(out io.Writer, res mint.Result, err error, network wallet.Network) error {
	notice := mint.DescribeResult(res, network)
	if err != nil {
		notice = mint.Describe(err)
	}
	fmt.Fprintln(out, notice.Message)
	if err == nil || notice.Level == mint.LevelInfo {
		return nil
	}
	return err
}

func exitCode(err error) int {
	var timeout *mint.TimeoutError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &timeout):
		return exitPending
	}
	return exitFailed
}
