package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/50zero/pm-trader-art/internal/address"
	"github.com/50zero/pm-trader-art/internal/mint"
	"github.com/50zero/pm-trader-art/internal/nftapi"
	"github.com/50zero/pm-trader-art/internal/wallet"
)

type fetchFunc func(ctx context.Context, account address.Account) (nftapi.MintStatus, error)

func (f fetchFunc) FetchStatus(ctx context.Context, account address.Account) (nftapi.MintStatus, error) {
	return f(ctx, account)
}

const hash = "0x5f0000000000000000000000000000000000000000000000000000000000aa01"

func TestLoadStatusReportsFetchFailure(t *testing.T) {
	var out bytes.Buffer
	failing := fetchFunc(func(context.Context, address.Account) (nftapi.MintStatus, error) {
		return nftapi.MintStatus{}, errors.New("dial tcp: connection refused")
	})

	status := loadStatus(context.Background(), failing, confirmation().Trader, &out)
	assert.Nil(t, status)
	assert.Equal(t, "dial tcp: connection refused\n", out.String())
}

func TestLoadStatus(t *testing.T) {
	var out bytes.Buffer
	ok := fetchFunc(func(context.Context, address.Account) (nftapi.MintStatus, error) {
		return nftapi.MintStatus{EstimatedCost: "~0.015000 MATIC"}, nil
	})

	status := loadStatus(context.Background(), ok, confirmation().Trader, &out)
	require.NotNil(t, status)
	assert.Equal(t, "~0.015000 MATIC", status.EstimatedCost)
	assert.Empty(t, out.String())
}

func TestReportTimedOut(t *testing.T) {
	var out bytes.Buffer
	timeout := &mint.TimeoutError{Hash: hash, Attempts: 60}

	err := report(&out, mint.Result{Outcome: mint.StateTimedOut}, timeout, wallet.PolygonAmoy)
	require.Error(t, err)
	assert.Contains(t, out.String(), "still pending")
	assert.Equal(t, exitPending, exitCode(err))
}

func TestReport(t *testing.T) {
	var out bytes.Buffer
	res := mint.Result{Outcome: mint.StateConfirmed, Record: &mint.TransactionRecord{Hash: hash, TokenID: big.NewInt(7)}}
	require.NoError(t, report(&out, res, nil, wallet.PolygonAmoy))
	assert.Contains(t, out.String(), "token #7")

	out.Reset()
	require.NoError(t, report(&out, mint.Result{Outcome: mint.StateIdle}, nil, wallet.PolygonAmoy))
	assert.Equal(t, "Mint cancelled.\n", out.String())

	out.Reset()
	require.NoError(t, report(&out, mint.Result{Outcome: mint.StateIdle}, mint.ErrAlreadyMinted, wallet.PolygonAmoy))

	out.Reset()
	err := report(&out, mint.Result{Outcome: mint.StateFailed}, mint.ErrTransactionFailed, wallet.PolygonAmoy)
	assert.ErrorIs(t, err, mint.ErrTransactionFailed)
	assert.Equal(t, exitFailed, exitCode(err))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, exitFailed, exitCode(errors.New("boom")))
	assert.Equal(t, exitPending, exitCode(fmt.Errorf("mint: %w", &mint.TimeoutError{Hash: hash})))
}
