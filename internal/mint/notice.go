package mint

import (
	"errors"
	"fmt"

	"github.com/50zero/pm-trader-art/internal/nftapi"
	"github.com/50zero/pm-trader-art/internal/wallet"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a user-facing message for a mint or wallet outcome.
type Notice struct {
	Level     Level
	Message   string
	Retryable bool
}

// Describe maps an error from the wallet session or the workflow to a notice.
// A nil error yields the zero Notice.
func Describe(err error) Notice {
	var (
		timeout *TimeoutError
		prepare *PrepareError
		submit  *SubmissionError
		apiErr  *nftapi.APIError
	)
	switch {
	case err == nil:
		return Notice{}
	case errors.Is(err, wallet.ErrUserRejected):
		return Notice{Level: LevelInfo, Message: "Request cancelled in your wallet.", Retryable: true}
	case errors.Is(err, wallet.ErrRequestPending):
		return Notice{Level: LevelInfo, Message: "A wallet request is already open. Check your wallet."}
	case errors.Is(err, wallet.ErrProviderMissing):
		return Notice{Level: LevelWarning, Message: "No Web3 wallet found. Install MetaMask or another wallet to continue."}
	case errors.Is(err, wallet.ErrNetworkSwitchFailed):
		return Notice{Level: LevelWarning, Message: "Could not switch your wallet to the required network.", Retryable: true}
	case errors.Is(err, ErrMintInProgress):
		return Notice{Level: LevelInfo, Message: "A mint is already in progress."}
	case errors.Is(err, ErrAlreadyMinted):
		return Notice{Level: LevelInfo, Message: "This mandala has already been minted."}
	case errors.Is(err, ErrNotAuthorized):
		return Notice{Level: LevelWarning, Message: "Connect the trader's own wallet on the required network to mint."}
	case errors.As(err, &timeout):
		return Notice{Level: LevelWarning, Message: fmt.Sprintf("Transaction %s is still pending. It may confirm later; check the block explorer.", timeout.Hash)}
	case errors.Is(err, ErrTransactionFailed):
		return Notice{Level: LevelError, Message: "The mint transaction failed on chain.", Retryable: true}
	case errors.As(err, &prepare):
		return Notice{Level: LevelError, Message: "Could not prepare the mint transaction. Try again shortly.", Retryable: true}
	case errors.As(err, &submit):
		return Notice{Level: LevelError, Message: "The wallet could not submit the transaction.", Retryable: true}
	case errors.As(err, &apiErr):
		return Notice{Level: LevelError, Message: "The server is unavailable. Try again shortly.", Retryable: apiErr.Temporary()}
	}
	return Notice{Level: LevelError, Message: err.Error(), Retryable: true}
}

// DescribeResult builds the notice for a completed attempt. Failed and timed-out
// attempts are described by their error instead.
func DescribeResult(res Result, network wallet.Network) Notice {
	switch res.Outcome {
	case StateIdle:
		return Notice{Level: LevelInfo, Message: "Mint cancelled."}
	case StateConfirmed:
		msg := "Mandala minted."
		if res.Record != nil && res.Record.TokenID != nil {
			msg = fmt.Sprintf("Mandala minted as token #%s.", res.Record.TokenID)
		}
		if res.Record != nil && network.BlockExplorer != "" {
			msg += fmt.Sprintf(" %s/tx/%s", network.BlockExplorer, res.Record.Hash)
		}
		return Notice{Level: LevelSuccess, Message: msg}
	}
	return Notice{}
}
