package mint

import (
	"errors"
	"fmt"
)

var (
	ErrMintInProgress    = errors.New("a mint is already in progress")
	ErrNotAuthorized     = errors.New("connected wallet cannot mint for this address on this network")
	ErrAlreadyMinted     = errors.New("this address has already minted its mandala")
	ErrTransactionFailed = errors.New("mint transaction failed on chain")
)

// PrepareError means no transaction could be obtained for the trader.
type PrepareError struct {
	Err error
}

func (e *PrepareError) Error() string { return fmt.Sprintf("prepare mint: %v", e.Err) }
func (e *PrepareError) Unwrap() error { return e.Err }

// SubmissionError means the wallet failed to sign or broadcast for a reason other than the user declining.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string { return fmt.Sprintf("submit mint transaction: %v", e.Err) }
func (e *SubmissionError) Unwrap() error { return e.Err }

// TimeoutError means polling gave up. The transaction was broadcast and may still confirm.
type TimeoutError struct {
	Hash     string
	Attempts int
	Err      error
}

func (e *TimeoutError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transaction %s unconfirmed after %d status checks: %v", e.Hash, e.Attempts, e.Err)
	}
	return fmt.Sprintf("transaction %s unconfirmed after %d status checks", e.Hash, e.Attempts)
}

func (e *TimeoutError) Unwrap() error { return e.Err }
