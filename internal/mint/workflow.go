package mint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/50zero/pm-trader-art/internal/address"
	"github.com/50zero/pm-trader-art/internal/event"
	"github.com/50zero/pm-trader-art/internal/nftapi"
	"github.com/50zero/pm-trader-art/internal/wallet"
)

type State int

const (
	StateIdle State = iota
	StatePreparing
	StateAwaitingConfirmation
	StateAwaitingSignature
	StateSubmitted
	StatePolling
	StateConfirmed
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	case StateAwaitingSignature:
		return "awaiting_signature"
	case StateSubmitted:
		return "submitted"
	case StatePolling:
		return "polling"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	}
	return "unknown"
}

// Terminal reports whether an attempt ends in s.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed || s == StateTimedOut
}

type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// TransactionRecord tracks a broadcast mint transaction. Only the poll loop mutates it.
type TransactionRecord struct {
	Hash    string
	Trader  address.Account
	Status  TxStatus
	TokenID *big.Int
}

type Preparer interface {
	PrepareMint(ctx context.Context, trader address.Account) (nftapi.MintTransaction, error)
}

type StatusChecker interface {
	TransactionStatus(ctx context.Context, txHash string, trader address.Account) (nftapi.TransactionStatusResponse, error)
}

type Signer interface {
	SendTransaction(ctx context.Context, req wallet.TransactionRequest) (string, error)
}

// Authorizer is satisfied by *wallet.Session.
type Authorizer interface {
	CanMint(target address.Account) bool
	State() wallet.State
	Target() wallet.Network
}

// Confirmation is shown to the user before anything is signed.
type Confirmation struct {
	Trader      address.Account
	Network     wallet.Network
	GasEstimate *nftapi.GasEstimate
	Payload     nftapi.TransactionPayload
}

// Confirmer asks the user to accept or decline. It may block as long as the user takes.
type Confirmer interface {
	Confirm(ctx context.Context, c Confirmation) (bool, error)
}

type ConfirmFunc func(ctx context.Context, c Confirmation) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, c Confirmation) (bool, error) { return f(ctx, c) }

type Config struct {
	PollInterval    time.Duration
	MaxPollAttempts int
}

func DefaultConfig() Config {
	return Config{PollInterval: 5 * time.Second, MaxPollAttempts: 60}
}

type Deps struct {
	Preparer  Preparer
	Confirmer Confirmer
	Signer    Signer
	Status    StatusChecker
	Session   Authorizer
	Clock     Sleeper
	Logger    *slog.Logger
}

type Request struct {
	Trader address.Account
	// Status is the last fetched mint status, if any. HasMinted stops the attempt up front.
	Status *nftapi.MintStatus
}

type Result struct {
	AttemptID string
	Outcome   State
	Record    *TransactionRecord
	// Polls is how many status checks were made.
	Polls int
}

// Transition is published on every state change of the workflow.
type Transition struct {
	AttemptID string
	From      State
	To        State
	Record    *TransactionRecord
	Err       error
}

// Workflow drives one mint attempt at a time from request to a terminal state.
type Workflow struct {
	preparer  Preparer
	confirmer Confirmer
	signer    Signer
	status    StatusChecker
	session   Authorizer
	clock     Sleeper
	cfg       Config
	logger    *slog.Logger
	feed      event.Feed[Transition]

	mu      sync.Mutex
	state   State
	minting bool
}

func NewWorkflow(deps Deps, cfg Config) *Workflow {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = DefaultConfig().MaxPollAttempts
	}
	clock := deps.Clock
	if clock == nil {
		clock = RealClock{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		preparer:  deps.Preparer,
		confirmer: deps.Confirmer,
		signer:    deps.Signer,
		status:    deps.Status,
		session:   deps.Session,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.With("component", "mint_workflow"),
	}
}

func (w *Workflow) Subscribe(fn func(Transition)) func() {
	return w.feed.Subscribe(fn)
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workflow) IsMinting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.minting
}

// Mint runs one attempt. It returns ErrMintInProgress, without side effects, while another
// attempt is running. A declined confirmation returns Outcome StateIdle and a nil error.
// Once the transaction is signed the attempt runs to a terminal state; cancelling ctx then
// only stops polling, which is reported as a timeout.
func (w *Workflow) Mint(ctx context.Context, req Request) (Result, error) {
	trader := address.Normalize(req.Trader.String())

	if req.Status != nil && req.Status.HasMinted {
		return Result{Outcome: StateIdle}, ErrAlreadyMinted
	}
	if !w.session.CanMint(trader) {
		return Result{Outcome: StateIdle}, ErrNotAuthorized
	}

	w.mu.Lock()
	if w.minting {
		w.mu.Unlock()
		return Result{Outcome: w.State()}, ErrMintInProgress
	}
	w.minting = true
	w.mu.Unlock()

	res := Result{AttemptID: uuid.NewString()}
	logger := w.logger.With("attempt_id", res.AttemptID, "trader", trader.Short())
	logger.Info("mint requested")

	w.transition(res.AttemptID, StatePreparing, nil, nil)
	prepared, err := w.preparer.PrepareMint(ctx, trader)
	if err != nil {
		return w.fail(res, nil, &PrepareError{Err: err})
	}

	w.transition(res.AttemptID, StateAwaitingConfirmation, nil, nil)
	accepted, err := w.confirmer.Confirm(ctx, Confirmation{
		Trader:      trader,
		Network:     w.session.Target(),
		GasEstimate: prepared.GasEstimate,
		Payload:     prepared.Payload,
	})
	if err != nil {
		return w.fail(res, nil, fmt.Errorf("confirm mint: %w", err))
	}
	if !accepted {
		logger.Info("mint declined by user")
		w.transition(res.AttemptID, StateIdle, nil, nil)
		res.Outcome = StateIdle
		return res, nil
	}

	w.transition(res.AttemptID, StateAwaitingSignature, nil, nil)
	if !w.session.CanMint(trader) {
		return w.fail(res, nil, &SubmissionError{Err: ErrNotAuthorized})
	}
	txReq := toTransactionRequest(prepared.Payload, w.session.State().Account)
	hash, err := w.signer.SendTransaction(ctx, txReq)
	if err != nil {
		if errors.Is(err, wallet.ErrUserRejected) {
			return w.fail(res, nil, fmt.Errorf("sign mint transaction: %w", err))
		}
		return w.fail(res, nil, &SubmissionError{Err: err})
	}

	rec := &TransactionRecord{Hash: hash, Trader: trader, Status: TxPending}
	res.Record = rec
	logger.Info("mint transaction submitted", "tx_hash", hash)
	w.transition(res.AttemptID, StateSubmitted, rec, nil)

	w.transition(res.AttemptID, StatePolling, rec, nil)
	outcome, polls, err := w.poll(ctx, rec, logger)
	res.Polls = polls
	res.Outcome = outcome
	w.transition(res.AttemptID, outcome, rec, err)

	if err != nil {
		logger.Warn("mint ended", "outcome", outcome.String(), "tx_hash", hash, "polls", polls, "error", err)
	} else {
		logger.Info("mint confirmed", "tx_hash", hash, "token_id", rec.TokenID, "polls", polls)
	}
	return res, err
}

// poll checks the transaction status up to MaxPollAttempts times, PollInterval apart.
// A failed check uses up an attempt like a pending answer does.
func (w *Workflow) poll(ctx context.Context, rec *TransactionRecord, logger *slog.Logger) (State, int, error) {
	polls := 0
	for attempt := 1; attempt <= w.cfg.MaxPollAttempts; attempt++ {
		if attempt > 1 {
			if err := w.clock.Sleep(ctx, w.cfg.PollInterval); err != nil {
				return StateTimedOut, polls, &TimeoutError{Hash: rec.Hash, Attempts: polls, Err: err}
			}
		}
		polls++

		resp, err := w.status.TransactionStatus(ctx, rec.Hash, rec.Trader)
		if err != nil {
			logger.Warn("transaction status check failed", "attempt", attempt, "error", err)
			continue
		}

		switch resp.Status {
		case nftapi.TxConfirmed:
			rec.Status = TxConfirmed
			rec.TokenID = resp.TokenID
			return StateConfirmed, polls, nil
		case nftapi.TxFailed:
			rec.Status = TxFailed
			reason := resp.Error
			if reason == "" {
				reason = "transaction reverted"
			}
			return StateFailed, polls, fmt.Errorf("%w: %s", ErrTransactionFailed, reason)
		}
		logger.Debug("transaction pending", "attempt", attempt)
	}
	return StateTimedOut, polls, &TimeoutError{Hash: rec.Hash, Attempts: polls}
}

func (w *Workflow) fail(res Result, rec *TransactionRecord, err error) (Result, error) {
	w.transition(res.AttemptID, StateFailed, rec, err)
	w.logger.Warn("mint failed", "attempt_id", res.AttemptID, "error", err)
	res.Outcome = StateFailed
	return res, err
}

func (w *Workflow) transition(attemptID string, to State, rec *TransactionRecord, err error) {
	w.mu.Lock()
	from := w.state
	w.state = to
	if to.Terminal() || to == StateIdle {
		w.minting = false
	}
	w.mu.Unlock()

	var snapshot *TransactionRecord
	if rec != nil {
		cp := *rec
		snapshot = &cp
	}
	w.feed.Send(Transition{AttemptID: attemptID, From: from, To: to, Record: snapshot, Err: err})
}

func toTransactionRequest(p nftapi.TransactionPayload, from address.Account) wallet.TransactionRequest {
	return wallet.TransactionRequest{
		From:     from.String(),
		To:       p.To,
		Data:     p.Data,
		Gas:      p.Gas,
		GasPrice: p.GasPrice,
		Value:    p.Value,
		ChainID:  p.ChainID,
	}
}
