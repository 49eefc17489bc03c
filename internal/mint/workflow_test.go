package mint

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/50zero/pm-trader-art/internal/address"
	"github.com/50zero/pm-trader-art/internal/nftapi"
	"github.com/50zero/pm-trader-art/internal/wallet"
)

const trader = address.Account("0xAbC0000000000000000000000000000000000001")

type stubPreparer struct {
	mu    sync.Mutex
	calls int
	err   error
	block chan struct{}
}

func (p *stubPreparer) PrepareMint(ctx context.Context, account address.Account) (nftapi.MintTransaction, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.block != nil {
		<-p.block
	}
	if p.err != nil {
		return nftapi.MintTransaction{}, p.err
	}
	return nftapi.MintTransaction{
		Payload: nftapi.TransactionPayload{
			To:       "0x00000000000000000000000000000000000000c0",
			Data:     "0x1249c58b",
			Gas:      "0x30d40",
			GasPrice: "0x6fc23ac00",
			Value:    "0x0",
			ChainID:  wallet.PolygonAmoy.ChainID.Hex(),
		},
		GasEstimate: &nftapi.GasEstimate{GasLimit: 200000, Formatted: "200,000", Cost: "~0.006000 MATIC"},
	}, nil
}

func (p *stubPreparer) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type stubSigner struct {
	hash  string
	err   error
	calls int
	last  wallet.TransactionRequest
}

func (s *stubSigner) SendTransaction(_ context.Context, req wallet.TransactionRequest) (string, error) {
	s.calls++
	s.last = req
	return s.hash, s.err
}

// scriptedStatus answers each poll from script; once exhausted it keeps answering pending.
type scriptedStatus struct {
	script []statusStep
	calls  int
}

type statusStep struct {
	resp nftapi.TransactionStatusResponse
	err  error
}

func (s *scriptedStatus) TransactionStatus(context.Context, string, address.Account) (nftapi.TransactionStatusResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.script) {
		return s.script[i].resp, s.script[i].err
	}
	return nftapi.TransactionStatusResponse{Status: nftapi.TxPending}, nil
}

func pending(n int) []statusStep {
	steps := make([]statusStep, n)
	for i := range steps {
		steps[i] = statusStep{resp: nftapi.TransactionStatusResponse{Status: nftapi.TxPending}}
	}
	return steps
}

type stubAuthorizer struct {
	allowed bool
}

func (a *stubAuthorizer) CanMint(target address.Account) bool { return a.allowed && target.Equal(trader) }
func (a *stubAuthorizer) Target() wallet.Network              { return wallet.PolygonAmoy }
func (a *stubAuthorizer) State() wallet.State {
	return wallet.State{Connected: a.allowed, Account: trader, ChainID: wallet.PolygonAmoy.ChainID}
}

type countingClock struct {
	sleeps int
	err    error
}

func (c *countingClock) Sleep(context.Context, time.Duration) error {
	c.sleeps++
	return c.err
}

type fixture struct {
	preparer *stubPreparer
	signer   *stubSigner
	status   *scriptedStatus
	auth     *stubAuthorizer
	clock    *countingClock
	accept   bool
	confirms int
	wf       *Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		preparer: &stubPreparer{},
		signer:   &stubSigner{hash: "0xfeed"},
		status:   &scriptedStatus{},
		auth:     &stubAuthorizer{allowed: true},
		clock:    &countingClock{},
		accept:   true,
	}
	f.wf = NewWorkflow(Deps{
		Preparer: f.preparer,
		Confirmer: ConfirmFunc(func(context.Context, Confirmation) (bool, error) {
			f.confirms++
			return f.accept, nil
		}),
		Signer:  f.signer,
		Status:  f.status,
		Session: f.auth,
		Clock:   f.clock,
	}, DefaultConfig())
	return f
}

func (f *fixture) states() *[]State {
	var got []State
	f.wf.Subscribe(func(tr Transition) { got = append(got, tr.To) })
	return &got
}

func TestMintConfirmedFirstPoll(t *testing.T) {
	f := newFixture(t)
	f.status.script = []statusStep{{resp: nftapi.TransactionStatusResponse{Status: nftapi.TxConfirmed, TokenID: big.NewInt(42)}}}
	states := f.states()

	res, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	require.NoError(t, err)

	assert.Equal(t, StateConfirmed, res.Outcome)
	assert.Equal(t, 1, res.Polls)
	assert.Equal(t, 0, f.clock.sleeps, "first poll is immediate")
	require.NotNil(t, res.Record)
	assert.Equal(t, "0xfeed", res.Record.Hash)
	assert.Equal(t, TxConfirmed, res.Record.Status)
	assert.Equal(t, int64(42), res.Record.TokenID.Int64())
	assert.NotEmpty(t, res.AttemptID)
	assert.Equal(t, []State{
		StatePreparing, StateAwaitingConfirmation, StateAwaitingSignature,
		StateSubmitted, StatePolling, StateConfirmed,
	}, *states)
	assert.False(t, f.wf.IsMinting())
	assert.Equal(t, trader.String(), f.signer.last.From)
	assert.Equal(t, "0x1249c58b", f.signer.last.Data)
}

func TestMintConfirmedOnLastAttempt(t *testing.T) {
	f := newFixture(t)
	f.status.script = append(pending(59), statusStep{resp: nftapi.TransactionStatusResponse{Status: nftapi.TxConfirmed, TokenID: big.NewInt(7)}})

	res, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, res.Outcome)
	assert.Equal(t, 60, res.Polls)
	assert.Equal(t, 59, f.clock.sleeps)
}

func TestMintTimesOutAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	f.status.script = pending(60)
	f.status.script = append(f.status.script, statusStep{resp: nftapi.TransactionStatusResponse{Status: nftapi.TxConfirmed}})

	res, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, "0xfeed", timeout.Hash)
	assert.Equal(t, 60, timeout.Attempts)
	assert.Equal(t, StateTimedOut, res.Outcome)
	assert.Equal(t, 60, f.status.calls, "never polls a 61st time")
	assert.Equal(t, TxPending, res.Record.Status)
	assert.False(t, f.wf.IsMinting())
}

func TestTransientPollErrorsConsumeAttempts(t *testing.T) {
	f := newFixture(t)
	f.wf.cfg.MaxPollAttempts = 3
	boom := &nftapi.APIError{Op: "transaction-status", StatusCode: 502}
	f.status.script = []statusStep{{err: boom}, {err: boom}, {err: boom}}

	res, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 3, res.Polls)
	assert.Equal(t, 3, f.status.calls)
}

func TestTransientPollErrorThenConfirmed(t *testing.T) {
	f := newFixture(t)
	f.status.script = []statusStep{
		{err: errors.New("connection reset")},
		{resp: nftapi.TransactionStatusResponse{Status: nftapi.TxConfirmed, TokenID: big.NewInt(1)}},
	}

	res, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Polls)
}

func TestMintFailedOnChain(t *testing.T) {
	f := newFixture(t)
	f.status.script = []statusStep{{resp: nftapi.TransactionStatusResponse{Status: nftapi.TxFailed, Error: "execution reverted"}}}

	res, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	require.ErrorIs(t, err, ErrTransactionFailed)
	assert.Contains(t, err.Error(), "execution reverted")
	assert.Equal(t, StateFailed, res.Outcome)
	assert.Equal(t, TxFailed, res.Record.Status)
}

func TestDeclineReturnsToIdle(t *testing.T) {
	f := newFixture(t)
	f.accept = false
	states := f.states()

	res, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, res.Outcome)
	assert.Equal(t, 0, f.signer.calls)
	assert.Equal(t, 0, f.status.calls)
	assert.Equal(t, []State{StatePreparing, StateAwaitingConfirmation, StateIdle}, *states)
	assert.Equal(t, StateIdle, f.wf.State())
	assert.False(t, f.wf.IsMinting())
}

func TestUserRejectsSignature(t *testing.T) {
	f := newFixture(t)
	f.signer.err = &wallet.ProviderError{Code: wallet.CodeUserRejected, Message: "User denied transaction signature."}

	res, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	require.ErrorIs(t, err, wallet.ErrUserRejected)
	var submit *SubmissionError
	assert.False(t, errors.As(err, &submit))
	assert.Equal(t, StateFailed, res.Outcome)
	assert.Nil(t, res.Record)
	assert.Equal(t, 0, f.status.calls)
	assert.Equal(t, LevelInfo, Describe(err).Level)
}

func TestSubmissionError(t *testing.T) {
	f := newFixture(t)
	f.signer.err = errors.New("insufficient funds for gas")

	_, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	var submit *SubmissionError
	require.ErrorAs(t, err, &submit)
	assert.True(t, Describe(err).Retryable)
}

func TestPrepareError(t *testing.T) {
	f := newFixture(t)
	f.preparer.err = &nftapi.APIError{Op: "prepare-mint", StatusCode: 400, Message: "Trader has already minted"}

	res, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	var prep *PrepareError
	require.ErrorAs(t, err, &prep)
	assert.Equal(t, StateFailed, res.Outcome)
	assert.Equal(t, 0, f.confirms)
	assert.Equal(t, 0, f.signer.calls)
}

func TestGuardsRejectWithoutSideEffects(t *testing.T) {
	t.Run("already minted", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.wf.Mint(context.Background(), Request{Trader: trader, Status: &nftapi.MintStatus{HasMinted: true}})
		require.ErrorIs(t, err, ErrAlreadyMinted)
		assert.Equal(t, 0, f.preparer.Calls())
	})
	t.Run("not authorized", func(t *testing.T) {
		f := newFixture(t)
		f.auth.allowed = false
		_, err := f.wf.Mint(context.Background(), Request{Trader: trader})
		require.ErrorIs(t, err, ErrNotAuthorized)
		assert.Equal(t, 0, f.preparer.Calls())
	})
	t.Run("other trader", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.wf.Mint(context.Background(), Request{Trader: "0x0000000000000000000000000000000000000bad"})
		require.ErrorIs(t, err, ErrNotAuthorized)
	})
}

func TestConcurrentMintRejected(t *testing.T) {
	f := newFixture(t)
	f.preparer.block = make(chan struct{})
	f.status.script = []statusStep{{resp: nftapi.TransactionStatusResponse{Status: nftapi.TxConfirmed, TokenID: big.NewInt(1)}}}

	done := make(chan error, 1)
	go func() {
		_, err := f.wf.Mint(context.Background(), Request{Trader: trader})
		done <- err
	}()
	require.Eventually(t, func() bool { return f.preparer.Calls() == 1 }, time.Second, time.Millisecond)
	assert.True(t, f.wf.IsMinting())
	assert.Equal(t, StatePreparing, f.wf.State())

	_, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	require.ErrorIs(t, err, ErrMintInProgress)
	assert.Equal(t, 1, f.preparer.Calls(), "second request makes no calls")

	close(f.preparer.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.signer.calls)

	f.preparer.block = nil
	f.status.script = append(f.status.script, statusStep{resp: nftapi.TransactionStatusResponse{Status: nftapi.TxConfirmed, TokenID: big.NewInt(2)}})
	_, err = f.wf.Mint(context.Background(), Request{Trader: trader})
	assert.NoError(t, err, "a new attempt may start once the previous one ended")
}

func TestCancelledWhilePollingTimesOut(t *testing.T) {
	f := newFixture(t)
	f.clock.err = context.Canceled

	res, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateTimedOut, res.Outcome)
	assert.Equal(t, 1, res.Polls)
}

func TestAuthorizationRecheckedBeforeSigning(t *testing.T) {
	f := newFixture(t)
	f.wf.confirmer = ConfirmFunc(func(context.Context, Confirmation) (bool, error) {
		f.auth.allowed = false
		return true, nil
	})

	_, err := f.wf.Mint(context.Background(), Request{Trader: trader})
	var submit *SubmissionError
	require.ErrorAs(t, err, &submit)
	require.ErrorIs(t, err, ErrNotAuthorized)
	assert.Equal(t, 0, f.signer.calls)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, Notice{}, Describe(nil))
	assert.Equal(t, LevelInfo, Describe(&wallet.ProviderError{Code: wallet.CodeRequestPending}).Level)
	assert.Equal(t, LevelWarning, Describe(wallet.ErrProviderMissing).Level)
	assert.Equal(t, LevelWarning, Describe(&TimeoutError{Hash: "0xabc", Attempts: 60}).Level)
	assert.Contains(t, Describe(&TimeoutError{Hash: "0xabc", Attempts: 60}).Message, "0xabc")
	assert.False(t, Describe(&nftapi.APIError{Op: "x", StatusCode: 400}).Retryable)
	assert.True(t, Describe(&nftapi.APIError{Op: "x", StatusCode: 503}).Retryable)

	n := DescribeResult(Result{Outcome: StateConfirmed, Record: &TransactionRecord{Hash: "0xfeed", TokenID: big.NewInt(5)}}, wallet.PolygonAmoy)
	assert.Equal(t, LevelSuccess, n.Level)
	assert.Contains(t, n.Message, "#5")
	assert.Contains(t, n.Message, "/tx/0xfeed")
}
