package mintstatus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/50zero/pm-trader-art/internal/address"
	"github.com/50zero/pm-trader-art/internal/event"
	"github.com/50zero/pm-trader-art/internal/nftapi"
	"github.com/50zero/pm-trader-art/internal/wallet"
)

type Fetcher interface {
	MintStatus(ctx context.Context, account address.Account) (nftapi.MintStatus, error)
}

// SessionView is the part of wallet.Session the service reads.
type SessionView interface {
	State() wallet.State
	CanMint(target address.Account) bool
	Target() wallet.Network
}

// Display is the mint control's state. Values are in priority order.
type Display int

const (
	AlreadyMinted Display = iota + 1
	NotConnected
	WrongAccountOrNetwork
	Eligible
)

func (d Display) String() string {
	switch d {
	case AlreadyMinted:
		return "already_minted"
	case NotConnected:
		return "not_connected"
	case WrongAccountOrNetwork:
		return "wrong_account_or_network"
	case Eligible:
		return "eligible"
	}
	return "unknown"
}

type View struct {
	Display Display
	Enabled bool
	Message string
}

// Event is published after each fetch, successful or not.
type Event struct {
	Account address.Account
	Status  nftapi.MintStatus
	Err     error
}

type Service struct {
	fetcher Fetcher
	session SessionView
	logger  *slog.Logger
	feed    event.Feed[Event]
}

func NewService(fetcher Fetcher, session SessionView, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		fetcher: fetcher,
		session: session,
		logger:  logger.With("component", "mint_status"),
	}
}

func (s *Service) Subscribe(fn func(Event)) func() {
	return s.feed.Subscribe(fn)
}

// FetchStatus makes one request and does not retry. Errors are *nftapi.APIError and leave
// the caller free to show no status and try again later.
func (s *Service) FetchStatus(ctx context.Context, account address.Account) (nftapi.MintStatus, error) {
	status, err := s.fetcher.MintStatus(ctx, account)
	if err != nil {
		s.logger.Warn("mint status unavailable", "account", account.Short(), "error", err)
		s.feed.Send(Event{Account: account, Err: err})
		return nftapi.MintStatus{}, fmt.Errorf("fetch mint status: %w", err)
	}
	s.feed.Send(Event{Account: account, Status: status})
	return status, nil
}

// Resolve decides the mint control's state for the mandala of viewed.
// status may be nil when it could not be fetched.
func (s *Service) Resolve(viewed address.Account, status *nftapi.MintStatus) View {
	return Resolve(viewed, status, s.session.State(), s.session.CanMint(viewed), s.session.Target())
}

// Resolve is the display decision without a session dependency.
func Resolve(viewed address.Account, status *nftapi.MintStatus, state wallet.State, canMint bool, target wallet.Network) View {
	switch {
	case status != nil && status.HasMinted:
		msg := "Mandala already minted"
		if status.TokenID != nil {
			msg = fmt.Sprintf("Mandala already minted as token #%s", status.TokenID.String())
		}
		return View{Display: AlreadyMinted, Message: msg}
	case !state.Connected:
		return View{Display: NotConnected, Message: "Connect your wallet to mint this mandala"}
	case !canMint:
		msg := fmt.Sprintf("Only %s can mint this mandala, on %s", viewed.Short(), target.Name)
		if state.Account.Equal(viewed) {
			msg = fmt.Sprintf("Switch your wallet to %s to mint", target.Name)
		}
		return View{Display: WrongAccountOrNetwork, Message: msg}
	}

	msg := "Mint your mandala"
	if status != nil && status.EstimatedCost != "" {
		msg = fmt.Sprintf("Mint your mandala (%s)", status.EstimatedCost)
	}
	return View{Display: Eligible, Enabled: true, Message: msg}
}
