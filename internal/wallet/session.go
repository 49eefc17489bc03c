package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/50zero/pm-trader-art/internal/address"
	"github.com/50zero/pm-trader-art/internal/event"
)

// State is a snapshot of the session. Account is set iff Connected.
type State struct {
	Connected bool
	Account   address.Account
	ChainID   ChainID
}

type EventKind int

const (
	EventConnected EventKind = iota + 1
	EventAccountChanged
	// EventChainChanged invalidates any contract bindings or status derived from the old chain;
	// consumers reset their view when they see it.
	EventChainChanged
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventAccountChanged:
		return "account_changed"
	case EventChainChanged:
		return "chain_changed"
	case EventDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Event is published after every session state change.
type Event struct {
	Kind  EventKind
	State State
}

// Session is the single view of the connected wallet.
// Its lock is never held across a provider call, since those can wait on the user indefinitely.
type Session struct {
	provider Provider
	target   Network
	logger   *slog.Logger
	feed     event.Feed[Event]

	subscribeOnce sync.Once

	mu          sync.Mutex
	state       State
	connecting  bool
	unsubscribe func()
}

// NewSession builds a disconnected session. provider may be nil when the host has no wallet.
func NewSession(provider Provider, target Network, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		provider: provider,
		target:   target,
		logger:   logger.With("component", "wallet_session"),
	}
}

func (s *Session) Target() Network { return s.target }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for session events.
func (s *Session) Subscribe(fn func(Event)) func() {
	return s.feed.Subscribe(fn)
}

// Init listens for provider pushes and adopts an already-authorized account, if any.
func (s *Session) Init(ctx context.Context) error {
	if s.provider == nil {
		return ErrProviderMissing
	}
	s.listen()

	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("list accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil
	}
	chain, err := s.provider.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	s.connectAs(accounts[0], chain)
	return nil
}

// Connect asks the wallet for account access, then for the target network.
// If only the network step fails the session stays connected: the account is returned
// together with an error wrapping ErrNetworkSwitchFailed.
func (s *Session) Connect(ctx context.Context) (address.Account, error) {
	if s.provider == nil {
		return "", ErrProviderMissing
	}
	s.listen()

	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return "", ErrRequestPending
	}
	s.connecting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("request accounts: %w", ErrUserRejected)
	}
	chain, err := s.provider.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("read chain id: %w", err)
	}

	account := s.connectAs(accounts[0], chain)
	s.logger.Info("wallet connected", "account", account.Short(), "chain_id", chain)

	if err := s.EnsureCorrectNetwork(ctx); err != nil {
		s.logger.Warn("wallet connected on wrong network", "error", err)
		return account, err
	}
	return account, nil
}

// Disconnect forgets the account. Calling it while disconnected does nothing.
func (s *Session) Disconnect() {
	s.reset()
}

// EnsureCorrectNetwork switches the wallet to the target chain, adding the chain first
// when the wallet reports it as unrecognized.
func (s *Session) EnsureCorrectNetwork(ctx context.Context) error {
	if s.provider == nil {
		return ErrProviderMissing
	}

	current, err := s.provider.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("%w: read chain id: %w", ErrNetworkSwitchFailed, err)
	}
	if current == s.target.ChainID {
		s.setChain(current)
		return nil
	}

	s.logger.Info("requesting network switch", "from", current, "to", s.target.ChainID)
	err = s.provider.SwitchChain(ctx, s.target.ChainID)
	if IsUnrecognizedChain(err) {
		s.logger.Info("network unknown to wallet, requesting add", "chain_id", s.target.ChainID, "name", s.target.Name)
		err = s.provider.AddChain(ctx, s.target)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetworkSwitchFailed, err)
	}
	s.setChain(s.target.ChainID)
	return nil
}

// CanMint is the only authorization check for minting: connected, as target, on the target chain.
func (s *Session) CanMint(target address.Account) bool {
	st := s.State()
	return st.Connected && st.Account.Equal(target) && st.ChainID == s.target.ChainID
}

// OnTargetNetwork reports whether the last known chain is the target chain.
func (s *Session) OnTargetNetwork() bool {
	return s.State().ChainID == s.target.ChainID
}

// Close stops listening to the provider.
func (s *Session) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (s *Session) listen() {
	s.subscribeOnce.Do(func() {
		unsub := s.provider.Subscribe(s.handleProviderEvent)
		s.mu.Lock()
		s.unsubscribe = unsub
		s.mu.Unlock()
	})
}

func (s *Session) handleProviderEvent(ev ProviderEvent) {
	s.logger.Debug("provider event", "kind", ev.Kind.String())
	switch ev.Kind {
	case AccountsChanged:
		if len(ev.Accounts) == 0 {
			s.reset()
			return
		}
		s.mu.Lock()
		connected, chain := s.state.Connected, s.state.ChainID
		s.mu.Unlock()
		// Only Connect and Init open a session; a push while disconnected is ignored.
		if !connected {
			s.logger.Debug("ignoring account change while disconnected")
			return
		}
		s.connectAs(ev.Accounts[0], chain)
	case ChainChanged:
		s.setChain(ev.ChainID)
	case ProviderDisconnected:
		s.reset()
	}
}

func (s *Session) connectAs(raw address.Account, chain ChainID) address.Account {
	account := address.Normalize(string(raw))

	s.mu.Lock()
	prev := s.state
	s.state = State{Connected: true, Account: account, ChainID: chain}
	next := s.state
	s.mu.Unlock()

	switch {
	case !prev.Connected:
		s.feed.Send(Event{Kind: EventConnected, State: next})
	case !prev.Account.Equal(account):
		s.feed.Send(Event{Kind: EventAccountChanged, State: next})
	}
	if prev.Connected && prev.ChainID != chain {
		s.feed.Send(Event{Kind: EventChainChanged, State: next})
	}
	return account
}

func (s *Session) setChain(chain ChainID) {
	s.mu.Lock()
	changed := s.state.ChainID != chain
	s.state.ChainID = chain
	next := s.state
	s.mu.Unlock()

	if changed {
		s.feed.Send(Event{Kind: EventChainChanged, State: next})
	}
}

func (s *Session) reset() {
	s.mu.Lock()
	was := s.state.Connected
	s.state = State{}
	s.mu.Unlock()

	if was {
		s.logger.Info("wallet disconnected")
		s.feed.Send(Event{Kind: EventDisconnected})
	}
}
