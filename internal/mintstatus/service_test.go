package mintstatus

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/50zero/pm-trader-art/internal/address"
	"github.com/50zero/pm-trader-art/internal/nftapi"
	"github.com/50zero/pm-trader-art/internal/wallet"
)

const viewed = address.Account("0xabcdef0000000000000000000000000000000001")

type stubFetcher struct {
	status nftapi.MintStatus
	err    error
	calls  int
}

func (f *stubFetcher) MintStatus(context.Context, address.Account) (nftapi.MintStatus, error) {
	f.calls++
	return f.status, f.err
}

type stubSession struct {
	state   wallet.State
	canMint bool
}

func (s stubSession) State() wallet.State          { return s.state }
func (s stubSession) CanMint(address.Account) bool { return s.canMint }
func (s stubSession) Target() wallet.Network       { return wallet.PolygonAmoy }

func TestFetchStatusPublishes(t *testing.T) {
	f := &stubFetcher{status: nftapi.MintStatus{EstimatedCost: "~0.001 MATIC"}}
	svc := NewService(f, stubSession{}, nil)

	var got []Event
	svc.Subscribe(func(e Event) { got = append(got, e) })

	status, err := svc.FetchStatus(context.Background(), viewed)
	require.NoError(t, err)
	assert.Equal(t, "~0.001 MATIC", status.EstimatedCost)
	require.Len(t, got, 1)
	assert.NoError(t, got[0].Err)
}

func TestFetchStatusErrorIsRecoverable(t *testing.T) {
	apiErr := &nftapi.APIError{Op: "mint-status", StatusCode: 503, Message: "down"}
	f := &stubFetcher{err: apiErr}
	svc := NewService(f, stubSession{}, nil)

	_, err := svc.FetchStatus(context.Background(), viewed)
	var target *nftapi.APIError
	require.True(t, errors.As(err, &target))
	assert.Equal(t, 1, f.calls, "no retry")
}

func TestResolvePriority(t *testing.T) {
	connected := wallet.State{Connected: true, Account: viewed, ChainID: wallet.PolygonAmoy.ChainID}
	minted := &nftapi.MintStatus{HasMinted: true, TokenID: big.NewInt(3)}
	fresh := &nftapi.MintStatus{EstimatedCost: "~0.002 MATIC"}

	cases := []struct {
		name    string
		status  *nftapi.MintStatus
		session stubSession
		want    Display
		enabled bool
	}{
		{"minted beats disconnected", minted, stubSession{}, AlreadyMinted, false},
		{"minted beats eligible", minted, stubSession{state: connected, canMint: true}, AlreadyMinted, false},
		{"disconnected", fresh, stubSession{}, NotConnected, false},
		{"disconnected without status", nil, stubSession{}, NotConnected, false},
		{"wrong account", fresh, stubSession{state: wallet.State{Connected: true, Account: "0x1111111111111111111111111111111111111111"}}, WrongAccountOrNetwork, false},
		{"eligible", fresh, stubSession{state: connected, canMint: true}, Eligible, true},
		{"eligible without status", nil, stubSession{state: connected, canMint: true}, Eligible, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := NewService(&stubFetcher{}, tc.session, nil)
			view := svc.Resolve(viewed, tc.status)
			assert.Equal(t, tc.want, view.Display)
			assert.Equal(t, tc.enabled, view.Enabled)
			assert.NotEmpty(t, view.Message)
		})
	}
}

func TestResolveMessages(t *testing.T) {
	view := Resolve(viewed, &nftapi.MintStatus{HasMinted: true, TokenID: big.NewInt(12)}, wallet.State{}, false, wallet.PolygonAmoy)
	assert.Contains(t, view.Message, "#12")

	wrongChain := wallet.State{Connected: true, Account: viewed, ChainID: 1}
	view = Resolve(viewed, nil, wrongChain, false, wallet.PolygonAmoy)
	assert.Contains(t, view.Message, "Polygon Amoy")

	view = Resolve(viewed, &nftapi.MintStatus{EstimatedCost: "~0.002 MATIC"}, wallet.State{Connected: true, Account: viewed}, true, wallet.PolygonAmoy)
	assert.Contains(t, view.Message, "~0.002 MATIC")
}
