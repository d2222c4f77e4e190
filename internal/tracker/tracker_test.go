package tracker

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixise/dog-tracker/internal/config"
	"github.com/matrixise/dog-tracker/internal/okx"
	"github.com/matrixise/dog-tracker/internal/snapshot"
	"github.com/matrixise/dog-tracker/internal/transfers"
)

const (
	dogToken = "0x903358faf7c6304afbd560e9e29b12ab1b8fddc5"
	poolAddr = "0x41027D3CaCc14F35Abd387B7350c05247e9Ac646"

	aliceA = "0xaaaa000000000000000000000000000000000001"
	aliceB = "0xaaaa000000000000000000000000000000000002"
	bobA   = "0xbbbb000000000000000000000000000000000001"
	carolA = "0xcccc000000000000000000000000000000000001"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func bal(contract, symbol, amount string) okx.TokenBalance {
	return okx.TokenBalance{ContractAddress: contract, Symbol: symbol, Amount: d(amount), RawAmount: amount}
}

type fakeClient struct {
	mu        sync.Mutex
	balances  map[string][]okx.TokenBalance
	failing   map[string]bool
	lpInfo    okx.TokenInfo
	lookupErr error
	txs       []okx.Transaction
	lookups   int
	fetches   map[string]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		balances: map[string][]okx.TokenBalance{
			// upper-case contract checks the case-insensitive match
			aliceA:   {bal(strings.ToUpper(dogToken), "DOG", "100"), bal(poolAddr, "DOG-LP", "5")},
			aliceB:   {},
			bobA:     {bal(dogToken, "DOG", "20")},
			carolA:   {bal(dogToken, "DOG", "1"), bal(strings.ToLower(poolAddr), "DOG-LP", "2.5")},
			poolAddr: {bal(dogToken, "DOG", "100")},
		},
		failing: map[string]bool{},
		lpInfo:  okx.TokenInfo{ContractAddress: poolAddr, Symbol: "DOG-LP", Decimals: 18, TotalSupply: d("10")},
		fetches: map[string]int{},
	}
}

func (f *fakeClient) FetchAddressBalances(ctx context.Context, address string) ([]okx.TokenBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches[address]++
	if f.failing[address] {
		return nil, fmt.Errorf("%w: Address balance fetch after 3 attempts: HTTP 502", okx.ErrFetchFailed)
	}
	return f.balances[address], nil
}

func (f *fakeClient) LookupToken(ctx context.Context, contract string) (okx.TokenInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.lpInfo, f.lookupErr
}

func (f *fakeClient) FetchTransactions(ctx context.Context, address string) ([]okx.Transaction, error) {
	return f.txs, nil
}

func alice() config.User {
	return config.User{Nickname: "alice", Addresses: []string{aliceA, aliceB}, InitialBalanceTotal: d("100")}
}

func newTracker(t *testing.T, client *fakeClient, users []config.User) (*Tracker, *snapshot.Store) {
	t.Helper()
	store := snapshot.NewStore(filepath.Join(t.TempDir(), "balance-data.json"))
	tr := New(Options{
		Client:        client,
		Store:         store,
		LoadUsers:     func() ([]config.User, error) { return users, nil },
		TokenContract: dogToken,
		PoolAddress:   poolAddr,
		LPToken:       poolAddr,
	})
	return tr, store
}

func TestRunSingleUserTwoAddresses(t *testing.T) {
	client := newFakeClient()
	tr, store := newTracker(t, client, []config.User{alice()})

	require.NoError(t, tr.Run(context.Background()))

	snap, err := store.Load()
	require.NoError(t, err)
	assert.True(t, snap.Success)
	assert.NotEmpty(t, snap.Data.RunID)
	assert.Equal(t, 1, snap.Data.TotalUsers)
	assert.Equal(t, 2, snap.Data.TotalAddresses)

	require.Len(t, snap.Data.Users, 1)
	u := snap.Data.Users[0]
	require.Len(t, u.CurrentBalances, 2)
	assert.True(t, d("100").Equal(u.CurrentBalances[0].Balance))
	assert.True(t, u.CurrentBalances[1].Balance.IsZero())

	require.Len(t, u.PoolHoldings, 2)
	assert.True(t, d("50").Equal(u.PoolHoldings[0].Holdings))
	assert.True(t, d("0.5").Equal(u.PoolHoldings[0].Share))
	assert.True(t, u.PoolHoldings[1].Holdings.IsZero())

	assert.True(t, d("100").Equal(u.TotalBalance))
	assert.True(t, d("50").Equal(u.TotalPoolHoldings))
	assert.True(t, d("150").Equal(u.TotalHoldings))
	assert.True(t, d("50").Equal(u.Percentage))
	assert.False(t, u.Degraded)
	assert.Empty(t, u.Errors)

	require.NotNil(t, snap.Data.Pool)
	assert.True(t, d("10").Equal(snap.Data.Pool.LPTotalSupply))
	assert.True(t, d("100").Equal(snap.Data.Pool.PoolReserve))
	assert.Empty(t, snap.Data.Pool.Error)
}

func TestRunResolvesPoolOnce(t *testing.T) {
	client := newFakeClient()
	users := []config.User{
		alice(),
		{Nickname: "bob", Addresses: []string{bobA}, InitialBalanceTotal: d("10")},
		{Nickname: "carol", Addresses: []string{carolA}},
	}
	tr, store := newTracker(t, client, users)

	require.NoError(t, tr.Run(context.Background()))

	assert.Equal(t, 1, client.lookups)
	assert.Equal(t, 1, client.fetches[poolAddr])

	snap, err := store.Latest()
	require.NoError(t, err)
	assert.True(t, d("121").Equal(snap.Data.TotalBalance))
	assert.True(t, d("75").Equal(snap.Data.TotalPoolHoldings))
	assert.True(t, d("196").Equal(snap.Data.TotalHoldings))

	assert.True(t, d("100").Equal(snap.Data.Users[1].Percentage), "bob doubled his baseline")
	assert.True(t, snap.Data.Users[2].Percentage.IsZero(), "no baseline")
}

func TestRunDegradedUserDoesNotAbort(t *testing.T) {
	client := newFakeClient()
	client.failing[bobA] = true
	users := []config.User{
		{Nickname: "bob", Addresses: []string{bobA}, InitialBalanceTotal: d("10")},
		{Nickname: "carol", Addresses: []string{carolA}},
	}
	tr, store := newTracker(t, client, users)

	require.NoError(t, tr.Run(context.Background()))

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Data.DegradedUsers)

	bob := snap.Data.Users[0]
	assert.True(t, bob.Degraded)
	require.Len(t, bob.Errors, 1)
	assert.Contains(t, bob.Errors[0], bobA)
	assert.NotEmpty(t, bob.CurrentBalances[0].Error)
	assert.True(t, bob.TotalHoldings.IsZero())
	assert.True(t, d("-100").Equal(bob.Percentage))

	carol := snap.Data.Users[1]
	assert.False(t, carol.Degraded)
	assert.True(t, d("1").Equal(carol.TotalBalance))
	assert.True(t, d("25").Equal(carol.TotalPoolHoldings))
}

func TestRunPoolUnavailable(t *testing.T) {
	client := newFakeClient()
	client.lookupErr = okx.ErrFetchFailed
	tr, store := newTracker(t, client, []config.User{alice()})

	require.NoError(t, tr.Run(context.Background()))

	snap, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, snap.Data.Pool)
	assert.NotEmpty(t, snap.Data.Pool.Error)

	u := snap.Data.Users[0]
	assert.True(t, u.TotalPoolHoldings.IsZero())
	assert.True(t, d("100").Equal(u.TotalBalance))
	assert.False(t, u.Degraded)
	require.NotEmpty(t, u.Errors)
	assert.Contains(t, u.Errors[0], "pool unavailable")
	for _, h := range u.PoolHoldings {
		assert.Equal(t, "pool unavailable", h.Error)
	}
}

func TestRunWithoutPool(t *testing.T) {
	client := newFakeClient()
	store := snapshot.NewStore(filepath.Join(t.TempDir(), "balance-data.json"))
	tr := New(Options{
		Client:        client,
		Store:         store,
		LoadUsers:     func() ([]config.User, error) { return []config.User{alice()}, nil },
		TokenContract: dogToken,
	})

	require.NoError(t, tr.Run(context.Background()))

	snap, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, snap.Data.Pool)
	assert.Zero(t, client.lookups)
	assert.Empty(t, snap.Data.Users[0].PoolHoldings)
	assert.True(t, d("0").Equal(snap.Data.Users[0].Percentage))
}

func TestRunWithSeparatePoolSource(t *testing.T) {
	client := newFakeClient()
	onChain := newFakeClient()
	onChain.lpInfo.TotalSupply = d("20")
	onChain.balances[poolAddr] = []okx.TokenBalance{bal(dogToken, "DOG", "400")}

	store := snapshot.NewStore(filepath.Join(t.TempDir(), "balance-data.json"))
	tr := New(Options{
		Client:        client,
		PoolSource:    onChain,
		Store:         store,
		LoadUsers:     func() ([]config.User, error) { return []config.User{alice()}, nil },
		TokenContract: dogToken,
		PoolAddress:   poolAddr,
		LPToken:       poolAddr,
	})

	require.NoError(t, tr.Run(context.Background()))

	assert.Zero(t, client.lookups)
	assert.Zero(t, client.fetches[poolAddr])
	assert.Equal(t, 1, onChain.lookups)

	snap, err := store.Load()
	require.NoError(t, err)
	// 5 LP of 20 backed by 400 DOG
	assert.True(t, d("100").Equal(snap.Data.Users[0].TotalPoolHoldings))
}

func TestRunIsRepeatable(t *testing.T) {
	client := newFakeClient()
	tr, store := newTracker(t, client, []config.User{alice(), {Nickname: "carol", Addresses: []string{carolA}}})

	require.NoError(t, tr.Run(context.Background()))
	first, err := store.Load()
	require.NoError(t, err)

	require.NoError(t, tr.Run(context.Background()))
	second, err := store.Load()
	require.NoError(t, err)

	assert.NotEqual(t, first.Data.RunID, second.Data.RunID)
	assert.True(t, first.Data.TotalBalance.Equal(second.Data.TotalBalance))
	assert.True(t, first.Data.TotalPoolHoldings.Equal(second.Data.TotalPoolHoldings))
	for i := range first.Data.Users {
		assert.True(t, first.Data.Users[i].Percentage.Equal(second.Data.Users[i].Percentage))
	}
}

func TestRunDelays(t *testing.T) {
	var slept []time.Duration
	client := newFakeClient()
	store := snapshot.NewStore(filepath.Join(t.TempDir(), "balance-data.json"))
	tr := New(Options{
		Client: client,
		Store:  store,
		LoadUsers: func() ([]config.User, error) {
			return []config.User{alice(), {Nickname: "bob", Addresses: []string{bobA}}}, nil
		},
		TokenContract: dogToken,
		AddressDelay:  500 * time.Millisecond,
		UserDelay:     time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})

	require.NoError(t, tr.Run(context.Background()))
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, slept)
}

func TestRunErrors(t *testing.T) {
	t.Run("users file", func(t *testing.T) {
		store := snapshot.NewStore(filepath.Join(t.TempDir(), "balance-data.json"))
		tr := New(Options{
			Client:    newFakeClient(),
			Store:     store,
			LoadUsers: func() ([]config.User, error) { return nil, errors.New("bad json") },
		})

		err := tr.Run(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad json")

		_, err = store.Load()
		assert.ErrorIs(t, err, snapshot.ErrNoSnapshot)
	})

	t.Run("shutdown mid-run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		store := snapshot.NewStore(filepath.Join(t.TempDir(), "balance-data.json"))
		tr := New(Options{
			Client:        newFakeClient(),
			Store:         store,
			LoadUsers:     func() ([]config.User, error) { return []config.User{alice()}, nil },
			TokenContract: dogToken,
			AddressDelay:  time.Second,
			Sleep: func(ctx context.Context, d time.Duration) error {
				cancel()
				return ctx.Err()
			},
		})

		err := tr.Run(ctx)
		assert.ErrorIs(t, err, context.Canceled)

		_, err = store.Load()
		assert.ErrorIs(t, err, snapshot.ErrNoSnapshot)
	})
}

func TestRunIncludesTransfers(t *testing.T) {
	client := newFakeClient()
	client.txs = []okx.Transaction{
		{TxID: "1", MethodID: transfers.AddLiquidityMethodID, From: aliceB, Amount: "12"},
	}
	store := snapshot.NewStore(filepath.Join(t.TempDir(), "balance-data.json"))
	tr := New(Options{
		Client:           client,
		Store:            store,
		LoadUsers:        func() ([]config.User, error) { return []config.User{alice()}, nil },
		TokenContract:    dogToken,
		PoolAddress:      poolAddr,
		LPToken:          poolAddr,
		IncludeTransfers: true,
	})

	require.NoError(t, tr.Run(context.Background()))

	snap, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, snap.Data.Transfers)
	require.Len(t, snap.Data.Transfers.UserDetails, 1)
	assert.Equal(t, "alice", snap.Data.Transfers.UserDetails[0].Nickname)
	assert.Nil(t, snap.Data.Transfers.PoolTransfers)
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		current  string
		baseline string
		want     string
	}{
		{"150", "100", "50"},
		{"100", "100", "0"},
		{"50", "100", "-50"},
		{"0", "100", "-100"},
		{"10", "0", "0"},
		{"10", "-5", "0"},
		{"1", "3", "-66.6666666666666667"},
	}

	for _, tt := range tests {
		t.Run(tt.current+"/"+tt.baseline, func(t *testing.T) {
			got := Percentage(d(tt.current), d(tt.baseline))
			assert.True(t, d(tt.want).Equal(got), "got %s", got)
		})
	}
}
