package okx

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dogContract = "0x903358faf7c6304afbd560e9e29b12ab1b8fddc5"
	lpContract  = "0x41027d3cacc14f35abd387b7350c05247e9ac646"
)

func TestFetchAddressBalances(t *testing.T) {
	t.Run("walks every page", func(t *testing.T) {
		var pages []string
		srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "XLAYER", q.Get("chainShortName"))
			assert.Equal(t, "token_20", q.Get("protocolType"))
			assert.Equal(t, "2", q.Get("limit"))
			assert.Equal(t, "0xabc", q.Get("address"))

			page := q.Get("page")
			pages = append(pages, page)
			switch page {
			case "1":
				writeOK(w, balancePage("1", "2",
					token(dogContract, "DOG", "100.5"),
					token("0x1111111111111111111111111111111111111111", "USDT", "3"),
				))
			default:
				writeOK(w, balancePage("2", "2", token(lpContract, "DOG-LP", "50")))
			}
		})

		c := newTestClient(t, srv.URL)
		balances, err := c.FetchAddressBalances(context.Background(), "0xabc")
		require.NoError(t, err)

		assert.Equal(t, []string{"1", "2"}, pages)
		require.Len(t, balances, 3)
		assert.Equal(t, "DOG", balances[0].Symbol)
		assert.True(t, decimal.RequireFromString("100.5").Equal(balances[0].Amount))
		assert.Equal(t, "100.5", balances[0].RawAmount)
		assert.Equal(t, lpContract, balances[2].ContractAddress)
	})

	t.Run("stale page number still advances", func(t *testing.T) {
		var pages []string
		srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
			pages = append(pages, r.URL.Query().Get("page"))
			// server keeps echoing page 1
			writeOK(w, balancePage("1", "3", token(dogContract, "DOG", "1")))
		})

		c := newTestClient(t, srv.URL)
		balances, err := c.FetchAddressBalances(context.Background(), "0xabc")
		require.NoError(t, err)
		assert.Equal(t, []string{"1", "2", "3"}, pages)
		assert.Len(t, balances, 3)
	})

	t.Run("address without tokens", func(t *testing.T) {
		srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeOK(w, balancePage("1", "1"))
		})

		c := newTestClient(t, srv.URL)
		balances, err := c.FetchAddressBalances(context.Background(), "0xabc")
		require.NoError(t, err)
		assert.NotNil(t, balances)
		assert.Empty(t, balances)
	})

	t.Run("empty data ends pagination", func(t *testing.T) {
		srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeOK(w, []any{})
		})

		c := newTestClient(t, srv.URL)
		balances, err := c.FetchAddressBalances(context.Background(), "0xabc")
		require.NoError(t, err)
		assert.NotNil(t, balances)
		assert.Empty(t, balances)
		assert.EqualValues(t, 1, srv.calls.Load())
	})

	t.Run("malformed amounts count as zero", func(t *testing.T) {
		srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeOK(w, balancePage("1", "1",
				token(dogContract, "DOG", "not-a-number"),
				token(lpContract, "", ""),
			))
		})

		c := newTestClient(t, srv.URL)
		balances, err := c.FetchAddressBalances(context.Background(), "0xabc")
		require.NoError(t, err)
		require.Len(t, balances, 2)
		assert.True(t, balances[0].Amount.IsZero())
		assert.Equal(t, "not-a-number", balances[0].RawAmount)
		assert.Equal(t, "UNKNOWN", balances[1].Symbol)
		assert.Equal(t, "0", balances[1].RawAmount)
	})

	t.Run("exhausted attempts are distinguishable from empty", func(t *testing.T) {
		srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		c := newTestClient(t, srv.URL)
		balances, err := c.FetchAddressBalances(context.Background(), "0xabc")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFetchFailed))
		assert.Contains(t, err.Error(), "HTTP 500")
		assert.Nil(t, balances)
		assert.EqualValues(t, 3, srv.calls.Load())
	})

	t.Run("recovers after transient failure", func(t *testing.T) {
		var n atomic.Int32
		srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
			if n.Add(1) == 1 {
				writeEnvelope(w, "50001", "service temporarily unavailable", nil)
				return
			}
			writeOK(w, balancePage("1", "1", token(dogContract, "DOG", "7")))
		})

		c := newTestClient(t, srv.URL)
		balances, err := c.FetchAddressBalances(context.Background(), "0xabc")
		require.NoError(t, err)
		require.Len(t, balances, 1)
		assert.EqualValues(t, 2, srv.calls.Load())
	})

	t.Run("failed page restarts the walk", func(t *testing.T) {
		var page2 atomic.Int32
		srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("page") == "1" {
				writeOK(w, balancePage("1", "2", token(dogContract, "DOG", "1")))
				return
			}
			if page2.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			writeOK(w, balancePage("2", "2", token(lpContract, "DOG-LP", "2")))
		})

		c := newTestClient(t, srv.URL)
		balances, err := c.FetchAddressBalances(context.Background(), "0xabc")
		require.NoError(t, err)
		assert.Len(t, balances, 2)
		assert.EqualValues(t, 4, srv.calls.Load())
	})

	t.Run("undecodable body is retried", func(t *testing.T) {
		srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>blocked</html>"))
		})

		c := newTestClient(t, srv.URL)
		_, err := c.FetchAddressBalances(context.Background(), "0xabc")
		assert.ErrorIs(t, err, ErrFetchFailed)
		assert.EqualValues(t, 3, srv.calls.Load())
	})

	t.Run("canceled context", func(t *testing.T) {
		srv := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeOK(w, balancePage("1", "1"))
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := newTestClient(t, srv.URL)
		_, err := c.FetchAddressBalances(ctx, "0xabc")
		assert.Error(t, err)
	})
}

func TestFindToken(t *testing.T) {
	balances := []TokenBalance{
		{ContractAddress: "0x903358FAF7C6304AFBD560E9E29B12AB1B8FDDC5", Symbol: "DOG", Amount: decimal.NewFromInt(42), RawAmount: "42"},
		{ContractAddress: "", Symbol: "NATIVE", Amount: decimal.NewFromInt(1), RawAmount: "1"},
	}

	tests := []struct {
		name       string
		contract   string
		wantSymbol string
		wantAmount int64
	}{
		{"exact", "0x903358FAF7C6304AFBD560E9E29B12AB1B8FDDC5", "DOG", 42},
		{"lowercase", dogContract, "DOG", 42},
		{"missing", lpContract, "UNKNOWN", 0},
		{"empty contract never matches", "", "UNKNOWN", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindToken(balances, tt.contract)
			assert.Equal(t, tt.wantSymbol, got.Symbol)
			assert.True(t, decimal.NewFromInt(tt.wantAmount).Equal(got.Amount))
		})
	}

	t.Run("default carries requested contract", func(t *testing.T) {
		got := FindToken(nil, lpContract)
		assert.Equal(t, lpContract, got.ContractAddress)
		assert.Equal(t, "0", got.RawAmount)
	})
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"1234.5678", "1234.5678"},
		{"0.000000000000000001", "0.000000000000000001"},
		{"", "0"},
		{"abc", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.True(t, decimal.RequireFromString(tt.want).Equal(ParseAmount(tt.in)))
		})
	}
}
