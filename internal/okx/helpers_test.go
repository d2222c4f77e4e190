package okx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var fixedNow = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

type fakeServer struct {
	*httptest.Server
	calls atomic.Int32
}

// newFakeServer wraps handler with signature verification
func newFakeServer(t *testing.T, handler http.HandlerFunc) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.calls.Add(1)

		ts := r.Header.Get("OK-ACCESS-TIMESTAMP")
		want := Sign([]byte(testSecret), ts, r.Method, r.URL.RequestURI(), "")
		if r.Header.Get("OK-ACCESS-SIGN") != want || r.Header.Get("OK-ACCESS-KEY") != "test-key" || r.Header.Get("OK-ACCESS-PASSPHRASE") != "test-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(Options{
		BaseURL:     baseURL,
		APIKey:      "test-key",
		SecretKey:   testSecret,
		Passphrase:  "test-pass",
		PageSize:    2,
		MaxAttempts: 3,
		PageDelay:   0,
		RetryDelay:  time.Millisecond,
		Now:         func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return c
}

func writeOK(w http.ResponseWriter, data any) {
	writeEnvelope(w, "0", "", data)
}

func writeEnvelope(w http.ResponseWriter, code, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": data})
}

func balancePage(page, totalPage string, tokens ...map[string]string) []map[string]any {
	list := make([]map[string]string, 0, len(tokens))
	list = append(list, tokens...)
	return []map[string]any{{
		"page":      page,
		"limit":     "2",
		"totalPage": totalPage,
		"tokenList": list,
	}}
}

func token(contract, symbol, amount string) map[string]string {
	return map[string]string{
		"tokenContractAddress": contract,
		"symbol":               symbol,
		"holdingAmount":        amount,
	}
}
