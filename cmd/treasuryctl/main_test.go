package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitfsorg/libtreasury-go/revshare"
	"github.com/bitfsorg/libtreasury-go/treasury"
)

func testCLI(t *testing.T) (*cli, *bytes.Buffer) {
	t.Helper()
	admin := strings.Repeat("ad", 20)
	adminID, err := revshare.ParseIdentity(admin)
	require.NoError(t, err)

	tr, err := treasury.New(treasury.Config{
		Streams: []string{"deposits"},
		Admins:  []revshare.Identity{adminID},
		Store:   revshare.NewMemLedgerStore(),
	})
	require.NoError(t, err)

	var out bytes.Buffer
	return &cli{tr: tr, stream: "deposits", caller: adminID, out: &out}, &out
}

func TestParseHelpers(t *testing.T) {
	bps, err := parseBps("2500")
	require.NoError(t, err)
	assert.Equal(t, uint16(2500), bps)
	_, err = parseBps("70000")
	assert.Error(t, err)

	amount, err := parseAmount("1000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000", amount.Dec())
	_, err = parseAmount("-1")
	assert.Error(t, err)

	assert.NoError(t, wantArgs([]string{"a"}, 1, 1))
	assert.Error(t, wantArgs(nil, 1, -1))
	assert.Error(t, wantArgs([]string{"a", "b"}, 1, 1))
}

func TestDispatch_DepositAndWithdraw(t *testing.T) {
	ctx := context.Background()
	c, out := testCLI(t)
	alice := strings.Repeat("a1", 20)

	require.NoError(t, c.dispatch(ctx, "add", []string{alice, "5000"}))
	require.NoError(t, c.dispatch(ctx, "deposit", []string{"1000"}))
	assert.Contains(t, out.String(), "allocated 500 of 1000 to shares")

	out.Reset()
	require.NoError(t, c.dispatch(ctx, "preview", []string{alice}))
	assert.Equal(t, "500\n", out.String())

	out.Reset()
	require.NoError(t, c.dispatch(ctx, "preview", []string{alice, "1000"}))
	assert.Equal(t, "1000\n", out.String())

	c.caller, _ = revshare.ParseIdentity(alice)
	out.Reset()
	require.NoError(t, c.dispatch(ctx, "withdraw", []string{alice}))
	assert.Contains(t, out.String(), ": 500 to ")

	out.Reset()
	require.NoError(t, c.dispatch(ctx, "show", nil))
	assert.Contains(t, out.String(), "stream:      deposits")
	assert.Contains(t, out.String(), "active")
}

func TestDispatch_Errors(t *testing.T) {
	ctx := context.Background()
	c, _ := testCLI(t)

	assert.Error(t, c.dispatch(ctx, "bogus", nil))
	assert.Error(t, c.dispatch(ctx, "add", []string{"nobody", "10"}))
	assert.Error(t, c.dispatch(ctx, "deposit", nil))

	c.caller = revshare.ZeroIdentity
	err := c.dispatch(ctx, "withdraw", []string{strings.Repeat("a1", 20)})
	assert.ErrorContains(t, err, "--caller")
}

func TestOpenStore_FailFast(t *testing.T) {
	dir := t.TempDir()
	held, err := openStore(dir, revshare.BoltOptions{})
	require.NoError(t, err)

	start := time.Now()
	_, err = openStore(dir, revshare.BoltOptions{FailFast: true})
	assert.ErrorIs(t, err, revshare.ErrStoreLocked)
	assert.Less(t, time.Since(start), time.Second)

	require.NoError(t, held.Close())
	store, err := openStore(dir, revshare.BoltOptions{FailFast: true})
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestMetricsHandler_ReadsStorePerScrape(t *testing.T) {
	dir := t.TempDir()
	store, err := openStore(dir, revshare.BoltOptions{})
	require.NoError(t, err)
	l, err := revshare.New(revshare.Config{Name: "scraped"})
	require.NoError(t, err)
	id, err := revshare.ParseIdentity(strings.Repeat("a1", 20))
	require.NoError(t, err)
	require.NoError(t, l.AddAccountShares([]revshare.AccountShareParams{{Identity: id, Bps: 5000}}))
	_, err = l.ProcessBalance(uint256.NewInt(1000))
	require.NoError(t, err)
	require.NoError(t, store.PutLedger(l.State()))
	require.NoError(t, store.Close())

	h := metricsHandler(slog.New(slog.DiscardHandler), dir, []string{"scraped", "absent"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `treasury_total_bps{stream="scraped"} 5000`)
	assert.Contains(t, body, `treasury_checkpoints{stream="scraped"} 1`)
	assert.Contains(t, body, `treasury_outstanding{stream="scraped"} 500`)
	assert.NotContains(t, body, `stream="absent"`)

	// The scrape released the database.
	store, err = openStore(dir, revshare.BoltOptions{FailFast: true})
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestMetricsHandler_BusyStoreStillServes(t *testing.T) {
	dir := t.TempDir()
	held, err := openStore(dir, revshare.BoltOptions{})
	require.NoError(t, err)
	defer held.Close()

	assert.ErrorIs(t, refreshLedgerGauges(dir, []string{"deposits"}), revshare.ErrStoreLocked)

	h := metricsHandler(slog.New(slog.DiscardHandler), dir, []string{"deposits"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
