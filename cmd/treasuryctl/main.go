package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/bitfsorg/libtreasury-go/config"
	"github.com/bitfsorg/libtreasury-go/logger"
	"github.com/bitfsorg/libtreasury-go/metrics"
	"github.com/bitfsorg/libtreasury-go/revshare"
	"github.com/bitfsorg/libtreasury-go/treasury"
)

// scrapeLockTimeout bounds how long a scrape waits for a running command.
const scrapeLockTimeout = 2 * time.Second

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `usage: treasuryctl [flags] <command> [args]

commands:
  init                              write a default config to the data dir
  add <id> <bps> [removable-at]     register a share (admin)
  remove <id>...                    remove shares (self, or admin)
  increase <id> <delta>             raise a share's bps (admin)
  decrease <id> <delta>             lower a share's bps (self, or admin)
  lock <id> <removable-at>          change a share's removable-at time
  move <new-id>                     move the caller's share to a new identity
  approve <id>...                   let ids withdraw for the caller
  revoke <id>...                    revoke approvals granted by the caller
  deposit <amount>                  register revenue
  fund <amount>                     add funds directly to the shares
  withdraw <id>                     settle and pay out a share
  preview <id> [growth]             show what withdraw would pay
  show                              print the ledger
  metrics                           serve ledger gauges for prometheus until interrupted

flags:
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dataDirFlag := flag.String("data-dir", config.DefaultDataDir(), "Treasury data directory (or set TREASURY_DATA_DIR env var)")
	configFlag := flag.String("config", "", "Config file (default <data-dir>/config)")
	verboseFlag := flag.Bool("verbose", false, "Enable verbose (debug) logging")
	callerFlag := flag.String("caller", "", "Identity issuing the command (hex hash160 or address)")
	streamFlag := flag.String("stream", "", "Revenue stream (default: first configured stream)")
	failFastFlag := flag.Bool("fail-fast", false, "Fail instead of waiting when another process holds the ledger database or treasury lock")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		return errors.New("missing command")
	}
	cmd, args := args[0], args[1:]

	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = config.ConfigPath(*dataDirFlag)
	}
	if cmd == "init" {
		return initConfig(cfgPath, *dataDirFlag)
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil && !errors.Is(err, config.ErrConfigNotFound) {
		return err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return err
	}
	if flag.CommandLine.Changed("data-dir") {
		cfg.DataDir = *dataDirFlag
	}
	if *verboseFlag {
		cfg.LogLevel = "debug"
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return err
	}

	logOut := io.Writer(os.Stderr)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	log := logger.New(cfg.LogLevel, logOut)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cmd == "metrics" {
		return serveMetrics(ctx, log, cfg)
	}

	admins, err := cfg.AdminIdentities()
	if err != nil {
		return err
	}
	store, err := openStore(cfg.DataDir, revshare.BoltOptions{FailFast: *failFastFlag})
	if err != nil {
		return err
	}
	defer store.Close()

	tr, err := treasury.New(treasury.Config{
		Streams:    cfg.Streams,
		Admins:     admins,
		Store:      store,
		Transferer: &treasury.LogTransferer{Logger: log},
		Logger:     log,
		LockPath:   filepath.Join(cfg.DataDir, "treasury.lock"),
		FailFast:   *failFastFlag,
	})
	if err != nil {
		return err
	}

	c := &cli{
		tr:      tr,
		stream:  *streamFlag,
		mainnet: cfg.Network == "mainnet",
		out:     os.Stdout,
	}
	if c.stream == "" {
		c.stream = cfg.Streams[0]
	}
	if *callerFlag != "" {
		if c.caller, err = revshare.ParseIdentity(*callerFlag); err != nil {
			return fmt.Errorf("--caller: %w", err)
		}
	}

	return c.dispatch(ctx, cmd, args)
}

func initConfig(path, dataDir string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}
	cfg := config.DefaultConfig()
	cfg.DataDir = dataDir
	if err := config.SaveConfig(path, cfg); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}

// storePath returns the ledger database inside dataDir.
func storePath(dataDir string) string {
	return filepath.Join(dataDir, "ledgers.db")
}

func openStore(dataDir string, opts revshare.BoltOptions) (*revshare.BoltStore, error) {
	store, err := revshare.OpenBoltStoreWithOptions(storePath(dataDir), opts)
	if errors.Is(err, revshare.ErrStoreLocked) && !opts.FailFast {
		return nil, fmt.Errorf("%w (another treasuryctl is running)", err)
	}
	return store, err
}

// serveMetrics serves the ledger gauges of every configured stream. The
// ledger database is only opened while a scrape is being answered, so other
// commands keep working. Operation counters are per process and stay at zero
// here; they are meaningful when the treasury is embedded in a long-running
// host.
func serveMetrics(ctx context.Context, log *slog.Logger, cfg config.Config) error {
	if cfg.MetricsAddr == "" {
		return errors.New("metrics address is not configured (set metrics in the config or TREASURY_METRICS_ADDR)")
	}
	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	listener, err := net.Listen("tcp", cfg.MetricsAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.MetricsAddr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler(log, cfg.DataDir, cfg.Streams))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Info("prometheus metrics server listening", "address", listener.Addr().String())
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// metricsHandler refreshes the ledger gauges before every scrape. When the
// database is busy the previous values are served.
func metricsHandler(log *slog.Logger, dataDir string, streams []string) http.Handler {
	next := promhttp.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := refreshLedgerGauges(dataDir, streams); err != nil {
			log.Warn("refresh ledger gauges", "error", err)
		}
		next.ServeHTTP(w, r)
	})
}

func refreshLedgerGauges(dataDir string, streams []string) error {
	store, err := openStore(dataDir, revshare.BoltOptions{ReadOnly: true, Timeout: scrapeLockTimeout})
	if err != nil {
		return err
	}
	defer store.Close()

	for _, stream := range streams {
		st, err := store.GetLedger(stream)
		if errors.Is(err, revshare.ErrLedgerNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		l, err := revshare.Restore(revshare.Config{Name: stream}, st)
		if err != nil {
			return fmt.Errorf("restore %q: %w", stream, err)
		}
		metrics.ObserveLedger(stream, l.TotalBps(), len(l.Checkpoints()), l.Outstanding().Float64())
	}
	return nil
}

type cli struct {
	tr      *treasury.Treasury
	stream  string
	caller  revshare.Identity
	mainnet bool
	out     io.Writer
}

func (c *cli) requireCaller() error {
	if c.caller.IsZero() {
		return errors.New("--caller is required for this command")
	}
	return nil
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "add":
		return c.add(ctx, args)
	case "remove":
		return c.remove(ctx, args)
	case "increase", "decrease":
		return c.resize(ctx, cmd, args)
	case "lock":
		return c.lock(ctx, args)
	case "move":
		return c.move(ctx, args)
	case "approve", "revoke":
		return c.approve(ctx, cmd, args)
	case "deposit", "fund":
		return c.deposit(ctx, cmd, args)
	case "withdraw":
		return c.withdraw(ctx, args)
	case "preview":
		return c.preview(ctx, args)
	case "show":
		return c.show(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func wantArgs(args []string, lo, hi int) error {
	if len(args) < lo || (hi >= 0 && len(args) > hi) {
		return fmt.Errorf("wrong number of arguments (%d)", len(args))
	}
	return nil
}

func parseIDs(args []string) ([]revshare.Identity, error) {
	ids := make([]revshare.Identity, 0, len(args))
	for _, a := range args {
		id, err := revshare.ParseIdentity(a)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseBps(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid bps %q: %w", s, err)
	}
	return uint16(v), nil
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

func (c *cli) add(ctx context.Context, args []string) error {
	if err := wantArgs(args, 2, 3); err != nil {
		return err
	}
	if err := c.requireCaller(); err != nil {
		return err
	}
	id, err := revshare.ParseIdentity(args[0])
	if err != nil {
		return err
	}
	bps, err := parseBps(args[1])
	if err != nil {
		return err
	}
	var removableAt uint64
	if len(args) == 3 {
		if removableAt, err = strconv.ParseUint(args[2], 10, 64); err != nil {
			return fmt.Errorf("invalid removable-at %q: %w", args[2], err)
		}
	}
	err = c.tr.AddShares(ctx, c.stream, c.caller, []revshare.AccountShareParams{
		{Identity: id, Bps: bps, RemovableAt: removableAt},
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "added %s with %d bps to %s\n", id, bps, c.stream)
	return nil
}

func (c *cli) remove(ctx context.Context, args []string) error {
	if err := wantArgs(args, 1, -1); err != nil {
		return err
	}
	if err := c.requireCaller(); err != nil {
		return err
	}
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	if err := c.tr.RemoveShares(ctx, c.stream, c.caller, ids); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "removed %d share(s) from %s\n", len(ids), c.stream)
	return nil
}

func (c *cli) resize(ctx context.Context, cmd string, args []string) error {
	if err := wantArgs(args, 2, 2); err != nil {
		return err
	}
	if err := c.requireCaller(); err != nil {
		return err
	}
	id, err := revshare.ParseIdentity(args[0])
	if err != nil {
		return err
	}
	delta, err := parseBps(args[1])
	if err != nil {
		return err
	}
	var bps uint16
	if cmd == "increase" {
		bps, err = c.tr.IncreaseBps(ctx, c.stream, c.caller, id, delta)
	} else {
		bps, err = c.tr.DecreaseBps(ctx, c.stream, c.caller, id, delta)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s now holds %d bps\n", id, bps)
	return nil
}

func (c *cli) lock(ctx context.Context, args []string) error {
	if err := wantArgs(args, 2, 2); err != nil {
		return err
	}
	if err := c.requireCaller(); err != nil {
		return err
	}
	id, err := revshare.ParseIdentity(args[0])
	if err != nil {
		return err
	}
	removableAt, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid removable-at %q: %w", args[1], err)
	}
	return c.tr.UpdateRemovableAt(ctx, c.stream, c.caller, id, removableAt)
}

func (c *cli) move(ctx context.Context, args []string) error {
	if err := wantArgs(args, 1, 1); err != nil {
		return err
	}
	if err := c.requireCaller(); err != nil {
		return err
	}
	newID, err := revshare.ParseIdentity(args[0])
	if err != nil {
		return err
	}
	if err := c.tr.ChangeAddress(ctx, c.stream, c.caller, newID, nil); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "moved share of %s to %s\n", c.caller, newID)
	return nil
}

func (c *cli) approve(ctx context.Context, cmd string, args []string) error {
	if err := wantArgs(args, 1, -1); err != nil {
		return err
	}
	if err := c.requireCaller(); err != nil {
		return err
	}
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	if cmd == "approve" {
		return c.tr.Approve(ctx, c.stream, c.caller, ids)
	}
	return c.tr.Revoke(ctx, c.stream, c.caller, ids)
}

func (c *cli) deposit(ctx context.Context, cmd string, args []string) error {
	if err := wantArgs(args, 1, 1); err != nil {
		return err
	}
	amount, err := parseAmount(args[0])
	if err != nil {
		return err
	}
	var allocated *uint256.Int
	if cmd == "deposit" {
		allocated, err = c.tr.Deposit(ctx, c.stream, amount)
	} else {
		allocated, err = c.tr.FundShares(ctx, c.stream, amount)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "allocated %s of %s to shares\n", allocated.Dec(), amount.Dec())
	return nil
}

func (c *cli) withdraw(ctx context.Context, args []string) error {
	if err := wantArgs(args, 1, 1); err != nil {
		return err
	}
	if err := c.requireCaller(); err != nil {
		return err
	}
	id, err := revshare.ParseIdentity(args[0])
	if err != nil {
		return err
	}
	p, err := c.tr.Withdraw(ctx, c.stream, c.caller, id)
	if p != nil {
		fmt.Fprintf(c.out, "payout %s: %s to %s (finished=%t)\n", p.ID, p.Amount.Dec(), c.address(id), p.Finished)
	}
	return err
}

func (c *cli) preview(ctx context.Context, args []string) error {
	if err := wantArgs(args, 1, 2); err != nil {
		return err
	}
	id, err := revshare.ParseIdentity(args[0])
	if err != nil {
		return err
	}
	var owed *uint256.Int
	if len(args) == 2 {
		growth, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		owed, err = c.tr.Predict(ctx, c.stream, id, growth)
		if err != nil {
			return err
		}
	} else if owed, err = c.tr.Preview(ctx, c.stream, id); err != nil {
		return err
	}
	fmt.Fprintln(c.out, owed.Dec())
	return nil
}

func (c *cli) show(ctx context.Context) error {
	st, err := c.tr.Snapshot(ctx, c.stream)
	if err != nil {
		return err
	}
	var outstanding uint256.Int
	outstanding.SetBytes32(st.Outstanding[:])

	fmt.Fprintf(c.out, "stream:      %s\n", st.Name)
	fmt.Fprintf(c.out, "outstanding: %s\n", outstanding.Dec())
	fmt.Fprintf(c.out, "remainder:   %d\n", st.Remainder)

	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "\nINDEX\tTOTAL BPS\tBALANCE")
	for i, cp := range st.Checkpoints {
		fmt.Fprintf(w, "%d\t%d\t%s\n", i, cp.TotalBps, cp.Balance.Dec())
	}
	fmt.Fprintln(w, "\nACCOUNT\tBPS\tSTATUS\tREMOVABLE AT\tCURSOR")
	for _, e := range st.Accounts {
		status := "active"
		switch {
		case e.Share.IsFinished():
			status = "finished"
		case !e.Share.IsActive():
			status = "removed"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\n", c.address(e.Identity), e.Share.Bps, status,
			e.Share.RemovableAt, e.Share.LastBalanceCheckIndex)
	}
	return w.Flush()
}

func (c *cli) address(id revshare.Identity) string {
	addr, err := id.Address(c.mainnet)
	if err != nil {
		return id.String()
	}
	return addr
}
