package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/ChinmayNoob/histkv/config"
	"github.com/ChinmayNoob/histkv/hist"
	"github.com/ChinmayNoob/histkv/store"
	"github.com/ChinmayNoob/histkv/storeutil"
)

func main() {
	fs := flag.NewFlagSet("histkv", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = usage
	cfgPath := fs.String("config", "", "YAML config file")
	backend := fs.String("backend", "", "memory, lsm or sqlite (overrides config)")
	path := fs.String("path", "", "lsm directory or sqlite file (overrides config)")
	name := fs.String("store", "default", "store name")
	ts := fs.Int64("ts", 0, "revision timestamp in ms for writes, read timestamp for get")

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	args := fs.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	cmd, args := args[0], args[1:]

	cfg := config.DefaultConfig()
	if *cfgPath != "" {
		loaded, err := config.LoadConfig(*cfgPath)
		if err != nil {
			fatal(err)
		}
		cfg = *loaded
	}
	cfg.Merge(&config.Config{Backend: *backend, Path: *path})

	logger, err := cfg.NewLogger()
	if err != nil {
		fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	sys, err := config.Open(&cfg, logger)
	if err != nil {
		fatal(err)
	}
	raw, err := sys.OpenStore(*name)
	if err != nil {
		fatal(multierr.Append(err, sys.Close()))
	}

	err = run(cmd, args, raw, *ts, logger)
	if cerr := sys.Close(); cerr != nil {
		logger.Warn("close failed", zap.Error(cerr))
	}
	if errors.Is(err, errNotFound) {
		fmt.Println("(not found)")
		os.Exit(1)
	}
	if err != nil {
		fatal(err)
	}
}

var errNotFound = errors.New("not found")

func run(cmd string, args []string, raw store.Store, ts int64, logger *zap.Logger) error {
	switch cmd {
	case "put":
		need(args, 2)
		w, err := hist.WriteTimestamp(ts).Open(raw)
		if err != nil {
			return err
		}
		if err := w.Put([]byte(args[0]), []byte(args[1])); err != nil {
			return err
		}
		fmt.Println("ok")
	case "get":
		need(args, 1)
		mode := hist.ReadHead()
		if ts != 0 {
			mode = hist.ReadTimestamp(ts)
		}
		r, err := mode.Open(raw)
		if err != nil {
			return err
		}
		v, ok, err := r.Get([]byte(args[0]))
		if err != nil {
			return err
		}
		if !ok {
			return errNotFound
		}
		fmt.Println(string(v))
	case "del":
		need(args, 1)
		w, err := hist.WriteTimestamp(ts).Open(raw)
		if err != nil {
			return err
		}
		if err := w.Remove([]byte(args[0])); err != nil {
			return err
		}
		fmt.Println("ok")
	case "history":
		need(args, 1)
		revs, err := hist.QueryHistory(raw, []byte(args[0]), 1, math.MaxInt64)
		if err != nil {
			return err
		}
		for _, r := range revs {
			if r.Deleted() {
				fmt.Printf("%d\t(deleted)\n", r.Timestamp)
				continue
			}
			fmt.Printf("%d\t%s\n", r.Timestamp, r.Value)
		}
	case "rollback":
		need(args, 1)
		cutoff, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad timestamp %q: %w", args[0], err)
		}
		opts := hist.DefaultRollbackOptions()
		opts.Logger = logger
		stats, err := hist.NewRollbackView(raw, opts).PerformRollback(cutoff)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d revisions, rewrote %d heads, removed %d heads\n",
			stats.RevisionsDeleted, stats.HeadsRewritten, stats.HeadsDeleted)
	case "keys":
		need(args, 0)
		keys, err := storeutil.ListStringKeys(hist.NewHeadReadView(raw))
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
	case "export":
		need(args, 1)
		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		n, err := storeutil.ExportStore(raw, f)
		if err = multierr.Append(err, f.Close()); err != nil {
			return err
		}
		fmt.Printf("exported %d records\n", n)
	case "import":
		need(args, 1)
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		n, err := storeutil.ImportStore(raw, f)
		if err != nil {
			return err
		}
		fmt.Printf("imported %d records\n", n)
	default:
		usage()
		os.Exit(2)
	}
	return nil
}

func need(args []string, n int) {
	if len(args) != n {
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  histkv [flags] put <key> <value>   (needs -ts)")
	fmt.Fprintln(os.Stderr, "  histkv [flags] get <key>           (head, or as of -ts)")
	fmt.Fprintln(os.Stderr, "  histkv [flags] del <key>           (needs -ts)")
	fmt.Fprintln(os.Stderr, "  histkv [flags] history <key>")
	fmt.Fprintln(os.Stderr, "  histkv [flags] rollback <ts>")
	fmt.Fprintln(os.Stderr, "  histkv [flags] keys")
	fmt.Fprintln(os.Stderr, "  histkv [flags] export <file>")
	fmt.Fprintln(os.Stderr, "  histkv [flags] import <file>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Flags:")
	fmt.Fprintln(os.Stderr, "  -config  YAML config file")
	fmt.Fprintln(os.Stderr, "  -backend memory, lsm or sqlite (default: lsm)")
	fmt.Fprintln(os.Stderr, "  -path    lsm directory or sqlite file (default: data)")
	fmt.Fprintln(os.Stderr, "  -store   store name (default: default)")
	fmt.Fprintln(os.Stderr, "  -ts      timestamp in milliseconds")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
