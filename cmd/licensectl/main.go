package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/ernyzasxash/clientt/internal/adminclient"
	"github.com/ernyzasxash/clientt/internal/config"
	"github.com/ernyzasxash/clientt/internal/security"
	"github.com/ernyzasxash/clientt/internal/storage"
)

const usage = `Usage: licensectl [flags] <command> [args]

Local key file (storage.data_dir):
  keys add <key>                authorize a key
  keys remove <key>             revoke a key
  keys list                     list authorized keys

Remote (admin API, needs the admin token):
  connections                   list connections
  failed                        list failed logins
  attempts [limit]              list logged check attempts
  bans                          list bans
  ban <type> <value> [reason]   ban an ip, asn, key or device
  unban <type> <value>          remove a ban
  export <file.xlsx|.csv>       export connections, failed logins and bans

Flags:
`

// cli holds the parsed global flags and output streams
type cli struct {
	cfg      *config.Config
	server   string
	token    string
	fullKeys bool
	withLog  bool
	out      io.Writer
	logger   *slog.Logger
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("licensectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	configPath := fs.String("config", "", "path to config.yaml")
	dataDir := fs.String("data", "", "data directory, overrides storage.data_dir")
	server := fs.String("server", "", "license server URL (default http://<server.host>:<server.port>)")
	token := fs.String("token", "", "admin token, overrides security.admin_token")
	fullKeys := fs.Bool("full-keys", false, "do not mask license keys in output")
	withAttempts := fs.Bool("attempts", false, "include the attempts log in exports")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "licensectl: %v\n", err)
		return 1
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *token != "" {
		cfg.Security.AdminToken = *token
	}

	c := &cli{
		cfg:      cfg,
		server:   *server,
		token:    cfg.Security.AdminToken,
		fullKeys: *fullKeys,
		withLog:  *withAttempts,
		out:      stdout,
		logger:   slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}
	if c.server == "" {
		c.server = defaultServerURL(cfg)
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := c.dispatch(ctx, fs.Arg(0), fs.Args()[1:]); err != nil {
		fmt.Fprintf(stderr, "licensectl: %v\n", err)
		if _, ok := err.(usageError); ok {
			return 2
		}
		return 1
	}
	return 0
}

// usageError is a malformed command line
type usageError string

func (e usageError) Error() string { return string(e) }

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "keys":
		return c.keys(ctx, args)
	case "connections":
		return c.connections(ctx)
	case "failed":
		return c.failed(ctx)
	case "attempts":
		limit := 0
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return usageError("attempts: limit must be a non-negative integer")
			}
			limit = n
		}
		return c.attempts(ctx, limit)
	case "bans":
		return c.bans(ctx)
	case "ban":
		if len(args) < 2 {
			return usageError("usage: ban <ip|asn|key|device> <value> [reason]")
		}
		reason := ""
		if len(args) > 2 {
			reason = args[2]
		}
		return c.ban(ctx, args[0], args[1], reason)
	case "unban":
		if len(args) != 2 {
			return usageError("usage: unban <ip|asn|key|device> <value>")
		}
		return c.unban(ctx, args[0], args[1])
	case "export":
		if len(args) != 1 {
			return usageError("usage: export <file.xlsx|file.csv>")
		}
		return c.export(ctx, args[0])
	default:
		return usageError(fmt.Sprintf("unknown command %q", cmd))
	}
}

func (c *cli) keys(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("usage: keys add|remove|list")
	}
	store, err := storage.NewFileStore(c.cfg.Storage.DataDir, storage.FileStoreOptions{Logger: c.logger})
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		keys, err := store.ListKeys(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(c.out, k)
		}
		return nil
	case "add", "remove":
		if len(args) != 2 {
			return usageError(fmt.Sprintf("usage: keys %s <key>", args[0]))
		}
		key, err := security.NormalizeLicenseKey(args[1])
		if err != nil {
			return err
		}
		if args[0] == "add" {
			added, err := store.AddKey(ctx, key)
			if err != nil {
				return err
			}
			c.printResult(added, "added", "already exists")
			return nil
		}
		removed, err := store.RemoveKey(ctx, key)
		if err != nil {
			return err
		}
		c.printResult(removed, "removed", "not found")
		return nil
	default:
		return usageError(fmt.Sprintf("unknown keys command %q", args[0]))
	}
}

func (c *cli) printResult(ok bool, yes, no string) {
	if ok {
		fmt.Fprintln(c.out, yes)
		return
	}
	fmt.Fprintln(c.out, no)
}

func (c *cli) client() *adminclient.Client {
	return adminclient.New(c.server, c.token, nil, c.logger)
}

// defaultServerURL points at the configured listen address, with wildcard
// hosts replaced by loopback
func defaultServerURL(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
}
