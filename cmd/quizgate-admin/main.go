// Command quizgate-admin is the operator tool for a quizgate deployment.
//
// It opens the same SQLite state file and Redis instance the embedding
// application uses and drives the engine's token and audit operations from
// the shell.
//
// Usage:
//
//	quizgate-admin [flags] <command> [args]
//
// Commands:
//
//	generate          issue one token and print its shareable URL
//	batch <n>         issue n tokens
//	list              list tokens (active by default, -all for everything)
//	revoke <token>    revoke a token
//	cleanup           drop expired tokens from the local cache
//	stats             print token statistics
//	report            print the security report
//	audit-export      write the audit trail as JSON to stdout
//	hash-password     derive an admin credential hash from -password/-salt
//
// Flags:
//
//	-db <path>       SQLite state file (default quizgate.db)
//	-redis <addr>    Redis address; empty runs local-only
//	-base-url <url>  shareable link base
//	-ttl <days>      token lifetime for generate/batch
//	-all             include expired and used tokens in list
//
// Configuration falls back to the QUIZGATE_* environment variables the
// engine reads (QUIZGATE_SECRET, QUIZGATE_ADMIN_USERNAME,
// QUIZGATE_ADMIN_HASH, QUIZGATE_ADMIN_SALT, QUIZGATE_BASE_URL).
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	goredis "github.com/redis/go-redis/v9"
	_ "modernc.org/sqlite"

	quizgate "github.com/twnoc/quizgate"
	"github.com/twnoc/quizgate/internal/localstore"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "quizgate-admin:", err)
		os.Exit(1)
	}
}

type options struct {
	dbPath   string
	redis    string
	baseURL  string
	ttlDays  int
	all      bool
	password string
	salt     string
}

func run(args []string) error {
	fs := flag.NewFlagSet("quizgate-admin", flag.ContinueOnError)

	var opts options
	fs.StringVar(&opts.dbPath, "db", "quizgate.db", "SQLite state file")
	fs.StringVar(&opts.redis, "redis", "", "Redis address (empty runs local-only)")
	fs.StringVar(&opts.baseURL, "base-url", "", "shareable link base URL")
	fs.IntVar(&opts.ttlDays, "ttl", 0, "token lifetime in days (0 uses the engine default)")
	fs.BoolVar(&opts.all, "all", false, "include expired and used tokens")
	fs.StringVar(&opts.password, "password", "", "password for hash-password")
	fs.StringVar(&opts.salt, "salt", "", "salt for hash-password")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}

	command := fs.Arg(0)

	// hash-password needs no engine or stores.
	if command == "hash-password" {
		if opts.password == "" || opts.salt == "" {
			return fmt.Errorf("hash-password requires -password and -salt")
		}
		fmt.Println(quizgate.HashPassword(opts.password, opts.salt))
		return nil
	}

	ctx := context.Background()
	engine, cleanup, err := buildEngine(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()

	switch command {
	case "generate":
		return generate(ctx, engine, opts, 1)
	case "batch":
		n, err := strconv.Atoi(fs.Arg(1))
		if err != nil || n <= 0 {
			return fmt.Errorf("batch requires a positive count")
		}
		return generate(ctx, engine, opts, n)
	case "list":
		return list(ctx, engine, opts.all)
	case "revoke":
		if fs.Arg(1) == "" {
			return fmt.Errorf("revoke requires a token")
		}
		return revoke(ctx, engine, fs.Arg(1))
	case "cleanup":
		removed, err := engine.CleanupExpiredTokens(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d expired tokens\n", removed)
		return nil
	case "stats":
		return stats(ctx, engine)
	case "report":
		return report(ctx, engine)
	case "audit-export":
		return engine.AuditExport(ctx, os.Stdout)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func buildEngine(ctx context.Context, opts options) (*quizgate.Engine, func(), error) {
	db, err := sql.Open("sqlite", opts.dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open state file: %w", err)
	}

	// The engine reads QUIZGATE_BASE_URL when it builds its config.
	if opts.baseURL != "" {
		os.Setenv("QUIZGATE_BASE_URL", opts.baseURL)
	}

	local := localstore.NewSQLite(db)
	if err := local.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate state file: %w", err)
	}

	builder := quizgate.New().
		WithLocalStore(local).
		WithAuditDB(db)

	var rdb *goredis.Client
	if opts.redis != "" {
		rdb = goredis.NewClient(&goredis.Options{
			Addr:        opts.redis,
			DialTimeout: 5 * time.Second,
		})
		builder = builder.WithRedis(rdb)
	}

	engine, err := builder.Build()
	if err != nil {
		db.Close()
		if rdb != nil {
			rdb.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		engine.Close()
		if rdb != nil {
			rdb.Close()
		}
		db.Close()
	}
	return engine, cleanup, nil
}

func generate(ctx context.Context, engine *quizgate.Engine, opts options, count int) error {
	for i := 0; i < count; i++ {
		tok, synced, err := engine.IssueToken(ctx, quizgate.TokenOptions{
			TTLDays:   opts.ttlDays,
			CreatedBy: "quizgate-admin",
		})
		if err != nil {
			return err
		}

		fmt.Println(engine.TokenShareableURL(tok.Token))
		if !synced {
			fmt.Fprintln(os.Stderr, "warning: token not synced to remote store")
		}
	}
	return nil
}

func list(ctx context.Context, engine *quizgate.Engine, all bool) error {
	tokens, err := engine.ListTokens(ctx, all)
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOKEN\tCREATED\tEXPIRES\tSTATE\tDESCRIPTION")
	for _, tok := range tokens {
		state := "active"
		switch {
		case tok.Expired(now):
			state = "expired"
		case tok.Used() && !tok.AllowReuse:
			state = "used"
		case tok.Used():
			state = "used (reusable)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			tok.Token,
			time.UnixMilli(tok.CreatedAt).Format(time.DateOnly),
			time.UnixMilli(tok.ExpiresAt).Format(time.DateOnly),
			state,
			tok.Description,
		)
	}
	return w.Flush()
}

func revoke(ctx context.Context, engine *quizgate.Engine, token string) error {
	found, err := engine.RemoveToken(ctx, token)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("token not found")
	}
	fmt.Println("revoked")
	return nil
}

func stats(ctx context.Context, engine *quizgate.Engine) error {
	s, err := engine.TokenStatistics(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("total: %d\nactive: %d\nused: %d\nexpired: %d\n", s.Total, s.Active, s.Used, s.Expired)
	return nil
}

func report(ctx context.Context, engine *quizgate.Engine) error {
	r, err := engine.SecurityReport(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "sealed storage\t%t\n", r.SealedStorage)
	fmt.Fprintf(w, "remote configured\t%t\n", r.RemoteConfigured)
	fmt.Fprintf(w, "remote reachable\t%t\n", r.RemoteReachable)
	fmt.Fprintf(w, "audit trail\t%t\n", r.AuditEnabled)
	fmt.Fprintf(w, "totp enabled\t%t\n", r.TOTPEnabled)
	fmt.Fprintf(w, "lockout armed\t%t\n", r.LoginLockoutArmed)
	fmt.Fprintf(w, "metrics\t%t\n", r.MetricsEnabled)
	fmt.Fprintf(w, "tokens\t%d active / %d total\n", r.TokenStats.Active, r.TokenStats.Total)
	return w.Flush()
}
