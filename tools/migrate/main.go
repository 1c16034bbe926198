package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/config"
	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/libs/runtime"
	"github.com/md-rashed-zaman/lessonbook/migrations"
)

func main() {
	var (
		dbURL   = flag.String("database-url", config.String("DATABASE_URL", ""), "postgres connection string")
		timeout = flag.Duration("timeout", 2*time.Minute, "overall deadline")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: migrate [flags] up|down|status\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}
	if *dbURL == "" {
		fatal("DATABASE_URL is required")
	}

	logger := runtime.NewLogger("migrate")
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.Open(ctx, *dbURL, db.WithApplicationName("lessonbook-migrate"))
	if err != nil {
		fatal(err.Error())
	}
	defer pool.Close()

	migrator, err := db.NewMigrator(pool, migrations.FS, migrations.Dir, logger)
	if err != nil {
		fatal(err.Error())
	}

	switch cmd {
	case "up":
		err = migrator.Up(ctx)
	case "down":
		err = migrator.Down(ctx)
	case "status":
		err = migrator.Status(ctx)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err.Error())
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
