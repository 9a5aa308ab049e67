// Command sitectl provisions sites and runs the notification throttles
// outside the server, e.g. from cron when the worker is disabled.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/DukeRupert/sitetier/internal"
	"github.com/DukeRupert/sitetier/internal/domain"
	"github.com/DukeRupert/sitetier/internal/jobs"
	"github.com/DukeRupert/sitetier/internal/repository"
	"github.com/DukeRupert/sitetier/internal/service"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 12

const usage = `usage: sitectl <command> [flags]

commands:
  provision      create a site with its owner and tier
  notify         run the welcome, video limit and free trial notifications
  hash-password  read a password on stdin and print its bcrypt hash
`

var errUsage = errors.New("invalid usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "hash-password":
		return hashPassword(stdin, stdout)
	case "provision":
		return withDatabase(ctx, func(env *environment) error {
			return provision(ctx, env, args[1:], stdout)
		})
	case "notify":
		return withDatabase(ctx, func(env *environment) error {
			return notify(ctx, env, args[1:])
		})
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	}
	return fmt.Errorf("unknown command %q: %w", args[0], errUsage)
}

// hashPassword reads one line from stdin so the password stays out of the
// shell history and process list.
func hashPassword(stdin io.Reader, stdout io.Writer) error {
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return errors.New("password must not be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(hash))
	return err
}

// environment holds what the database-backed commands share.
type environment struct {
	cfg           *internal.Config
	queries       *repository.Queries
	logger        *slog.Logger
	notifications service.NotificationService
	tiers         service.TierService
	sites         service.SiteService
}

func withDatabase(ctx context.Context, fn func(*environment) error) error {
	cfg, err := internal.NewCommandConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel).With("command", "sitectl")

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := internal.RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	mailer, err := internal.NewMailer(cfg, logger)
	if err != nil {
		return fmt.Errorf("mailer initialization failed: %w", err)
	}

	queries := repository.New(db)
	return fn(&environment{
		cfg:           cfg,
		queries:       queries,
		logger:        logger,
		notifications: service.NewNotificationService(queries, mailer, logger),
		tiers:         service.NewTierService(queries, logger),
		sites:         service.NewSiteService(db, queries, logger),
	})
}

func provision(ctx context.Context, env *environment, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("provision", flag.ContinueOnError)
	var params domain.ProvisionSiteParams
	fs.StringVar(&params.Name, "name", "", "site name")
	fs.StringVar(&params.Domain, "domain", "", "site domain")
	fs.StringVar(&params.TierSlug, "tier", "basic", "initial tier slug")
	fs.BoolVar(&params.EnforcePayments, "enforce-payments", true, "require a subscription for paid tiers")
	fs.StringVar(&params.OwnerEmail, "owner-email", "", "first owner's email address")
	fs.StringVar(&params.OwnerName, "owner-name", "", "first owner's name")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	site, err := env.sites.Provision(ctx, params)
	if err != nil {
		return fmt.Errorf("provision: %s", domain.ErrorMessage(err))
	}

	env.logger.Info("Site provisioned", "site_id", site.ID, "domain", site.Domain)
	_, err = fmt.Fprintln(stdout, site.ID)
	return err
}

func notify(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("notify", flag.ContinueOnError)
	siteFlag := fs.String("site", "", "site ID (defaults to SITE_ID)")
	all := fs.Bool("all", false, "run for every site")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	siteIDs, err := notifyTargets(ctx, env, *siteFlag, *all)
	if err != nil {
		return err
	}

	var failed int
	for _, siteID := range siteIDs {
		if err := jobs.CheckNotifications(ctx, env.tiers, env.notifications, env.logger, siteID); err != nil {
			env.logger.Error("Notification check failed", "site_id", siteID, "error", err)
			failed++
		}
	}

	env.logger.Info("Notifications checked", "sites", len(siteIDs), "failures", failed)
	if failed > 0 {
		return fmt.Errorf("%d notification runs failed", failed)
	}
	return nil
}

func notifyTargets(ctx context.Context, env *environment, siteFlag string, all bool) ([]uuid.UUID, error) {
	if all {
		ids, err := env.queries.ListSiteIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list sites: %w", err)
		}
		return ids, nil
	}

	if siteFlag != "" {
		id, err := uuid.Parse(siteFlag)
		if err != nil {
			return nil, fmt.Errorf("-site must be a UUID: %w", errUsage)
		}
		return []uuid.UUID{id}, nil
	}

	if env.cfg.SiteID == uuid.Nil {
		return nil, fmt.Errorf("no site given: pass -site, -all or set SITE_ID: %w", errUsage)
	}
	return []uuid.UUID{env.cfg.SiteID}, nil
}
