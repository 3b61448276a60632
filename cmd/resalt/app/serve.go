package app

import (
	"context"
	goerrors "errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/resalt-dev/resalt/pkg/api"
	v1 "github.com/resalt-dev/resalt/pkg/api/v1"
	"github.com/resalt-dev/resalt/pkg/auth"
	"github.com/resalt-dev/resalt/pkg/config"
	"github.com/resalt-dev/resalt/pkg/directory"
	"github.com/resalt-dev/resalt/pkg/groups"
	"github.com/resalt-dev/resalt/pkg/ingest"
	"github.com/resalt-dev/resalt/pkg/logger"
	"github.com/resalt-dev/resalt/pkg/minions"
	"github.com/resalt-dev/resalt/pkg/models"
	"github.com/resalt-dev/resalt/pkg/pipeline"
	"github.com/resalt-dev/resalt/pkg/salt"
	"github.com/resalt-dev/resalt/pkg/scheduler"
	"github.com/resalt-dev/resalt/pkg/sessions"
	"github.com/resalt-dev/resalt/pkg/storage"
	"github.com/resalt-dev/resalt/pkg/storage/memory"
	"github.com/resalt-dev/resalt/pkg/storage/sqlite"
	"github.com/resalt-dev/resalt/pkg/updates"
	"github.com/resalt-dev/resalt/pkg/versions"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the resalt control plane",
	Long: `Start the HTTP API, the master event ingestion loop, and the background
scheduler. Configuration comes from flags and RESALT_-prefixed environment
variables; flags take precedence.`,
	RunE: runServe,
}

// Schedules for the recurring maintenance jobs.
const (
	sessionSweepSchedule = "@every 1h"
	updateCheckSchedule  = "@hourly"
)

// First-boot seed data. The superadmin group name is deliberately not a
// valid operator-chosen name so it cannot collide with one.
const (
	superadminGroupName  = "$superadmin"
	superadminGroupPerms = `[{"@resalt": ["admin.superadmin"]}]`
	defaultAdminUsername = "admin"
)

func init() {
	config.SetDefaults()

	flags := serveCmd.Flags()
	flags.String("address", ":8000", "Address to listen on")
	flags.String("database-driver", "sqlite", "Storage backend (sqlite or memory)")
	flags.String("database-path", "resalt.db", "SQLite database file")
	flags.Int64("session-lifespan", 604800, "Session lifespan in seconds")
	flags.String("salt-api-url", "https://localhost:8080", "Base URL of the master's salt-api")
	flags.Bool("salt-api-skip-verify", false, "Skip TLS verification against salt-api")
	flags.String("salt-api-token-file", "", "File holding the shared service token")

	for key, flag := range map[string]string{
		config.KeyHTTPAddress:       "address",
		config.KeyDatabaseDriver:    "database-driver",
		config.KeyDatabasePath:      "database-path",
		config.KeySessionLifespan:   "session-lifespan",
		config.KeySaltAPIURL:        "salt-api-url",
		config.KeySaltAPISkipVerify: "salt-api-skip-verify",
		config.KeySaltAPITokenFile:  "salt-api-token-file",
	} {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			logger.Fatalf("Failed to bind %s flag: %v", flag, err)
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	info := versions.GetVersionInfo()
	logger.Infof("Starting resalt %s", info.Version)
	if cfg.SaltAPIToken == "" {
		logger.Warn("No service token configured; event ingestion cannot authenticate against the master")
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warnf("Failed to close store: %v", err)
		}
	}()

	master := salt.NewAPIClient(cfg.SaltAPIURL, cfg.SaltAPITLSSkipVerify)
	broadcaster := pipeline.NewBroadcaster()
	groupSvc := groups.New(store)
	materializer := minions.NewMaterializer(store)

	var dir sessions.DirectoryAuthenticator
	var reconciler *directory.Reconciler
	if cfg.LDAP.Enabled {
		reconciler = directory.NewReconciler(store, directory.NewLDAPClient(cfg.LDAP), groupSvc)
		dir = reconciler
		logger.Infof("Directory authentication enabled against %s", cfg.LDAP.URL)
	}

	coordinator := sessions.New(store, master, groupSvc, dir, sessions.Options{
		Lifespan:     cfg.SessionLifespan,
		ServiceToken: cfg.SaltAPIToken,
	})

	if err := bootstrap(ctx, store, groupSvc); err != nil {
		return err
	}

	loop := ingest.New(master, store, materializer, broadcaster, cfg.SaltAPIToken)
	updatesCache := updates.NewCache(updates.NewClient(cfg.UpdatesURL, info.Version))

	sched := scheduler.New()
	if err := scheduleJobs(sched, cfg, coordinator, reconciler, updatesCache); err != nil {
		return err
	}

	deps := v1.Deps{
		Store:              store,
		Sessions:           coordinator,
		Master:             master,
		Groups:             groupSvc,
		Materializer:       materializer,
		Broadcaster:        broadcaster,
		Updates:            updatesCache,
		Connection:         loop,
		AuthForwardEnabled: cfg.AuthForwardEnabled,
		AuthForwardHeader:  cfg.AuthForwardHeader,
		LDAPEnabled:        cfg.LDAP.Enabled,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return api.Serve(ctx, cfg.HTTPAddress, deps)
	})
	group.Go(func() error {
		return loop.Run(ctx)
	})
	group.Go(func() error {
		return sched.Run(ctx)
	})
	group.Go(func() error {
		broadcaster.Run(ctx)
		return nil
	})
	if cfg.UpdatesEnabled {
		group.Go(func() error {
			if err := updatesCache.Refresh(ctx); err != nil {
				logger.Warnf("Update check failed: %v", err)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil && !goerrors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// openStore builds the storage backend named by the configuration. The
// sqlite path applies pending migrations before returning.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.DatabaseDriver {
	case "memory":
		logger.Warn("Using the in-memory store; all state is lost on restart")
		return memory.New(), nil
	default:
		db, err := sqlite.Open(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("opening database %s: %w", cfg.DatabasePath, err)
		}
		logger.Infof("Using sqlite store at %s", cfg.DatabasePath)
		return sqlite.New(db), nil
	}
}

// scheduleJobs registers the recurring maintenance work: session sweeping,
// the update advisory refresh, and directory synchronization.
func scheduleJobs(
	sched *scheduler.Scheduler,
	cfg *config.Config,
	coordinator *sessions.Coordinator,
	reconciler *directory.Reconciler,
	cache *updates.Cache,
) error {
	err := sched.Add("session-sweep", sessionSweepSchedule, func(ctx context.Context) error {
		n, err := coordinator.SweepExpired(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Infof("Swept %d expired sessions", n)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if cfg.UpdatesEnabled {
		if err := sched.Add("update-check", updateCheckSchedule, cache.Refresh); err != nil {
			return err
		}
	}

	if reconciler != nil {
		spec := fmt.Sprintf("@every %s", cfg.LDAP.SyncInterval)
		if err := sched.Add("directory-sync", spec, reconciler.Sync); err != nil {
			return err
		}
	}
	return nil
}

// bootstrap seeds the superadmin group and, when the store holds no users
// yet, a first admin account whose generated password is printed once.
func bootstrap(ctx context.Context, store storage.Store, groupSvc *groups.Service) error {
	group, err := findGroupByName(ctx, store, superadminGroupName)
	if err != nil {
		return err
	}
	if group == nil {
		if group, err = groupSvc.Create(ctx, superadminGroupName, superadminGroupPerms, nil); err != nil {
			return fmt.Errorf("creating superadmin group: %w", err)
		}
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		return fmt.Errorf("counting users: %w", err)
	}
	if counts.Users > 0 {
		return nil
	}

	password := uuid.NewString()
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}
	user := models.User{
		ID:       models.NewUserID(),
		Username: defaultAdminUsername,
		Password: &hash,
		Perms:    "[]",
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("creating admin user: %w", err)
	}
	if err := groupSvc.AddUser(ctx, group.ID, user.ID); err != nil {
		return fmt.Errorf("granting admin superadmin: %w", err)
	}

	logger.Infof("Created default user %q with password %q", defaultAdminUsername, password)
	return nil
}

func findGroupByName(ctx context.Context, store storage.Store, name string) (*models.PermissionGroup, error) {
	all, err := store.ListGroups(ctx, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("listing groups: %w", err)
	}
	for i := range all {
		if all[i].Name == name {
			return &all[i], nil
		}
	}
	return nil, nil
}
