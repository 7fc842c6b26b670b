// Package cli is the sessionctl command tree. Each command opens the
// configured token store, verifies any stored session and then acts through a
// session.Coordinator.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jrsteele09/go-tenant-session/apiclient"
	"github.com/jrsteele09/go-tenant-session/internal/config"
	"github.com/jrsteele09/go-tenant-session/internal/logging"
	"github.com/jrsteele09/go-tenant-session/session"
	"github.com/jrsteele09/go-tenant-session/tokenstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type flags struct {
	apiURL    string
	store     string
	storeFile string
	json      bool
	verbose   bool
}

type app struct {
	out    io.Writer
	flags  flags
	cfg    config.Config
	logger zerolog.Logger

	coordinator *session.Coordinator
	closers     []func() error
}

// Execute runs sessionctl with the process arguments
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return NewRootCommand(os.Stdout).ExecuteContext(ctx)
}

// NewRootCommand builds the command tree writing results to out
func NewRootCommand(out io.Writer) *cobra.Command {
	a := &app{out: out}
	root := &cobra.Command{
		Use:   "sessionctl",
		Short: "Multi-tenant session client",
		Long: `sessionctl signs in to the tenant API, keeps the session in a token store
and manages which tenant the session acts as.

Environment Variables:
  API_BASE_URL      API root (default: http://localhost:8000/api)
  STORAGE_BACKEND   memory, file or redis (default: file)
  STORAGE_FILE      session file for the file backend
  REDIS_ADDR        Redis address for the redis backend`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}
	root.PersistentFlags().StringVar(&a.flags.apiURL, "api-url", "", "API root (overrides API_BASE_URL)")
	root.PersistentFlags().StringVar(&a.flags.store, "store", "", "token store backend: memory, file or redis (overrides STORAGE_BACKEND)")
	root.PersistentFlags().StringVar(&a.flags.storeFile, "store-file", "", "session file (overrides STORAGE_FILE)")
	root.PersistentFlags().BoolVar(&a.flags.json, "json", false, "output JSON instead of text")
	root.PersistentFlags().BoolVarP(&a.flags.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		a.loginCommand(),
		a.signupCommand(),
		a.logoutCommand(),
		a.statusCommand(),
		a.bootstrapCommand(),
		a.tenantsCommand(),
		a.healthCommand(),
		a.versionCommand(),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	a.cfg = cfg
	level := cfg.GetLogLevel()
	if a.flags.verbose {
		level = zerolog.DebugLevel.String()
	}
	a.logger = logging.Setup(level, cfg.GetEnv())
	return nil
}

func (a *app) close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	if a.coordinator != nil {
		a.coordinator.Close()
		a.coordinator = nil
	}
	return firstErr
}

func (a *app) baseURL() string {
	if a.flags.apiURL != "" {
		return a.flags.apiURL
	}
	return a.cfg.GetBaseURL()
}

func (a *app) openStore() (tokenstore.Store, error) {
	backend := a.cfg.GetStorageBackend()
	if a.flags.store != "" {
		backend = a.flags.store
	}
	switch backend {
	case config.StorageMemory:
		return tokenstore.NewMemoryStore(), nil
	case config.StorageFile:
		path := a.cfg.GetStorageFile()
		if a.flags.storeFile != "" {
			path = a.flags.storeFile
		}
		return tokenstore.OpenFileStore(path)
	case config.StorageRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     a.cfg.GetRedisAddr(),
			Password: a.cfg.GetRedisPassword(),
			DB:       a.cfg.GetRedisDB(),
		})
		a.closers = append(a.closers, rdb.Close)
		return tokenstore.NewRedisStore(rdb, a.cfg.GetRedisPrefix())
	}
	return nil, fmt.Errorf("unknown token store backend %q", backend)
}

func (a *app) newClient(store tokenstore.Store) (*apiclient.Client, error) {
	sess, err := tokenstore.NewSession(store)
	if err != nil {
		return nil, err
	}
	metrics, err := apiclient.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	options := []apiclient.Option{
		apiclient.WithHTTPClient(&http.Client{Timeout: a.cfg.GetRequestTimeout()}),
		apiclient.WithLogger(a.logger),
		apiclient.WithRefreshLeeway(a.cfg.GetRefreshLeeway()),
		apiclient.WithMetrics(metrics),
	}
	if a.cfg.GetCircuitBreakerEnabled() {
		options = append(options, apiclient.WithCircuitBreaker(apiclient.DefaultCircuitBreakerConfig("tenant-api")))
	}
	return apiclient.New(a.baseURL(), sess, options...)
}

// session opens the store and resolves any stored session
func (a *app) session(ctx context.Context) (*session.Coordinator, error) {
	if a.coordinator != nil {
		return a.coordinator, nil
	}
	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	client, err := a.newClient(store)
	if err != nil {
		return nil, err
	}
	c, err := session.New(client, session.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	if err := c.Start(ctx); err != nil {
		a.logger.Warn().Err(err).Msg("stored session could not be verified")
	}
	a.coordinator = c
	return c, nil
}

// requireSession is session for commands that need a signed-in user
func (a *app) requireSession(ctx context.Context) (*session.Coordinator, error) {
	c, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	if !c.Auth().Snapshot().IsAuthenticated {
		return nil, fmt.Errorf("not signed in, run 'sessionctl login' first")
	}
	return c, nil
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}
