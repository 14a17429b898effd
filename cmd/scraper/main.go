package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reviewdash/internal/apps"
	"reviewdash/internal/notify"
	"reviewdash/internal/reviews"
	"reviewdash/internal/scraper"
	"reviewdash/pkg/database"
	"reviewdash/pkg/models"
	"reviewdash/pkg/utils"
)

type env struct {
	cfg       *utils.Config
	logger    *zap.Logger
	db        *sqlx.DB
	cache     reviews.Cache
	publisher notify.Publisher
	driver    *scraper.Driver
}

func setup() (*env, error) {
	cfg, err := utils.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := utils.NewLogger(cfg.App)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(database.ConfigFrom(cfg.Database))
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}

	e := &env{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		cache:     reviews.NewCache(cfg.Redis, logger),
		publisher: notify.NewPublisher(cfg.Kafka, logger),
	}
	opts := scraper.OptionsFrom(cfg.Ingest)
	opts.Publisher = e.publisher
	e.driver = scraper.NewDriver(reviews.NewRepo(db), logger, opts,
		scraper.NewPlaySource(cfg.Play),
		scraper.NewAppStoreSource(cfg.AppStore),
	)
	return e, nil
}

func (e *env) close() {
	_ = e.publisher.Close()
	if c, ok := e.cache.(*reviews.RedisCache); ok {
		_ = c.Close()
	}
	_ = e.db.Close()
	_ = e.logger.Sync()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (e *env) ingest(ctx context.Context, req scraper.Request) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Ingest.Timeout)
	defer cancel()

	res, err := e.driver.Run(ctx, req)
	if res != nil {
		if res.Inserted > 0 {
			if cerr := e.cache.Invalidate(ctx); cerr != nil {
				e.logger.Warn("invalidate cache failed", zap.Error(cerr))
			}
		}
		if perr := printJSON(res); perr != nil {
			return perr
		}
	}
	return err
}

func newReviewsCmd(e **env) *cobra.Command {
	var provider string
	cmd := &cobra.Command{
		Use:   "reviews <appId>",
		Short: "Ingest reviews for one app using the default country and language",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := models.ParseSource(provider)
			if err != nil {
				return err
			}
			country, lang := (*e).driver.Defaults()
			return (*e).ingest(cmd.Context(), scraper.Request{
				Source:    source,
				AppID:     args[0],
				Countries: []string{country},
				Languages: []string{lang},
			})
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", string(models.SourcePlay), "provider (play|app)")
	return cmd
}

func newLocalesCmd(e **env) *cobra.Command {
	var (
		provider  string
		countries []string
		languages []string
		maxPages  int
	)
	cmd := &cobra.Command{
		Use:   "locales <appId>",
		Short: "Ingest reviews for every country/language combination",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := models.ParseSource(provider)
			if err != nil {
				return err
			}
			return (*e).ingest(cmd.Context(), scraper.Request{
				Source:    source,
				AppID:     args[0],
				Countries: countries,
				Languages: languages,
				MaxPages:  maxPages,
			})
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", string(models.SourceAppStore), "provider (play|app)")
	cmd.Flags().StringSliceVarP(&countries, "countries", "c", nil, "comma separated country codes")
	cmd.Flags().StringSliceVarP(&languages, "languages", "l", nil, "comma separated language codes")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "pages per combination (0 uses the configured default)")
	return cmd
}

func newMetaCmd(e **env) *cobra.Command {
	var (
		provider string
		country  string
		debug    bool
	)
	cmd := &cobra.Command{
		Use:   "meta <appId>",
		Short: "Fetch and store app title and release year",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := models.ParseSource(provider)
			if err != nil {
				return err
			}
			svc := apps.NewService(apps.NewRepo((*e).db), (*e).driver,
				scraper.RetryPolicyFrom((*e).cfg.Ingest), (*e).cfg.Ingest.DefaultCountry, (*e).logger)
			res, err := svc.Fetch(cmd.Context(), source, args[0], country, debug)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVarP(&provider, "provider", "p", string(models.SourcePlay), "provider (play|app)")
	cmd.Flags().StringVarP(&country, "country", "c", "", "store country")
	cmd.Flags().BoolVar(&debug, "debug", false, "print the raw provider payload without saving")
	return cmd
}

func newMigrateCmd(e **env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// setup already migrated
			(*e).logger.Info("database is up to date", zap.String("driver", (*e).cfg.Database.Driver))
			return nil
		},
	}
}

func main() {
	var e *env

	root := &cobra.Command{
		Use:           "scraper",
		Short:         "Ingest store reviews and app metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			e, err = setup()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e != nil {
				e.close()
			}
		},
	}
	root.AddCommand(
		newReviewsCmd(&e),
		newLocalesCmd(&e),
		newMetaCmd(&e),
		newMigrateCmd(&e),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if e != nil {
			e.close()
		}
		os.Exit(1)
	}
}
