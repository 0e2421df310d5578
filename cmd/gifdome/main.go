// Command gifdome runs the GIF tournament bot: the webhook server, the
// duplicate-suggestions server, and the expiry scheduler.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/kartikbazzad/gifdome/internal/advancer"
	"github.com/kartikbazzad/gifdome/internal/chatapi"
	"github.com/kartikbazzad/gifdome/internal/command"
	"github.com/kartikbazzad/gifdome/internal/config"
	"github.com/kartikbazzad/gifdome/internal/database"
	"github.com/kartikbazzad/gifdome/internal/dbguard"
	"github.com/kartikbazzad/gifdome/internal/duplicateindex"
	"github.com/kartikbazzad/gifdome/internal/logger"
	"github.com/kartikbazzad/gifdome/internal/media"
	"github.com/kartikbazzad/gifdome/internal/pollfanin"
	"github.com/kartikbazzad/gifdome/internal/scheduler"
	"github.com/kartikbazzad/gifdome/internal/server"
	"github.com/kartikbazzad/gifdome/internal/submission"
	"github.com/kartikbazzad/gifdome/internal/webhook"
	"github.com/jackc/pgx/v5"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "gifdome",
	Short: "GIFdome tournament bot",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.toml", "path to the TOML configuration file")
	rootCmd.AddCommand(runCmd, initDBCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	initDBCreateUser     bool
	initDBCreateDatabase bool
	initDBDropExisting   bool
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "create the database role and database, optionally dropping the existing schema (migrations run at startup of the run command)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		bootstrapCfg := toDatabaseConfig(cfg.DB)
		if cfg.Dev != nil && cfg.Dev.InitDB != nil {
			bootstrapCfg = toDatabaseConfig(*cfg.Dev.InitDB)
		}

		return database.InitDB(cmd.Context(), bootstrapCfg, toDatabaseConfig(cfg.DB), database.InitDBOptions{
			CreateUser:     initDBCreateUser,
			CreateDatabase: initDBCreateDatabase,
			DropExisting:   initDBDropExisting,
		})
	},
}

func init() {
	initDBCmd.Flags().BoolVar(&initDBCreateUser, "create-user", false, "create the database role if missing")
	initDBCmd.Flags().BoolVar(&initDBCreateDatabase, "create-database", false, "create the database if missing")
	initDBCmd.Flags().BoolVar(&initDBDropExisting, "drop-existing", false, "drop existing schema objects; the run command recreates them through migrations")
}

func toDatabaseConfig(db config.DB) database.Config {
	return database.Config{
		Host:            db.Host,
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		Name:            db.DBName,
		ApplicationName: db.ApplicationName,
	}
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run the webhook server, suggestions server, and scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Init(logger.Config{Level: "info", Format: "json"})
	log := logger.Get()

	dbCfg := toDatabaseConfig(cfg.DB)
	dbCfg.MigrationsPath = "migrations"
	db, err := database.New(dbCfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	httpClient := chatapi.NewHTTPClient(cfg.Bot.Token)
	var chatClient chatapi.Client = httpClient
	fetcher := &chatapi.Fetcher{Client: chatClient, HTTP: httpClient}

	var botUsername atomic.Value
	botUsername.Store("")
	if username, err := chatClient.GetMe(ctx); err != nil {
		log.WarnContext(ctx, "failed to resolve bot username", "error", err)
	} else {
		botUsername.Store(username)
	}

	mediaCfg := media.Config{
		SaveDir:                    cfg.Animation.SaveDir,
		TempSaveDir:                cfg.Animation.TempSaveDir,
		ThumbnailSaveDir:           cfg.Animation.ThumbnailSaveDir,
		ThumbnailFingerprintFile:   cfg.Animation.ThumbnailFingerprintFile,
		ThumbnailFingerprintThresh: cfg.Animation.ThumbnailFingerprintThresh,
		VspipeWorkingDir:           cfg.Animation.VspipeWorkingDir,
		MaxSizeBytes:               cfg.Animation.MaxSizeBytes,
	}

	dupIndex := duplicateindex.New()
	refreshDuplicates := func() {
		clusters, err := media.FindDuplicates(mediaCfg)
		if err != nil {
			log.ErrorContext(ctx, "refreshing duplicate index", "error", err)
			return
		}
		dupIndex.Replace(clusters)
	}
	refreshDuplicates()

	guard := dbguard.New()

	roundLengthsInt := make([]int, len(cfg.Tournament.RoundLengths))
	for i, v := range cfg.Tournament.RoundLengths {
		roundLengthsInt[i] = int(v)
	}

	advancerDeps := advancer.Deps{
		Chat:       chatClient,
		MediaCfg:   mediaCfg,
		PollOption: [2]string{cfg.Poll.OptionAText, cfg.Poll.OptionBText},
	}

	commandDeps := command.Deps{
		Chat:               chatClient,
		TournamentIDLength: cfg.Tournament.IDLength,
		MaxRounds:          cfg.Tournament.MaxRounds,
		RoundLengths:       roundLengthsInt,
		AnnounceFirstPoll: func(ctx context.Context, tx pgx.Tx, chatID int64, tournamentID string) (string, int64, error) {
			return advancer.SendFirstPoll(ctx, tx, advancerDeps, chatID, tournamentID)
		},
	}

	submissionDeps := submission.Deps{
		Chat:      chatClient,
		MediaCfg:  mediaCfg,
		Fetcher:   fetcher,
		Animation: cfg.Animation,
	}

	pollCh := make(chan pollfanin.Update, 256)
	pollLoop := pollfanin.New(db.Pool, guard, cfg.Poll, pollCh)
	go pollLoop.Run(ctx)

	sched, err := scheduler.New(db.Pool, guard, advancerDeps, cfg.Scheduler.JobIntervalSecs, cfg.Scheduler.JobTimeoutSecs)
	if err != nil {
		return fmt.Errorf("constructing scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	if err := chatClient.SetWebhook(ctx, cfg.Webhook.URL, cfg.Webhook.Secret); err != nil {
		log.ErrorContext(ctx, "registering webhook", "error", err)
	}

	if err := chatClient.SetMyCommands(ctx, []chatapi.BotCommand{
		{Command: "start", Description: "start a new tournament"},
		{Command: "help", Description: "show help"},
	}, chatapi.ScopeDefault); err != nil {
		log.ErrorContext(ctx, "setting default command menu", "error", err)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(webhook.RateLimitMiddleware(120, 30))

	webhook.Register(r, webhook.Deps{
		Pool:        db.Pool,
		Guard:       guard,
		Chat:        chatClient,
		CommandDeps: commandDeps,
		Submission:  submissionDeps,
		PollOut:     pollCh,
		Secret:      cfg.Webhook.Secret,
		BotUsername: func() string { return botUsername.Load().(string) },
	})
	server.Register(r, server.Deps{Pool: db.Pool, Index: dupIndex})

	srv := &http.Server{Addr: cfg.Webhook.ListenAddr, Handler: r}

	log.InfoContext(ctx, "listening", "addr", cfg.Webhook.ListenAddr)
	return srv.ListenAndServe()
}
