// Command boothflow runs the experience engine service: the HTTP API serving
// engine runs, the durable job runner executing AI transformations, and the
// outbox sender delivering results to guests.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/boothlabs/boothflow/internal/api"
	"github.com/boothlabs/boothflow/internal/experience"
	"github.com/boothlabs/boothflow/internal/genai"
	"github.com/boothlabs/boothflow/internal/lockfile"
	"github.com/boothlabs/boothflow/internal/metrics"
	"github.com/boothlabs/boothflow/internal/realtime"
	"github.com/boothlabs/boothflow/internal/scheduler"
	"github.com/boothlabs/boothflow/internal/share"
	"github.com/boothlabs/boothflow/internal/store"
	"github.com/boothlabs/boothflow/internal/transform"
	"github.com/boothlabs/boothflow/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Boothflow state data
	DefaultStateDir = "/var/lib/boothflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "boothflow.db"
	// DefaultContactStepID is the step id the result delivery reads the
	// guest's contact from
	DefaultContactStepID = "contact"
)

// backend is the combined storage surface one database serves: session
// documents, the job queue, and the delivery outbox.
type backend interface {
	store.Store
	store.JobRepo
	store.OutboxRepo
}

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	if err := run(flags); err != nil {
		slog.Error("Boothflow failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("Boothflow exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL    string
	StateDir       string
	OpenAIKey      string
	APIAddr        string
	RedisAddr      string
	ExperiencesDir string
	ContactStepID  string
	ResultChannel  string
}

// Flags holds command line flag values
type Flags struct {
	stateDir       *string
	dbDSN          *string
	openaiKey      *string
	apiAddr        *string
	redisAddr      *string
	experiencesDir *string
	contactStepID  *string
	resultChannel  *string
	qrOutput       *string
	numeric        *bool
}

// initializeLogger sets up structured logging. BOOTHFLOW_DEBUG enables
// debug-level output.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("BOOTHFLOW_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StateDir:       os.Getenv("BOOTHFLOW_STATE_DIR"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		APIAddr:        os.Getenv("API_ADDR"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		ExperiencesDir: os.Getenv("EXPERIENCES_DIR"),
		ContactStepID:  os.Getenv("CONTACT_STEP_ID"),
		ResultChannel:  os.Getenv("RESULT_CHANNEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No BOOTHFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.ContactStepID == "" {
		config.ContactStepID = DefaultContactStepID
	}
	if config.ResultChannel == "" {
		config.ResultChannel = store.OutboxKindSMS
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"BOOTHFLOW_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"REDIS_ADDR", config.RedisAddr,
		"EXPERIENCES_DIR", config.ExperiencesDir,
		"RESULT_CHANNEL", config.ResultChannel)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:       flag.String("state-dir", config.StateDir, "state directory for Boothflow data (overrides $BOOTHFLOW_STATE_DIR)"),
		dbDSN:          flag.String("db-dsn", config.DatabaseURL, "database DSN for the session, job, and outbox store (overrides $DATABASE_URL)"),
		openaiKey:      flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:        flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		redisAddr:      flag.String("redis-addr", config.RedisAddr, "Redis address for the realtime bus (overrides $REDIS_ADDR)"),
		experiencesDir: flag.String("experiences-dir", config.ExperiencesDir, "directory of experience definition YAML files (overrides $EXPERIENCES_DIR)"),
		contactStepID:  flag.String("contact-step-id", config.ContactStepID, "step id the result delivery reads the guest contact from (overrides $CONTACT_STEP_ID)"),
		resultChannel:  flag.String("result-channel", config.ResultChannel, "result delivery channel: sms or whatsapp (overrides $RESULT_CHANNEL)"),
		qrOutput:       flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:        flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"redisAddr", *flags.redisAddr,
		"experiencesDir", *flags.experiencesDir,
		"resultChannel", *flags.resultChannel)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		dbDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "db_dir", dbDir)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			slog.Error("Failed to create database directory", "error", err, "db_dir", dbDir)
			return err
		}
	}
	return nil
}

// buildBackend opens the storage backend for the configured DSN.
func buildBackend(dsn string) (backend, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildBus constructs the realtime session bus: Redis when an address is
// configured, in-process otherwise.
func buildBus(redisAddr string) realtime.Bus {
	if redisAddr != "" {
		slog.Debug("Using Redis realtime bus", "addr", redisAddr)
		return realtime.NewRedisBus(redisAddr, os.Getenv("REDIS_PASSWORD"), util.ParseIntEnv("REDIS_DB", 0))
	}
	slog.Debug("No Redis address configured, using in-process realtime bus")
	return realtime.NewMemoryBus()
}

// buildTransformWorker constructs the transformation worker, or nil when the
// OpenAI client cannot be configured. A nil worker leaves enqueued transform
// jobs unclaimed rather than failing startup; experiences without an
// ai-transform step are unaffected.
func buildTransformWorker(db backend, bus realtime.Bus, delivery *share.Delivery, m *metrics.Metrics, apiKey string) *transform.Worker {
	var genaiOpts []genai.Option
	if apiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(apiKey))
	}
	generator, err := genai.NewClient(genaiOpts...)
	if err != nil {
		slog.Warn("AI transformation not configured, transform jobs will not run", "error", err)
		return nil
	}
	return transform.NewWorker(db, generator, bus, delivery, transform.WithMetrics(m))
}

// buildMessengers constructs the delivery channel for the configured result
// channel kind.
func buildMessengers(flags Flags) (map[string]share.Messenger, error) {
	messengers := make(map[string]share.Messenger)
	switch *flags.resultChannel {
	case store.OutboxKindWhatsApp:
		var waOpts []share.WhatsAppOption
		waOpts = append(waOpts, share.WithDBDSN(filepath.Join(*flags.stateDir, "whatsmeow.db")))
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, share.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, share.WithNumericCode())
		}
		wa, err := share.NewWhatsAppClient(waOpts...)
		if err != nil {
			return nil, err
		}
		messengers[store.OutboxKindWhatsApp] = wa
	case store.OutboxKindSMS:
		sms, err := share.NewSMSClient()
		if err != nil {
			slog.Warn("SMS delivery not configured, results will not be sent", "error", err)
			return messengers, nil
		}
		messengers[store.OutboxKindSMS] = sms
	}
	return messengers, nil
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := buildBackend(*flags.dbDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	bus := buildBus(*flags.redisAddr)
	defer bus.Close()

	experiences := make(map[string]*experience.Definition)
	if *flags.experiencesDir != "" {
		experiences, err = experience.LoadDir(*flags.experiencesDir)
		if err != nil {
			return err
		}
	} else {
		slog.Warn("No experiences directory configured, API serves no experiences")
	}

	messengers, err := buildMessengers(flags)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	delivery := share.NewDelivery(db, *flags.contactStepID, *flags.resultChannel)
	worker := buildTransformWorker(db, bus, delivery, m, *flags.openaiKey)

	runner := store.NewJobRunner(db, util.ParseDurationEnv("JOB_POLL_INTERVAL", 2*time.Second))
	if worker != nil {
		worker.Register(runner)
	}
	if err := runner.RecoverStaleJobs(); err != nil {
		slog.Warn("Stale job recovery failed", "error", err)
	}

	sender := store.NewOutboxSender(db, share.NewSendFunc(messengers), util.ParseDurationEnv("OUTBOX_POLL_INTERVAL", 5*time.Second))
	if err := sender.RecoverStaleMessages(); err != nil {
		slog.Warn("Stale message recovery failed", "error", err)
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.ScheduleSweep(scheduler.DefaultRecoverySchedule, "stale-jobs", runner.RecoverStaleJobs); err != nil {
		return err
	}
	if err := sched.ScheduleSweep(scheduler.DefaultRecoverySchedule, "stale-messages", sender.RecoverStaleMessages); err != nil {
		return err
	}

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(experiences, db, bus, db, m, apiOpts...)

	slog.Info("Bootstrapping Boothflow",
		"experiences", len(experiences),
		"result_channel", *flags.resultChannel,
		"messengers", len(messengers))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		sender.Run(ctx)
	}()

	err = server.Run(ctx)
	wg.Wait()
	return err
}
