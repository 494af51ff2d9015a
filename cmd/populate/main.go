// Package main provides the populate command: read clinical records from a
// data source and upload them to a FHIR server as Patient and Observation
// resources.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/stephencrowell/lungair-fhir-server/internal/infrastructure/redpanda"
	"github.com/stephencrowell/lungair-fhir-server/internal/mapper"
	"github.com/stephencrowell/lungair-fhir-server/internal/observability/metrics"
	"github.com/stephencrowell/lungair-fhir-server/internal/observability/tracing"
	"github.com/stephencrowell/lungair-fhir-server/internal/source"
	"github.com/stephencrowell/lungair-fhir-server/internal/source/csvfile"
	"github.com/stephencrowell/lungair-fhir-server/internal/source/mimic3"
	"github.com/stephencrowell/lungair-fhir-server/internal/source/postgres"
	"github.com/stephencrowell/lungair-fhir-server/internal/source/random"
	"github.com/stephencrowell/lungair-fhir-server/internal/uploader"
)

// Config holds application configuration
type Config struct {
	SourceKind string
	FHIRURL    string

	Mimic3Dir string
	SchemaDir string
	ChunkSize int

	NumPatients      int
	NumObsPerPatient int
	Seed             int64

	CSVPath             string
	CSVIDColumn         string
	CSVNameColumn       string
	CSVTypeColumn       string
	CSVDefaultType      string
	CSVValueColumn      string
	CSVTimeColumn       string
	CSVIdentifierSystem string

	DatabaseURL string

	KafkaBrokers string
	OpsAddr      string
	OTLPEndpoint string
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mx := metrics.New()

	if cfg.OTLPEndpoint != "" {
		tcfg := tracing.DefaultConfig("populate")
		tcfg.OTLPEndpoint = cfg.OTLPEndpoint
		provider, err := tracing.Init(ctx, tcfg)
		if err != nil {
			logger.Fatal("failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("tracing shutdown error", zap.Error(err))
			}
		}()
	}

	if cfg.OpsAddr != "" {
		go serveOps(cfg.OpsAddr, logger)
	}

	codes := source.DefaultCodeTables()
	names := source.NewNameGenerator(cfg.Seed)
	m := mapper.New(codes, names)

	src, closeSrc, err := buildSource(ctx, cfg, codes, logger)
	if err != nil {
		logger.Fatal("failed to open data source", zap.Error(err))
	}
	defer closeSrc()

	var audit uploader.Publisher
	if cfg.KafkaBrokers != "" {
		brokers := strings.Split(cfg.KafkaBrokers, ",")

		admin, err := redpanda.NewAdmin(brokers, logger)
		if err != nil {
			logger.Fatal("failed to create topic admin", zap.Error(err))
		}
		if err := admin.EnsureTopics(ctx); err != nil {
			admin.Close()
			logger.Fatal("failed to ensure audit topic", zap.Error(err))
		}
		admin.Close()

		pcfg := redpanda.DefaultProducerConfig()
		pcfg.Brokers = brokers
		producer, err := redpanda.NewProducer(pcfg, logger)
		if err != nil {
			logger.Fatal("failed to create audit producer", zap.Error(err))
		}
		defer producer.Close()
		audit = producer
	}

	client, err := uploader.NewClient(cfg.FHIRURL, logger)
	if err != nil {
		logger.Fatal("failed to create FHIR client", zap.Error(err))
	}

	populator := uploader.NewPopulator(src, m, client, logger, mx, audit)

	logger.Info("starting populate run",
		zap.String("source", cfg.SourceKind),
		zap.String("fhir_url", cfg.FHIRURL))

	stats, err := populator.Run(ctx)
	if err != nil {
		logger.Error("populate run failed",
			zap.Int("patients_created", stats.PatientsCreated),
			zap.Error(err))
		os.Exit(1)
	}
}

// buildSource constructs the configured data source variant.
func buildSource(ctx context.Context, cfg Config, codes *source.CodeTables, logger *zap.Logger) (source.DataSource, func(), error) {
	noop := func() {}
	switch cfg.SourceKind {
	case "mimic3":
		mcfg := mimic3.DefaultConfig(cfg.Mimic3Dir)
		if cfg.SchemaDir != "" {
			mcfg.SchemaDir = cfg.SchemaDir
		}
		if cfg.ChunkSize > 0 {
			mcfg.ChunkSize = cfg.ChunkSize
		}
		src, err := mimic3.New(mcfg, codes, logger)
		return src, noop, err
	case "random":
		return random.New(cfg.NumPatients, cfg.NumObsPerPatient, codes, cfg.Seed), noop, nil
	case "csv":
		ccfg := csvfile.Config{
			Path:             cfg.CSVPath,
			IDColumn:         cfg.CSVIDColumn,
			IdentifierSystem: cfg.CSVIdentifierSystem,
			NameColumn:       cfg.CSVNameColumn,
			TypeColumn:       cfg.CSVTypeColumn,
			DefaultType:      source.ObservationType(cfg.CSVDefaultType),
			ValueColumn:      cfg.CSVValueColumn,
			TimeColumn:       cfg.CSVTimeColumn,
		}
		src, err := csvfile.New(ccfg, codes, logger)
		return src, noop, err
	case "postgres":
		src, err := postgres.New(ctx, cfg.DatabaseURL, codes, logger)
		if err != nil {
			return nil, noop, err
		}
		return src, src.Close, nil
	default:
		return nil, noop, fmt.Errorf("unknown source %q (want mimic3, random, csv or postgres)", cfg.SourceKind)
	}
}

// serveOps exposes health and metrics endpoints while the run is in flight.
func serveOps(addr string, logger *zap.Logger) {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"healthy","service":"populate","version":"1.0.0"}`)
	})
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})
	r.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	logger.Info("ops listener started", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		logger.Warn("ops listener error", zap.Error(err))
	}
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.SourceKind, "source", envOr("SOURCE", "random"), "data source: mimic3, random, csv or postgres")
	flag.StringVar(&cfg.FHIRURL, "fhir-url", envOr("FHIR_URL", "http://localhost:8080/fhir"), "base URL of the destination FHIR server")

	flag.StringVar(&cfg.Mimic3Dir, "mimic3-dir", envOr("MIMIC3_DIR", "."), "directory holding the MIMIC-III csv.gz tables")
	flag.StringVar(&cfg.SchemaDir, "schema-dir", os.Getenv("SCHEMA_DIR"), "directory holding the table schema files")
	flag.IntVar(&cfg.ChunkSize, "chunk-size", 0, "rows per chunk when streaming large tables (0 = default)")

	flag.IntVar(&cfg.NumPatients, "num-patients", 10, "synthetic source: patients to generate")
	flag.IntVar(&cfg.NumObsPerPatient, "num-observations", 50, "synthetic source: observations per patient")
	flag.Int64Var(&cfg.Seed, "seed", time.Now().UnixNano(), "seed for generated names and synthetic records")

	flag.StringVar(&cfg.CSVPath, "csv-path", os.Getenv("CSV_PATH"), "csv source: path to the data file")
	flag.StringVar(&cfg.CSVIDColumn, "csv-id-column", "patient_id", "csv source: patient id column")
	flag.StringVar(&cfg.CSVNameColumn, "csv-name-column", "", "csv source: patient name column (optional)")
	flag.StringVar(&cfg.CSVTypeColumn, "csv-type-column", "", "csv source: observation type column (optional)")
	flag.StringVar(&cfg.CSVDefaultType, "csv-default-type", "", "csv source: observation type when no type column is set")
	flag.StringVar(&cfg.CSVValueColumn, "csv-value-column", "value", "csv source: observation value column")
	flag.StringVar(&cfg.CSVTimeColumn, "csv-time-column", "", "csv source: observation time column (optional)")
	flag.StringVar(&cfg.CSVIdentifierSystem, "csv-identifier-system", "", "csv source: identifier system URI (optional)")

	flag.StringVar(&cfg.DatabaseURL, "database-url", os.Getenv("DATABASE_URL"), "postgres source: connection string")

	flag.StringVar(&cfg.KafkaBrokers, "kafka-brokers", os.Getenv("KAFKA_BROKERS"), "comma-separated audit stream brokers (empty disables auditing)")
	flag.StringVar(&cfg.OpsAddr, "ops-addr", envOr("OPS_ADDR", ":8081"), "health and metrics listen address (empty disables)")
	flag.StringVar(&cfg.OTLPEndpoint, "otlp-endpoint", os.Getenv("OTLP_ENDPOINT"), "OTLP trace collector endpoint (empty disables)")
	flag.Parse()
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
