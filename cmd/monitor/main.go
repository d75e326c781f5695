package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/whalefollow/tradepipe/internal/tradepipe/api"
	"github.com/whalefollow/tradepipe/internal/tradepipe/chain"
	"github.com/whalefollow/tradepipe/internal/tradepipe/classify"
	"github.com/whalefollow/tradepipe/internal/tradepipe/dedup"
	"github.com/whalefollow/tradepipe/internal/tradepipe/enrich"
	"github.com/whalefollow/tradepipe/internal/tradepipe/filter"
	"github.com/whalefollow/tradepipe/internal/tradepipe/pipeline"
	"github.com/whalefollow/tradepipe/internal/tradepipe/sink"
	"github.com/whalefollow/tradepipe/internal/tradepipe/store"
	"github.com/whalefollow/tradepipe/pkg/obs"
	"github.com/whalefollow/tradepipe/pkg/retry"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()

	var (
		rpcURL  = flag.String("rpc", envOr("ETH_RPC_URL", ""), "ethereum json-rpc url (required)")
		clsURL  = flag.String("classifier-url", envOr("CLASSIFIER_URL", ""), "translate api base url (required)")
		clsKey  = flag.String("classifier-key", envOr("CLASSIFIER_API_KEY", ""), "translate api key (required)")
		chainID = flag.String("chain", envOr("CHAIN_SLUG", "eth"), "provider chain slug")

		pgDSN    = flag.String("pg", envOr("PG_DSN", ""), "postgres dsn (required unless -mem-store)")
		memStore = flag.Bool("mem-store", false, "use the in-memory store (local runs only)")

		brokers = flag.String("brokers", envOr("KAFKA_BROKERS", ""), "kafka brokers, comma-separated; empty disables the sink")
		topic   = flag.String("topic", envOr("KAFKA_TOPIC", "tradepipe.records"), "kafka topic for enriched records")

		dedupPath = flag.String("dedup-path", envOr("DEDUP_PATH", ""), "rocksdb path for the persistent seen-hash cache; empty uses in-memory")
		dedupTTL  = flag.Duration("dedup-ttl", 24*time.Hour, "how long a seen hash is remembered")

		ckptPath = flag.String("ckpt", envOr("CKPT_PATH", ""), "cursor checkpoint file; empty cold-starts at head on every boot")

		interval    = flag.Duration("interval", 5*time.Second, "poll interval")
		concurrency = flag.Int("concurrency", 1, "classification fan-out per batch")
		batchDelay  = flag.Duration("batch-delay", 500*time.Millisecond, "delay between classification batches")
		clsRetries  = flag.Int("classify-retries", 1, "decode attempts per hash (1 = skip on first failure)")

		blocklist = flag.String("blocklist", envOr("FILTER_BLOCKLIST", ""), "comma-separated contract addresses to skip")

		addr      = flag.String("addr", envOr("HTTP_ADDR", ":8080"), "http listen address")
		autostart = flag.Bool("autostart", false, "start the listener immediately instead of waiting for the trigger endpoint")

		logLevel = flag.String("log-level", envOr("LOG_LEVEL", "info"), "debug|info|warn|error")
		logJSON  = flag.Bool("log-json", false, "json log output")
	)
	flag.Parse()

	log, err := obs.NewLogger("tradepipe-monitor", *logLevel, *logJSON)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	// config errors are fatal: better to refuse to start than to run a
	// half-functional pipeline
	if *rpcURL == "" {
		log.Fatal("missing -rpc / ETH_RPC_URL")
	}
	if *clsURL == "" || *clsKey == "" {
		log.Fatal("missing classifier credentials (-classifier-url / -classifier-key)")
	}
	if *pgDSN == "" && !*memStore {
		log.Fatal("missing -pg / PG_DSN (or pass -mem-store for local runs)")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, err := chain.DialEth(ctx, *rpcURL)
	if err != nil {
		log.Fatal("chain dial failed", zap.Error(err))
	}
	defer src.Close()

	cls, err := classify.NewHTTPClient(classify.Config{
		BaseURL: *clsURL,
		APIKey:  *clsKey,
		Chain:   *chainID,
	})
	if err != nil {
		log.Fatal("classifier client failed", zap.Error(err))
	}

	var st store.Store
	if *memStore {
		st = store.NewMemory()
		log.Warn("using in-memory store; records will not survive a restart")
	} else {
		st, err = store.NewPostgres(ctx, *pgDSN)
		if err != nil {
			log.Fatal("postgres connect failed", zap.Error(err))
		}
	}
	defer st.Close()

	var ded dedup.Deduper
	if *dedupPath != "" {
		ded, err = dedup.OpenRocks(*dedupPath, *dedupTTL, 3600)
		if err != nil {
			log.Fatal("rocksdb dedup open failed", zap.Error(err))
		}
	} else {
		ded = dedup.NewMemory(*dedupTTL, 4096)
	}
	defer func() { _ = ded.Close() }()

	var snk sink.Sink = sink.Nop{}
	if *brokers != "" {
		snk, err = sink.NewKafka(*brokers, *topic)
		if err != nil {
			log.Fatal("kafka sink failed", zap.Error(err))
		}
	}
	defer func() { _ = snk.Close() }()

	var ckpt pipeline.Checkpoint
	if *ckptPath != "" {
		ckpt, err = pipeline.NewFileCheckpoint(*ckptPath)
		if err != nil {
			log.Fatal("checkpoint init failed", zap.Error(err))
		}
	}

	pipe, err := pipeline.New(pipeline.Deps{
		Source:     src,
		Classifier: cls,
		Store:      st,
		Filter:     filter.New(filter.Config{Blocklist: splitCSV(*blocklist)}),
		Enricher:   enrich.New(enrich.NewRandomStrategy(time.Now().UnixNano())),
		Deduper:    ded,
		Sink:       snk,
		Checkpoint: ckpt,
	}, pipeline.Config{
		Concurrency: *concurrency,
		BatchDelay:  *batchDelay,
		ClassifyRetry: retry.Policy{
			MaxAttempts: *clsRetries,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    3 * time.Second,
		},
	}, log)
	if err != nil {
		log.Fatal("pipeline init failed", zap.Error(err))
	}

	sched := pipeline.NewScheduler(pipe, *interval, log)
	defer sched.Stop()
	if *autostart {
		sched.Start(ctx)
	}

	srv := &http.Server{
		Addr:    *addr,
		Handler: api.NewServer(ctx, st, sched, log).Router(),
	}
	go func() {
		log.Info("http listening", zap.String("addr", *addr), zap.Bool("autostart", *autostart))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
