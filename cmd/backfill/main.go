// Backfill runs one filter->classify->enrich->store pass over an explicit
// block range. It shares the monitor's pipeline; only the range source
// differs (flags here, cursor-follow there).
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/whalefollow/tradepipe/internal/tradepipe/chain"
	"github.com/whalefollow/tradepipe/internal/tradepipe/classify"
	"github.com/whalefollow/tradepipe/internal/tradepipe/dedup"
	"github.com/whalefollow/tradepipe/internal/tradepipe/enrich"
	"github.com/whalefollow/tradepipe/internal/tradepipe/filter"
	"github.com/whalefollow/tradepipe/internal/tradepipe/pipeline"
	"github.com/whalefollow/tradepipe/internal/tradepipe/store"
	"github.com/whalefollow/tradepipe/pkg/obs"
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
		from = flag.Int64("from", 0, "first block height (required)")
		to   = flag.Int64("to", 0, "last block height, inclusive (required)")

		rpcURL  = flag.String("rpc", envOr("ETH_RPC_URL", ""), "ethereum json-rpc url (required)")
		clsURL  = flag.String("classifier-url", envOr("CLASSIFIER_URL", ""), "translate api base url (required)")
		clsKey  = flag.String("classifier-key", envOr("CLASSIFIER_API_KEY", ""), "translate api key (required)")
		chainID = flag.String("chain", envOr("CHAIN_SLUG", "eth"), "provider chain slug")

		pgDSN = flag.String("pg", envOr("PG_DSN", ""), "postgres dsn (required)")

		dedupPath = flag.String("dedup-path", envOr("DEDUP_PATH", ""), "rocksdb path shared with the monitor; keeps re-runs free")
		dedupTTL  = flag.Duration("dedup-ttl", 24*time.Hour, "how long a seen hash is remembered")

		concurrency = flag.Int("concurrency", 1, "classification fan-out per batch")
		batchDelay  = flag.Duration("batch-delay", 500*time.Millisecond, "delay between classification batches")

		blocklist = flag.String("blocklist", envOr("FILTER_BLOCKLIST", ""), "comma-separated contract addresses to skip")
		logLevel  = flag.String("log-level", envOr("LOG_LEVEL", "info"), "debug|info|warn|error")
	)
	flag.Parse()

	log, err := obs.NewLogger("tradepipe-backfill", *logLevel, false)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if *from <= 0 || *to < *from {
		log.Fatal("invalid range", zap.Int64("from", *from), zap.Int64("to", *to))
	}
	if *rpcURL == "" {
		log.Fatal("missing -rpc / ETH_RPC_URL")
	}
	if *clsURL == "" || *clsKey == "" {
		log.Fatal("missing classifier credentials (-classifier-url / -classifier-key)")
	}
	if *pgDSN == "" {
		log.Fatal("missing -pg / PG_DSN")
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

	st, err := store.NewPostgres(ctx, *pgDSN)
	if err != nil {
		log.Fatal("postgres connect failed", zap.Error(err))
	}
	defer st.Close()

	var ded dedup.Deduper = dedup.NewMemory(*dedupTTL, 4096)
	if *dedupPath != "" {
		ded, err = dedup.OpenRocks(*dedupPath, *dedupTTL, 3600)
		if err != nil {
			log.Fatal("rocksdb dedup open failed", zap.Error(err))
		}
	}
	defer func() { _ = ded.Close() }()

	pipe, err := pipeline.New(pipeline.Deps{
		Source:     src,
		Classifier: cls,
		Store:      st,
		Filter:     filter.New(filter.Config{Blocklist: splitCSV(*blocklist)}),
		Enricher:   enrich.New(enrich.NewRandomStrategy(time.Now().UnixNano())),
		Deduper:    ded,
	}, pipeline.Config{
		Concurrency: *concurrency,
		BatchDelay:  *batchDelay,
	}, log)
	if err != nil {
		log.Fatal("pipeline init failed", zap.Error(err))
	}

	start := time.Now()
	if err := pipe.Backfill(ctx, *from, *to); err != nil {
		log.Fatal("backfill failed", zap.Error(err))
	}
	log.Info("done",
		zap.Int64("from", *from),
		zap.Int64("to", *to),
		zap.Duration("took", time.Since(start)))
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
