package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kennydoit/fin-trade-craft-sub001/config"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/alphavantage"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/cache"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/database"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/handlers"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/identity"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/models"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/repository"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/scheduling"
	"github.com/kennydoit/fin-trade-craft-sub001/internal/services"
)

func main() {
	var (
		dataset          = flag.String("dataset", "", "dataset to process (required unless --serve or --sync-universe)")
		mode             = flag.String("mode", "incremental", "incremental or replace")
		stalenessHours   = flag.Int("staleness-hours", 0, "hours before a pair is due again (default from env)")
		failureThreshold = flag.Int("failure-threshold", 0, "consecutive failures before a pair is suspended (default from env)")
		retryFailed      = flag.Bool("retry-failed", false, "include circuit-broken pairs in this run without resetting their failure counters")
		dryRun           = flag.Bool("dry-run", false, "plan only, fetch and write nothing")
		limit            = flag.Int("limit", 0, "process at most this many candidates (0 = no limit)")
		entityFilter     = flag.String("entity-filter", "", "only candidates whose ticker starts with this prefix")
		workers          = flag.Int("workers", 0, "concurrent workers (default from env)")
		syncUniverse     = flag.Bool("sync-universe", false, "sync the entity universe from the listing feed and exit")
		serve            = flag.Bool("serve", false, "run the ops HTTP server instead of a processing cycle")
		port             = flag.String("port", "", "ops server port (default from env)")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *stalenessHours <= 0 {
		*stalenessHours = cfg.StalenessHours
	}
	if *failureThreshold <= 0 {
		*failureThreshold = cfg.FailureThreshold
	}
	if *workers <= 0 {
		*workers = cfg.Workers
	}
	if *port == "" {
		*port = cfg.Port
	}

	ctx := context.Background()

	db, err := database.New(ctx, cfg.PGURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	avClient := alphavantage.NewClient(cfg.AVKey)
	memCache := cache.NewMemoryCache(5*time.Minute, time.Minute)

	entityRepo := repository.NewEntityRepository(db.Pool)
	watermarkRepo := repository.NewWatermarkRepository(db.Pool)
	landingRepo := repository.NewLandingRepository(db.Pool)

	assigner := identity.NewAssigner(entityRepo)
	universeSvc := services.NewUniverseService(entityRepo, assigner, avClient)
	extractSvc := services.NewExtractService(landingRepo, avClient, memCache)

	switch {
	case *serve:
		runServer(cfg, watermarkRepo, entityRepo, universeSvc, memCache, *stalenessHours, *failureThreshold, *port)

	case *syncUniverse:
		result, err := universeSvc.SyncUniverse(ctx)
		if err != nil {
			log.Fatalf("Universe sync failed: %v", err)
		}
		printJSON(result)

	default:
		if *dataset == "" {
			fmt.Fprintln(os.Stderr, "one of --dataset, --sync-universe or --serve is required")
			flag.Usage()
			os.Exit(2)
		}
		ds, err := models.DatasetByName(*dataset)
		if err != nil {
			log.Fatalf("%v (known: %v)", err, models.DatasetNames())
		}
		if *mode != string(scheduling.ModeIncremental) && *mode != string(scheduling.ModeReplace) {
			log.Fatalf("unknown mode %q", *mode)
		}

		runCtx := ctx
		if cfg.RunTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
			defer cancel()
		}

		limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
		coordinator := scheduling.NewCoordinator(watermarkRepo, extractSvc, limiter)

		summary, err := coordinator.Run(runCtx, scheduling.Options{
			Dataset:          ds,
			Mode:             scheduling.Mode(*mode),
			Staleness:        time.Duration(*stalenessHours) * time.Hour,
			FailureThreshold: *failureThreshold,
			IncludeFailed:    *retryFailed,
			DryRun:           *dryRun,
			Workers:          *workers,
			Filter: models.CandidateFilter{
				KeyPrefix: *entityFilter,
				Limit:     *limit,
			},
		})
		if err != nil {
			log.Fatalf("Cycle aborted: %v", err)
		}
		printJSON(summary)
	}
}

// runServer starts the ops HTTP server and blocks until SIGINT/SIGTERM.
func runServer(
	cfg *config.Config,
	watermarkRepo *repository.WatermarkRepository,
	entityRepo *repository.EntityRepository,
	universeSvc *services.UniverseService,
	memCache *cache.MemoryCache,
	stalenessHours, failureThreshold int,
	port string,
) {
	ops := handlers.NewOpsHandler(watermarkRepo, entityRepo, universeSvc, memCache,
		time.Duration(stalenessHours)*time.Hour, failureThreshold)
	router := handlers.NewRouter(ops, cfg.OpsKey)

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Infof("Starting ops server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Info("Server exited")
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to render result: %v", err)
	}
	fmt.Println(string(out))
}
