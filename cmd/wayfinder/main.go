package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/wayfinder-proxy/wayfinder/internal/api"
	"github.com/wayfinder-proxy/wayfinder/internal/classify"
	"github.com/wayfinder-proxy/wayfinder/internal/config"
	"github.com/wayfinder-proxy/wayfinder/internal/geo"
	"github.com/wayfinder-proxy/wayfinder/internal/journal"
	"github.com/wayfinder-proxy/wayfinder/internal/observe"
	"github.com/wayfinder-proxy/wayfinder/internal/route"
	"github.com/wayfinder-proxy/wayfinder/internal/sched"
	"github.com/wayfinder-proxy/wayfinder/internal/track"
)

func main() {
	// 1. Load and validate environment config
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	// 2. Runtime config, hot-swappable
	runtimeCfg := &atomic.Pointer[config.RuntimeConfig]{}
	runtimeCfg.Store(config.NewDefaultRuntimeConfig())

	// 3. Geo tables
	geoTables := geo.NewTables()
	geoTables.SetLocalTLDs(runtimeCfg.Load().LocalTLDs)
	if envCfg.GeoMMDB != "" {
		reader, err := geo.OpenMMDB(envCfg.GeoMMDB)
		if err != nil {
			log.Fatalf("[main] open geo database: %v", err)
		}
		geoTables.SetReader(reader)
		log.Printf("[main] geo database loaded from %s", envCfg.GeoMMDB)
	}

	// 4. Connection journal
	journalRepo := journal.NewRepo(
		envCfg.JournalDir,
		int64(envCfg.JournalDBMaxMB)*1024*1024,
		envCfg.JournalRetainCount,
	)
	if err := journalRepo.Open(); err != nil {
		log.Fatalf("[main] open journal: %v", err)
	}
	journalSvc := journal.NewService(journalRepo, envCfg.JournalQueueSize, envCfg.JournalBatchSize)

	// 5. Observer, wired later into tracker and registry event paths
	var tracker *track.Tracker
	var registry *route.Registry
	observer := observe.New(observe.Config{
		TrackerStats:  func() track.Stats { return tracker.Stats() },
		RegistryStats: func() route.Stats { return registry.Stats() },
		ListActive:    func() []track.Record { return tracker.ListActive() },
		LatencyAlertThreshold: func() time.Duration {
			return runtimeCfg.Load().LatencyAlertThreshold.Std()
		},
		ConnectTimeout: func() time.Duration {
			return runtimeCfg.Load().ConnectTimeout.Std()
		},
		DestinationCeiling: func() int {
			return runtimeCfg.Load().DestinationCeiling
		},
		AlertRetention: func() time.Duration {
			return runtimeCfg.Load().AlertRetention.Std()
		},
		RingCapacity: envCfg.EventRingCapacity,
	})

	// 6. Tracker: lifecycle events fan out to the observer and the journal
	observerTrackerFn := observer.TrackerEventFunc()
	journalTrackerFn := journalSvc.TrackerEventFunc()
	tracker = track.New(track.Config{
		OnEvent: func(ev track.Event) {
			observerTrackerFn(ev)
			journalTrackerFn(ev)
		},
		MaxObservedDomains: envCfg.MaxObservedDomains,
		ObservationDecayWindow: func() time.Duration {
			return runtimeCfg.Load().ObservationDecayWindow.Std()
		},
	})

	// 7. Classifier fed by the tracker's latency observations
	classifier := classify.New(classify.Config{
		Geo:     geoTables,
		Latency: tracker.ObservedLatency,
		HighLatencyThreshold: func() time.Duration {
			return runtimeCfg.Load().HighLatencyThreshold.Std()
		},
	})
	rules, err := config.LoadRules(envCfg.RulesFile)
	if err != nil {
		log.Fatalf("[main] load rules: %v", err)
	}
	for _, r := range rules {
		classifier.AddRule(r)
	}
	log.Printf("[main] loaded %d classification rules from %s", len(rules), envCfg.RulesFile)

	// 8. Route registry and health monitor
	registry = route.NewRegistry(observer.RegistryEventFunc())
	defs, err := config.LoadRoutes(envCfg.RoutesFile)
	if err != nil {
		log.Fatalf("[main] load routes: %v", err)
	}
	for _, def := range defs {
		if _, err := registry.Register(def); err != nil {
			log.Fatalf("[main] register route %s: %v", def.ID, err)
		}
	}
	log.Printf("[main] registered %d routes from %s", len(defs), envCfg.RoutesFile)

	monitor := route.NewMonitor(route.MonitorConfig{
		Registry:    registry,
		Concurrency: envCfg.ProbeConcurrency,
	})

	// 9. Selector
	selector := route.NewSelector(route.SelectorConfig{
		Registry:    registry,
		Classifier:  classifier,
		Geo:         geoTables,
		ActiveCount: func(kind route.Kind) int64 { return tracker.ActiveByKind(track.Kind(kind)) },
		DefaultStrategy: func() route.Strategy {
			return route.Strategy(runtimeCfg.Load().DefaultStrategy)
		},
		MaxDestinationStates: envCfg.MaxDestinationStates,
	})

	// 10. Periodic maintenance
	sweeper := track.NewSweeper(tracker, func() time.Duration {
		return runtimeCfg.Load().ConnectionRetention.Std()
	})
	scheduler := sched.New()
	mustSchedule(scheduler, "stats-aggregation", envCfg.AggregationInterval, observer.AggregationTick)
	mustSchedule(scheduler, "retention-sweep", envCfg.RetentionInterval, sweeper.Tick)
	mustSchedule(scheduler, "alert-sweep", envCfg.AlertSweepInterval, observer.MaintenanceTick)
	mustSchedule(scheduler, "journal-flush", envCfg.JournalFlushInterval, journalSvc.FlushTick)

	observer.Start()
	monitor.Start()
	scheduler.Start()

	// 11. Status API
	srv := api.NewServer(
		envCfg.ListenAddress,
		envCfg.APIPort,
		tracker,
		registry,
		observer,
		journalRepo,
	)
	go func() {
		log.Printf("[main] status API listening on %s:%d", envCfg.ListenAddress, envCfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] API server error: %v", err)
		}
	}()

	// 12. Graceful shutdown: API first, then periodic work, then the
	// event consumers, then the journal drain.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("[main] received signal %s, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[main] API shutdown error: %v", err)
	}

	scheduler.Stop()
	monitor.Stop()
	observer.Stop()
	journalSvc.Stop()
	selector.Shutdown()
	tracker.Shutdown()
	if err := geoTables.Close(); err != nil {
		log.Printf("[main] geo close error: %v", err)
	}
	log.Println("[main] stopped")
}

func mustSchedule(s *sched.Scheduler, name string, period time.Duration, fn func()) {
	if err := s.Every(name, period, fn); err != nil {
		log.Fatalf("[main] schedule %s: %v", name, err)
	}
}
