// Command amlserver wires and runs one project's AML core: storage
// engine, cache manager, access control, audit logger, memory facade,
// backup manager, learning modules, and the operator HTTP/WS surface.
// Lifecycle wiring follows the teacher's cmd/cliaimonitor/main.go:
// flag-driven config paths, construct-then-serve, graceful shutdown on
// SIGINT/SIGTERM with a final flush.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aml-core/agentmemory/internal/aml/audit"
	"github.com/aml-core/agentmemory/internal/aml/backup"
	"github.com/aml-core/agentmemory/internal/aml/cache"
	"github.com/aml-core/agentmemory/internal/aml/config"
	"github.com/aml-core/agentmemory/internal/aml/events"
	"github.com/aml-core/agentmemory/internal/aml/facade"
	"github.com/aml-core/agentmemory/internal/aml/learning/crossagent"
	"github.com/aml-core/agentmemory/internal/aml/learning/rl"
	"github.com/aml-core/agentmemory/internal/aml/learning/trend"
	"github.com/aml-core/agentmemory/internal/aml/learning/weight"
	"github.com/aml-core/agentmemory/internal/aml/metrics"
	"github.com/aml-core/agentmemory/internal/aml/notify"
	"github.com/aml-core/agentmemory/internal/aml/security"
	"github.com/aml-core/agentmemory/internal/aml/storage"
	"github.com/aml-core/agentmemory/internal/aml/types"

	amlapi "github.com/aml-core/agentmemory/internal/aml/api"
)

func main() {
	configPath := flag.String("config", "configs/aml.yaml", "AML configuration file")
	projectID := flag.String("project", "default", "project identifier (scopes encryption contexts)")
	addr := flag.String("addr", ":8090", "operator HTTP/WS surface listen address")
	eventsPort := flag.Int("events-port", 4222, "embedded events bus port")
	masterKeyEnv := flag.String("master-key-env", "AML_MASTER_KEY", "environment variable holding the encryption master key")
	flag.Parse()

	logger := log.New(os.Stdout, "[amlserver] ", log.LstdFlags)

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, e := range errs {
			logger.Printf("config error: %s: %s", e.Path, e.Message)
		}
		os.Exit(1)
	}

	storagePath := cfg.Storage.Path
	if !filepath.IsAbs(storagePath) {
		wd, _ := os.Getwd()
		storagePath = filepath.Join(wd, storagePath)
	}

	var keys storage.KeyProvider
	if cfg.Storage.Encryption {
		master := os.Getenv(*masterKeyEnv)
		if master == "" {
			logger.Fatalf("storage.encryption is enabled but %s is unset", *masterKeyEnv)
		}
		var err error
		keys, err = storage.NewHKDFKeyProvider([]byte(master))
		if err != nil {
			logger.Fatalf("build key provider: %v", err)
		}
	}

	engine, err := storage.New(storage.Options{
		Root:        storagePath,
		Compression: cfg.Storage.Compression,
		Encryption:  cfg.Storage.Encryption,
		MaxSizeGB:   cfg.Storage.MaxSizeGB,
		Keys:        keys,
	})
	if err != nil {
		logger.Fatalf("init storage engine: %v", err)
	}

	caches := cache.NewManager(cache.ManagerOptions{
		TotalSize: cfg.Performance.CacheMaxSizeMB * 1024,
		TTL:       time.Duration(cfg.Performance.CacheTTLSeconds) * time.Second,
		Policy:    cache.PolicyLRU,
	})

	access := security.NewAccessControl()

	auditLog := audit.New(engine, audit.Options{
		FlushInterval: 60 * time.Second,
		MaxBuffered:   1000,
	})
	defer auditLog.Close()

	store := facade.New(engine, caches, access, auditLog, cfg, *projectID)

	evServer, err := events.NewServer(events.ServerConfig{Port: *eventsPort})
	if err != nil {
		logger.Fatalf("init events server: %v", err)
	}
	if err := evServer.Start(); err != nil {
		logger.Fatalf("start events server: %v", err)
	}
	defer evServer.Shutdown()

	metricsCollector := metrics.NewCollector(24 * time.Hour)

	eventsClient, err := events.Connect(evServer.URL())
	if err != nil {
		logger.Fatalf("connect events client: %v", err)
	}
	defer eventsClient.Close()
	store.WithInstrumentation(eventsClient, metricsCollector)

	backupRoot := cfg.Storage.BackupPath
	if !filepath.IsAbs(backupRoot) {
		wd, _ := os.Getwd()
		backupRoot = filepath.Join(wd, backupRoot)
	}
	backups := backup.New(storagePath, backupRoot)

	notifier := notify.New(notify.Config{
		AppID:       "AML",
		EnableToast: true,
		MinSeverity: notify.SeverityHigh,
		Logger:      logger,
	})

	// Learning modules: constructed here so the operator surface and
	// the usage-feedback dispatcher below share one instance per
	// process, per spec §9's "turn singletons into explicit handles"
	// redesign flag. Each starts from its package's DefaultConfig and
	// layers the project's config-file overrides for the knobs spec §6
	// exposes.
	weightTracker := weight.NewThresholdTracker(weight.DefaultConfig())

	crossAgentRegistry := crossagent.NewRegistry()
	crossAgentCfg := crossagent.DefaultConfig()
	crossAgentCfg.AutoShare = cfg.Sharing.CrossAgent
	crossAgentSharer := crossagent.NewSharer(crossAgentRegistry, crossAgentCfg)

	rlCfg := rl.DefaultConfig()
	rlCfg.Alpha = cfg.Learning.LearningRate
	rlCfg.Gamma = cfg.Learning.DiscountFactor
	rlCfg.Epsilon = cfg.Learning.ExplorationRate
	rlManager := rl.NewManager(rlCfg)

	trendTracker := trend.NewTracker(trend.DefaultConfig())

	// The usage-feedback dispatcher closes the loop spec §2 describes:
	// the facade publishes outcomes onto the events bus, and here they
	// feed the Q-table, the success-weight tracker, and the anomaly
	// time series without the facade importing any learning package
	// directly.
	if _, err := eventsClient.Subscribe(events.SubjectUsageFeedback, func(msg events.Message) {
		var feedback events.UsageFeedbackEvent
		if jerr := json.Unmarshal(msg.Data, &feedback); jerr != nil {
			logger.Printf("decode usage feedback: %v", jerr)
			return
		}

		reward := rl.ShapeReward(feedback.Success, feedback.TimeSavedMs, 1.0, false, 0.0, rlCfg)
		rlManager.UpdateQValue(feedback.Agent, "pattern:"+feedback.PatternID, "reuse", reward, "", nil)
		weightTracker.Record(feedback.PatternID, reward)
		trendTracker.AddPoint(feedback.PatternID, feedback.Timestamp, reward)

		stats := rlManager.AgentStats(feedback.Agent)
		metricsCollector.UpdateLearning(feedback.Agent, metrics.Learning{
			QTableSize:     stats.QTableSize,
			Epsilon:        stats.Epsilon,
			AvgPerformance: stats.AvgPerformance,
			RecentTrend:    stats.RecentTrend,
		})

		for _, anomaly := range trendTracker.DetectAnomalies(feedback.PatternID, trend.SensitivityMedium) {
			notifier.NotifyAnomaly(feedback.PatternID, notify.Severity(anomaly.Severity), fmt.Sprintf("deviation %.2f", anomaly.Deviation))
		}
	}); err != nil {
		logger.Fatalf("subscribe usage feedback: %v", err)
	}

	// Cross-agent sharing dispatcher: every newly written pattern is
	// offered to the sharer, which applies the share threshold, agent
	// compatibility and cross-pollination depth cap from crossAgentCfg
	// before anything actually propagates.
	systemPrincipal := types.Principal{UserID: "system", Role: types.RoleAdmin, ProjectID: *projectID}
	if _, err := eventsClient.Subscribe(events.SubjectPatternWritten, func(msg events.Message) {
		var written events.WriteEvent
		if jerr := json.Unmarshal(msg.Data, &written); jerr != nil {
			logger.Printf("decode pattern-written event: %v", jerr)
			return
		}

		res := store.GetPatterns(systemPrincipal, types.PatternFilter{Agent: written.Agent})
		if !res.Success {
			return
		}
		for _, p := range res.Data.([]types.Pattern) {
			if p.ID != written.ResourceID {
				continue
			}
			records, serr := crossAgentSharer.SharePattern(written.Agent, p)
			if serr != nil {
				logger.Printf("share pattern %s: %v", p.ID, serr)
				break
			}
			for _, rec := range records {
				destPrincipal := systemPrincipal
				destPrincipal.AgentName = rec.To
				if addRes := store.AddPattern(destPrincipal, rec.Adapted); !addRes.Success {
					logger.Printf("persist adapted pattern %s for %s: %v", rec.AdaptedPatternID, rec.To, addRes.Error)
				}
			}
			break
		}
	}); err != nil {
		logger.Fatalf("subscribe pattern-written: %v", err)
	}

	apiServer := amlapi.New(amlapi.Config{
		Addr:     *addr,
		Metrics:  metricsCollector,
		Backups:  backups,
		Notifier: notifier,
		AuditLog: auditLog,
		Logger:   logger,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	logger.Printf("AML core ready: project=%s storage=%s api=%s events=%s", *projectID, storagePath, *addr, evServer.URL())

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Printf("operator API stopped: %v", err)
		}
	case sig := <-shutdown:
		logger.Printf("received %s, shutting down", sig)
	}

	if err := apiServer.Shutdown(); err != nil {
		logger.Printf("api shutdown error: %v", err)
	}
	fmt.Println("amlserver stopped")
}
