// cmd/gateway/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"s7gateway/internal/api"
	"s7gateway/internal/api/handler"
	"s7gateway/internal/batch"
	"s7gateway/internal/config"
	"s7gateway/internal/monitor"
	"s7gateway/internal/notify"
	"s7gateway/internal/registry"
	"s7gateway/internal/repository"
	"s7gateway/internal/scheduler"
	"s7gateway/internal/session"
	"s7gateway/pkg/database"
	"s7gateway/pkg/resilience"
)

const asyncRWInterval = 200 * time.Millisecond

// plcRuntime bundles the per-PLC runtime pieces the scheduler and the
// API layer both need: the async session the scheduler sweeps, the sync
// session the REST handlers use, and each one's supervisor/engine.
type plcRuntime struct {
	name       string
	sync       *session.Session
	async      *session.Session
	syncSv     *session.Supervisor
	asyncSv    *session.Supervisor
	syncEngine *batch.Engine
}

func main() {
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		log.Fatalf("gateway: erro ao carregar configurações: %v", err)
	}

	db, err := database.Open(cfg.Postgres)
	if err != nil {
		log.Fatalf("gateway: erro ao conectar ao banco de dados: %v", err)
	}
	defer db.Close()
	log.Println("gateway: conexão com o banco de dados estabelecida")

	repo := repository.NewTagRepository(db)
	decls, err := repo.LoadDeclarations()
	if err != nil {
		log.Fatalf("gateway: erro ao carregar declarações de tags: %v", err)
	}
	log.Printf("gateway: %d declarações de tags carregadas", len(decls))

	pool := monitor.NewPool(cfg.WorkerPoolSize, cfg.WorkerQueueSize)
	pool.Start()
	defer pool.Stop()

	reg := registry.New(pool)
	plcNames := make(map[string]bool)
	for _, d := range decls {
		if _, err := reg.Create(d); err != nil {
			log.Fatalf("gateway: declaração de tag %q inválida: %v", d.TagPath, err)
		}
		plcNames[d.PLC] = true
	}

	publisher, err := notify.NewPublisher(notify.Config{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatalf("gateway: erro ao conectar ao Redis: %v", err)
	}
	defer publisher.Close()

	for _, t := range reg.All() {
		for _, kind := range []monitor.EventKind{monitor.Change, monitor.Rising, monitor.Falling, monitor.Both} {
			t.Monitor.On(kind, publisher.Handler())
		}
	}

	configDir := os.Getenv("PLC_CONFIG_DIR")
	if configDir == "" {
		configDir = "configs"
	}

	sch := scheduler.New()
	runtimes := make(map[string]*plcRuntime, len(plcNames))
	engines := make(map[string]*batch.Engine, len(plcNames))

	for name := range plcNames {
		plcCfg, err := config.LoadPLCFileConfig(filepath.Join(configDir, name+".ini"))
		if err != nil {
			log.Fatalf("gateway: erro ao carregar configuração do plc %q: %v", name, err)
		}

		rt := newPLCRuntime(name, plcCfg)
		if err := rt.sync.Connect(); err != nil {
			log.Printf("gateway: plc %q: conexão síncrona inicial falhou, supervisor tentará reconectar: %v", name, err)
		}
		if err := rt.async.Connect(); err != nil {
			log.Printf("gateway: plc %q: conexão assíncrona inicial falhou, supervisor tentará reconectar: %v", name, err)
		}

		rt.syncSv.EnableHeartbeat(plcCfg.MonitorDB, plcCfg.ByteOffset, plcCfg.BitIndex)
		rt.syncSv.Start()
		rt.asyncSv.Start()

		runtimes[name] = rt
		engines[name] = rt.syncEngine

		plcTags := reg.ByPLC(name)
		breaker := resilience.NewCircuitBreaker(5, 30*time.Second)
		logListener := func(job string, err error, d time.Duration) {
			if err != nil {
				log.Printf("scheduler: job %s falhou em %v: %v", job, d, err)
			}
		}

		asyncEngine := batch.New(rt.async)
		sch.AddJob(name+".read_all", asyncRWInterval, func() error {
			results := asyncEngine.ReadAll(plcTags)
			return firstError(results)
		}, breaker, logListener)

		sch.AddJob(name+".flush_pending", asyncRWInterval, func() error {
			errs := asyncEngine.FlushPending(plcTags)
			for _, err := range errs {
				if err != nil {
					return err
				}
			}
			return nil
		}, breaker, logListener)
	}
	sch.Start()

	plcHandler := handler.NewPLCHandler(reg, engines, cfg.MaxBatchSize)
	server := api.NewServer(cfg, plcHandler)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatalf("gateway: erro ao iniciar servidor: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("gateway: desligando...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("gateway: erro ao desligar servidor: %v", err)
	}

	sch.Stop()
	for _, rt := range runtimes {
		rt.syncSv.Stop()
		rt.asyncSv.Stop()
	}

	log.Println("gateway: finalizado")
}

func newPLCRuntime(name string, plcCfg *config.PLCFileConfig) *plcRuntime {
	syncSess := session.New(session.Config{
		Name: name + ".sync", Address: plcCfg.IP, Rack: plcCfg.Rack, Slot: plcCfg.Slot,
	})
	asyncSess := session.New(session.Config{
		Name: name + ".async", Address: plcCfg.IP, Rack: plcCfg.Rack, Slot: plcCfg.Slot,
	})

	checkInterval := plcCfg.CheckInterval
	if checkInterval == 0 {
		checkInterval = 5 * time.Second
	}

	return &plcRuntime{
		name:       name,
		sync:       syncSess,
		async:      asyncSess,
		syncSv:     session.NewSupervisor(syncSess, checkInterval, plcCfg.MonitorDB, plcCfg.ByteOffset),
		asyncSv:    session.NewSupervisor(asyncSess, checkInterval, plcCfg.MonitorDB, plcCfg.ByteOffset),
		syncEngine: batch.New(syncSess),
	}
}

// firstError returns the first read error found among results, if any,
// so the scheduler's circuit breaker reacts to block-level failures.
func firstError(results map[string]batch.ReadResult) error {
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}
