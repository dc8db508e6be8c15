// Command htn-server exposes internal/httpapi over HTTP, backed by Redis
// persistence, with an optional cron-scheduled re-learn sweep over every
// stored domain that also has a stored plan trace — the always-on
// counterpart to running htn-maker by hand after every new plan trace.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"htnlearn/internal/config"
	"htnlearn/internal/httpapi"
	"htnlearn/internal/learn"
	"htnlearn/internal/logic"
	"htnlearn/internal/progress"
	"htnlearn/internal/store"
)

func main() {
	if err := config.LoadEnvFile(); err != nil {
		log.Printf("note: could not load .env file: %v (continuing without it)", err)
	}

	var (
		configPath  = flag.String("config", "config.json", "path to configuration file")
		port        = flag.Int("port", 8080, "HTTP listen port")
		redisAddr   = flag.String("redis", "", "Redis address (overrides config file)")
		natsURL     = flag.String("nats", "", "NATS URL for learning-run progress events (empty: disabled)")
		relearnCron = flag.String("relearn-cron", "", "cron expression for the periodic re-learn sweep (empty: disabled)")
	)
	flag.Parse()

	cfg := config.Load(*configPath, *port)
	config.ApplyEnvOverrides(cfg)
	if *redisAddr != "" {
		cfg.RedisAddr = *redisAddr
	}
	if *natsURL != "" {
		cfg.NATSURL = *natsURL
	}
	if *relearnCron != "" {
		cfg.RelearnCron = *relearnCron
	}

	st := store.New(cfg.RedisAddr, 0*time.Second)
	srv := httpapi.New(st)

	var bus *progress.Bus
	if cfg.NATSURL != "" {
		connected, err := progress.Connect(progress.Config{URL: cfg.NATSURL})
		if err != nil {
			log.Printf("⚠️ [HTN-SERVER] could not connect to NATS at %s, running without progress events: %v", cfg.NATSURL, err)
		} else {
			bus = connected
			defer bus.Close()
			log.Printf("✅ [HTN-SERVER] publishing learning-run progress to %s", cfg.NATSURL)
		}
	}

	var scheduler *cron.Cron
	if cfg.RelearnCron != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.RelearnCron, func() { relearnSweep(st, bus) }); err != nil {
			log.Fatalf("htn-server: invalid -relearn-cron expression %q: %v", cfg.RelearnCron, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Printf("✅ [HTN-SERVER] re-learn sweep scheduled: %s", cfg.RelearnCron)
	}

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	log.Printf("✅ [HTN-SERVER] listening on %s (redis=%s)", addr, cfg.RedisAddr)
	if err := http.ListenAndServe(addr, srv.Router()); err != nil {
		log.Fatalf("htn-server: %v", err)
	}
}

// relearnSweep re-runs the learning driver over every domain that has a
// plan trace stored under its own name (the convention htn-maker's
// -redis mode and the /learn handler both follow: SavePlan is called
// with id == domain name). Since no task descriptors are persisted
// alongside a plan trace, Driver.Run is given none; with NDCheckers on,
// this still has work to do whenever operators matching the "-NN"
// non-deterministic naming convention have been added to the domain
// since it was last learned, and it re-runs subsumption reconciliation
// over the existing method set either way.
func relearnSweep(st *store.Store, bus *progress.Bus) {
	ctx := context.Background()
	names, err := st.ListDomainNames(ctx)
	if err != nil {
		log.Printf("⚠️ [HTN-SERVER] relearn sweep: listing domains: %v", err)
		return
	}
	for _, name := range names {
		arena := logic.NewArena()
		d, err := st.LoadDomain(ctx, arena, name)
		if err != nil {
			log.Printf("⚠️ [HTN-SERVER] relearn sweep: loading domain %s: %v", name, err)
			continue
		}
		p, err := st.LoadPlan(ctx, arena, d, name)
		if err != nil {
			continue // no stored plan trace for this domain: nothing to relearn from
		}

		driver := learn.NewDriver(arena, d, learn.Options{SoundnessCheck: true, VarLinkage: true, DropUnneeded: true, NDCheckers: true})
		driver.Progress = bus
		_, learned, err := driver.Run(p, nil)
		if err != nil {
			log.Printf("⚠️ [HTN-SERVER] relearn sweep: domain %s: %v", name, err)
			continue
		}
		if len(learned) == 0 {
			continue
		}
		if err := st.SaveDomain(ctx, d); err != nil {
			log.Printf("⚠️ [HTN-SERVER] relearn sweep: saving domain %s: %v", name, err)
			continue
		}
		log.Printf("✅ [HTN-SERVER] relearn sweep: domain %s gained %d method(s)", name, len(learned))
	}
}
