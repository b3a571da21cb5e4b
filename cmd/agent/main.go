// Command agent runs the user-upload reconciliation pipeline: it polls (or,
// in single-ticket mode, inspects one ticket from) the issue tracker, and
// advances each open ticket through the §4.1 state machine until it is
// parked in Review, Info Required, or Done.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"useruploadagent/pkg/agenterr"
	"useruploadagent/pkg/aiadapter"
	"useruploadagent/pkg/aiadapter/anthropic"
	"useruploadagent/pkg/aiadapter/openai"
	"useruploadagent/pkg/backend"
	"useruploadagent/pkg/config"
	"useruploadagent/pkg/journal"
	"useruploadagent/pkg/logx"
	"useruploadagent/pkg/metrics"
	"useruploadagent/pkg/orchestrator"
	"useruploadagent/pkg/tracker"
	"useruploadagent/pkg/tracker/jiracloud"
	"useruploadagent/pkg/vault"
)

func main() {
	var (
		configPath   string
		once         bool
		watch        bool
		singleTicket bool
		ticketKey    string
		intervalSecs int
		dryRun       bool
		verbose      bool
	)
	flag.StringVar(&configPath, "config", "", "path to the agent's YAML config file")
	flag.BoolVar(&once, "once", true, "process one batch of matching tickets and exit (the default mode)")
	flag.BoolVar(&watch, "watch", false, "poll forever instead of processing one batch and exiting")
	flag.BoolVar(&singleTicket, "single-ticket", false, "process exactly one ticket, named by -ticket, and exit")
	flag.StringVar(&ticketKey, "ticket", "", "the ticket key for -single-ticket")
	flag.IntVar(&intervalSecs, "interval", 0, "poll interval in seconds in -watch mode, overrides config's poll_interval_seconds")
	flag.BoolVar(&dryRun, "dry-run", false, "use the in-memory mock identity backend instead of a live one")
	flag.BoolVar(&verbose, "verbose", false, "force debug-level logging regardless of config's log_level")
	flag.Parse()

	if configPath == "" {
		log.Fatal("agent: -config is required")
	}
	if singleTicket && ticketKey == "" {
		log.Fatal("agent: -single-ticket requires -ticket")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("agent: %v", err)
	}
	if dryRun {
		cfg.Backend.Mock = true
	}
	config.Set(cfg)
	if verbose {
		logx.SetLevel(logx.LevelDebug)
	} else {
		logx.SetLevel(logx.ParseLevel(cfg.LogLevel))
	}

	o, closeFns, err := build(cfg)
	if err != nil {
		log.Fatalf("agent: %v", err)
	}
	defer func() {
		for _, fn := range closeFns {
			fn()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch {
	case singleTicket:
		os.Exit(runSingleTicket(ctx, o, ticketKey))
	case watch:
		interval := time.Duration(intervalSecs) * time.Second
		if interval == 0 {
			interval = time.Duration(cfg.PollIntervalSeconds) * time.Second
		}
		runWatch(ctx, o, cfg.JQL, interval)
	default:
		os.Exit(runBatch(ctx, o, cfg.JQL))
	}
}

// build wires every pipeline component from cfg, mirroring the teacher's
// NewOrchestrator construction: one concrete client per dependency, assembled
// into the shared orchestrator.Orchestrator. It returns cleanup functions the
// caller must run, in order, before exiting.
func build(cfg *config.Config) (*orchestrator.Orchestrator, []func(), error) {
	var closeFns []func()

	trk := tracker.Client(jiracloud.New(jiracloud.Config{
		Domain:   cfg.Tracker.Domain,
		Email:    cfg.Tracker.Email,
		APIToken: cfg.Tracker.APIToken,
	}))

	var ai aiadapter.Client
	if cfg.AI.APIKey != "" {
		switch cfg.AI.Provider {
		case "openai":
			ai = openai.New(cfg.AI.APIKey, cfg.AI.Model)
		default:
			ai = anthropic.New(cfg.AI.APIKey, cfg.AI.Model)
		}
	}

	vs := vault.New(cfg.Vault.Binary, "not found")

	var be backend.Client
	if cfg.Backend.Mock {
		be = backend.NewMockClient()
	} else {
		be = backend.NewHTTPClient(cfg.Backend.BaseURL, 30*time.Second)
	}

	o := orchestrator.New(trk, ai, vs, be, orchestrator.Config{
		TrackerDomain:      cfg.Tracker.Domain,
		BotAccountID:       cfg.Tracker.BotAccountID,
		BotAccountName:     cfg.Tracker.BotAccountName,
		AttachmentMaxBytes: cfg.AttachmentMaxBytes,
		VaultEmailTemplate: cfg.Vault.EmailTemplate,
	})

	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open run journal: %w", err)
		}
		o.Journal = j
		closeFns = append(closeFns, func() {
			if err := j.Close(); err != nil {
				o.Logger.Warn("failed to close run journal: %v", err)
			}
		})
	}

	if cfg.MetricsAddr != "" {
		o.Metrics = metrics.NewRecorder()
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				o.Logger.Error("metrics server stopped: %v", err)
			}
		}()
		closeFns = append(closeFns, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
	}

	return o, closeFns, nil
}

// runSingleTicket fetches and processes exactly one ticket. It exits 1 if the
// fetch or the processing step returned a fatal error (§7), 0 otherwise.
func runSingleTicket(ctx context.Context, o *orchestrator.Orchestrator, key string) int {
	t, err := o.Tracker.GetTicket(ctx, key)
	if err != nil {
		o.Logger.Error("fetch ticket %s: %v", key, err)
		return 1
	}
	result, err := o.ProcessTicket(ctx, t)
	if err != nil {
		o.Logger.Error("process ticket %s: %v", key, err)
		if isFatal(err) {
			return 1
		}
	}
	o.Logger.Info("ticket %s: status=%s next_state=%s message=%q", key, result.Status, result.NextState, result.Message)
	return 0
}

// runBatch processes every ticket the query matches, once, and returns an
// exit code: 1 if any fatal error (§7) was hit, 0 otherwise.
func runBatch(ctx context.Context, o *orchestrator.Orchestrator, query string) int {
	tickets, err := o.Tracker.Search(ctx, query)
	if err != nil {
		o.Logger.Error("search tickets: %v", err)
		return 1
	}
	for i := range tickets {
		if _, err := o.ProcessTicket(ctx, &tickets[i]); err != nil {
			o.Logger.Error("process ticket %s: %v", tickets[i].Key, err)
			if isFatal(err) {
				return 1
			}
		}
	}
	return 0
}

// runWatch polls the tracker at interval until SIGINT/SIGTERM, processing
// whichever tickets the query matches on each pass. A fatal error (§7) stops
// the loop; a per-ticket error only skips that ticket.
func runWatch(ctx context.Context, o *orchestrator.Orchestrator, query string, interval time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	o.Logger.Info("watching with jql=%q interval=%s", query, interval)

	for {
		tickets, err := o.Tracker.Search(ctx, query)
		if err != nil {
			o.Logger.Error("search tickets: %v", err)
		} else {
			for i := range tickets {
				select {
				case sig := <-sigChan:
					o.Logger.Info("received signal %v mid-batch, stopping before next ticket", sig)
					return
				default:
				}
				if _, err := o.ProcessTicket(ctx, &tickets[i]); err != nil {
					o.Logger.Error("process ticket %s: %v", tickets[i].Key, err)
					if isFatal(err) {
						o.Logger.Error("fatal error, shutting down")
						return
					}
				}
			}
		}

		select {
		case sig := <-sigChan:
			o.Logger.Info("received signal %v, shutting down", sig)
			return
		case <-ticker.C:
		}
	}
}

// isFatal reports whether err is a ConfigError or VaultUnavailable (§7),
// which halt the whole run rather than being scoped to one ticket.
func isFatal(err error) bool {
	var aerr *agenterr.Error
	if agenterr.As(err, &aerr) {
		return aerr.Kind.Fatal()
	}
	return false
}
