// Package runstate owns the single atomically-swappable "running state"
// of spec.md §4.R: everything built from one configuration snapshot
// (processor manager, request-handler manager, file cache, access-log
// buffer, PHP-CGI supervisors, proxy load-balancer registry, and the
// binding→site association), replaced as a unit on
// `reload_configuration`.
//
// Grounded on the teacher's `internal/service/nginx_reload.go` debounced
// rebuild-then-swap pattern, generalized from "regenerate an nginx.conf
// and SIGHUP" to "build a fresh Go value and swap it under a lock".
package runstate

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"gruxi/internal/accesslog"
	"gruxi/internal/configcache"
	"gruxi/internal/filecache"
	"gruxi/internal/gruxlog"
	"gruxi/internal/loadbalance"
	"gruxi/internal/model"
	"gruxi/internal/phpcgi"
	"gruxi/internal/portalloc"
	"gruxi/internal/processor"
	"gruxi/internal/reqhandler"
	"gruxi/internal/trigger"
)

var log = gruxlog.New("RunState")

// State is one immutable generation of the running state, built from a
// single configuration snapshot.
type State struct {
	Config *model.CachedConfiguration

	Processors   *processor.Manager
	Handlers     *reqhandler.Manager
	FileCache    *filecache.Cache
	AccessLog    *accesslog.Buffer
	LoadBalancer *loadbalance.Registry

	phpSupervisors []*phpcgi.Supervisor

	bindingSites map[string][]*model.Site
}

// SitesForBinding returns the enabled sites attached to a binding id in
// this generation.
func (s *State) SitesForBinding(bindingID string) []*model.Site {
	return s.bindingSites[bindingID]
}

// Manager owns the currently active State and swaps it atomically when
// the configuration reloads.
type Manager struct {
	cache *configcache.Cache
	ports *portalloc.Allocator
	bus   *trigger.Bus

	mu      sync.RWMutex
	current *State
}

// New creates a Manager with no active state; call Reload before serving
// traffic.
func New(cache *configcache.Cache, ports *portalloc.Allocator, bus *trigger.Bus) *Manager {
	return &Manager{cache: cache, ports: ports, bus: bus}
}

// Current returns the active running-state generation.
func (m *Manager) Current() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Reload fetches a fresh configuration snapshot, builds a new State, and
// swaps it in, per spec.md §4.R steps 1-3. Supervisors from the previous
// generation are stopped only after the swap, so in-flight requests keep
// a live backend until they finish.
func (m *Manager) Reload(ctx context.Context) error {
	cfg, err := m.cache.Get(ctx)
	if err != nil {
		return fmt.Errorf("runstate: loading configuration: %w", err)
	}

	next := Build(cfg, m.ports)

	m.mu.Lock()
	prev := m.current
	m.current = next
	m.mu.Unlock()

	if prev != nil {
		for _, sup := range prev.phpSupervisors {
			sup.Stop()
		}
	}

	m.bus.Fire(trigger.StopServices)
	log.Infof("running state reloaded (schema_version=%d, bindings=%d, sites=%d)",
		cfg.SchemaVersion, len(cfg.Bindings), len(cfg.Sites))
	return nil
}

// WatchReload starts a background goroutine that calls Reload each time
// the bus's reload_configuration trigger fires, until ctx is done.
func (m *Manager) WatchReload(ctx context.Context) {
	go func() {
		for {
			tok := m.bus.GetToken(trigger.ReloadConfiguration)
			select {
			case <-ctx.Done():
				return
			case <-tok.Done():
				if err := m.Reload(ctx); err != nil {
					log.Errorf("reload failed: %v", err)
				}
			}
		}
	}()
}

// Build constructs a fresh State from a configuration snapshot: the
// processor manager, request-handler manager, file cache, access-log
// buffer, PHP-CGI supervisors (one per win-php-cgi handler, started
// immediately), load-balancer registry, and binding→site cache.
// Construction is additive and idempotent (spec.md §4.R): starting a
// fresh set of supervisors never interferes with a previous generation's
// still-running ones, since each gets its own port allocation.
func Build(cfg *model.CachedConfiguration, ports *portalloc.Allocator) *State {
	fc := filecache.New(cfg.Core.FileCache, cfg.Core.Gzip)
	lb := loadbalance.New()
	al := accesslog.New()

	procs := processor.NewManager()

	supervisorsByHandlerID := make(map[string]*phpcgi.Supervisor, len(cfg.PhpCgiHandlers))
	var supervisors []*phpcgi.Supervisor
	for _, h := range cfg.PhpCgiHandlers {
		sup := phpcgi.New(h, ports)
		if err := sup.Start(context.Background()); err != nil {
			log.Warnf("php-cgi handler %s: %v", h.ID, err)
		}
		supervisorsByHandlerID[h.ID] = sup
		supervisors = append(supervisors, sup)
	}

	for _, sp := range cfg.StaticFile {
		procs.RegisterStatic(sp.ID, processor.NewStatic(sp, fc, cfg.Core.ServerSettings))
	}

	for _, pp := range cfg.PHP {
		var backend processor.PHPBackend
		switch pp.ServedByType {
		case model.PHPServedByPHPFPM:
			backend = processor.NewFixedBackend(pp.FastCGIIPAndPort)
		case model.PHPServedByWinPHPCGI:
			if sup, ok := supervisorsByHandlerID[pp.PHPCgiHandlerID]; ok {
				backend = processor.NewSupervisedBackend(sup)
			} else {
				log.Warnf("php processor %s references unknown php-cgi handler %s", pp.ID, pp.PHPCgiHandlerID)
				continue
			}
		}
		php, err := processor.NewPHP(pp, backend)
		if err != nil {
			log.Warnf("php processor %s: %v", pp.ID, err)
			continue
		}
		procs.RegisterPHP(pp.ID, php)
	}

	for _, xp := range cfg.Proxy {
		procs.RegisterProxy(xp.ID, processor.NewProxy(xp, lb))
	}

	handlers := reqhandler.New(cfg.Handlers, procs)

	bindingSites := make(map[string][]*model.Site, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		bindingSites[b.ID] = cfg.SitesForBinding(&b)
	}

	for _, site := range cfg.Sites {
		if site.AccessLogEnabled && site.AccessLogPath != "" {
			al.Register(site.ID, filepath.Clean(site.AccessLogPath))
		}
	}

	return &State{
		Config:         cfg,
		Processors:     procs,
		Handlers:       handlers,
		FileCache:      fc,
		AccessLog:      al,
		LoadBalancer:   lb,
		phpSupervisors: supervisors,
		bindingSites:   bindingSites,
	}
}
