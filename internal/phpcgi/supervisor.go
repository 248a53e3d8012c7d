// Package phpcgi supervises locally spawned `php-cgi` processes in FastCGI
// responder mode (spec.md §4.E), one per configured PhpCgiHandler. It is
// only meaningful on Windows; on other platforms Start returns an error so
// callers fall back to reporting a PHPError.
//
// Grounded on the process-supervisor shape of
// _examples/other_examples/46717a7b_mylxsw-gophpfpm__process.go.go and
// _examples/other_examples/1b53641e_doytsujin-gofast__tools-phpfpm-process.go.go
// (exec.Cmd lifecycle, listen-address construction), generalized from
// php-fpm's config-file model to php-cgi's command-line `-b` bind flag;
// monitor-loop ticker/stop-channel shape follows the teacher's
// internal/scheduler/renewal.go; CPU-derived concurrency default grounded
// on the teacher's github.com/shirou/gopsutil/v3 dependency.
package phpcgi

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"gruxi/internal/fastcgi"
	"gruxi/internal/gruxlog"
	"gruxi/internal/model"
	"gruxi/internal/portalloc"
)

var log = gruxlog.New("PHPCgiSupervisor")

// errUnsupportedPlatform is returned by Start when not running on Windows;
// win-php-cgi is a Windows-only backend per spec.md §3.
var errUnsupportedPlatform = fmt.Errorf("phpcgi: win-php-cgi is only supported on windows")

const (
	monitorInterval = 5 * time.Second
	respawnDelay    = 1 * time.Second
	pingConnTimeout = 2 * time.Second
	pingReadTimeout = 1 * time.Second
)

// Supervisor manages one running php-cgi process for a single
// PhpCgiHandler configuration, restarting it if it dies. The current
// port is read under the supervisor's read-write lock (see Port); there
// is no separate atomic port cache.
type Supervisor struct {
	handler model.PhpCgiHandler
	ports   *portalloc.Allocator

	mu      sync.RWMutex
	port    int
	cmd     *exec.Cmd
	running bool

	stop chan struct{}
	done chan struct{}
}

// New creates a Supervisor for handler, allocating ports from ports.
func New(handler model.PhpCgiHandler, ports *portalloc.Allocator) *Supervisor {
	return &Supervisor{handler: handler, ports: ports}
}

// Start launches the php-cgi process and begins the background monitor
// loop. Only valid on Windows.
func (s *Supervisor) Start(ctx context.Context) error {
	if runtime.GOOS != "windows" {
		return errUnsupportedPlatform
	}

	if err := s.spawn(); err != nil {
		return err
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.monitorLoop()
	return nil
}

func (s *Supervisor) spawn() error {
	port, err := s.ports.Allocate(s.handler.ID)
	if err != nil {
		return fmt.Errorf("phpcgi: allocate port for %s: %w", s.handler.ID, err)
	}

	children := s.handler.ConcurrentThreads
	if children <= 0 {
		children = concurrencyFromCPUCount()
	}

	cmd := exec.Command(s.handler.ExecutablePath, "-b", fmt.Sprintf("127.0.0.1:%d", port))
	cmd.Env = append(cmd.Env,
		fmt.Sprintf("PHP_FCGI_CHILDREN=%d", children),
		"PHP_FCGI_MAX_REQUESTS=10000",
	)
	if err := cmd.Start(); err != nil {
		s.ports.Release(port)
		return fmt.Errorf("phpcgi: start %s: %w", s.handler.ExecutablePath, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.port = port
	s.running = true
	s.mu.Unlock()

	log.Infof("spawned php-cgi handler %s on port %d (children=%d)", s.handler.ID, port, children)
	return nil
}

// concurrencyFromCPUCount derives a default PHP_FCGI_CHILDREN count from
// the physical CPU count (spec.md §4.E), falling back to 4 if detection
// fails.
func concurrencyFromCPUCount() int {
	counts, err := cpu.Counts(true)
	if err != nil || counts <= 0 {
		return 4
	}
	return counts
}

// Port returns the currently bound FastCGI port.
func (s *Supervisor) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// Addr returns the "127.0.0.1:port" address for the currently running
// process.
func (s *Supervisor) Addr() string {
	return fmt.Sprintf("127.0.0.1:%d", s.Port())
}

func (s *Supervisor) monitorLoop() {
	defer close(s.done)
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.terminate()
			return
		case <-ticker.C:
			if s.processExited() {
				log.Warnf("php-cgi handler %s exited unexpectedly, respawning", s.handler.ID)
				s.restart()
				continue
			}
			if !s.ping() {
				log.Warnf("php-cgi handler %s failed keep-alive ping, restarting", s.handler.ID)
				s.terminate()
				s.restart()
			}
		}
	}
}

func (s *Supervisor) processExited() bool {
	s.mu.RLock()
	cmd := s.cmd
	s.mu.RUnlock()
	if cmd == nil || cmd.Process == nil {
		return true
	}
	return cmd.ProcessState != nil
}

func (s *Supervisor) ping() bool {
	client := fastcgi.NewClient(s.Addr(), pingConnTimeout+pingReadTimeout, 0)
	ctx, cancel := context.WithTimeout(context.Background(), pingConnTimeout+pingReadTimeout)
	defer cancel()
	env := fastcgi.BuildEnv(fastcgi.EnvParams{
		Method:         "GET",
		RequestURI:     "/",
		ScriptName:     "/",
		ScriptFilename: "",
		DocumentRoot:   "",
		ServerSoftware: "Gruxi",
	})
	_, err := client.Do(ctx, env, nil)
	return err == nil
}

func (s *Supervisor) restart() {
	s.mu.Lock()
	oldPort := s.port
	s.mu.Unlock()
	if oldPort != 0 {
		s.ports.Release(oldPort)
	}
	time.Sleep(respawnDelay)
	if err := s.spawn(); err != nil {
		log.Errorf("respawn of %s failed: %v", s.handler.ID, err)
	}
}

func (s *Supervisor) terminate() {
	s.mu.Lock()
	cmd := s.cmd
	port := s.port
	s.running = false
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}
	if port != 0 {
		s.ports.Release(port)
	}
}

// Stop terminates the php-cgi process and releases its port, waiting for
// the monitor loop to exit.
func (s *Supervisor) Stop() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
}

// Running reports whether the supervised process is currently believed to
// be alive.
func (s *Supervisor) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
