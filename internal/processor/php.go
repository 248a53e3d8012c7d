package processor

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gruxi/internal/fastcgi"
	"gruxi/internal/httpmsg"
	"gruxi/internal/model"
	"gruxi/internal/pathnorm"
	"gruxi/internal/phpcgi"
)

// PHPBackend abstracts obtaining a live FastCGI client for a PHPProcessor,
// whether served by php-fpm (a fixed address) or win-php-cgi (a
// supervised local process whose port may change across restarts).
type PHPBackend interface {
	// Addr returns the current "host:port" to dial.
	Addr() (string, error)
	// Permit returns an optional connection-limit semaphore channel, or
	// nil if unbounded.
	Permit() chan struct{}
}

// fixedBackend is used for ServedByType == php-fpm.
type fixedBackend struct{ addr string }

// NewFixedBackend wraps a fixed "host:port" php-fpm address as a
// PHPBackend.
func NewFixedBackend(addr string) PHPBackend { return fixedBackend{addr: addr} }

func (f fixedBackend) Addr() (string, error) { return f.addr, nil }
func (f fixedBackend) Permit() chan struct{} { return nil }

// supervisedBackend is used for ServedByType == win-php-cgi.
type supervisedBackend struct {
	sup *phpcgi.Supervisor
}

// NewSupervisedBackend wraps a win-php-cgi process supervisor as a
// PHPBackend, tracking its current (possibly respawned) port.
func NewSupervisedBackend(sup *phpcgi.Supervisor) PHPBackend { return supervisedBackend{sup: sup} }

func (s supervisedBackend) Addr() (string, error) { return s.sup.Addr(), nil }
func (s supervisedBackend) Permit() chan struct{} { return nil }

// PHPProcessor forwards requests to a FastCGI PHP backend (spec.md §4.H).
type PHPProcessor struct {
	cfg            model.PHPProcessor
	backend        PHPBackend
	localWebRoot   string
	fastcgiWebRoot string
}

// NewPHP builds a PHPProcessor. backend resolves the live FastCGI address
// per spec.md §4.H step 2.
func NewPHP(cfg model.PHPProcessor, backend PHPBackend) (*PHPProcessor, error) {
	localWebRoot, err := filepath.Abs(cfg.LocalWebRoot)
	if err != nil {
		return nil, &model.PHPError{Kind: model.PHPKindPathError, Msg: err.Error()}
	}
	fastcgiWebRoot := cfg.FastCGIWebRoot
	if fastcgiWebRoot == "" {
		fastcgiWebRoot = localWebRoot
	}
	return &PHPProcessor{cfg: cfg, backend: backend, localWebRoot: localWebRoot, fastcgiWebRoot: fastcgiWebRoot}, nil
}

// HandleRequest implements spec.md §4.H steps 1-5.
func (p *PHPProcessor) HandleRequest(req *httpmsg.Request, site *model.Site) (*httpmsg.Response, error) {
	np, err := pathnorm.New(p.localWebRoot, req.Path())
	if err != nil {
		return nil, &model.PHPError{Kind: model.PHPKindNotFound, Msg: err.Error()}
	}

	scriptFile, isDirWithIndex, pathInfo, err := resolveScriptAndPathInfo(p.localWebRoot, np)
	if err != nil {
		return nil, err
	}

	addr, err := p.backend.Addr()
	if err != nil {
		return nil, &model.PHPError{Kind: model.PHPKindConnection, Msg: err.Error()}
	}

	fastcgiScriptFile := rewriteWebRootPrefix(scriptFile, p.localWebRoot, p.fastcgiWebRoot)

	body, _ := io.ReadAll(req.Body())

	scriptName := strings.TrimPrefix(fastcgiScriptFile, p.fastcgiWebRoot)
	if !strings.HasPrefix(scriptName, "/") {
		scriptName = "/" + scriptName
	}

	env := fastcgi.BuildEnv(fastcgi.EnvParams{
		Method:          req.Raw.Method,
		RequestURI:      req.Raw.URL.RequestURI(),
		QueryString:     req.Query(),
		ScriptName:      scriptName,
		ScriptFilename:  fastcgiScriptFile,
		DocumentRoot:    p.fastcgiWebRoot,
		ContentLength:   req.Raw.ContentLength,
		ContentType:     req.Raw.Header.Get("Content-Type"),
		ServerSoftware:  fastcgi.ServerSoftware(p.cfg.ServerSoftwareSpoof),
		ServerName:      req.Hostname(),
		ServerPort:      req.ServerPort(),
		HTTPS:           req.IsHTTPS(),
		RemoteAddr:      req.Raw.RemoteAddr,
		Host:            req.Raw.Host,
		Headers:         req.Raw.Header,
		IsDirectoryRoot: isDirWithIndex,
		PathInfo:        pathInfo,
	})

	timeout := time.Duration(p.cfg.RequestTimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := fastcgi.NewClient(addr, timeout, 0)
	if permit := p.backend.Permit(); permit != nil {
		client.Permit = permit
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := client.Do(ctx, env, body)
	if err != nil {
		if fe, ok := err.(*model.FastCGIError); ok {
			switch fe.Kind {
			case model.FastCGIKindTimeout:
				return nil, &model.PHPError{Kind: model.PHPKindTimeout, Msg: fe.Error()}
			case model.FastCGIKindConnection, model.FastCGIKindPermit:
				return nil, &model.PHPError{Kind: model.PHPKindConnection, Msg: fe.Error()}
			}
		}
		return nil, &model.PHPError{Kind: model.PHPKindConnection, Msg: err.Error()}
	}

	resp := httpmsg.NewBuffered(result.StatusCode, result.Body)
	for k, vs := range result.Header {
		for _, v := range vs {
			resp.Header.Add(k, v)
		}
	}
	return resp, nil
}

// resolveScriptAndPathInfo locates the on-disk PHP script a normalised
// request path maps to, per spec.md §4.H step 3 / §4.D "PATH_INFO
// computation": a direct hit on a directory serves its index.php; a
// direct hit on a file serves that file; otherwise the longest
// ".php"-suffixed prefix of the path that exists on disk is the script,
// and whatever follows it becomes PATH_INFO (e.g. /index.php/extra/path).
func resolveScriptAndPathInfo(localWebRoot string, np *pathnorm.NormalizedPath) (scriptFile string, isDirWithIndex bool, pathInfo string, err error) {
	scriptFile = np.FullPath

	info, statErr := os.Stat(scriptFile)
	switch {
	case statErr == nil && info.IsDir():
		scriptFile = filepath.Join(scriptFile, "index.php")
		if _, statErr := os.Stat(scriptFile); statErr != nil {
			return "", false, "", &model.PHPError{Kind: model.PHPKindNotFound, Msg: scriptFile}
		}
		return scriptFile, true, "", nil
	case statErr == nil:
		return scriptFile, false, "", nil
	}

	exists := func(relPath string) bool {
		info, err := os.Stat(filepath.Join(localWebRoot, filepath.FromSlash(relPath)))
		return err == nil && !info.IsDir()
	}
	scriptRelPath, extra := fastcgi.ComputePathInfo(np.Path, exists)
	if !exists(scriptRelPath) {
		return "", false, "", &model.PHPError{Kind: model.PHPKindNotFound, Msg: scriptFile}
	}
	return filepath.Join(localWebRoot, filepath.FromSlash(scriptRelPath)), false, extra, nil
}

// rewriteWebRootPrefix translates a path rooted at localRoot into the
// equivalent path rooted at fastcgiRoot (spec.md §4.H "Web-root
// rewriting").
func rewriteWebRootPrefix(p, localRoot, fastcgiRoot string) string {
	if localRoot == fastcgiRoot {
		return p
	}
	if rel := strings.TrimPrefix(p, localRoot); rel != p {
		return filepath.Join(fastcgiRoot, rel)
	}
	return p
}
