// Package processor implements the three request-handling backends of
// spec.md §4.G/H/I (static file, PHP, reverse proxy) and the manager
// that resolves a (processor_type, processor_id) pair to an instance
// (§4.J).
//
// Grounded on the teacher's internal/nginx/utils.go filename-hygiene idiom
// and the proxy transport of
// _examples/other_examples/90b0fdd2_caddyserver-gateway__internal-caddyv2-caddyhttp-reverseproxy-reverseproxy.go.go
// and _examples/other_examples/5881c83a_odac-run-odac__server-proxy-proxy-proxy.go.go.
package processor

import (
	"net/http"
	"path/filepath"
	"strings"

	"gruxi/internal/filecache"
	"gruxi/internal/httpmsg"
	"gruxi/internal/model"
	"gruxi/internal/pathnorm"
)

// StaticProcessor serves files from a web root through the shared file
// cache (spec.md §4.G).
type StaticProcessor struct {
	cfg      model.StaticFileProcessor
	cache    *filecache.Cache
	settings model.ServerSettings
}

// NewStatic builds a StaticProcessor from its configuration, the shared
// cache, and the core server settings (blocked/whitelisted filename
// patterns).
func NewStatic(cfg model.StaticFileProcessor, cache *filecache.Cache, settings model.ServerSettings) *StaticProcessor {
	return &StaticProcessor{cfg: cfg, cache: cache, settings: settings}
}

// HandleRequest implements spec.md §4.G steps 1-7.
func (p *StaticProcessor) HandleRequest(req *httpmsg.Request, site *model.Site) (*httpmsg.Response, error) {
	webRoot, err := filepath.Abs(p.cfg.WebRoot)
	if err != nil {
		return nil, &model.StaticFileError{Kind: model.StaticKindPathError, Path: p.cfg.WebRoot, Msg: err.Error()}
	}

	np, err := pathnorm.New(webRoot, req.Path())
	if err != nil {
		return nil, &model.StaticFileError{Kind: model.StaticKindNotFound, Path: req.Path(), Msg: err.Error()}
	}

	entry, err := p.cache.Get(np.FullPath)
	if err != nil {
		return nil, &model.StaticFileError{Kind: model.StaticKindInternal, Path: np.FullPath, Msg: err.Error()}
	}

	if !entry.Exists {
		if site.HasRewrite(model.RewriteOnlyWebRootIndexForSubdirs) {
			np2, err := pathnorm.New(webRoot, "/")
			if err != nil {
				return nil, &model.StaticFileError{Kind: model.StaticKindNotFound, Path: "/", Msg: err.Error()}
			}
			entry, err = p.cache.Get(np2.FullPath)
			if err != nil || !entry.Exists {
				return nil, &model.StaticFileError{Kind: model.StaticKindNotFound, Path: req.Path()}
			}
			np = np2
		} else {
			return nil, &model.StaticFileError{Kind: model.StaticKindNotFound, Path: req.Path()}
		}
	}

	if entry.IsDirectory {
		found := false
		for _, indexName := range p.cfg.WebRootIndexFiles {
			candidate := filepath.Join(np.FullPath, indexName)
			idxEntry, err := p.cache.Get(candidate)
			if err == nil && idxEntry.Exists && !idxEntry.IsDirectory {
				entry = idxEntry
				np.FullPath = candidate
				found = true
				break
			}
		}
		if !found {
			return nil, &model.StaticFileError{Kind: model.StaticKindNotFound, Path: req.Path()}
		}
	}

	if err := p.checkPathSecure(webRoot, np.FullPath); err != nil {
		return nil, err
	}

	return buildStaticResponse(entry, site, p.cache), nil
}

// checkPathSecure implements spec.md §4.G step 6: the resolved path must
// stay within the web root, and its filename must not match a blocked
// pattern unless whitelisted.
func (p *StaticProcessor) checkPathSecure(webRoot, fullPath string) error {
	if !strings.HasPrefix(fullPath, webRoot) {
		return &model.StaticFileError{Kind: model.StaticKindBlocked, Path: fullPath}
	}
	return checkFilenamePatterns(filepath.Base(fullPath), p.settings.BlockedFilePatterns, p.settings.WhitelistedFilePatterns)
}

// checkFilenamePatterns applies the site/core-level blocked/whitelisted
// wildcard filename rules (spec.md §4.G step 6, §3 ServerSettings).
func checkFilenamePatterns(name string, blocked, whitelisted []string) error {
	name = strings.ToLower(name)
	blockedHit := false
	for _, pat := range blocked {
		if matchWildcard(strings.ToLower(pat), name) {
			blockedHit = true
			break
		}
	}
	if !blockedHit {
		return nil
	}
	for _, pat := range whitelisted {
		if matchWildcard(strings.ToLower(pat), name) {
			return nil
		}
	}
	return &model.StaticFileError{Kind: model.StaticKindBlocked, Path: name}
}

// matchWildcard supports "*", "*suffix", "prefix*", and exact matches, the
// same four-rule grammar as the request-handler URL matcher (spec.md §4.K).
func matchWildcard(pattern, value string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(value, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(value, pattern[:len(pattern)-1])
	default:
		return pattern == value
	}
}

func buildStaticResponse(entry *filecache.FileEntry, site *model.Site, cache *filecache.Cache) *httpmsg.Response {
	useGzip := entry.Gzip != nil && cache.ShouldCompress(entry.MimeType, entry.Length)

	var resp *httpmsg.Response
	if useGzip {
		resp = httpmsg.NewBuffered(http.StatusOK, entry.Gzip)
		resp.Header.Set("Content-Encoding", "gzip")
	} else {
		resp = httpmsg.NewBuffered(http.StatusOK, entry.Raw)
	}
	if entry.MimeType != "" {
		resp.Header.Set("Content-Type", entry.MimeType)
	}
	return resp
}
