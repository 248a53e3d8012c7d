// Package reqhandler implements the request-handler manager of spec.md
// §4.K: a priority-sorted handler list, URL-pattern matching, and the
// processor-error-to-HTTP-status mapping table.
//
// Grounded on the teacher's small pure-function validation helpers
// (internal/util/query.go) for the matcher's idiom; pattern rules and
// error-mapping table cross-checked against
// original_source/src/http/file_pattern_matching.rs and spec.md §4.K's
// table directly.
package reqhandler

import (
	"net/http"
	"sort"
	"strings"

	"gruxi/internal/gruxlog"
	"gruxi/internal/httpmsg"
	"gruxi/internal/model"
	"gruxi/internal/processor"
)

var log = gruxlog.New("RequestHandlerManager")

// Manager holds the handler list sorted ascending by priority.
type Manager struct {
	handlers []model.RequestHandler
	byID     map[string]*model.RequestHandler
	procs    *processor.Manager
}

// New builds a Manager from the full handler list and the processor
// manager used to resolve each handler's backend.
func New(handlers []model.RequestHandler, procs *processor.Manager) *Manager {
	sorted := make([]model.RequestHandler, len(handlers))
	copy(sorted, handlers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	byID := make(map[string]*model.RequestHandler, len(sorted))
	for i := range sorted {
		byID[sorted[i].ID] = &sorted[i]
	}

	return &Manager{handlers: sorted, byID: byID, procs: procs}
}

// HandleRequest iterates handlers whose id is in site.RequestHandlerIDs,
// in priority order, dispatching the first whose URL pattern matches the
// request path to its processor (spec.md §4.K).
func (m *Manager) HandleRequest(req *httpmsg.Request, site *model.Site) (*httpmsg.Response, int) {
	allowed := make(map[string]bool, len(site.RequestHandlerIDs))
	for _, id := range site.RequestHandlerIDs {
		allowed[id] = true
	}

	path := req.Path()

	for i := range m.handlers {
		h := &m.handlers[i]
		if !h.IsEnabled || !allowed[h.ID] {
			continue
		}
		if !matchesAny(h.URLPatterns, path) {
			continue
		}

		handler := m.procs.ForHandler(h)
		if handler == nil {
			log.Warnf("handler %s references unknown processor %s", h.ID, h.ProcessorID)
			continue
		}

		resp, err := handler.HandleRequest(req, site)
		if err == nil {
			return resp, 0
		}

		code, ok := mapError(err)
		if !ok {
			log.Warnf("handler %s: unmapped error, trying next handler: %v", h.ID, err)
			continue
		}
		return nil, code
	}

	return nil, http.StatusNotFound
}

// matchesAny reports whether path matches any of patterns under the
// four-rule grammar: "*" always matches; a leading "*suffix" matches a
// path ending with suffix; a trailing "prefix*" matches a path starting
// with prefix; anything else requires an exact match.
func matchesAny(patterns []string, path string) bool {
	for _, pat := range patterns {
		if matchOne(pat, path) {
			return true
		}
	}
	return false
}

func matchOne(pattern, path string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(path, pattern[1:])
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(path, pattern[:len(pattern)-1])
	default:
		return pattern == path
	}
}

// mapError implements spec.md §4.K's error table.
func mapError(err error) (int, bool) {
	switch e := err.(type) {
	case *model.StaticFileError:
		switch e.Kind {
		case model.StaticKindPathError:
			return http.StatusInternalServerError, true
		case model.StaticKindNotFound, model.StaticKindBlocked:
			return http.StatusNotFound, true
		}
	case *model.ProxyError:
		switch e.Kind {
		case model.ProxyKindUpstreamUnavailable, model.ProxyKindConnectionFailed:
			return http.StatusBadGateway, true
		case model.ProxyKindUpstreamTimeout:
			return http.StatusGatewayTimeout, true
		}
	case *model.PHPError:
		switch e.Kind {
		case model.PHPKindPathError:
			return http.StatusInternalServerError, true
		case model.PHPKindNotFound:
			return http.StatusNotFound, true
		case model.PHPKindTimeout:
			return http.StatusGatewayTimeout, true
		case model.PHPKindConnection:
			return http.StatusBadGateway, true
		}
	}
	return 0, false
}
