package processor

import (
	"gruxi/internal/httpmsg"
	"gruxi/internal/model"
)

// Handler is implemented by all three processor variants.
type Handler interface {
	HandleRequest(req *httpmsg.Request, site *model.Site) (*httpmsg.Response, error)
}

// Manager maps (processor_type, processor_id) to a live processor
// instance (spec.md §4.J), built once from a configuration snapshot at
// running-state construction time.
type Manager struct {
	static map[string]*StaticProcessor
	php    map[string]*PHPProcessor
	proxy  map[string]*ProxyProcessor
}

// NewManager builds an empty Manager; callers populate it via Register*.
func NewManager() *Manager {
	return &Manager{
		static: make(map[string]*StaticProcessor),
		php:    make(map[string]*PHPProcessor),
		proxy:  make(map[string]*ProxyProcessor),
	}
}

func (m *Manager) RegisterStatic(id string, p *StaticProcessor) { m.static[id] = p }
func (m *Manager) RegisterPHP(id string, p *PHPProcessor)       { m.php[id] = p }
func (m *Manager) RegisterProxy(id string, p *ProxyProcessor)   { m.proxy[id] = p }

// GetStaticFileProcessorByID returns the static processor for id, or nil.
func (m *Manager) GetStaticFileProcessorByID(id string) *StaticProcessor { return m.static[id] }

// GetPHPProcessorByID returns the PHP processor for id, or nil.
func (m *Manager) GetPHPProcessorByID(id string) *PHPProcessor { return m.php[id] }

// GetProxyProcessorByID returns the proxy processor for id, or nil.
func (m *Manager) GetProxyProcessorByID(id string) *ProxyProcessor { return m.proxy[id] }

// ForHandler resolves a RequestHandler to its concrete processor
// instance, regardless of variant.
func (m *Manager) ForHandler(h *model.RequestHandler) Handler {
	switch h.ProcessorType {
	case model.ProcessorStatic:
		if p := m.static[h.ProcessorID]; p != nil {
			return p
		}
	case model.ProcessorPHP:
		if p := m.php[h.ProcessorID]; p != nil {
			return p
		}
	case model.ProcessorProxy:
		if p := m.proxy[h.ProcessorID]; p != nil {
			return p
		}
	}
	return nil
}
