package model

// FileCacheSettings mirrors core.file_cache in a CachedConfiguration
// snapshot (spec.md §3).
type FileCacheSettings struct {
	IsEnabled                   bool `json:"is_enabled"`
	MaxItems                    int  `json:"max_items"`
	MaxSizePerFile              int  `json:"max_size_per_file"`
	CheckIntervalS              int  `json:"check_interval_s"`
	CleanupIntervalS            int  `json:"cleanup_interval_s"`
	MaxItemLifetimeS            int  `json:"max_item_lifetime_s"`
	ForcedEvictionThresholdPct  int  `json:"forced_eviction_threshold_pct"` // 1..99
}

// GzipSettings mirrors core.gzip (spec.md §3).
type GzipSettings struct {
	IsEnabled                 bool     `json:"is_enabled"`
	CompressibleContentTypes []string `json:"compressible_content_types"` // MIME prefixes
}

// ServerSettings mirrors core.server_settings (spec.md §3).
type ServerSettings struct {
	MaxBodySize           int64    `json:"max_body_size"`
	BlockedFilePatterns    []string `json:"blocked_file_patterns"`
	WhitelistedFilePatterns []string `json:"whitelisted_file_patterns"`
}

// CoreSettings bundles the three settings groups above.
type CoreSettings struct {
	FileCache      FileCacheSettings `json:"file_cache"`
	Gzip           GzipSettings      `json:"gzip"`
	ServerSettings ServerSettings    `json:"server_settings"`
}

// CachedConfiguration is the immutable aggregate snapshot the running-state
// manager builds everything from (spec.md §3).
type CachedConfiguration struct {
	SchemaVersion int

	Bindings []Binding
	Sites    []Site
	Core     CoreSettings

	Handlers        []RequestHandler
	StaticFile      []StaticFileProcessor
	PHP             []PHPProcessor
	Proxy           []ProxyProcessor
	PhpCgiHandlers  []PhpCgiHandler
}

// SiteByID returns the site with the given id, or nil.
func (c *CachedConfiguration) SiteByID(id string) *Site {
	for i := range c.Sites {
		if c.Sites[i].ID == id {
			return &c.Sites[i]
		}
	}
	return nil
}

// SitesForBinding returns the enabled sites attached to binding b, in
// configured order.
func (c *CachedConfiguration) SitesForBinding(b *Binding) []*Site {
	sites := make([]*Site, 0, len(b.SiteIDs))
	for _, id := range b.SiteIDs {
		if s := c.SiteByID(id); s != nil && s.IsEnabled {
			sites = append(sites, s)
		}
	}
	return sites
}
