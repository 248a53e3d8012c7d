// Package sitematch selects the virtual host for an inbound request's
// Host header (spec.md §4.L): exact hostname match first, then a
// wildcard ("*") site, then the bound default site, case-insensitively.
//
// Grounded on original_source/src/http/site_match/site_matcher.rs and
// original_source/src/grux_http/handle_request.rs (host-header
// lowercasing then first-hit ordering).
package sitematch

import (
	"strings"

	"gruxi/internal/model"
)

// FindBestMatch returns the site serving hostname among sites, or nil if
// none match. Matching order: exact hostname, then wildcard "*", then
// default site; disabled sites are never matched.
func FindBestMatch(sites []*model.Site, hostname string) *model.Site {
	lower := strings.ToLower(hostname)

	for _, s := range sites {
		if !s.IsEnabled {
			continue
		}
		for _, h := range s.Hostnames {
			if strings.ToLower(h) == lower {
				return s
			}
		}
	}
	for _, s := range sites {
		if s.IsEnabled && s.HasWildcard() {
			return s
		}
	}
	for _, s := range sites {
		if s.IsEnabled && s.IsDefault {
			return s
		}
	}
	return nil
}
