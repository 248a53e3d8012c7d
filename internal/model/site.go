package model

// Site is a virtual host attached to one or more bindings, selected by
// hostname (spec.md §3).
type Site struct {
	ID          string   `json:"id"`
	Hostnames   []string `json:"hostnames"` // may include literal "*"
	IsDefault   bool     `json:"is_default"`
	IsEnabled   bool     `json:"is_enabled"`

	// TLS material: exactly one of (CertPath/KeyPath) or (CertPEM/KeyPEM)
	// should be set; both sourcing modes are mutually agreeable, not
	// mutually exclusive at the type level.
	CertPath string `json:"cert_path,omitempty"`
	KeyPath  string `json:"key_path,omitempty"`
	CertPEM  string `json:"cert_pem,omitempty"`
	KeyPEM   string `json:"key_pem,omitempty"`
	AutoTLS  bool   `json:"auto_tls"`

	RequestHandlerIDs []string          `json:"request_handler_ids"`
	RewriteFunctions  []string          `json:"rewrite_functions,omitempty"`
	ExtraHeaders      map[string]string `json:"extra_headers,omitempty"`

	AccessLogEnabled bool   `json:"access_log_enabled"`
	AccessLogPath    string `json:"access_log_path,omitempty"`
}

// Rewrite function names recognised by the static processor (§4.G step 4).
const (
	RewriteOnlyWebRootIndexForSubdirs = "OnlyWebRootIndexForSubdirs"
)

// HasRewrite reports whether the site declares the named rewrite function.
func (s *Site) HasRewrite(name string) bool {
	for _, r := range s.RewriteFunctions {
		if r == name {
			return true
		}
	}
	return false
}

// MatchesHostname reports whether hostname (already lowercased by the
// caller) is one of this site's literal hostnames, ignoring the wildcard
// and default entries handled separately by the site matcher.
func (s *Site) MatchesHostname(hostname string) bool {
	for _, h := range s.Hostnames {
		if h == hostname {
			return true
		}
	}
	return false
}

// HasWildcard reports whether this site's hostname list includes "*".
func (s *Site) HasWildcard() bool {
	for _, h := range s.Hostnames {
		if h == "*" {
			return true
		}
	}
	return false
}
