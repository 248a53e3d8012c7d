package fastcgi

import (
	"net"
	"strconv"
	"strings"
)

// EnvParams describes the CGI variables needed to invoke a PHP script
// (spec.md §4.D "CGI variable construction", §4.H for callers).
type EnvParams struct {
	Method          string
	RequestURI      string // path + "?" + query, as received
	QueryString     string
	ScriptName      string // URL path of the script, e.g. "/index.php"
	ScriptFilename  string // absolute filesystem path to the script
	DocumentRoot    string
	PathInfo        string // extra path info after the script, if any
	ContentLength   int64
	ContentType     string
	ServerSoftware  string
	ServerName      string
	ServerPort      string
	HTTPS           bool
	RemoteAddr      string
	Host            string
	Headers         map[string][]string // raw HTTP header set, for HTTP_* vars
	IsDirectoryRoot bool                // true rewrites REQUEST_URI to add a trailing slash
}

// BuildEnv constructs the ordered CGI name/value pairs for a request, per
// spec.md §4.D. The core variables come first in a fixed order; the
// HTTP_* variables from p.Headers follow in map iteration order, which
// varies between calls. Order is not significant to the protocol.
func BuildEnv(p EnvParams) [][2]string {
	requestURI := p.RequestURI
	if p.IsDirectoryRoot && !strings.HasSuffix(strings.SplitN(requestURI, "?", 2)[0], "/") {
		if idx := strings.IndexByte(requestURI, '?'); idx >= 0 {
			requestURI = requestURI[:idx] + "/" + requestURI[idx:]
		} else {
			requestURI += "/"
		}
	}

	https := "off"
	if p.HTTPS {
		https = "on"
	}

	remoteAddr := p.RemoteAddr
	if host, _, err := net.SplitHostPort(p.RemoteAddr); err == nil {
		remoteAddr = host
	}

	pairs := [][2]string{
		{"GATEWAY_INTERFACE", "CGI/1.1"},
		{"SERVER_PROTOCOL", "HTTP/1.1"},
		{"REQUEST_METHOD", p.Method},
		{"REQUEST_URI", requestURI},
		{"QUERY_STRING", p.QueryString},
		{"SCRIPT_NAME", p.ScriptName},
		{"SCRIPT_FILENAME", p.ScriptFilename},
		{"DOCUMENT_ROOT", p.DocumentRoot},
		{"SERVER_SOFTWARE", p.ServerSoftware},
		{"SERVER_NAME", p.ServerName},
		{"SERVER_PORT", p.ServerPort},
		{"HTTPS", https},
		{"REMOTE_ADDR", remoteAddr},
		{"REDIRECT_STATUS", "200"},
	}

	if p.PathInfo != "" {
		pairs = append(pairs, [2]string{"PATH_INFO", p.PathInfo})
	}
	if p.ContentLength > 0 {
		pairs = append(pairs, [2]string{"CONTENT_LENGTH", strconv.FormatInt(p.ContentLength, 10)})
	}
	if p.ContentType != "" {
		pairs = append(pairs, [2]string{"CONTENT_TYPE", p.ContentType})
	}
	if p.Host != "" {
		pairs = append(pairs, [2]string{"HTTP_HOST", p.Host})
	}

	for name, values := range p.Headers {
		canon := httpHeaderToCGI(name)
		if canon == "HTTP_HOST" || canon == "HTTP_CONTENT_LENGTH" || canon == "HTTP_CONTENT_TYPE" {
			continue
		}
		pairs = append(pairs, [2]string{canon, strings.Join(values, ", ")})
	}

	return pairs
}

// httpHeaderToCGI maps an HTTP header name to its HTTP_* CGI variable
// name, e.g. "Accept-Encoding" -> "HTTP_ACCEPT_ENCODING".
func httpHeaderToCGI(name string) string {
	upper := strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
	return "HTTP_" + upper
}

// ComputePathInfo splits a URL path into the script-name prefix and any
// trailing PATH_INFO, given the on-disk script file (spec.md §4.D
// "PATH_INFO computation"): the longest prefix of urlPath that maps to an
// existing .php file on disk is the script name; anything after it is
// PATH_INFO.
func ComputePathInfo(urlPath string, exists func(relPath string) bool) (scriptName, pathInfo string) {
	segments := strings.Split(strings.TrimPrefix(urlPath, "/"), "/")
	for i := len(segments); i >= 1; i-- {
		candidate := "/" + strings.Join(segments[:i], "/")
		if strings.HasSuffix(candidate, ".php") && exists(candidate) {
			if i == len(segments) {
				return candidate, ""
			}
			return candidate, "/" + strings.Join(segments[i:], "/")
		}
	}
	if exists(urlPath) {
		return urlPath, ""
	}
	return urlPath, ""
}

// ServerSoftware builds the spoofable Server-Software CGI value.
func ServerSoftware(spoof string) string {
	if spoof != "" {
		return spoof
	}
	return "Gruxi"
}
