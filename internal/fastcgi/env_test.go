package fastcgi

import "testing"

func TestComputePathInfo(t *testing.T) {
	exists := func(p string) bool {
		return p == "/blog/index.php"
	}

	script, pathInfo := ComputePathInfo("/blog/index.php/2026/07/post", exists)
	if script != "/blog/index.php" {
		t.Fatalf("script name = %q, want /blog/index.php", script)
	}
	if pathInfo != "/2026/07/post" {
		t.Fatalf("path info = %q, want /2026/07/post", pathInfo)
	}
}

func TestComputePathInfoExactMatch(t *testing.T) {
	exists := func(p string) bool { return p == "/index.php" }
	script, pathInfo := ComputePathInfo("/index.php", exists)
	if script != "/index.php" || pathInfo != "" {
		t.Fatalf("got script=%q pathInfo=%q", script, pathInfo)
	}
}

func TestBuildEnvIncludesCoreVariables(t *testing.T) {
	pairs := BuildEnv(EnvParams{
		Method:         "GET",
		RequestURI:     "/index.php?a=1",
		QueryString:    "a=1",
		ScriptName:     "/index.php",
		ScriptFilename: "/var/www/index.php",
		DocumentRoot:   "/var/www",
		ServerSoftware: "Gruxi",
		ServerName:     "example.com",
		ServerPort:     "443",
		HTTPS:          true,
		RemoteAddr:     "10.0.0.5:54321",
		Host:           "example.com",
		Headers: map[string][]string{
			"Accept-Encoding": {"gzip"},
		},
	})

	got := make(map[string]string)
	for _, kv := range pairs {
		got[kv[0]] = kv[1]
	}

	cases := map[string]string{
		"REQUEST_METHOD":     "GET",
		"SCRIPT_NAME":        "/index.php",
		"SCRIPT_FILENAME":    "/var/www/index.php",
		"DOCUMENT_ROOT":      "/var/www",
		"HTTPS":              "on",
		"REMOTE_ADDR":        "10.0.0.5",
		"HTTP_HOST":          "example.com",
		"HTTP_ACCEPT_ENCODING": "gzip",
		"REDIRECT_STATUS":    "200",
	}
	for k, want := range cases {
		if got[k] != want {
			t.Errorf("%s = %q, want %q", k, got[k], want)
		}
	}
}
