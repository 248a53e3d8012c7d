package fastcgi

import "testing"

func TestParseCGIResponseWithStatus(t *testing.T) {
	raw := []byte("Status: 404 Not Found\r\nContent-Type: text/html\r\n\r\n<h1>missing</h1>")
	res, err := parseCGIResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != 404 {
		t.Fatalf("status = %d, want 404", res.StatusCode)
	}
	if res.Header.Get("Content-Type") != "text/html" {
		t.Fatalf("content-type = %q", res.Header.Get("Content-Type"))
	}
	if string(res.Body) != "<h1>missing</h1>" {
		t.Fatalf("body = %q", res.Body)
	}
}

func TestParseCGIResponseDefaultsTo200(t *testing.T) {
	raw := []byte("Content-Type: text/plain\n\nok")
	res, err := parseCGIResponse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if res.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", res.StatusCode)
	}
	if string(res.Body) != "ok" {
		t.Fatalf("body = %q", res.Body)
	}
}
