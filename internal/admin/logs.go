package admin

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
)

// maxLogResponseBytes bounds how much of a single log file GET
// /logs/{filename} returns, matching the teacher's system-log truncation
// idiom (internal/repository/system_log.go's bounded-window reads)
// generalized from a paginated DB query to a flat-file tail read.
const maxLogResponseBytes = 1 << 20 // 1 MiB

// listLogs implements GET /logs: the *.log filenames under the configured
// logs directory.
func (h *Handler) listLogs(c echo.Context) error {
	entries, err := os.ReadDir(h.deps.LogsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return c.JSON(http.StatusOK, map[string]any{"files": []string{}})
		}
		log.Errorf("listLogs: %v", err)
		return jsonError(c, http.StatusInternalServerError, "failed to list logs")
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return c.JSON(http.StatusOK, map[string]any{"files": files})
}

// getLogFile implements GET /logs/{filename}: the file's content, with the
// filename restricted to a bare *.log name (no path separators or parent
// traversal) and the response bounded to the final maxLogResponseBytes of
// the file, truncated at the next newline so the first line returned is
// always whole.
func (h *Handler) getLogFile(c echo.Context) error {
	name := c.Param("filename")
	if !isSafeLogFilename(name) {
		return jsonError(c, http.StatusBadRequest, "invalid filename")
	}

	path := filepath.Join(h.deps.LogsDir, name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return jsonError(c, http.StatusNotFound, "log file not found")
		}
		log.Errorf("getLogFile: %v", err)
		return jsonError(c, http.StatusInternalServerError, "failed to read log")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return jsonError(c, http.StatusInternalServerError, "failed to read log")
	}

	var start int64
	if info.Size() > maxLogResponseBytes {
		start = info.Size() - maxLogResponseBytes
	}
	if _, err := f.Seek(start, 0); err != nil {
		return jsonError(c, http.StatusInternalServerError, "failed to read log")
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(f); err != nil {
		return jsonError(c, http.StatusInternalServerError, "failed to read log")
	}

	content := buf.Bytes()
	if start > 0 {
		// start may land mid-line; drop the partial first line so the
		// response always begins on a line boundary.
		if i := bytes.IndexByte(content, '\n'); i >= 0 {
			content = content[i+1:]
		}
	}

	return c.Blob(http.StatusOK, "text/plain; charset=utf-8", content)
}

func isSafeLogFilename(name string) bool {
	if name == "" || !strings.HasSuffix(name, ".log") {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	if name == ".." || strings.Contains(name, "..") {
		return false
	}
	return filepath.Base(name) == name
}
