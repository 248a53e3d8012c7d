package configstore

import (
	"strconv"
	"strings"

	"gruxi/internal/model"
)

// buildCoreSettings parses the flat setting_key/setting_value rows from
// the server_settings table into the structured model.CoreSettings. The
// numeric and boolean fallbacks for a missing row match the seed rows in
// migrations/001_init.sql; list settings fall back to empty.
func buildCoreSettings(raw map[string]string) model.CoreSettings {
	return model.CoreSettings{
		FileCache: model.FileCacheSettings{
			IsEnabled:                  settingBool(raw, "file_cache.is_enabled", true),
			MaxItems:                   settingInt(raw, "file_cache.max_items", 10000),
			MaxSizePerFile:             settingInt(raw, "file_cache.max_size_per_file", 10*1024*1024),
			CheckIntervalS:             settingInt(raw, "file_cache.check_interval_s", 60),
			CleanupIntervalS:           settingInt(raw, "file_cache.cleanup_interval_s", 60),
			MaxItemLifetimeS:           settingInt(raw, "file_cache.max_item_lifetime_s", 3600),
			ForcedEvictionThresholdPct: settingInt(raw, "file_cache.forced_eviction_threshold_pct", 90),
		},
		Gzip: model.GzipSettings{
			IsEnabled:                settingBool(raw, "gzip.is_enabled", true),
			CompressibleContentTypes: settingList(raw, "gzip.compressible_content_types", nil),
		},
		ServerSettings: model.ServerSettings{
			MaxBodySize:             int64(settingInt(raw, "max_body_size", 10*1024*1024)),
			BlockedFilePatterns:     settingList(raw, "blocked_file_patterns", nil),
			WhitelistedFilePatterns: settingList(raw, "whitelisted_file_patterns", nil),
		},
	}
}

// flattenCoreSettings is buildCoreSettings run in reverse: it turns a
// structured model.CoreSettings back into the flat setting_key/value
// pairs server_settings stores, for configstore.ImportConfiguration.
func flattenCoreSettings(c model.CoreSettings) map[string]string {
	return map[string]string{
		"file_cache.is_enabled":                    strconv.FormatBool(c.FileCache.IsEnabled),
		"file_cache.max_items":                     strconv.Itoa(c.FileCache.MaxItems),
		"file_cache.max_size_per_file":              strconv.Itoa(c.FileCache.MaxSizePerFile),
		"file_cache.check_interval_s":              strconv.Itoa(c.FileCache.CheckIntervalS),
		"file_cache.cleanup_interval_s":             strconv.Itoa(c.FileCache.CleanupIntervalS),
		"file_cache.max_item_lifetime_s":            strconv.Itoa(c.FileCache.MaxItemLifetimeS),
		"file_cache.forced_eviction_threshold_pct":  strconv.Itoa(c.FileCache.ForcedEvictionThresholdPct),
		"gzip.is_enabled":                 strconv.FormatBool(c.Gzip.IsEnabled),
		"gzip.compressible_content_types": strings.Join(c.Gzip.CompressibleContentTypes, ","),
		"max_body_size":                   strconv.FormatInt(c.ServerSettings.MaxBodySize, 10),
		"blocked_file_patterns":           strings.Join(c.ServerSettings.BlockedFilePatterns, ","),
		"whitelisted_file_patterns":       strings.Join(c.ServerSettings.WhitelistedFilePatterns, ","),
	}
}

func settingBool(raw map[string]string, key string, def bool) bool {
	v, ok := raw[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func settingInt(raw map[string]string, key string, def int) int {
	v, ok := raw[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func settingList(raw map[string]string, key string, def []string) []string {
	v, ok := raw[key]
	if !ok {
		return def
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
