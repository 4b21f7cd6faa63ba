package kvstore

import (
	"net/url"
	"strings"
)

// Persistence key schema. Destinations are keyed by host; every per-destination
// document lives under one of these namespaces.
const (
	cacheIndexKey = "cache:index"
)

func AuthTokenKey(host string) string    { return "authToken:" + host }
func OutboxKey(host string) string       { return "outbox:" + host }
func SettingsKey(host string) string     { return "server:settings:" + host }
func SyncDoneKey(host string) string     { return "sync:done:" + host }
func SyncLastTimeKey(host string) string { return "sync:lastTime:" + host }
func SyncVersionKey(host string) string  { return "sync:version:" + host }

// CacheIndexKey is the single document holding the cache index map.
func CacheIndexKey() string { return cacheIndexKey }

// CacheRecordKey addresses one cached record blob under a per-host namespace.
func CacheRecordKey(host, id string) string { return "cache:record:" + host + ":" + id }

// HostOf derives the destination key from a URL. Inputs that do not parse as
// a URL (or carry no host) are returned trimmed, so bare hostnames work too.
func HostOf(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(s, "/")
	}
	return u.Host
}
