// Package env supplies bootstrap configuration from the process environment:
// a key-value lookup that falls back to a default when a key is unset. The
// caching layer only consumes it for the default replica-member set; the
// plain accessors are exported for embedding applications.
//
// Keys are read as TABCACHE_<KEY>, e.g. TABCACHE_MEMBERS.
package env

import (
	"strings"
	"sync"

	"github.com/spf13/viper"
)

const localMember = "local"

var (
	once sync.Once
	v    *viper.Viper
)

func load() *viper.Viper {
	once.Do(func() {
		v = viper.New()
		v.SetEnvPrefix("TABCACHE")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()
	})
	return v
}

// DefaultMembers returns the replica set used when a lifecycle call passes
// no members: the comma-separated TABCACHE_MEMBERS list, or a single local
// member when unset.
func DefaultMembers() []string {
	parts := strings.Split(load().GetString("members"), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{localMember}
	}
	return out
}

// String returns the value for key, or def when unset or empty.
func String(key, def string) string {
	if s := load().GetString(key); s != "" {
		return s
	}
	return def
}

// Int returns the value for key, or def when unset.
func Int(key string, def int) int {
	l := load()
	if !l.IsSet(key) {
		return def
	}
	return l.GetInt(key)
}

// Bool returns the value for key, or def when unset.
func Bool(key string, def bool) bool {
	l := load()
	if !l.IsSet(key) {
		return def
	}
	return l.GetBool(key)
}
