package stats

import "strings"

// UnknownCountry and LocalhostCountry are the sentinel rollup keys used
// verbatim when lookup fails or the address is loopback (spec §4.13).
const (
	UnknownCountry   = "UNKNOWN"
	LocalhostCountry = "LOCALHOST"
)

// GeoIPLookup resolves a source IP to a country code for the rollup. The
// corpus carries no MaxMind binding, so the only implementation here is a
// small static table (documented stdlib-equivalent fallback in DESIGN.md);
// a production deployment would satisfy this interface with a real binding
// without touching any caller.
type GeoIPLookup interface {
	Lookup(ip string) string
}

// StaticTableLookup maps known IP prefixes to a country code, falling back
// to UnknownCountry. It exists so the rollup has a working implementation
// out of the box without depending on an unavailable GeoIP database.
type StaticTableLookup struct {
	prefixes map[string]string
}

func NewStaticTableLookup(prefixes map[string]string) *StaticTableLookup {
	return &StaticTableLookup{prefixes: prefixes}
}

func (l *StaticTableLookup) Lookup(ip string) string {
	if ip == "127.0.0.1" || ip == "::1" || ip == "" {
		return LocalhostCountry
	}
	for prefix, country := range l.prefixes {
		if strings.HasPrefix(ip, prefix) {
			return country
		}
	}
	return UnknownCountry
}
