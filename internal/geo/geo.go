// Package geo provides country lookups used by classification conditions
// and connection enrichment. A static TLD/country table is the default;
// when a MaxMind mmdb file is configured, IP lookups go through it.
package geo

import (
	"fmt"
	"net/netip"
	"strings"
	"sync"

	"github.com/oschwald/maxminddb-golang"

	"github.com/wayfinder-proxy/wayfinder/internal/netutil"
)

// Reader abstracts the GeoIP database reader so tests can stub lookups.
type Reader interface {
	Lookup(ip netip.Addr) string
	Close() error
}

// blockedCountries lists ISO country codes whose destinations are treated
// as geo-restricted by the GeoBlocked classification condition.
var blockedCountries = map[string]bool{
	"RU": true,
	"CN": true,
	"IR": true,
	"KP": true,
}

// russianTLDs are the TLDs the RussianTLD condition matches.
var russianTLDs = map[string]bool{
	"ru": true,
	"su": true,
	"рф": true, // IDN ccTLD for the Russian Federation
}

// tldCountry maps ccTLDs to country codes for the static fallback path.
var tldCountry = map[string]string{
	"ru": "RU",
	"su": "RU",
	"рф": "RU",
	"cn": "CN",
	"ir": "IR",
	"kp": "KP",
	"by": "BY",
	"kz": "KZ",
	"ua": "UA",
	"de": "DE",
	"fr": "FR",
	"uk": "GB",
	"jp": "JP",
	"us": "US",
}

// localTLDs is the default "local" set used by the geo-proximity strategy.
var localTLDs = map[string]bool{
	"ru": true,
	"su": true,
	"рф": true,
	"by": true,
	"kz": true,
}

// Tables answers country/TLD questions about destinations. The zero value
// is not usable; call NewTables.
type Tables struct {
	mu     sync.RWMutex
	reader Reader // nil when no mmdb is configured
	local  map[string]bool
}

// NewTables builds geo tables with the default local-TLD set.
func NewTables() *Tables {
	local := make(map[string]bool, len(localTLDs))
	for k, v := range localTLDs {
		local[k] = v
	}
	return &Tables{local: local}
}

// SetReader installs (or clears, with nil) the mmdb-backed reader.
func (t *Tables) SetReader(r Reader) {
	t.mu.Lock()
	old := t.reader
	t.reader = r
	t.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// SetLocalTLDs replaces the local-TLD set used by IsLocal.
func (t *Tables) SetLocalTLDs(tlds []string) {
	local := make(map[string]bool, len(tlds))
	for _, tld := range tlds {
		local[strings.ToLower(strings.TrimPrefix(tld, "."))] = true
	}
	t.mu.Lock()
	t.local = local
	t.mu.Unlock()
}

// Country resolves a destination to a country code. IP literals go through
// the mmdb reader when one is configured; hostnames fall back to the static
// ccTLD table. Returns "" when unknown.
func (t *Tables) Country(destination string) string {
	host := netutil.ExtractHost(destination)
	if ip, err := netip.ParseAddr(host); err == nil {
		t.mu.RLock()
		r := t.reader
		t.mu.RUnlock()
		if r != nil {
			return r.Lookup(ip)
		}
		return ""
	}
	return tldCountry[netutil.TLD(host)]
}

// IsBlocked reports whether the destination resolves to a geo-restricted
// country.
func (t *Tables) IsBlocked(destination string) bool {
	return blockedCountries[t.Country(destination)]
}

// IsRussianTLD reports whether the destination's TLD is Russian-domain-like.
func (t *Tables) IsRussianTLD(destination string) bool {
	return russianTLDs[netutil.TLD(destination)]
}

// IsLocal reports whether the destination's TLD is in the local set used by
// the geo-proximity selection strategy.
func (t *Tables) IsLocal(destination string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.local[netutil.TLD(destination)]
}

// Close releases the mmdb reader, if any.
func (t *Tables) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.reader == nil {
		return nil
	}
	err := t.reader.Close()
	t.reader = nil
	return err
}

// mmdbReader wraps a maxminddb handle as a Reader.
type mmdbReader struct {
	db *maxminddb.Reader
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

func (r *mmdbReader) Lookup(ip netip.Addr) string {
	var rec countryRecord
	if err := r.db.Lookup(ip.AsSlice(), &rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}

func (r *mmdbReader) Close() error { return r.db.Close() }

// OpenMMDB opens a MaxMind country database as a Reader.
func OpenMMDB(path string) (Reader, error) {
	db, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("geo: open mmdb %s: %w", path, err)
	}
	return &mmdbReader{db: db}, nil
}
