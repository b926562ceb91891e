package services

import (
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"

	"shareguard/system"
)

// GeoIPService resolves IPs to countries for annotating security events and
// alerts. Lookups degrade to "Unknown"/"XX" when no database is loaded; the
// guard itself never filters on geolocation.
type GeoIPService struct {
	mu     sync.RWMutex
	reader *geoip2.Reader
	dbPath string
}

func NewGeoIPService(dbPath string) *GeoIPService {
	g := &GeoIPService{dbPath: dbPath}
	if dbPath == "" {
		system.Info("GeoIP database not configured, country annotation disabled")
		return g
	}
	if err := g.Reload(); err != nil {
		system.Warn("Failed to load GeoIP database %s: %v", dbPath, err)
	}
	return g
}

// Reload (re)opens the MaxMind database at the configured path, e.g. after
// a GeoLite2 refresh replaced the file.
func (g *GeoIPService) Reload() error {
	if g.dbPath == "" {
		return fmt.Errorf("no GeoIP database path configured")
	}
	reader, err := geoip2.Open(g.dbPath)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if g.reader != nil {
		g.reader.Close()
	}
	g.reader = reader
	g.mu.Unlock()

	system.Info("GeoIP database loaded: %s", g.dbPath)
	return nil
}

// GetCountry returns the country name and ISO code for an IP, or
// "Unknown"/"XX" when the IP cannot be resolved.
func (g *GeoIPService) GetCountry(ipStr string) (string, string) {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return "Unknown", "XX"
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.reader == nil {
		return "Unknown", "XX"
	}

	record, err := g.reader.Country(ip)
	if err != nil || record.Country.IsoCode == "" {
		return "Unknown", "XX"
	}

	name := record.Country.Names["en"]
	if name == "" {
		name = record.Country.IsoCode
	}
	return name, record.Country.IsoCode
}

// Close releases the underlying database reader.
func (g *GeoIPService) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.reader != nil {
		g.reader.Close()
		g.reader = nil
	}
}
