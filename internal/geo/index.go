// Package geo loads the IP reference table used to enrich non-bot records with
// a location.
package geo

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
	"strings"

	"github.com/JakeFAU/weblog-normalizer/internal/weblog"
)

var (
	// ErrReferenceMissing is returned when the reference file does not exist.
	ErrReferenceMissing = errors.New("geo reference missing")
	// ErrReferenceInvalid is returned when the reference file lacks a required column.
	ErrReferenceInvalid = errors.New("geo reference invalid")
)

// RequiredColumns are the header names the reference file must carry.
var RequiredColumns = []string{"ip", "lat", "lon", "city", "country"}

// Opener opens a named reference file. Implementations report a missing file
// with an error wrapping fs.ErrNotExist.
type Opener interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Index is an immutable IP to location table. A nil *Index behaves as an empty
// index, so callers can hold one without checking whether the reference loaded.
type Index struct {
	byIP       map[string]weblog.GeoLocation
	duplicates int
	skipped    int
}

// Load reads the reference table called name through opener.
func Load(ctx context.Context, opener Opener, name string) (*Index, error) {
	rc, err := opener.Open(ctx, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrReferenceMissing, name)
		}
		return nil, fmt.Errorf("open geo reference %s: %w", name, err)
	}
	defer rc.Close() //nolint:errcheck

	idx, err := Parse(rc)
	if err != nil {
		return nil, fmt.Errorf("load geo reference %s: %w", name, err)
	}
	return idx, nil
}

// Parse builds an Index from CSV data with a header row. When an IP appears
// more than once the first row wins and later rows are counted as duplicates.
func Parse(r io.Reader) (*Index, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrReferenceInvalid)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	pos, err := locate(header)
	if err != nil {
		return nil, err
	}

	idx := &Index{byIP: make(map[string]weblog.GeoLocation)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		loc, ip, ok := row(rec, pos)
		if !ok {
			idx.skipped++
			continue
		}
		if _, seen := idx.byIP[ip]; seen {
			idx.duplicates++
			continue
		}
		idx.byIP[ip] = loc
	}
	return idx, nil
}

type columns struct{ ip, lat, lon, city, country int }

func locate(header []string) (columns, error) {
	found := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := found[h]; !dup {
			found[h] = i
		}
	}
	var missing []string
	for _, name := range RequiredColumns {
		if _, ok := found[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return columns{}, fmt.Errorf("%w: missing columns %s", ErrReferenceInvalid, strings.Join(missing, ", "))
	}
	return columns{
		ip:      found["ip"],
		lat:     found["lat"],
		lon:     found["lon"],
		city:    found["city"],
		country: found["country"],
	}, nil
}

func row(rec []string, pos columns) (weblog.GeoLocation, string, bool) {
	field := func(i int) string {
		if i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	ip := field(pos.ip)
	if ip == "" {
		return weblog.GeoLocation{}, "", false
	}
	lat, err := strconv.ParseFloat(field(pos.lat), 64)
	if err != nil {
		return weblog.GeoLocation{}, "", false
	}
	lon, err := strconv.ParseFloat(field(pos.lon), 64)
	if err != nil {
		return weblog.GeoLocation{}, "", false
	}
	return weblog.GeoLocation{
		Lat:     lat,
		Lon:     lon,
		City:    field(pos.city),
		Country: field(pos.country),
	}, ip, true
}

// Lookup returns the location recorded for ip.
func (i *Index) Lookup(ip string) (weblog.GeoLocation, bool) {
	if i == nil {
		return weblog.GeoLocation{}, false
	}
	loc, ok := i.byIP[ip]
	return loc, ok
}

// Len is the number of distinct IPs.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.byIP)
}

// Duplicates counts rows ignored because their IP was already present.
func (i *Index) Duplicates() int {
	if i == nil {
		return 0
	}
	return i.duplicates
}

// Skipped counts rows with an empty IP or unparseable coordinates.
func (i *Index) Skipped() int {
	if i == nil {
		return 0
	}
	return i.skipped
}
