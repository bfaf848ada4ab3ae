package geo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapOpener map[string]string

func (m mapOpener) Open(_ context.Context, name string) (io.ReadCloser, error) {
	body, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, fs.ErrNotExist)
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type failingOpener struct{ err error }

func (f failingOpener) Open(context.Context, string) (io.ReadCloser, error) { return nil, f.err }

func TestLoadBuildsIndex(t *testing.T) {
	t.Parallel()

	opener := mapOpener{"ip_locations.csv": "ip,lat,lon,city,country\n1.2.3.4,10,20,X,Y\n9.9.9.9,-33.5,151.25,Sydney,AU\n"}
	idx, err := Load(context.Background(), opener, "ip_locations.csv")
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())

	loc, ok := idx.Lookup("1.2.3.4")
	require.True(t, ok)
	assert.InDelta(t, 10.0, loc.Lat, 1e-9)
	assert.InDelta(t, 20.0, loc.Lon, 1e-9)
	assert.Equal(t, "X", loc.City)
	assert.Equal(t, "Y", loc.Country)

	_, ok = idx.Lookup("5.6.7.8")
	assert.False(t, ok)
}

func TestFirstSeenWinsOnDuplicateIP(t *testing.T) {
	t.Parallel()

	data := "ip,lat,lon,city,country\n" +
		"1.2.3.4,10,20,First,A\n" +
		"1.2.3.4,30,40,Second,B\n" +
		"1.2.3.4,50,60,Third,C\n"
	idx, err := Parse(strings.NewReader(data))
	require.NoError(t, err)

	loc, ok := idx.Lookup("1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, "First", loc.City)
	assert.InDelta(t, 10.0, loc.Lat, 1e-9)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 2, idx.Duplicates())
}

func TestParseHeaderVariants(t *testing.T) {
	t.Parallel()

	data := "\ufeffCountry, City ,LON,LAT,IP,extra\nTR,Ankara,32.85,39.93,8.8.8.8,z\n"
	idx, err := Parse(strings.NewReader(data))
	require.NoError(t, err)

	loc, ok := idx.Lookup("8.8.8.8")
	require.True(t, ok)
	assert.Equal(t, "Ankara", loc.City)
	assert.Equal(t, "TR", loc.Country)
	assert.InDelta(t, 39.93, loc.Lat, 1e-9)
	assert.InDelta(t, 32.85, loc.Lon, 1e-9)
}

func TestParseSkipsBadRows(t *testing.T) {
	t.Parallel()

	data := "ip,lat,lon,city,country\n" +
		",1,2,NoIP,Z\n" +
		"1.1.1.1,north,2,BadLat,Z\n" +
		"2.2.2.2,1\n" +
		"3.3.3.3,1,2,,\n"
	idx, err := Parse(strings.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, 3, idx.Skipped())

	loc, ok := idx.Lookup("3.3.3.3")
	require.True(t, ok)
	assert.Empty(t, loc.City)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := Load(ctx, mapOpener{}, "absent.csv")
	require.ErrorIs(t, err, ErrReferenceMissing)

	_, err = Load(ctx, mapOpener{"ref.csv": "ip,lat,city\n1.2.3.4,1,X\n"}, "ref.csv")
	require.ErrorIs(t, err, ErrReferenceInvalid)
	assert.Contains(t, err.Error(), "lon")
	assert.Contains(t, err.Error(), "country")

	_, err = Load(ctx, mapOpener{"empty.csv": ""}, "empty.csv")
	require.ErrorIs(t, err, ErrReferenceInvalid)

	boom := errors.New("permission denied")
	_, err = Load(ctx, failingOpener{err: boom}, "ref.csv")
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, ErrReferenceMissing))
}

func TestNilIndexIsEmpty(t *testing.T) {
	t.Parallel()

	var idx *Index
	_, ok := idx.Lookup("1.2.3.4")
	assert.False(t, ok)
	assert.Zero(t, idx.Len())
	assert.Zero(t, idx.Duplicates())
	assert.Zero(t, idx.Skipped())
}

func TestConcurrentLookups(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("ip,lat,lon,city,country\n")
	for i := 0; i < 256; i++ {
		fmt.Fprintf(&b, "10.0.0.%d,%d,%d,c%d,US\n", i, i, i, i)
	}
	idx, err := Parse(strings.NewReader(b.String()))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 256; i++ {
				loc, ok := idx.Lookup(fmt.Sprintf("10.0.0.%d", i))
				if !ok || loc.City != fmt.Sprintf("c%d", i) {
					t.Errorf("lookup 10.0.0.%d = %+v, %v", i, loc, ok)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestCountryName(t *testing.T) {
	t.Parallel()

	name, err := CountryName("US")
	require.NoError(t, err)
	assert.Equal(t, "United States", name)

	name, err = CountryName(" tur ")
	require.NoError(t, err)
	assert.Equal(t, "Turkey", name)

	_, err = CountryName("Atlantis")
	require.ErrorIs(t, err, ErrUnknownCountry)

	_, err = CountryName("")
	require.ErrorIs(t, err, ErrUnknownCountry)
}
