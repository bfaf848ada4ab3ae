package geo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/biter777/countries"
)

// ErrUnknownCountry is returned when a country value cannot be resolved.
var ErrUnknownCountry = errors.New("unknown country")

// CountryName resolves an ISO 3166 alpha-2/alpha-3 code, or an English name, to
// the country's common name.
func CountryName(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("%w: empty value", ErrUnknownCountry)
	}
	c := countries.ByName(code)
	if c == countries.Unknown {
		return "", fmt.Errorf("%w: %q", ErrUnknownCountry, code)
	}
	return c.String(), nil
}
