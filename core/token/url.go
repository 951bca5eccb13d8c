package token

import (
	"errors"
	"net/url"
	"strings"
)

// QueryParam is the redemption URL parameter carrying the opaque token.
const QueryParam = "data"

// ErrNoData means a scanned URL carried no data parameter.
var ErrNoData = errors.New("no token data in scanned value")

// RedemptionURL builds <origin>/<path>?data=<opaque>.
func RedemptionURL(origin, path, opaque string) (string, error) {
	u, err := url.Parse(strings.TrimRight(origin, "/"))
	if err != nil {
		return "", err
	}
	u.Path = u.Path + "/" + strings.TrimLeft(path, "/")
	q := url.Values{}
	q.Set(QueryParam, opaque)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// OpaqueFromScan accepts whatever a reader produced: the full redemption URL
// (the normal QR content) or a bare opaque string pasted by hand.
func OpaqueFromScan(scanned string) (string, error) {
	scanned = strings.TrimSpace(scanned)
	if scanned == "" {
		return "", ErrNoData
	}
	if !strings.Contains(scanned, "://") && !strings.HasPrefix(scanned, "/") && !strings.Contains(scanned, "?") {
		return scanned, nil
	}
	u, err := url.Parse(scanned)
	if err != nil {
		return "", err
	}
	data := u.Query().Get(QueryParam)
	if data == "" {
		return "", ErrNoData
	}
	return data, nil
}
