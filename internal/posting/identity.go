package posting

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strings"

	"github.com/spigell/job-sift/internal/utils"
)

const (
	urlKeyPrefix      = "url"
	fallbackKeyPrefix = "tcl"
)

// ErrNormalizationDropped is returned for postings that carry neither a usable
// url nor both title and company, so no identity can be derived.
var ErrNormalizationDropped = errors.New("posting has no url and no title/company pair")

// trackingParams are lower-cased query keys dropped from urls for identity.
var trackingParams = map[string]struct{}{
	"gclid":      {},
	"fbclid":     {},
	"msclkid":    {},
	"mc_cid":     {},
	"mc_eid":     {},
	"ref":        {},
	"referrer":   {},
	"source":     {},
	"trk":        {},
	"trackingid": {},
	"_hsenc":     {},
	"_hsmi":      {},
	"igshid":     {},
}

// IdentityURL returns the form of raw used for identity: lower-cased, https,
// no www prefix, default port, fragment, trailing slash or tracking
// parameters, and with the remaining query sorted. ok is false when raw is
// not an absolute http(s) url.
func IdentityURL(raw string) (string, bool) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	host := strings.TrimPrefix(u.Host, "www.")
	host = strings.TrimSuffix(host, ":443")
	host = strings.TrimSuffix(host, ":80")

	q := u.Query()
	for key := range q {
		if _, tracking := trackingParams[key]; tracking || strings.HasPrefix(key, "utm_") {
			q.Del(key)
		}
	}

	var b strings.Builder
	b.WriteString("https://")
	b.WriteString(host)
	b.WriteString(strings.TrimRight(u.EscapedPath(), "/"))
	if encoded := q.Encode(); encoded != "" {
		b.WriteByte('?')
		b.WriteString(encoded)
	}

	return b.String(), true
}

// IdentityKey derives the dedup key of a posting. The normalized url wins;
// title, company and location are the fallback.
func IdentityKey(c Canonical) (string, error) {
	if normalized, ok := IdentityURL(c.URL); ok {
		return hashKey(urlKeyPrefix, normalized), nil
	}

	title := strings.ToLower(utils.CollapseSpace(c.Title))
	company := strings.ToLower(utils.CollapseSpace(c.Company))
	if title == "" || company == "" {
		return "", ErrNormalizationDropped
	}
	location := strings.ToLower(utils.CollapseSpace(c.Location))

	return hashKey(fallbackKeyPrefix, title+"|"+company+"|"+location), nil
}

func hashKey(prefix, value string) string {
	sum := sha256.Sum256([]byte(value))
	return prefix + ":" + hex.EncodeToString(sum[:16])
}
