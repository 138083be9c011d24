package dataset

import (
	"net/url"
	"strings"
)

// Platform selects the scraper dataset and the placeholder record shape.
type Platform string

const (
	LinkedIn  Platform = "linkedin"
	Instagram Platform = "instagram"
	YouTube   Platform = "youtube"
	X         Platform = "x"
	Web       Platform = "web"
)

// Platforms lists every supported platform.
func Platforms() []Platform {
	return []Platform{LinkedIn, Instagram, YouTube, X, Web}
}

// ParsePlatform maps a case-insensitive name onto a Platform. "twitter" is an
// alias for X and anything unrecognised is treated as Web.
func ParsePlatform(s string) Platform {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case LinkedIn, Instagram, YouTube, X, Web:
		return p
	case "twitter":
		return X
	default:
		return Web
	}
}

// DefaultDatasetIDs are the public dataset identifiers for each platform.
var DefaultDatasetIDs = map[Platform]string{
	LinkedIn:  "gd_lyy3tktm25m4avu764",
	Instagram: "gd_lk5ns7kz21pck8jpis",
	YouTube:   "gd_lk56epmy2i5g7lzu0k",
	X:         "gd_lwxkxvnf1cynvib9co",
	Web:       "gd_m6gjtfmeh43we6cqc",
}

var platformHosts = map[string]Platform{
	"linkedin.com":  LinkedIn,
	"instagram.com": Instagram,
	"youtube.com":   YouTube,
	"youtu.be":      YouTube,
	"x.com":         X,
	"twitter.com":   X,
}

// DetectPlatform infers the platform a URL belongs to from its host.
// Subdomains match their parent; anything else is Web.
func DetectPlatform(rawURL string) Platform {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Web
	}
	host := strings.ToLower(u.Hostname())
	for host != "" {
		if p, ok := platformHosts[host]; ok {
			return p
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return Web
}
