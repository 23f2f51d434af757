package proxy

import (
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"
)

// ErrMalformedPlaylist is returned when a playlist body cannot be rewritten.
// The rewrite is all-or-nothing: a partially rewritten playlist is never
// produced.
var ErrMalformedPlaylist = errors.New("malformed playlist")

// Rewriter rewrites media playlists so every referenced resource is fetched
// back through the local /proxy endpoint. publicBase is the externally
// reachable base URL of this server (scheme and host, no trailing slash); it
// is injected rather than hardcoded so rewritten playlists stay correct on
// any deployment.
type Rewriter struct {
	publicBase string
}

// NewRewriter returns a Rewriter that targets publicBase, e.g.
// "http://localhost:8080".
func NewRewriter(publicBase string) *Rewriter {
	return &Rewriter{publicBase: strings.TrimRight(publicBase, "/")}
}

// Rewrite transforms the playlist text fetched from fetchURL. Segment
// references (the line following an #EXTINF tag) and bare references (variant
// entries in a master playlist) are resolved against the playlist's base URL
// and replaced with proxy self-references; every other line passes through
// verbatim, so the output is a drop-in replacement with identical tag
// ordering and timing metadata.
func (rw *Rewriter) Rewrite(body, fetchURL string) (string, error) {
	if !utf8.ValidString(body) {
		return "", ErrMalformedPlaylist
	}

	base, err := playlistBase(fetchURL)
	if err != nil {
		return "", err
	}

	lines := strings.Split(body, "\n")
	out := make([]string, 0, len(lines))

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])

		switch {
		case strings.HasPrefix(trimmed, "#EXTINF:"):
			out = append(out, lines[i])
			// The line after a segment-info tag is the segment reference;
			// rewrite it in lock-step and consume both lines.
			if i+1 < len(lines) {
				next := strings.TrimSpace(lines[i+1])
				if next != "" && !strings.HasPrefix(next, "#") {
					proxied, err := rw.proxied(base, next)
					if err != nil {
						return "", err
					}
					out = append(out, proxied)
					i++
				}
			}

		case trimmed != "" && !strings.HasPrefix(trimmed, "#"):
			// A bare non-comment line is itself a reference (e.g. a variant
			// playlist entry in a master playlist).
			proxied, err := rw.proxied(base, trimmed)
			if err != nil {
				return "", err
			}
			out = append(out, proxied)

		default:
			out = append(out, lines[i])
		}
	}

	return strings.Join(out, "\n"), nil
}

// proxied resolves ref against base and wraps the absolute URL in a proxy
// self-reference. Already-absolute, scheme-relative, and path-relative
// references all resolve via standard URL-resolution rules.
func (rw *Rewriter) proxied(base *url.URL, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", ErrMalformedPlaylist
	}
	abs := base.ResolveReference(refURL)
	if !abs.IsAbs() {
		return "", ErrMalformedPlaylist
	}
	return rw.publicBase + "/proxy?url=" + url.QueryEscape(abs.String()), nil
}

// playlistBase returns the directory-equivalent prefix of the playlist URL,
// i.e. everything up to and including the last "/".
func playlistBase(fetchURL string) (*url.URL, error) {
	idx := strings.LastIndex(fetchURL, "/")
	if idx < 0 {
		return nil, ErrMalformedPlaylist
	}
	base, err := url.Parse(fetchURL[:idx+1])
	if err != nil || !base.IsAbs() {
		return nil, ErrMalformedPlaylist
	}
	return base, nil
}
