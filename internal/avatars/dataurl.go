package avatars

import (
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

// ErrNotDataURL is returned by DecodeDataURL for values that are not
// well-formed data: URLs.
var ErrNotDataURL = errors.New("avatars: not a data url")

// IsDataURL reports whether v uses the data: scheme.
func IsDataURL(v string) bool {
	return len(v) >= 5 && strings.EqualFold(v[:5], "data:")
}

// EncodeDataURL embeds data as a base64 data: URL.
func EncodeDataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL splits a data: URL into its media type and payload. A
// missing media type defaults to text/plain as in RFC 2397.
func DecodeDataURL(v string) (mediaType string, data []byte, err error) {
	if !IsDataURL(v) {
		return "", nil, ErrNotDataURL
	}
	header, payload, ok := strings.Cut(v[5:], ",")
	if !ok {
		return "", nil, ErrNotDataURL
	}

	params := strings.Split(header, ";")
	mediaType = strings.TrimSpace(params[0])
	encoded := false
	if n := len(params); n > 1 && strings.EqualFold(strings.TrimSpace(params[n-1]), "base64") {
		encoded = true
		params = params[:n-1]
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}
	if len(params) > 1 {
		mediaType += ";" + strings.Join(params[1:], ";")
	}

	if encoded {
		data, err = base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some encoders drop the padding.
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return "", nil, ErrNotDataURL
		}
		return mediaType, data, nil
	}
	unescaped, err := url.PathUnescape(payload)
	if err != nil {
		return "", nil, ErrNotDataURL
	}
	return mediaType, []byte(unescaped), nil
}
