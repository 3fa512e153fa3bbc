package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// MediaTypeSVG is the media type of synthesized placeholder images.
const MediaTypeSVG = "image/svg+xml"

// DataURI is a parsed "data:<media type>[;base64],<payload>" string.
type DataURI struct {
	MediaType string
	Base64    bool
	Payload   string
}

// ParseDataURI splits s into its media type and payload. Strings without a
// "data:" prefix are treated as a bare base64 payload of unknown type.
func ParseDataURI(s string) DataURI {
	if !strings.HasPrefix(s, "data:") {
		return DataURI{Base64: true, Payload: s}
	}
	header, payload, found := strings.Cut(s[len("data:"):], ",")
	if !found {
		return DataURI{Base64: true, Payload: s}
	}

	params := strings.Split(header, ";")
	uri := DataURI{MediaType: strings.ToLower(strings.TrimSpace(params[0])), Payload: payload}
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			uri.Base64 = true
		}
	}
	return uri
}

// Bytes decodes the payload.
func (u DataURI) Bytes() ([]byte, error) {
	if !u.Base64 {
		return []byte(u.Payload), nil
	}
	data, err := base64.StdEncoding.DecodeString(u.Payload)
	if err != nil {
		// Some producers drop the padding.
		if data, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(u.Payload, "=")); rawErr == nil {
			return data, nil
		}
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return data, nil
}

// IsSVG reports whether the data URI holds a vector image.
func (u DataURI) IsSVG() bool {
	return u.MediaType == MediaTypeSVG
}

// EncodeDataURI renders data as a base64 data URI.
func EncodeDataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
