// Package gallery ingests heterogeneous image descriptors into a vehicle's
// remote gallery, one strategy per descriptor shape, aggregating per-item
// outcomes into a single batch result.
package gallery

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/InventoLabs/dealergate/apierr"
)

// Descriptor is the decoded form of one image input. Exactly five shapes are
// accepted; decoding happens once, up front, instead of re-sniffing strings
// at every use site.
type Descriptor interface {
	descriptorKind() string
}

// UrlRef is a remote image to fetch then transfer.
type UrlRef struct {
	URL string
}

// FileRef is a local file to transfer directly.
type FileRef struct {
	Path string
}

// DataURI is an inline data: URI; transferred from memory without staging.
type DataURI struct {
	MimeType string
	Data     string // base64 payload, prefix already stripped
}

// RawBase64 is a bare base64 payload with a declared MIME type.
type RawBase64 struct {
	Data     string
	MimeType string
	Filename string
}

// UIPastedImage is the structured object a UI paste produces. It is staged
// to disk to reuse the file transfer path, falling back to inline transfer.
type UIPastedImage struct {
	MediaType string
	Data      string
}

func (UrlRef) descriptorKind() string        { return "url" }
func (FileRef) descriptorKind() string       { return "file" }
func (DataURI) descriptorKind() string       { return "data_uri" }
func (RawBase64) descriptorKind() string     { return "raw_base64" }
func (UIPastedImage) descriptorKind() string { return "ui_pasted_image" }

var (
	urlSchemeRe = regexp.MustCompile(`^https?://`)
	dataURIRe   = regexp.MustCompile(`^data:([a-zA-Z0-9.+-]+/[a-zA-Z0-9.+-]+)?;base64,(.*)$`)
)

// DecodeDescriptor maps one raw input to its Descriptor variant.
//
// Strings are sniffed: URL scheme, then data-URI pattern, then local path.
// Maps are matched on shape: a UI paste object first, then the bare
// {data, mimeType} payload. Already-decoded Descriptors pass through.
func DecodeDescriptor(v any) (Descriptor, error) {
	errCtx := apierr.Context{Op: "decode_descriptor"}

	switch val := v.(type) {
	case Descriptor:
		return val, nil

	case string:
		if urlSchemeRe.MatchString(val) {
			return UrlRef{URL: val}, nil
		}
		if m := dataURIRe.FindStringSubmatch(val); m != nil {
			mimeType := m[1]
			if mimeType == "" {
				mimeType = "image/jpeg"
			}
			return DataURI{MimeType: mimeType, Data: m[2]}, nil
		}
		if strings.TrimSpace(val) == "" {
			return nil, apierr.Validation("descriptor string is empty", errCtx)
		}
		return FileRef{Path: val}, nil

	case map[string]any:
		if d, ok := decodeUIPasted(val); ok {
			return d, nil
		}
		if d, ok := decodeRawBase64(val); ok {
			return d, nil
		}
		return nil, apierr.Validation("descriptor object matches no accepted shape", errCtx)

	default:
		return nil, apierr.Validation(fmt.Sprintf("descriptor has unsupported type %T", v), errCtx)
	}
}

// DecodeDescriptors decodes a whole batch, failing on the first bad item so
// shape problems surface before any network activity.
func DecodeDescriptors(vs []any) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(vs))
	for i, v := range vs {
		d, err := DecodeDescriptor(v)
		if err != nil {
			return nil, apierr.Validation(
				fmt.Sprintf("descriptor %d: %v", i, err),
				apierr.Context{Op: "decode_descriptors"},
			)
		}
		out = append(out, d)
	}
	return out, nil
}

func decodeUIPasted(m map[string]any) (Descriptor, bool) {
	if t, _ := m["type"].(string); t != "image" {
		return nil, false
	}
	source, ok := m["source"].(map[string]any)
	if !ok {
		return nil, false
	}
	if st, _ := source["type"].(string); st != "base64" {
		return nil, false
	}
	data, _ := source["data"].(string)
	mediaType, _ := source["media_type"].(string)
	if data == "" {
		return nil, false
	}
	return UIPastedImage{MediaType: mediaType, Data: data}, true
}

func decodeRawBase64(m map[string]any) (Descriptor, bool) {
	data, ok := m["data"].(string)
	if !ok {
		return nil, false
	}
	mimeType, _ := m["mimeType"].(string)
	filename, _ := m["filename"].(string)
	return RawBase64{Data: data, MimeType: mimeType, Filename: filename}, true
}
