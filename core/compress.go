package core

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"strings"
)

// Encodings the cache pre-computes, in server preference order.
const (
	encodingGzip    = "gzip"
	encodingDeflate = "deflate"
)

// minCompressSize is the body size below which variants are skipped;
// tiny bodies grow under deflate framing.
const minCompressSize = 256

// compressible reports whether a content type is worth compressing.
func compressible(contentType string) bool {
	ct := contentType
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	ct = strings.TrimSpace(strings.ToLower(ct))
	switch {
	case strings.HasPrefix(ct, "text/"):
		return true
	case ct == "application/json",
		ct == "application/javascript",
		ct == "application/xml",
		ct == "image/svg+xml":
		return true
	}
	return false
}

// buildVariants computes the compressed variants for body. A variant is
// dropped if it does not actually shrink the body.
func buildVariants(body []byte) map[string][]byte {
	if len(body) < minCompressSize {
		return nil
	}
	variants := make(map[string][]byte, 2)

	var gz bytes.Buffer
	gw := gzip.NewWriter(&gz)
	if _, err := gw.Write(body); err == nil && gw.Close() == nil && gz.Len() < len(body) {
		variants[encodingGzip] = gz.Bytes()
	}

	var fl bytes.Buffer
	fw, err := flate.NewWriter(&fl, flate.DefaultCompression)
	if err == nil {
		if _, err := fw.Write(body); err == nil && fw.Close() == nil && fl.Len() < len(body) {
			variants[encodingDeflate] = fl.Bytes()
		}
	}

	if len(variants) == 0 {
		return nil
	}
	return variants
}

// selectVariant picks the body bytes to serve for an Accept-Encoding
// header. It returns the chosen bytes and the encoding name, "" meaning
// identity. Server preference order is gzip, deflate, identity.
func selectVariant(e *Entry, acceptEncoding string) ([]byte, string) {
	if len(e.Variants) == 0 || acceptEncoding == "" {
		return e.Body, ""
	}
	if v, ok := e.Variants[encodingGzip]; ok && acceptsEncoding(acceptEncoding, encodingGzip) {
		return v, encodingGzip
	}
	if v, ok := e.Variants[encodingDeflate]; ok && acceptsEncoding(acceptEncoding, encodingDeflate) {
		return v, encodingDeflate
	}
	return e.Body, ""
}

// acceptsEncoding reports whether the Accept-Encoding header value
// names enc with a non-zero quality.
func acceptsEncoding(header, enc string) bool {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		name := part
		q := ""
		if i := strings.IndexByte(part, ';'); i >= 0 {
			name = strings.TrimSpace(part[:i])
			q = strings.TrimSpace(part[i+1:])
		}
		if !strings.EqualFold(name, enc) && name != "*" {
			continue
		}
		if strings.HasPrefix(q, "q=0") && !strings.HasPrefix(q, "q=0.") {
			return false
		}
		return true
	}
	return false
}
