package fetch

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	charsetParamRe = regexp.MustCompile(`(?i)charset\s*=\s*"?([A-Za-z0-9._-]+)"?`)
	xmlDeclRe      = regexp.MustCompile(`(?i)<\?xml[^>]*encoding\s*=\s*["']([A-Za-z0-9._-]+)["'][^>]*\?>`)
)

// DecodeToUTF8 converts a feed body to UTF-8 using the charset declared in
// the Content-Type header or the XML declaration. Bodies that are already
// valid UTF-8 with no contrary declaration pass through untouched; a body
// that cannot be converted is returned as-is and left to the parser's own
// error handling.
func DecodeToUTF8(body []byte, contentType string) []byte {
	charset := charsetFromContentType(contentType)
	if charset == "" {
		charset = charsetFromXMLDecl(body)
	}

	enc := encodingFor(charset)
	if enc == nil {
		return body
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return body
	}

	// The declaration no longer matches the bytes, so rewrite it before a
	// strict XML parser trips on it.
	decoded = rewriteXMLDecl(decoded)
	return decoded
}

func charsetFromContentType(contentType string) string {
	match := charsetParamRe.FindStringSubmatch(contentType)
	if match == nil {
		return ""
	}
	return strings.ToLower(match[1])
}

func charsetFromXMLDecl(body []byte) string {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	match := xmlDeclRe.FindSubmatch(head)
	if match == nil {
		return ""
	}
	return strings.ToLower(string(match[1]))
}

func encodingFor(charset string) encoding.Encoding {
	switch charset {
	case "iso-8859-1", "latin-1", "latin1":
		return charmap.ISO8859_1
	case "iso-8859-15":
		return charmap.ISO8859_15
	case "windows-1251":
		return charmap.Windows1251
	case "windows-1252", "cp1252":
		return charmap.Windows1252
	case "utf-16", "utf16":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)
	default:
		return nil
	}
}

func rewriteXMLDecl(body []byte) []byte {
	if !utf8.Valid(body) {
		return body
	}
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	loc := xmlDeclRe.FindSubmatchIndex(head)
	if loc == nil {
		return body
	}
	var out bytes.Buffer
	out.Write(body[:loc[2]])
	out.WriteString("UTF-8")
	out.Write(body[loc[3]:])
	return out.Bytes()
}
