package fetch

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestDecodeToUTF8PassthroughWhenAlreadyUTF8(t *testing.T) {
	body := []byte(`<?xml version="1.0" encoding="UTF-8"?><rss>héllo</rss>`)
	got := DecodeToUTF8(body, `application/rss+xml; charset=utf-8`)
	if !bytes.Equal(got, body) {
		t.Error("UTF-8 body must pass through unchanged")
	}
}

func TestDecodeToUTF8PassthroughWithoutDeclaration(t *testing.T) {
	body := []byte(`<rss><title>plain ascii</title></rss>`)
	got := DecodeToUTF8(body, "application/rss+xml")
	if !bytes.Equal(got, body) {
		t.Error("undeclared body must pass through unchanged")
	}
}

func TestDecodeToUTF8FromContentTypeCharset(t *testing.T) {
	// "café" in ISO-8859-1: é is the single byte 0xE9.
	body := []byte("<rss><title>caf\xe9</title></rss>")
	got := DecodeToUTF8(body, `application/rss+xml; charset=ISO-8859-1`)

	if !utf8.Valid(got) {
		t.Fatal("decoded body is not valid UTF-8")
	}
	if !strings.Contains(string(got), "café") {
		t.Errorf("decoded body = %q", got)
	}
}

func TestDecodeToUTF8FromXMLDeclaration(t *testing.T) {
	body := []byte("<?xml version=\"1.0\" encoding=\"iso-8859-1\"?><rss><title>caf\xe9</title></rss>")
	got := DecodeToUTF8(body, "application/rss+xml")

	if !utf8.Valid(got) {
		t.Fatal("decoded body is not valid UTF-8")
	}
	if !strings.Contains(string(got), "café") {
		t.Errorf("decoded body = %q", got)
	}
}

func TestDecodeToUTF8RewritesXMLDeclaration(t *testing.T) {
	body := []byte("<?xml version=\"1.0\" encoding=\"windows-1252\"?><rss>caf\xe9</rss>")
	got := DecodeToUTF8(body, "")

	if !strings.Contains(string(got), `encoding="UTF-8"`) {
		t.Errorf("declaration not rewritten: %q", got)
	}
	if strings.Contains(strings.ToLower(string(got)), "windows-1252") {
		t.Errorf("stale declaration survives: %q", got)
	}
}

func TestDecodeToUTF8HeaderBeatsDeclaration(t *testing.T) {
	// The header says ISO-8859-1, the declaration lies about UTF-16; the
	// header must win or the body would be garbled.
	body := []byte("<?xml version=\"1.0\" encoding=\"utf-16\"?><rss>caf\xe9</rss>")
	got := DecodeToUTF8(body, `text/xml; charset=iso-8859-1`)

	if !strings.Contains(string(got), "café") {
		t.Errorf("decoded body = %q", got)
	}
}

func TestDecodeToUTF8UnknownCharset(t *testing.T) {
	body := []byte("<rss>whatever</rss>")
	got := DecodeToUTF8(body, `text/xml; charset=x-mystery-encoding`)
	if !bytes.Equal(got, body) {
		t.Error("unknown charset must leave the body untouched")
	}
}

func TestCharsetFromContentType(t *testing.T) {
	cases := []struct {
		contentType string
		want        string
	}{
		{`text/xml; charset=UTF-8`, "utf-8"},
		{`text/xml; charset="ISO-8859-1"`, "iso-8859-1"},
		{`text/xml`, ""},
		{``, ""},
	}
	for _, tc := range cases {
		if got := charsetFromContentType(tc.contentType); got != tc.want {
			t.Errorf("charsetFromContentType(%q) = %q, want %q", tc.contentType, got, tc.want)
		}
	}
}
