package sniffer

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectHead(t *testing.T) {
	cases := []struct {
		name     string
		head     []byte
		wantType MediaType
		wantMIME string
	}{
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}, TypeJPEG, "image/jpeg"},
		{"png", []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00}, TypePNG, "image/png"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), TypeWEBP, "image/webp"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := DetectHead(tc.head)
			require.NoError(t, err)
			assert.Equal(t, tc.wantType, result.Type)
			assert.Equal(t, tc.wantMIME, result.MIME)
		})
	}
}

func TestDetectHeadRejectsUnknown(t *testing.T) {
	cases := []struct {
		name string
		head []byte
	}{
		{"empty", nil},
		{"gif", []byte("GIF89a\x00\x00")},
		{"pdf", []byte("%PDF-1.7")},
		{"truncated jpeg", []byte{0xff, 0xd8}},
		{"riff but not webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt ")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DetectHead(tc.head)
			assert.ErrorIs(t, err, ErrUnsupportedType)
		})
	}
}

func TestMimeTypeFromHTTP(t *testing.T) {
	header := http.Header{}
	assert.Equal(t, "", MimeTypeFromHTTP(header))

	header.Set("Content-Type", "image/png")
	assert.Equal(t, "image/png", MimeTypeFromHTTP(header))

	header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	assert.Equal(t, "multipart/form-data", MimeTypeFromHTTP(header))
}
