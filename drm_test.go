package epubreplace

import (
	"errors"
	"strings"
	"testing"
)

// encryptionXML builds a META-INF/encryption.xml with one EncryptedData
// element per algorithm.
func encryptionXML(algorithms ...string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<encryption xmlns="urn:oasis:names:tc:opendocument:xmlns:container"
            xmlns:enc="http://www.w3.org/2001/04/xmlenc#">`)
	for _, alg := range algorithms {
		b.WriteString(`
  <enc:EncryptedData>
    <enc:EncryptionMethod Algorithm="` + alg + `"/>
    <enc:CipherData><enc:CipherReference URI="OEBPS/fonts/font.otf"/></enc:CipherData>
  </enc:EncryptedData>`)
	}
	b.WriteString("\n</encryption>")
	return b.String()
}

func TestCheckDRM(t *testing.T) {
	const (
		idpfFont  = "http://www.idpf.org/2008/embedding"
		adobeFont = "http://ns.adobe.com/pdf/enc#RC"
		aes128    = "http://www.w3.org/2001/04/xmlenc#aes128-cbc"
		adept     = "http://ns.adobe.com/adept/enc#aes256-cbc"
	)

	tests := []struct {
		name              string
		files             map[string]string
		wantFontObfuscate bool
		wantErr           error
	}{
		{
			name: "no encryption.xml",
			files: map[string]string{
				"mimetype":          expectedMimetype,
				"OEBPS/content.opf": `<package/>`,
			},
		},
		{
			name:              "font obfuscation only IDPF",
			files:             map[string]string{"META-INF/encryption.xml": encryptionXML(idpfFont)},
			wantFontObfuscate: true,
		},
		{
			name:              "mixed font obfuscation algorithms",
			files:             map[string]string{"META-INF/encryption.xml": encryptionXML(idpfFont, adobeFont)},
			wantFontObfuscate: true,
		},
		{
			name:    "encrypted content",
			files:   map[string]string{"META-INF/encryption.xml": encryptionXML(aes128)},
			wantErr: ErrDRMProtected,
		},
		{
			name:    "Adobe ADEPT algorithm",
			files:   map[string]string{"META-INF/encryption.xml": encryptionXML(adept)},
			wantErr: ErrDRMProtected,
		},
		{
			name:    "DRM mixed with font obfuscation",
			files:   map[string]string{"META-INF/encryption.xml": encryptionXML(idpfFont, aes128)},
			wantErr: ErrDRMProtected,
		},
		{
			name:  "empty encryption.xml",
			files: map[string]string{"META-INF/encryption.xml": encryptionXML()},
		},
		{
			name:    "unparseable encryption.xml",
			files:   map[string]string{"META-INF/encryption.xml": `<encryption><EncryptedData>`},
			wantErr: ErrDRMProtected,
		},
		{
			name:    "Apple FairPlay sinf.xml",
			files:   map[string]string{"META-INF/sinf.xml": `<sinf/>`},
			wantErr: ErrDRMProtected,
		},
		{
			name:              "case insensitive encryption.xml path",
			files:             map[string]string{"meta-inf/Encryption.xml": encryptionXML(idpfFont)},
			wantFontObfuscate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			zr := buildTestZip(t, tt.files)
			gotFont, gotErr := checkDRM(zr, defaultMaxEntrySize)

			if !errors.Is(gotErr, tt.wantErr) || (tt.wantErr == nil && gotErr != nil) {
				t.Errorf("checkDRM() error = %v, want %v", gotErr, tt.wantErr)
			}
			if gotFont != tt.wantFontObfuscate {
				t.Errorf("checkDRM() fontObfuscation = %v, want %v", gotFont, tt.wantFontObfuscate)
			}
		})
	}
}
