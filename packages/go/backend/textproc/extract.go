package textproc

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

var (
	ErrMissingFilename      = errors.New("no file selected")
	ErrUnsupportedExtension = errors.New("unsupported file format")
	ErrExtraction           = errors.New("text extraction failed")
)

// DefaultExtensions is the upload allow-list.
var DefaultExtensions = []string{".txt", ".doc", ".docx"}

const maxDocumentXML = 64 << 20

// ValidateFilename checks name against the allow-list and returns the
// lower-cased extension.
func ValidateFilename(name string, allowed []string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", ErrMissingFilename
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowed {
		if strings.ToLower(a) == ext {
			return ext, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, ext)
}

// Extract returns the plain text of an uploaded document. Failures wrap ErrExtraction.
func Extract(filename string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt":
		return DecodeText(data), nil
	case ".docx":
		text, err := extractDOCX(data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		return text, nil
	case ".doc":
		// Many .doc uploads are OOXML renamed; binary Word 97 files are not supported.
		if !bytes.HasPrefix(data, []byte("PK\x03\x04")) {
			return "", fmt.Errorf("%w: legacy binary .doc is not supported, save as .docx", ErrExtraction)
		}
		text, err := extractDOCX(data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrExtraction, err)
		}
		return text, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, filepath.Ext(filename))
	}
}

// DecodeText interprets data as UTF-8, falling back to GBK and finally to
// UTF-8 with invalid sequences dropped.
func DecodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	if decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) && !bytes.ContainsRune(decoded, utf8.RuneError) {
		return string(decoded)
	}
	return strings.ToValidUTF8(string(data), "")
}

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		defer func() { _ = rc.Close() }()
		return documentText(io.LimitReader(rc, maxDocumentXML))
	}
	return "", errors.New("word/document.xml not found")
}

// documentText walks WordprocessingML: one line per <w:p>, text from <w:t>,
// tabs and breaks preserved.
func documentText(r io.Reader) (string, error) {
	const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

	dec := xml.NewDecoder(r)
	var (
		out    strings.Builder
		line   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				line.WriteByte('\t')
			case "br", "cr":
				line.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteString(line.String())
				out.WriteByte('\n')
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	if line.Len() > 0 {
		out.WriteString(line.String())
	}
	return strings.TrimRight(out.String(), "\n"), nil
}
