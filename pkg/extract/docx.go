package extract

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

const docxBodyPart = "word/document.xml"

// extractDOCX returns the raw text of word/document.xml with paragraphs
// separated by blank lines.
// Paragraphs nested in tables are included.
func extractDOCX(path string) (string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", failed("open docx: %v", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if file.Name != docxBodyPart {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", failed("read docx body: %v", err)
		}
		text, err := parseDocumentXML(rc)
		rc.Close()
		if err != nil {
			return "", failed("parse docx body: %v", err)
		}
		return text, nil
	}
	return "", failed("docx has no %s", docxBodyPart)
}

// parseDocumentXML walks WordprocessingML tokens, collecting w:t text.
// w:tab becomes a tab, w:br and w:cr become newlines, and each w:p ends a line.
func parseDocumentXML(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}
