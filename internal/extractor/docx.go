package extractor

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

const docxBodyPart = "word/document.xml"

type wordDocument struct {
	XMLName xml.Name `xml:"document"`
	Body    wordBody `xml:"body"`
}

type wordBody struct {
	Paragraphs []wordParagraph `xml:"p"`
}

type wordParagraph struct {
	Runs []wordRun `xml:"r"`
}

type wordRun struct {
	Text string `xml:"t"`
}

func ExtractDOCX(data []byte) (string, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: DOCX is not a valid archive: %v", ErrUnreadable, err)
	}

	var bodyPart *zip.File
	for _, file := range zipReader.File {
		if file.Name == docxBodyPart {
			bodyPart = file
			break
		}
	}
	if bodyPart == nil {
		return "", fmt.Errorf("%w: %s not found in DOCX", ErrUnreadable, docxBodyPart)
	}

	rc, err := bodyPart.Open()
	if err != nil {
		return "", fmt.Errorf("%w: failed to open %s: %v", ErrUnreadable, docxBodyPart, err)
	}
	defer rc.Close()

	xmlData, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %v", ErrUnreadable, docxBodyPart, err)
	}

	var doc wordDocument
	if err := xml.Unmarshal(xmlData, &doc); err != nil {
		return "", fmt.Errorf("%w: failed to parse %s: %v", ErrUnreadable, docxBodyPart, err)
	}

	var textBuilder strings.Builder
	for _, para := range doc.Body.Paragraphs {
		for _, run := range para.Runs {
			textBuilder.WriteString(run.Text)
		}
		textBuilder.WriteString("\n")
	}

	return strings.TrimSpace(textBuilder.String()), nil
}
