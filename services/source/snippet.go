package source

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/customeros/mailtriage/internal/utils"
)

var messageFileSuffixes = []string{".emlx", ".partial.emlx", ".eml"}

func snippetFromMessageFile(dir string, rowID int64) (string, error) {
	for _, suffix := range messageFileSuffixes {
		path := filepath.Join(dir, fmt.Sprintf("%d%s", rowID, suffix))
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", err
		}
		if strings.HasSuffix(suffix, ".emlx") {
			data = stripEmlxHeader(data)
		}
		return snippetFromMIME(data)
	}
	return "", errors.Errorf("no message file for row %d", rowID)
}

// stripEmlxHeader drops the leading byte-count line and the trailing plist
func stripEmlxHeader(data []byte) []byte {
	reader := bufio.NewReader(bytes.NewReader(data))
	line, err := reader.ReadString('\n')
	if err != nil {
		return data
	}
	length, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || length <= 0 {
		return data
	}
	body := data[len(line):]
	if length < len(body) {
		body = body[:length]
	}
	return body
}

func snippetFromMIME(data []byte) (string, error) {
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(data))
	if err != nil {
		return "", errors.Wrap(err, "failed to parse message")
	}
	if envelope.HTML != "" && !hasPlainPart(envelope) {
		return HTMLToPlainText(envelope.HTML)
	}
	return envelope.Text, nil
}

// hasPlainPart distinguishes a real text/plain body from enmime's own
// down-conversion of an HTML-only message
func hasPlainPart(envelope *enmime.Envelope) bool {
	if envelope.Root == nil {
		return false
	}
	plain := envelope.Root.BreadthMatchFirst(func(p *enmime.Part) bool {
		return p.ContentType == "text/plain"
	})
	return plain != nil
}

func HTMLToPlainText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head").Each(func(i int, el *goquery.Selection) {
		el.Remove()
	})

	return doc.Text(), nil
}

func normalizeSnippet(text string, maxChars int) string {
	return utils.TruncateRunes(utils.CollapseWhitespace(text), maxChars)
}
