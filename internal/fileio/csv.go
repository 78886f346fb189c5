package fileio

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// readCSV reads CSV with headerRow (1-based), detecting the encoding and the
// delimiter. Spanish exports are usually Windows-1252 or Latin-1 with ";".
func readCSV(r io.Reader, headerRow int) ([]map[string]string, error) {
	br := bufio.NewReader(r)

	peek, _ := br.Peek(4096)
	var dec io.Reader = br
	switch detectCharset(peek) {
	case "windows-1252":
		dec = transform.NewReader(br, charmap.Windows1252.NewDecoder())
	case "iso-8859-1":
		dec = transform.NewReader(br, charmap.ISO8859_1.NewDecoder())
	case "iso-8859-15":
		dec = transform.NewReader(br, charmap.ISO8859_15.NewDecoder())
	default:
		// assume UTF-8
	}

	cr := csv.NewReader(dec)
	cr.Comma = sniffDelimiter(peek)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	if len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\uFEFF")
	}
	headerRow = resolveHeaderRow(rows, headerRow)
	h := pickHeader(rows, headerRow)
	return rowsToMaps(rows, h, headerRow), nil
}

func detectCharset(peek []byte) string {
	if len(peek) == 0 || isUTF8(peek) {
		return "utf-8"
	}
	det, err := chardet.NewTextDetector().DetectBest(peek)
	if err != nil || det == nil {
		return "windows-1252"
	}
	cs := strings.ToLower(det.Charset)
	switch cs {
	case "iso-8859-1", "iso-8859-15", "windows-1252":
		return cs
	default:
		// non UTF-8 bytes from a Spanish office suite are almost always cp1252
		return "windows-1252"
	}
}

// isUTF8 tolerates a multi-byte rune cut at the end of the peek window.
func isUTF8(b []byte) bool {
	for len(b) > 0 {
		c := b[0]
		n := 0
		switch {
		case c < 0x80:
			n = 1
		case c&0xE0 == 0xC0:
			n = 2
		case c&0xF0 == 0xE0:
			n = 3
		case c&0xF8 == 0xF0:
			n = 4
		default:
			return false
		}
		if len(b) < n {
			return true
		}
		for i := 1; i < n; i++ {
			if b[i]&0xC0 != 0x80 {
				return false
			}
		}
		b = b[n:]
	}
	return true
}

// sniffDelimiter picks the most frequent of ; , \t on the first line.
func sniffDelimiter(peek []byte) rune {
	line := peek
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		line = peek[:i]
	}
	best, bestN := ',', 0
	for _, d := range []rune{';', ',', '\t'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}
