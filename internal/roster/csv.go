package roster

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// LoadCSV reads a roster CSV. Rosters come from spreadsheet exports, so
// both ';' and ',' delimiters are accepted (sniffed from the header line)
// and a UTF-8 BOM is tolerated.
func LoadCSV(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "roster: read %s", path)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, eris.Errorf("roster: %s is empty", path)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sniffDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "roster: read header of %s", path)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Surface the malformed row, keep the rest of the file.
			zap.L().Warn("roster: skipping malformed row",
				zap.String("file", path), zap.Int("line", line), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}

	return buildRoster(header, rows)
}

// sniffDelimiter picks ';' or ',' based on which occurs more often in the
// first line.
func sniffDelimiter(data []byte) rune {
	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}
	if bytes.Count(firstLine, []byte{';'}) >= bytes.Count(firstLine, []byte{','}) {
		return ';'
	}
	return ','
}
