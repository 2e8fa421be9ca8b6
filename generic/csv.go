package generic

import (
	"bufio"
	"io"
	"strings"
)

// WriteQuotedCSV writes a header line followed by rows in which every field
// is quoted and embedded quotes are doubled. Lines are separated by "\n"
// with no trailing newline, the shape spreadsheet imports at the
// cooperative's bank expect.
func WriteQuotedCSV(w io.Writer, header []string, rows [][]string) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(header, ",")); err != nil {
		return err
	}
	for _, row := range rows {
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
		for i, field := range row {
			if i > 0 {
				if err := bw.WriteByte(','); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(`"` + strings.ReplaceAll(field, `"`, `""`) + `"`); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
