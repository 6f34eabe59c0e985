package sheets

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Range is a parsed A1-notation range. Coordinates are 1-based; a zero end
// coordinate is unbounded.
type Range struct {
	StartCol, StartRow int
	EndCol, EndRow     int
}

// ParseRange parses the forms used against tabs: "A2:Z", "A1:1", "A1:C10",
// "A2" and "3:3".
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "!"); i >= 0 {
		s = s[i+1:]
	}
	if s == "" {
		return Range{}, fmt.Errorf("empty range")
	}

	from, to, hasEnd := strings.Cut(s, ":")
	sc, sr, err := parseRef(from)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	if sc == 0 {
		sc = 1
	}
	if sr == 0 {
		sr = 1
	}

	if !hasEnd {
		return Range{StartCol: sc, StartRow: sr, EndCol: sc, EndRow: sr}, nil
	}

	ec, er, err := parseRef(to)
	if err != nil {
		return Range{}, fmt.Errorf("range %q: %w", s, err)
	}
	if (ec != 0 && ec < sc) || (er != 0 && er < sr) {
		return Range{}, fmt.Errorf("range %q: end before start", s)
	}
	return Range{StartCol: sc, StartRow: sr, EndCol: ec, EndRow: er}, nil
}

func parseRef(ref string) (col, row int, err error) {
	ref = strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(ref, "$", "")))
	i := 0
	for i < len(ref) && ref[i] >= 'A' && ref[i] <= 'Z' {
		i++
	}
	letters, digits := ref[:i], ref[i:]
	if letters == "" && digits == "" {
		return 0, 0, fmt.Errorf("empty reference")
	}
	if letters != "" {
		if col, err = excelize.ColumnNameToNumber(letters); err != nil {
			return 0, 0, err
		}
	}
	if digits != "" {
		if row, err = strconv.Atoi(digits); err != nil || row < 1 {
			return 0, 0, fmt.Errorf("invalid row %q", digits)
		}
	}
	return col, row, nil
}

// Slice cuts the range out of a tab's grid, dropping trailing empty cells and
// rows the way the Sheets API does.
func (r Range) Slice(grid [][]string) [][]string {
	var out [][]string
	for i := r.StartRow - 1; i < len(grid); i++ {
		if r.EndRow != 0 && i > r.EndRow-1 {
			break
		}
		row := grid[i]
		var cells []string
		for j := r.StartCol - 1; j < len(row); j++ {
			if r.EndCol != 0 && j > r.EndCol-1 {
				break
			}
			cells = append(cells, row[j])
		}
		out = append(out, trimRow(cells))
	}

	for len(out) > 0 && len(out[len(out)-1]) == 0 {
		out = out[:len(out)-1]
	}
	return out
}

func trimRow(row []string) []string {
	n := len(row)
	for n > 0 && row[n-1] == "" {
		n--
	}
	if n == 0 {
		return []string{}
	}
	return row[:n]
}

// IsEmpty reports whether every cell of rows is blank.
func IsEmpty(rows [][]string) bool {
	for _, row := range rows {
		for _, c := range row {
			if strings.TrimSpace(c) != "" {
				return false
			}
		}
	}
	return true
}
