package bulk

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-redemption-api/internal/domain"
)

// Row is one attendee line of an uploaded file. Line is the one-based file line, header included.
type Row struct {
	Line  int
	Phone string
	Name  string
}

// ParseCSV reads rows from a file whose header names a phone and a name column, in any case and
// order. Other columns are ignored.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("file is empty: %w", domain.ErrBadRequest)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %v: %w", err, domain.ErrBadRequest)
	}
	phoneCol, nameCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "phone":
			phoneCol = i
		case "name":
			nameCol = i
		}
	}
	if phoneCol < 0 || nameCol < 0 {
		return nil, fmt.Errorf("header must contain phone and name columns: %w", domain.ErrBadRequest)
	}

	var rows []Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%v: %w", err, domain.ErrBadRequest)
		}
		line, _ := cr.FieldPos(0)
		if blank(rec) {
			continue
		}
		rows = append(rows, Row{Line: line, Phone: field(rec, phoneCol), Name: field(rec, nameCol)})
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("file has no rows: %w", domain.ErrBadRequest)
	}
	return rows, nil
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func sortRejections(rs []domain.Rejection) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Index < rs[j].Index })
}
