package dump

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

const (
	// maxLineSize is the scanner buffer limit. mysqldump writes one extended
	// INSERT per line, so lines can reach tens of megabytes.
	maxLineSize = 64 << 20

	initialLineSize = 1 << 20
)

// Field is one raw SQL literal from a dump tuple, still carrying its original
// quoting and backslash escaping. Null marks the literal NULL token.
type Field struct {
	Raw  string
	Null bool
}

// Text decodes the literal into its string content: surrounding single quotes
// are stripped and backslash escapes resolved. Unquoted literals (numbers,
// dates written bare) are returned as-is.
func (f Field) Text() string {
	if f.Null {
		return ""
	}
	s := f.Raw
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return s
	}
	s = s[1 : len(s)-1]
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case '0':
			b.WriteByte(0)
		default: // covers \' \" \\ and anything mysqldump got creative with
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Row maps column names of the target table to the raw fields of one tuple.
type Row map[string]Field

// Table describes a table to extract from the dump: its name as it appears in
// the INSERT statements and its column list, in dump order.
type Table struct {
	Name    string
	Columns []string
}

// Scanner extracts the rows of one table at a time from a MySQL-dialect dump
// file, streaming it line by line. The file is scanned start to finish per
// call; the scanner never holds more than one statement in memory.
type Scanner struct {
	path string

	// Mismatched counts tuples dropped because their field count did not
	// match the table's column list. The legacy importer dropped these
	// silently; here they are at least accounted for.
	Mismatched int
}

func NewScanner(path string) *Scanner {
	return &Scanner{path: path}
}

// ScanTable reads every row of the given table into memory. Only suitable for
// the small legacy tables (employees, contracts); use StreamTable for sales.
func (s *Scanner) ScanTable(t Table) ([]Row, error) {
	var rs []Row
	if err := s.StreamTable(t, func(r Row) error {
		rs = append(rs, r)
		return nil
	}); err != nil {
		return nil, err
	}
	return rs, nil
}

// StreamTable scans the dump and calls fn for each row of the given table as
// soon as its statement is parsed, so arbitrarily large tables can be
// consumed in constant memory. A non-nil error from fn aborts the scan.
func (s *Scanner) StreamTable(t Table, fn func(Row) error) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("error opening dump %s: %w", s.path, err)
	}
	defer f.Close()
	marker := fmt.Sprintf("INSERT INTO `%s`", t.Name)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, initialLineSize), maxLineSize)
	var stmt strings.Builder
	buffering := false
	for sc.Scan() {
		ln := sc.Text()
		if !buffering {
			if !strings.Contains(ln, marker) {
				continue
			}
			buffering = true
		}
		stmt.WriteString(ln)
		stmt.WriteByte('\n')
		if strings.HasSuffix(strings.TrimSpace(ln), ";") {
			if err := s.parseStatement(stmt.String(), t, fn); err != nil {
				return err
			}
			stmt.Reset()
			buffering = false
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("error scanning dump %s: %w", s.path, err)
	}
	return nil
}

// parseStatement takes one buffered INSERT statement, discards everything up
// to the VALUES keyword and walks the tuple list.
func (s *Scanner) parseStatement(stmt string, t Table, fn func(Row) error) error {
	i := indexFold(stmt, "VALUES")
	if i < 0 {
		return nil
	}
	tuples := strings.TrimRight(strings.TrimSpace(stmt[i+len("VALUES"):]), "; \n\t")
	return s.scanTuples(tuples, t, fn)
}

// scanTuples is a single left-to-right pass over the tuple list, tracking
// parenthesis depth, an in-string flag and a pending-escape flag. Parentheses
// only open and close tuples outside of strings; a backslash escapes exactly
// one following byte; an unescaped single quote toggles the in-string flag.
func (s *Scanner) scanTuples(in string, t Table, fn func(Row) error) error {
	var acc strings.Builder
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(in); i++ {
		c := in[i]
		if escaped {
			acc.WriteByte(c)
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			if depth > 0 {
				acc.WriteByte(c)
			}
			continue
		}
		if c == '\'' {
			inString = !inString
			if depth > 0 {
				acc.WriteByte(c)
			}
			continue
		}
		if !inString {
			switch c {
			case '(':
				depth++
				if depth == 1 {
					acc.Reset()
					continue
				}
			case ')':
				depth--
				if depth == 0 {
					r, ok := s.tupleToRow(acc.String(), t)
					if ok {
						if err := fn(r); err != nil {
							return err
						}
					}
					continue
				}
			}
		}
		if depth > 0 {
			acc.WriteByte(c)
		}
	}
	return nil
}

// tupleToRow splits one captured tuple on commas outside strings and pairs
// the fields with the table's columns. Tuples whose field count does not
// match are dropped and counted.
func (s *Scanner) tupleToRow(in string, t Table) (Row, bool) {
	fs := splitFields(in)
	if len(fs) != len(t.Columns) {
		s.Mismatched++
		return nil, false
	}
	r := make(Row, len(fs))
	for i, c := range t.Columns {
		r[c] = fs[i]
	}
	return r, true
}

func splitFields(in string) []Field {
	var out []Field
	var cur strings.Builder
	inString := false
	escaped := false
	flush := func() {
		v := strings.TrimSpace(cur.String())
		cur.Reset()
		if strings.EqualFold(v, "NULL") {
			out = append(out, Field{Null: true})
			return
		}
		out = append(out, Field{Raw: v})
	}
	for i := 0; i < len(in); i++ {
		c := in[i]
		if escaped {
			cur.WriteByte(c)
			escaped = false
			continue
		}
		switch {
		case c == '\\':
			escaped = true
			cur.WriteByte(c)
		case c == '\'':
			inString = !inString
			cur.WriteByte(c)
		case c == ',' && !inString:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return out
}

// indexFold is strings.Index with ASCII case folding, enough for SQL keywords.
func indexFold(s, sub string) int {
	return strings.Index(strings.ToUpper(s), strings.ToUpper(sub))
}
