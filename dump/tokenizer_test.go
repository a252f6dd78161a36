package dump

import (
	"os"
	"path/filepath"
	"testing"
)

func tmpDump(t *testing.T, lines ...string) string {
	t.Helper()
	pth := filepath.Join(t.TempDir(), "mercury.sql")
	var b []byte
	for _, l := range lines {
		b = append(b, l...)
		b = append(b, '\n')
	}
	if err := os.WriteFile(pth, b, 0o644); err != nil {
		t.Fatalf("could not write dump fixture: %v", err)
	}
	return pth
}

func TestScanTable(t *testing.T) {
	pth := tmpDump(t,
		"-- MySQL dump 10.13",
		"DROP TABLE IF EXISTS `funcionarios`;",
		"INSERT INTO `outra_tabela` VALUES (9,'ignorada');",
		"INSERT INTO `funcionarios` VALUES (1,'12345678901','O\\'Brien, José','1990-05-10','Vendedor'),(2,NULL,'Ana (a) Maria','0000-00-00','Caixa');",
	)
	rows, err := NewScanner(pth).ScanTable(EmployeesTable)
	if err != nil {
		t.Fatalf("expected no error scanning the dump, got %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if got := rows[0]["nome"].Text(); got != "O'Brien, José" {
		t.Errorf("expected escaped quote and comma preserved, got %q", got)
	}
	if got := rows[0]["cpf"].Text(); got != "12345678901" {
		t.Errorf("expected cpf 12345678901, got %q", got)
	}
	if !rows[1]["cpf"].Null {
		t.Errorf("expected NULL literal to become a null field, got %q", rows[1]["cpf"].Raw)
	}
	if got := rows[1]["nome"].Text(); got != "Ana (a) Maria" {
		t.Errorf("expected parentheses inside strings kept, got %q", got)
	}
}

func TestScanTableMultiLineStatement(t *testing.T) {
	pth := tmpDump(t,
		"INSERT INTO `funcionarios` VALUES",
		"(1,'12345678901','Alice','1991-01-01','Gerente'),",
		"(2,'98765432100','Bruna','1992-02-02','Vendedora');",
	)
	rows, err := NewScanner(pth).ScanTable(EmployeesTable)
	if err != nil {
		t.Fatalf("expected no error scanning the dump, got %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows out of a multi-line statement, got %d", len(rows))
	}
	if got := rows[1]["nome"].Text(); got != "Bruna" {
		t.Errorf("expected second tuple parsed, got nome %q", got)
	}
}

func TestScanTableFieldCountMismatch(t *testing.T) {
	pth := tmpDump(t,
		"INSERT INTO `funcionarios` VALUES (1,'12345678901','Alice','1991-01-01','Gerente'),(2,'98765432100','Bruna','1992-02-02');",
	)
	sc := NewScanner(pth)
	rows, err := sc.ScanTable(EmployeesTable)
	if err != nil {
		t.Fatalf("expected a short tuple not to crash the scan, got %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the short tuple to be dropped, got %d rows", len(rows))
	}
	if sc.Mismatched != 1 {
		t.Errorf("expected 1 mismatched tuple counted, got %d", sc.Mismatched)
	}
}

func TestStreamTable(t *testing.T) {
	pth := tmpDump(t,
		"INSERT INTO `vendas` VALUES (10,'12345678901','0001','2024-03-01',199.90);",
		"INSERT INTO `vendas` VALUES (11,'12345678901','9999','2024-03-02',59.90);",
	)
	var ids []string
	err := NewScanner(pth).StreamTable(SalesTable, func(r Row) error {
		ids = append(ids, r["id"].Text())
		return nil
	})
	if err != nil {
		t.Fatalf("expected no error streaming the dump, got %v", err)
	}
	if len(ids) != 2 || ids[0] != "10" || ids[1] != "11" {
		t.Errorf("expected rows 10 and 11 in order, got %v", ids)
	}
}

func TestStreamTableMissingFile(t *testing.T) {
	err := NewScanner(filepath.Join(t.TempDir(), "nope.sql")).StreamTable(SalesTable, func(Row) error { return nil })
	if err == nil {
		t.Fatal("expected an error for a missing dump file")
	}
}

func TestFieldText(t *testing.T) {
	cases := []struct {
		raw      string
		expected string
	}{
		{"'plain'", "plain"},
		{"'O\\'Brien'", "O'Brien"},
		{"'a\\\\b'", "a\\b"},
		{"'line\\nbreak'", "line\nbreak"},
		{"123", "123"},
		{"'0000-00-00'", "0000-00-00"},
	}
	for _, tc := range cases {
		if got := (Field{Raw: tc.raw}).Text(); got != tc.expected {
			t.Errorf("Field{%q}.Text() expected %q, got %q", tc.raw, tc.expected, got)
		}
	}
}
