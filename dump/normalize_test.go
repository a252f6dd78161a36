package dump

import (
	"testing"
	"time"
)

func employeeRow(cpf, name, birth, title string) Row {
	return Row{
		"id":              {Raw: "1"},
		"cpf":             {Raw: "'" + cpf + "'"},
		"nome":            {Raw: "'" + name + "'"},
		"data_nascimento": {Raw: "'" + birth + "'"},
		"funcao":          {Raw: "'" + title + "'"},
	}
}

func TestNormalizeEmployee(t *testing.T) {
	e, o := NormalizeEmployee(employeeRow("123.456.789-01", "Alice", "1990-05-10", "Vendedora"))
	if !o.Accepted() {
		t.Fatalf("expected record accepted, got %s", o)
	}
	if e.CPF != "12345678901" {
		t.Errorf("expected punctuation stripped from CPF, got %q", e.CPF)
	}
	if e.Category != CategorySalesperson {
		t.Errorf("expected category %s, got %s", CategorySalesperson, e.Category)
	}
	if !e.BirthDate.Equal(time.Date(1990, 5, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected birth date %s", e.BirthDate)
	}
}

func TestNormalizeEmployeeDateSentinel(t *testing.T) {
	e, o := NormalizeEmployee(employeeRow("12345678901", "Alice", "0000-00-00", "Caixa"))
	if !o.Accepted() {
		t.Fatalf("expected zero birth date not to reject the record, got %s", o)
	}
	if !e.BirthDate.Equal(DefaultBirthDate) {
		t.Errorf("expected default birth date %s, got %s", DefaultBirthDate, e.BirthDate)
	}
}

func TestNormalizeEmployeeBadCPF(t *testing.T) {
	for _, cpf := range []string{"", "123", "123456789012", "abc"} {
		if _, o := NormalizeEmployee(employeeRow(cpf, "Alice", "1990-05-10", "Caixa")); o.Accepted() {
			t.Errorf("expected CPF %q to be skipped", cpf)
		}
	}
}

func TestCategoryFor(t *testing.T) {
	cases := []struct {
		title    string
		expected string
	}{
		{"GERENTE", CategoryManager},
		{"gerente de loja", CategoryManager},
		{"Operador de Caixa", CategoryCashier},
		{"  vendedora  ", CategorySalesperson},
		{"AUXILIAR DE ESTOQUE", CategoryStockClerk},
		{"Açougueiro", CategoryOther},
		{"", CategoryOther},
	}
	for _, tc := range cases {
		if got := CategoryFor(tc.title); got != tc.expected {
			t.Errorf("CategoryFor(%q) expected %s, got %s", tc.title, tc.expected, got)
		}
	}
}

func TestNormalizeContract(t *testing.T) {
	r := Row{
		"id":            {Raw: "7"},
		"cpf":           {Raw: "'12345678901'"},
		"codigo_loja":   {Raw: "'0001'"},
		"data_admissao": {Raw: "'0000-00-00'"},
		"data_demissao": {Raw: "'0000-00-00'"},
	}
	c, o := NormalizeContract(r)
	if !o.Accepted() {
		t.Fatalf("expected record accepted, got %s", o)
	}
	if !c.StartedAt.Equal(DefaultStartDate) {
		t.Errorf("expected default admission date %s, got %s", DefaultStartDate, c.StartedAt)
	}
	if c.EndedAt != nil {
		t.Errorf("expected zero dismissal date to stay open-ended, got %s", c.EndedAt)
	}
	if c.StoreCode != "0001" {
		t.Errorf("expected store code with leading zeros kept, got %q", c.StoreCode)
	}
}

func TestNormalizeContractEnded(t *testing.T) {
	r := Row{
		"id":            {Raw: "7"},
		"cpf":           {Raw: "'12345678901'"},
		"codigo_loja":   {Raw: "'0001'"},
		"data_admissao": {Raw: "'2021-02-01'"},
		"data_demissao": {Raw: "'2023-10-31'"},
	}
	c, o := NormalizeContract(r)
	if !o.Accepted() {
		t.Fatalf("expected record accepted, got %s", o)
	}
	if c.EndedAt == nil || !c.EndedAt.Equal(time.Date(2023, 10, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected dismissal date kept, got %v", c.EndedAt)
	}
}

func TestNormalizeSale(t *testing.T) {
	r := Row{
		"id":          {Raw: "42"},
		"cpf":         {Raw: "'12345678901'"},
		"codigo_loja": {Raw: "'9999'"},
		"data_venda":  {Raw: "'2024-03-01 14:22:10'"},
		"valor":       {Raw: "199.90"},
	}
	s, o := NormalizeSale(r)
	if !o.Accepted() {
		t.Fatalf("expected record accepted, got %s", o)
	}
	if s.LegacyID != 42 {
		t.Errorf("expected legacy id 42, got %d", s.LegacyID)
	}
	if s.Amount.String() != "199.9" {
		t.Errorf("expected amount 199.9, got %s", s.Amount)
	}
	if !s.SoldAt.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected timestamp truncated to its date, got %s", s.SoldAt)
	}
}

func TestNormalizeSaleRejects(t *testing.T) {
	base := func() Row {
		return Row{
			"id":          {Raw: "42"},
			"cpf":         {Raw: "'12345678901'"},
			"codigo_loja": {Raw: "'0001'"},
			"data_venda":  {Raw: "'2024-03-01'"},
			"valor":       {Raw: "10.00"},
		}
	}
	cases := []struct {
		name  string
		field string
		value Field
	}{
		{"zero sale date", "data_venda", Field{Raw: "'0000-00-00'"}},
		{"null amount", "valor", Field{Null: true}},
		{"garbage amount", "valor", Field{Raw: "'R$ dez'"}},
		{"bad legacy id", "id", Field{Raw: "'abc'"}},
	}
	for _, tc := range cases {
		r := base()
		r[tc.field] = tc.value
		if _, o := NormalizeSale(r); o.Accepted() {
			t.Errorf("%s: expected record skipped", tc.name)
		}
	}
}
