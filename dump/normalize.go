package dump

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Tables of the Mercury dump this importer understands.
var (
	EmployeesTable = Table{
		Name:    "funcionarios",
		Columns: []string{"id", "cpf", "nome", "data_nascimento", "funcao"},
	}
	ContractsTable = Table{
		Name:    "contratos",
		Columns: []string{"id", "cpf", "codigo_loja", "data_admissao", "data_demissao"},
	}
	SalesTable = Table{
		Name:    "vendas",
		Columns: []string{"id", "cpf", "codigo_loja", "data_venda", "valor"},
	}
)

// Legacy zero dates mean "never filled in". Non-nullable dates get these
// defaults instead; end dates become open-ended (nil).
var (
	DefaultBirthDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	DefaultStartDate = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Employee categories. Legacy free-text job titles are folded into these.
const (
	CategoryManager     = "gerente"
	CategorySalesperson = "vendedor"
	CategoryCashier     = "caixa"
	CategoryStockClerk  = "estoquista"
	CategoryOther       = "outros"
)

// Outcome classifies one normalized record: accepted, or skipped with a
// reason. Skips are expected and counted, never treated as errors.
type Outcome string

const Accepted Outcome = "accept"

func Skip(reason string) Outcome { return Outcome("skip:" + reason) }

func (o Outcome) Accepted() bool { return o == Accepted }

func (o Outcome) Reason() string { return strings.TrimPrefix(string(o), "skip:") }

type Employee struct {
	CPF       string
	Name      string
	BirthDate time.Time
	Category  string
}

type Contract struct {
	CPF       string
	StoreCode string
	StartedAt time.Time
	EndedAt   *time.Time
}

type Sale struct {
	LegacyID  int64
	CPF       string
	StoreCode string
	SoldAt    time.Time
	Amount    decimal.Decimal
}

// NormalizeEmployee converts one funcionarios row into a typed record.
func NormalizeEmployee(r Row) (Employee, Outcome) {
	cpf := nonDigits.ReplaceAllString(r["cpf"].Text(), "")
	if len(cpf) != 11 {
		return Employee{}, Skip("invalid cpf")
	}
	name := strings.TrimSpace(r["nome"].Text())
	if name == "" {
		return Employee{}, Skip("empty name")
	}
	return Employee{
		CPF:       cpf,
		Name:      name,
		BirthDate: dateOrDefault(r["data_nascimento"], DefaultBirthDate),
		Category:  CategoryFor(r["funcao"].Text()),
	}, Accepted
}

// NormalizeContract converts one contratos row into a typed record.
func NormalizeContract(r Row) (Contract, Outcome) {
	cpf := nonDigits.ReplaceAllString(r["cpf"].Text(), "")
	if len(cpf) != 11 {
		return Contract{}, Skip("invalid cpf")
	}
	code := strings.TrimSpace(r["codigo_loja"].Text())
	if code == "" {
		return Contract{}, Skip("missing store code")
	}
	return Contract{
		CPF:       cpf,
		StoreCode: code,
		StartedAt: dateOrDefault(r["data_admissao"], DefaultStartDate),
		EndedAt:   openEnded(r["data_demissao"]),
	}, Accepted
}

// NormalizeSale converts one vendas row into a typed record.
func NormalizeSale(r Row) (Sale, Outcome) {
	id, err := strconv.ParseInt(strings.TrimSpace(r["id"].Text()), 10, 64)
	if err != nil {
		return Sale{}, Skip("invalid legacy id")
	}
	cpf := nonDigits.ReplaceAllString(r["cpf"].Text(), "")
	if len(cpf) != 11 {
		return Sale{}, Skip("invalid cpf")
	}
	code := strings.TrimSpace(r["codigo_loja"].Text())
	if code == "" {
		return Sale{}, Skip("missing store code")
	}
	soldAt, ok := parseDate(r["data_venda"])
	if !ok {
		return Sale{}, Skip("invalid sale date")
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(r["valor"].Text()))
	if err != nil {
		return Sale{}, Skip("invalid amount")
	}
	return Sale{
		LegacyID:  id,
		CPF:       cpf,
		StoreCode: code,
		SoldAt:    soldAt,
		Amount:    amount,
	}, Accepted
}

// CategoryFor maps a legacy free-text job title to a canonical category.
// Titles are accent-folded and upper-cased before lookup; anything
// unrecognized falls back to CategoryOther.
func CategoryFor(title string) string {
	if c, ok := categories[foldText(title)]; ok {
		return c
	}
	return CategoryOther
}

var categories = map[string]string{
	"GERENTE":             CategoryManager,
	"GERENTE DE LOJA":     CategoryManager,
	"GERENTE GERAL":       CategoryManager,
	"SUBGERENTE":          CategoryManager,
	"VENDEDOR":            CategorySalesperson,
	"VENDEDORA":           CategorySalesperson,
	"CONSULTOR DE VENDAS": CategorySalesperson,
	"CAIXA":               CategoryCashier,
	"OPERADOR DE CAIXA":   CategoryCashier,
	"OPERADORA DE CAIXA":  CategoryCashier,
	"ESTOQUISTA":          CategoryStockClerk,
	"AUXILIAR DE ESTOQUE": CategoryStockClerk,
	"CONFERENTE":          CategoryStockClerk,
}

var nonDigits = regexp.MustCompile(`\D`)

var unaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldText(s string) string {
	if out, _, err := transform.String(unaccent, s); err == nil {
		s = out
	}
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// parseDate reads a legacy date literal. All-zero dates and empty strings are
// sentinels for "absent"; anything else unparseable is treated the same since
// the dump is full of hand-typed garbage.
func parseDate(f Field) (time.Time, bool) {
	v := strings.TrimSpace(f.Text())
	if len(v) > 10 {
		v = v[:10]
	}
	if v == "" || strings.HasPrefix(v, "0000-00-00") {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func dateOrDefault(f Field, def time.Time) time.Time {
	if t, ok := parseDate(f); ok {
		return t
	}
	return def
}

func openEnded(f Field) *time.Time {
	if t, ok := parseDate(f); ok {
		return &t
	}
	return nil
}
