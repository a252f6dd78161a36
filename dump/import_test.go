package dump

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Chirlanio/mercury-sync/sync"
)

type fakeDB struct {
	nextID    int64
	employees map[string]int64
	contracts map[string]bool
	sales     map[int64]SaleRecord
	batches   []int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		employees: map[string]int64{},
		contracts: map[string]bool{},
		sales:     map[int64]SaleRecord{},
	}
}

func (f *fakeDB) UpsertEmployee(e Employee) (int64, error) {
	if id, ok := f.employees[e.CPF]; ok {
		return id, nil
	}
	f.nextID++
	f.employees[e.CPF] = f.nextID
	return f.nextID, nil
}

func (f *fakeDB) UpsertContract(employeeID, storeID int64, c Contract) (bool, error) {
	key := fmt.Sprintf("%d/%s", employeeID, c.StartedAt.Format("2006-01-02"))
	_, known := f.contracts[key]
	f.contracts[key] = true
	return !known, nil
}

func (f *fakeDB) InsertSales(batch []SaleRecord) (int, error) {
	var n int
	for _, s := range batch {
		if _, ok := f.sales[s.LegacyID]; ok {
			continue
		}
		f.sales[s.LegacyID] = s
		n++
	}
	f.batches = append(f.batches, len(batch))
	return n, nil
}

func mercuryDump(t *testing.T) string {
	t.Helper()
	return tmpDump(t,
		"INSERT INTO `funcionarios` VALUES (1,'111.444.777-35','Ana Souza','1990-05-10','Vendedora'),(2,'529.982.247-25','Bruno Lima','0000-00-00','Gerente'),(3,'123','Sem CPF','1980-01-01','Caixa');",
		"INSERT INTO `contratos` VALUES (1,'111.444.777-35','0001','2021-02-01',NULL),(2,'529.982.247-25','9999','2022-03-15','2023-01-31'),(3,'000.000.000-00','0001','2022-01-01',NULL);",
		"INSERT INTO `vendas` VALUES (10,'111.444.777-35','0001','2024-01-05 10:00:00','150.00'),(11,'111.444.777-35','9999','2024-01-06 11:00:00','80.00'),(10,'111.444.777-35','0001','2024-01-05 10:00:00','150.00'),(12,'000.000.000-00','0001','2024-01-07','5.00');",
	)
}

func TestImporterRun(t *testing.T) {
	db := newFakeDB()
	ids := sync.NewIdentity()
	ids.AddStore("0001", 1)
	ids.AddStore(sync.EcommerceStoreCode, 99)
	imp := NewImporter(db, ids)
	s, err := imp.Run(context.Background(), mercuryDump(t), TargetAll)
	if err != nil {
		t.Fatalf("expected import to succeed, got %v", err)
	}
	emp := s[EmployeesTable.Name]
	if emp.Read != 3 || emp.Inserted != 2 || emp.Skipped != 1 {
		t.Errorf("expected employees 3 read / 2 inserted / 1 skipped, got %+v", emp)
	}
	if _, ok := ids.Person("11144477735"); !ok {
		t.Error("expected the identity map to learn inserted employees")
	}
	ct := s[ContractsTable.Name]
	if ct.Inserted != 2 || ct.Skipped != 1 {
		t.Errorf("expected contracts 2 inserted / 1 skipped, got %+v", ct)
	}
	sl := s[SalesTable.Name]
	if sl.Read != 4 || sl.Inserted != 2 || sl.Skipped != 1 {
		t.Errorf("expected sales 4 read / 2 inserted / 1 skipped, got %+v", sl)
	}
	if len(db.sales) != 2 {
		t.Fatalf("expected the duplicated legacy id collapsed to 2 sales, got %d", len(db.sales))
	}
	// sale 11 went through the e-commerce store and must land on the
	// employee's active-contract store.
	if got := db.sales[11].StoreID; got != 1 {
		t.Errorf("expected e-commerce sale attributed to store 1, got %d", got)
	}
	if got := db.sales[10].StoreID; got != 1 {
		t.Errorf("expected regular sale on store 1, got %d", got)
	}
}

func TestImporterRunIdempotent(t *testing.T) {
	db := newFakeDB()
	ids := sync.NewIdentity()
	ids.AddStore("0001", 1)
	ids.AddStore(sync.EcommerceStoreCode, 99)
	pth := mercuryDump(t)
	imp := NewImporter(db, ids)
	if _, err := imp.Run(context.Background(), pth, TargetAll); err != nil {
		t.Fatalf("expected first import to succeed, got %v", err)
	}
	s, err := imp.Run(context.Background(), pth, TargetAll)
	if err != nil {
		t.Fatalf("expected second import to succeed, got %v", err)
	}
	if emp := s[EmployeesTable.Name]; emp.Inserted != 0 || emp.Updated != 2 {
		t.Errorf("expected employees updated in place on re-import, got %+v", emp)
	}
	if sl := s[SalesTable.Name]; sl.Inserted != 0 {
		t.Errorf("expected no new sales on re-import, got %+v", sl)
	}
	if len(db.sales) != 2 {
		t.Errorf("expected sales unchanged after re-import, got %d", len(db.sales))
	}
}

func TestImporterDryRun(t *testing.T) {
	ids := sync.NewIdentity()
	ids.AddStore("0001", 1)
	ids.AddStore(sync.EcommerceStoreCode, 99)
	ids.AddPerson("11144477735", 5)
	ids.AddPerson("52998224725", 6)
	imp := NewImporter(nil, ids)
	imp.DryRun = true
	s, err := imp.Run(context.Background(), mercuryDump(t), TargetAll)
	if err != nil {
		t.Fatalf("expected dry run to succeed, got %v", err)
	}
	if emp := s[EmployeesTable.Name]; emp.Updated != 2 || emp.Skipped != 1 {
		t.Errorf("expected employees 2 updated / 1 skipped on dry run, got %+v", emp)
	}
	if ct := s[ContractsTable.Name]; ct.Inserted != 2 || ct.Skipped != 1 {
		t.Errorf("expected contracts 2 inserted / 1 skipped on dry run, got %+v", ct)
	}
	if sl := s[SalesTable.Name]; sl.Read != 4 || sl.Inserted != 4 {
		t.Errorf("expected all 4 sales counted on dry run, got %+v", sl)
	}
}

func TestImporterRunMissingFile(t *testing.T) {
	imp := NewImporter(nil, sync.NewIdentity())
	imp.DryRun = true
	pth := filepath.Join(t.TempDir(), "missing.sql")
	if _, err := imp.Run(context.Background(), pth, TargetEmployees); err == nil {
		t.Error("expected an error for a missing dump file")
	}
}

func TestParseTarget(t *testing.T) {
	for _, s := range []string{"employees", "contracts", "sales", "all"} {
		if _, err := ParseTarget(s); err != nil {
			t.Errorf("expected %q to parse, got %v", s, err)
		}
	}
	if _, err := ParseTarget("products"); err == nil {
		t.Error("expected an unknown target to be rejected")
	}
}
