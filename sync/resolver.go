package sync

import "fmt"

// EcommerceStoreCode marks sales made through the web store. Sales under it
// are attributed to the employee's physical home store when one is known.
const EcommerceStoreCode = "9999"

// IdentitySource bulk-loads the natural-key lookup tables the resolver is
// built from. Implemented by db.PostgreSQL.
type IdentitySource interface {
	StoreIDsByCode() (map[string]int64, error)
	EmployeeIDsByCPF() (map[string]int64, error)
	// ActiveContractStores maps employee id to the store id of their
	// newest open-ended contract.
	ActiveContractStores() (map[int64]int64, error)
}

// Identity resolves external business keys (store codes, CPFs) to local
// surrogate ids. The maps are bulk-loaded once per run and carried explicitly
// through the pipeline; they are updated incrementally as the run inserts new
// employees and contracts, so later records in the same run can resolve them.
type Identity struct {
	stores      map[string]int64
	people      map[string]int64
	activeStore map[int64]int64
}

// LoadIdentity builds the resolver with one bulk query per map. Maps are
// never reused across runs to avoid staleness.
func LoadIdentity(src IdentitySource) (*Identity, error) {
	stores, err := src.StoreIDsByCode()
	if err != nil {
		return nil, fmt.Errorf("error loading store codes: %w", err)
	}
	people, err := src.EmployeeIDsByCPF()
	if err != nil {
		return nil, fmt.Errorf("error loading employee CPFs: %w", err)
	}
	active, err := src.ActiveContractStores()
	if err != nil {
		return nil, fmt.Errorf("error loading active contracts: %w", err)
	}
	return &Identity{stores: stores, people: people, activeStore: active}, nil
}

// NewIdentity returns an empty resolver, useful for dry runs and tests.
func NewIdentity() *Identity {
	return &Identity{
		stores:      map[string]int64{},
		people:      map[string]int64{},
		activeStore: map[int64]int64{},
	}
}

// Store resolves a store code to its local id.
func (d *Identity) Store(code string) (int64, bool) {
	id, ok := d.stores[code]
	return id, ok
}

// Person resolves a CPF to the local employee id.
func (d *Identity) Person(cpf string) (int64, bool) {
	id, ok := d.people[cpf]
	return id, ok
}

// SaleStore resolves the store a sale belongs to. The e-commerce code is the
// one override: it resolves to the employee's active-contract store, falling
// back to the e-commerce store's own mapping when the employee has none.
func (d *Identity) SaleStore(code string, employeeID int64) (int64, bool) {
	if code == EcommerceStoreCode {
		if id, ok := d.activeStore[employeeID]; ok {
			return id, true
		}
	}
	return d.Store(code)
}

func (d *Identity) AddStore(code string, id int64) { d.stores[code] = id }

func (d *Identity) AddPerson(cpf string, id int64) { d.people[cpf] = id }

// SetActiveStore records the employee's current store after a contract
// insert, keeping the e-commerce override consistent within the run.
func (d *Identity) SetActiveStore(employeeID, storeID int64) {
	d.activeStore[employeeID] = storeID
}
