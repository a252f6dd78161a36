package sync

import "testing"

func testIdentity() *Identity {
	ids := NewIdentity()
	ids.AddStore("0001", 1)
	ids.AddStore("0002", 2)
	ids.AddStore(EcommerceStoreCode, 99)
	ids.AddPerson("11144477735", 5)
	ids.AddPerson("52998224725", 6)
	ids.SetActiveStore(5, 1)
	return ids
}

func TestIdentityStore(t *testing.T) {
	ids := testIdentity()
	if id, ok := ids.Store("0002"); !ok || id != 2 {
		t.Errorf("expected store 0002 to resolve to 2, got %d (%t)", id, ok)
	}
	if _, ok := ids.Store("0042"); ok {
		t.Error("expected unknown store code not to resolve")
	}
}

func TestIdentityPerson(t *testing.T) {
	ids := testIdentity()
	if id, ok := ids.Person("11144477735"); !ok || id != 5 {
		t.Errorf("expected CPF to resolve to 5, got %d (%t)", id, ok)
	}
	if _, ok := ids.Person("00000000000"); ok {
		t.Error("expected unknown CPF not to resolve")
	}
}

func TestSaleStore(t *testing.T) {
	for _, tc := range []struct {
		name       string
		code       string
		employeeID int64
		want       int64
		ok         bool
	}{
		{"physical store resolves directly", "0002", 5, 2, true},
		{"e-commerce follows the active contract", EcommerceStoreCode, 5, 1, true},
		{"e-commerce without contract falls back to its own store", EcommerceStoreCode, 6, 99, true},
		{"unknown code does not resolve", "0042", 5, 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ids := testIdentity()
			got, ok := ids.SaleStore(tc.code, tc.employeeID)
			if ok != tc.ok {
				t.Fatalf("expected ok %t, got %t", tc.ok, ok)
			}
			if ok && got != tc.want {
				t.Errorf("expected store %d, got %d", tc.want, got)
			}
		})
	}
}

func TestSetActiveStoreAfterContractInsert(t *testing.T) {
	ids := testIdentity()
	ids.AddPerson("12345678909", 7)
	ids.SetActiveStore(7, 2)
	if got, ok := ids.SaleStore(EcommerceStoreCode, 7); !ok || got != 2 {
		t.Errorf("expected new active store to win the e-commerce override, got %d (%t)", got, ok)
	}
}
