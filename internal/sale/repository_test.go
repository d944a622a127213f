package sale

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/evcraddock/estate-market/internal/db"
	"github.com/evcraddock/estate-market/internal/property"
)

const (
	alice = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	bob   = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	carol = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
)

// testSetup returns a sale repository, the property repository and a
// property owned by alice.
func testSetup(t *testing.T) (*Repository, *property.Repository, int64) {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close db: %v", err)
		}
	})

	props := property.NewRepository(d)
	p, err := props.Upsert(&property.Property{TokenID: "1", Name: "Harbor Loft", Valuation: 450000, Owner: alice})
	if err != nil {
		t.Fatalf("upsert property: %v", err)
	}
	return NewRepository(d), props, p.ID
}

func TestCreate(t *testing.T) {
	repo, _, propID := testSetup(t)

	s, err := repo.Create(propID, bob, 440000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID == "" {
		t.Error("expected generated ID")
	}
	if s.Status != StatusPending {
		t.Errorf("status = %q, want pending", s.Status)
	}
	if s.Seller != alice || s.Buyer != bob {
		t.Errorf("seller/buyer = %s/%s", s.Seller, s.Buyer)
	}
	if s.Price != 440000 {
		t.Errorf("price = %d, want 440000", s.Price)
	}
	if s.CreatedAt.IsZero() {
		t.Error("expected created_at")
	}
}

func TestCreateValidation(t *testing.T) {
	repo, _, propID := testSetup(t)

	tests := []struct {
		name       string
		propertyID int64
		buyer      string
		price      int64
		want       error
	}{
		{"zero price", propID, bob, 0, ErrInvalid},
		{"negative price", propID, bob, -1, ErrInvalid},
		{"no buyer", propID, "", 100, ErrInvalid},
		{"buyer is owner", propID, "0x70997970c51812dc3a010c7d01b50e0d17dc79c8", 100, ErrInvalid},
		{"missing property", 9999, bob, 100, property.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.Create(tt.propertyID, tt.buyer, tt.price); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCompleteTransfersOwnership(t *testing.T) {
	repo, props, propID := testSetup(t)

	winner, err := repo.Create(propID, bob, 440000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rival, err := repo.Create(propID, carol, 430000)
	if err != nil {
		t.Fatalf("create rival: %v", err)
	}

	done, err := repo.Complete(winner.ID, "0xabc")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != StatusCompleted || done.TxHash != "0xabc" {
		t.Errorf("sale = %+v", done)
	}

	p, err := props.GetByID(propID)
	if err != nil {
		t.Fatalf("get property: %v", err)
	}
	if p.Owner != bob {
		t.Errorf("owner = %s, want %s", p.Owner, bob)
	}

	r, err := repo.GetByID(rival.ID)
	if err != nil {
		t.Fatalf("get rival: %v", err)
	}
	if r.Status != StatusCancelled {
		t.Errorf("rival status = %s, want cancelled", r.Status)
	}
}

func TestOwnerChangeWithdrawsOffers(t *testing.T) {
	repo, props, propID := testSetup(t)

	s, err := repo.Create(propID, bob, 440000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := props.UpdateOwner(propID, carol); err != nil {
		t.Fatalf("update owner: %v", err)
	}

	if _, err := repo.Complete(s.ID, ""); err == nil {
		t.Fatal("expected error completing an offer made to the previous owner")
	}
	got, err := repo.GetByID(s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	p, err := props.GetByID(propID)
	if err != nil {
		t.Fatalf("get property: %v", err)
	}
	if p.Owner != carol {
		t.Errorf("owner = %s, want %s", p.Owner, carol)
	}
}

func TestCompleteRequiresCurrentOwner(t *testing.T) {
	repo, props, propID := testSetup(t)

	s, err := repo.Create(propID, bob, 440000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// Move ownership behind the repository's back so the offer stays pending.
	if _, err := repo.db.Exec("UPDATE properties SET owner = ? WHERE id = ?", carol, propID); err != nil {
		t.Fatalf("set owner: %v", err)
	}

	if _, err := repo.Complete(s.ID, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	got, err := repo.GetByID(s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("status = %s, want pending after rejected completion", got.Status)
	}
	p, err := props.GetByID(propID)
	if err != nil {
		t.Fatalf("get property: %v", err)
	}
	if p.Owner != carol {
		t.Errorf("owner = %s, want %s", p.Owner, carol)
	}
}

func TestSettledSalesAreFinal(t *testing.T) {
	repo, _, propID := testSetup(t)

	s, err := repo.Create(propID, bob, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Cancel(s.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if _, err := repo.Cancel(s.ID); !errors.Is(err, ErrNotPending) {
		t.Errorf("second cancel err = %v, want ErrNotPending", err)
	}
	if _, err := repo.Complete(s.ID, ""); !errors.Is(err, ErrNotPending) {
		t.Errorf("complete cancelled err = %v, want ErrNotPending", err)
	}
}

func TestGetNotFound(t *testing.T) {
	repo, _, _ := testSetup(t)

	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := repo.Complete("missing", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("complete err = %v, want ErrNotFound", err)
	}
}

func TestList(t *testing.T) {
	repo, props, propID := testSetup(t)

	other, err := props.Upsert(&property.Property{TokenID: "2", Owner: carol, Valuation: 10})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	s1, err := repo.Create(propID, bob, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(other.ID, bob, 200); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Create(other.ID, alice, 300); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Cancel(s1.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	tests := []struct {
		name string
		opts ListOptions
		want int
	}{
		{"all", ListOptions{}, 3},
		{"by property", ListOptions{PropertyID: other.ID}, 2},
		{"by buyer", ListOptions{Buyer: bob}, 2},
		{"by seller", ListOptions{Seller: carol}, 2},
		{"by status", ListOptions{Status: StatusPending}, 2},
		{"limit", ListOptions{Limit: 1}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(tt.opts)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d sales, want %d", len(got), tt.want)
			}
		})
	}

	if _, err := repo.List(ListOptions{Status: "sold"}); err == nil {
		t.Error("expected error for invalid status")
	}

	newest, err := repo.List(ListOptions{Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if newest[0].Price != 300 {
		t.Errorf("newest price = %d, want 300", newest[0].Price)
	}
}

func TestStats(t *testing.T) {
	repo, _, propID := testSetup(t)

	a, err := repo.Create(propID, bob, 400)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.Complete(a.ID, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	// bob now owns the property; alice bids to buy it back.
	if _, err := repo.Create(propID, alice, 500); err != nil {
		t.Fatalf("create: %v", err)
	}

	s, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := Stats{Pending: 1, Completed: 1, CompletedVolume: 400}
	if *s != want {
		t.Errorf("stats = %+v, want %+v", *s, want)
	}
}

func TestStatusConstraint(t *testing.T) {
	repo, _, propID := testSetup(t)

	_, err := repo.db.Exec(
		"INSERT INTO sales (id, property_id, price, seller, buyer, status) VALUES ('x', ?, 1, ?, ?, 'sold')",
		propID, alice, bob,
	)
	if err == nil {
		t.Fatal("expected check constraint error")
	}
}
