package property

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/evcraddock/estate-market/internal/chain"
	"github.com/evcraddock/estate-market/internal/chain/chaintest"
)

func testService(t *testing.T) (*Service, *chaintest.Backend) {
	t.Helper()
	backend := chaintest.New(31337)
	token, err := chain.NewPropertyToken(backend, common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"))
	if err != nil {
		t.Fatalf("bind token: %v", err)
	}
	return NewService(testRepo(t), token), backend
}

func TestSync(t *testing.T) {
	svc, backend := testService(t)
	backend.Mint(chaintest.Token{
		Owner:     common.HexToAddress(alice),
		Name:      "Harbor Loft",
		Location:  "12 Quay St, Lisbon, Portugal",
		Valuation: 450000,
		Metadata:  `{"latitude":38.7071,"longitude":-9.1355,"bedrooms":2}`,
	})
	backend.Mint(chaintest.Token{Owner: common.HexToAddress(bob), Location: "Lot 7", Valuation: 1})
	backend.Mint(chaintest.Token{Owner: common.HexToAddress(bob), Name: "Burned"})
	backend.Burn(3)

	result, err := svc.Sync(context.Background())
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if result.Synced != 2 || result.Removed != 1 {
		t.Errorf("result = %+v, want 2 synced, 1 removed", result)
	}

	p, err := svc.Repository().GetByTokenID("1")
	if err != nil {
		t.Fatalf("get token 1: %v", err)
	}
	if p.Location.City != "Lisbon" || p.Location.Country != "Portugal" {
		t.Errorf("location = %+v", p.Location)
	}
	if p.Geohash != "eycs0n7" {
		t.Errorf("geohash = %q, want eycs0n7", p.Geohash)
	}
	if p.Owner != alice {
		t.Errorf("owner = %s, want %s", p.Owner, alice)
	}

	unnamed, err := svc.Repository().GetByTokenID("2")
	if err != nil {
		t.Fatalf("get token 2: %v", err)
	}
	if unnamed.Name != "Property #2" {
		t.Errorf("name = %q, want fallback name", unnamed.Name)
	}
}

func TestSyncRemovesBurnedToken(t *testing.T) {
	svc, backend := testService(t)
	backend.Mint(chaintest.Token{Owner: common.HexToAddress(alice), Name: "Soon gone"})

	if _, err := svc.Sync(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}
	backend.Burn(1)

	if _, err := svc.SyncToken(context.Background(), big.NewInt(1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Repository().GetByTokenID("1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("burned token still stored: %v", err)
	}
}

func TestSyncDiscardsInvalidMetadata(t *testing.T) {
	svc, backend := testService(t)
	backend.Mint(chaintest.Token{Owner: common.HexToAddress(alice), Name: "Odd", Metadata: `{"bedrooms":"many"}`})

	p, err := svc.SyncToken(context.Background(), big.NewInt(1))
	if err != nil {
		t.Fatalf("sync token: %v", err)
	}
	if string(p.Metadata) != "{}" {
		t.Errorf("metadata = %s, want {}", p.Metadata)
	}
}

func TestSyncChainFailure(t *testing.T) {
	svc, backend := testService(t)
	backend.Mint(chaintest.Token{Owner: common.HexToAddress(alice)})
	backend.Err = errors.New("connection refused")

	if _, err := svc.Sync(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestOwned(t *testing.T) {
	svc, backend := testService(t)
	backend.Mint(chaintest.Token{Owner: common.HexToAddress(alice), Name: "A"})
	backend.Mint(chaintest.Token{Owner: common.HexToAddress(bob), Name: "B"})
	backend.Mint(chaintest.Token{Owner: common.HexToAddress(alice), Name: "C"})

	// Token 1 is synced with a stale owner; token 3 is unknown locally.
	mustUpsert(t, svc.Repository(), &Property{TokenID: "1", Name: "A", Owner: bob})

	owned, err := svc.Owned(context.Background(), alice)
	if err != nil {
		t.Fatalf("owned: %v", err)
	}
	if len(owned) != 2 {
		t.Fatalf("got %d properties, want 2", len(owned))
	}
	if owned[0].TokenID != "1" || owned[1].TokenID != "3" {
		t.Errorf("tokens = %s, %s; want 1, 3", owned[0].TokenID, owned[1].TokenID)
	}

	stored, err := svc.Repository().GetByTokenID("1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Owner != alice {
		t.Errorf("stale owner not corrected: %s", stored.Owner)
	}
	if _, err := svc.Repository().GetByTokenID("3"); err != nil {
		t.Errorf("token 3 not imported: %v", err)
	}
}

func TestServiceWithoutChain(t *testing.T) {
	svc := NewService(testRepo(t), nil)
	ctx := context.Background()

	if svc.Online() {
		t.Error("Online() = true without a token reader")
	}

	if _, err := svc.Sync(ctx); !errors.Is(err, chain.ErrNoBackend) {
		t.Errorf("Sync err = %v, want ErrNoBackend", err)
	}
	if _, err := svc.SyncToken(ctx, big.NewInt(1)); !errors.Is(err, chain.ErrNoBackend) {
		t.Errorf("SyncToken err = %v, want ErrNoBackend", err)
	}
	if _, err := svc.Owned(ctx, alice); !errors.Is(err, chain.ErrNoBackend) {
		t.Errorf("Owned err = %v, want ErrNoBackend", err)
	}
}

func TestFromTokenRejectsHugeValuation(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 80)
	_, err := FromToken(&chain.TokenProperty{TokenID: big.NewInt(1), Valuation: huge})
	if err == nil {
		t.Fatal("expected out-of-range error")
	}
}
