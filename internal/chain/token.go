package chain

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed abi/PropertyToken.json
var propertyTokenABIJSON []byte

// propertyTokenABI is parsed once; the embedded document is known-good.
var propertyTokenABI = mustParseABI(propertyTokenABIJSON)

func mustParseABI(data []byte) abi.ABI {
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("parsing embedded ABI: %v", err))
	}
	return parsed
}

// TokenProperty is the property record stored on chain for one token.
type TokenProperty struct {
	TokenID   *big.Int
	Owner     common.Address
	Name      string
	Location  string
	Valuation *big.Int
	Metadata  string
}

// PropertyToken is a read-only binding to the property-token contract.
type PropertyToken struct {
	backend Backend
	address common.Address
}

// NewPropertyToken binds the contract at address.
func NewPropertyToken(backend Backend, address common.Address) (*PropertyToken, error) {
	if backend == nil {
		return nil, ErrNoBackend
	}
	if address == (common.Address{}) {
		return nil, fmt.Errorf("property token address is required")
	}
	return &PropertyToken{backend: backend, address: address}, nil
}

// Address returns the bound contract address.
func (t *PropertyToken) Address() common.Address {
	return t.address
}

// TotalSupply returns the number of minted tokens.
func (t *PropertyToken) TotalSupply(ctx context.Context) (*big.Int, error) {
	out, err := t.call(ctx, "totalSupply")
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// OwnerOf returns the owner of a token.
func (t *PropertyToken) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	out, err := t.call(ctx, "ownerOf", tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

// BalanceOf returns how many tokens an owner holds.
func (t *PropertyToken) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := t.call(ctx, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return out[0].(*big.Int), nil
}

// Property returns the on-chain property record of a token, including its owner.
func (t *PropertyToken) Property(ctx context.Context, tokenID *big.Int) (*TokenProperty, error) {
	out, err := t.call(ctx, "getProperty", tokenID)
	if err != nil {
		return nil, err
	}

	owner, err := t.OwnerOf(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	return &TokenProperty{
		TokenID:   new(big.Int).Set(tokenID),
		Owner:     owner,
		Name:      out[0].(string),
		Location:  out[1].(string),
		Valuation: out[2].(*big.Int),
		Metadata:  out[3].(string),
	}, nil
}

// errStop ends an EachTokenID walk early without an error.
var errStop = errors.New("stop iteration")

// EachTokenID calls fn with every minted token ID in order. IDs are
// sequential from 1 to totalSupply and are produced one at a time, so a
// large supply is never materialized. The walk ends at the first error from
// fn or when ctx is cancelled.
func (t *PropertyToken) EachTokenID(ctx context.Context, fn func(id *big.Int) error) error {
	supply, err := t.TotalSupply(ctx)
	if err != nil {
		return err
	}

	one := big.NewInt(1)
	for id := big.NewInt(1); id.Cmp(supply) <= 0; id = new(big.Int).Add(id, one) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

// OwnedTokens enumerates token IDs and keeps those owned by owner, stopping
// once balanceOf(owner) matches have been found. Burned tokens (ownerOf
// reverts) are skipped.
func (t *PropertyToken) OwnedTokens(ctx context.Context, owner common.Address) ([]*big.Int, error) {
	balance, err := t.BalanceOf(ctx, owner)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, nil
	}

	var owned []*big.Int
	err = t.EachTokenID(ctx, func(id *big.Int) error {
		holder, err := t.OwnerOf(ctx, id)
		if IsRevert(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if holder == owner {
			owned = append(owned, id)
			if big.NewInt(int64(len(owned))).Cmp(balance) >= 0 {
				return errStop
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}
	return owned, nil
}

// call packs a view call, executes it against the latest block and unpacks the result.
func (t *PropertyToken) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	input, err := propertyTokenABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", method, err)
	}

	output, err := t.backend.CallContract(ctx, ethereum.CallMsg{To: &t.address, Data: input}, nil)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}

	values, err := propertyTokenABI.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s: %w", method, err)
	}
	return values, nil
}

// ABI returns the property-token contract ABI.
func ABI() abi.ABI {
	return propertyTokenABI
}
