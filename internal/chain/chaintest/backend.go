// Package chaintest provides an in-memory chain.Backend for tests.
package chaintest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/evcraddock/estate-market/internal/chain"
)

// Token is a minted property token.
type Token struct {
	Owner     common.Address
	Name      string
	Location  string
	Valuation int64
	Metadata  string
}

// Backend answers property-token view calls from memory.
type Backend struct {
	mu       sync.Mutex
	chainID  int64
	supply   int64
	tokens   map[int64]*Token
	balances map[common.Address]*big.Int
	calls    map[string]int

	// reported, when set, is returned by totalSupply instead of the minted count.
	reported *big.Int

	// Err, when set, is returned from every call.
	Err error
}

// New creates an empty backend for the given chain ID.
func New(chainID int64) *Backend {
	return &Backend{
		chainID:  chainID,
		tokens:   make(map[int64]*Token),
		balances: make(map[common.Address]*big.Int),
		calls:    make(map[string]int),
	}
}

// Mint adds a token and returns its ID.
func (b *Backend) Mint(tok Token) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.supply++
	t := tok
	b.tokens[b.supply] = &t
	return b.supply
}

// ReportSupply makes totalSupply return n regardless of what was minted.
func (b *Backend) ReportSupply(n *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reported = new(big.Int).Set(n)
}

// Burn removes a token; ownerOf reverts for it afterwards.
func (b *Backend) Burn(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tokens, id)
}

// Transfer changes a token's owner.
func (b *Backend) Transfer(id int64, to common.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.tokens[id]; ok {
		t.Owner = to
	}
}

// SetBalance sets an account's native balance in wei.
func (b *Backend) SetBalance(addr common.Address, wei *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = new(big.Int).Set(wei)
}

// Calls returns how many times a contract method was called.
func (b *Backend) Calls(method string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[method]
}

// ChainID implements chain.Backend.
func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	if b.Err != nil {
		return nil, b.Err
	}
	return big.NewInt(b.chainID), nil
}

// BalanceAt implements chain.Backend.
func (b *Backend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	if b.Err != nil {
		return nil, b.Err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

// CallContract implements chain.Backend by decoding the ABI call.
func (b *Backend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.Err != nil {
		return nil, b.Err
	}
	if len(call.Data) < 4 {
		return nil, errors.New("missing selector")
	}

	contract := chain.ABI()
	method, err := contract.MethodById(call.Data[:4])
	if err != nil {
		return nil, fmt.Errorf("unknown selector: %w", err)
	}
	args, err := method.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("decoding %s args: %w", method.Name, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[method.Name]++

	switch method.Name {
	case "name":
		return method.Outputs.Pack("Estate Property Token")
	case "symbol":
		return method.Outputs.Pack("EPT")
	case "totalSupply":
		if b.reported != nil {
			return method.Outputs.Pack(b.reported)
		}
		return method.Outputs.Pack(big.NewInt(b.supply))
	case "ownerOf":
		tok, err := b.token(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(tok.Owner)
	case "balanceOf":
		owner := args[0].(common.Address)
		var n int64
		for _, tok := range b.tokens {
			if tok.Owner == owner {
				n++
			}
		}
		return method.Outputs.Pack(big.NewInt(n))
	case "getProperty":
		tok, err := b.token(args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack(tok.Name, tok.Location, big.NewInt(tok.Valuation), tok.Metadata)
	}
	return nil, fmt.Errorf("unsupported method %s", method.Name)
}

func (b *Backend) token(id *big.Int) (*Token, error) {
	var tok *Token
	ok := false
	if id.IsInt64() {
		tok, ok = b.tokens[id.Int64()]
	}
	if !ok {
		return nil, errors.New("execution reverted: ERC721NonexistentToken")
	}
	return tok, nil
}
