package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/evcraddock/estate-market/internal/format"
	"github.com/evcraddock/estate-market/internal/property"
	"github.com/evcraddock/estate-market/internal/sale"
)

// Listings answers questions about the local property index.
// *property.Repository satisfies it.
type Listings interface {
	List(opts property.ListOptions) ([]*property.Property, error)
	Stats() (*property.Stats, error)
}

// SaleStats answers questions about marketplace activity.
// *sale.Repository satisfies it.
type SaleStats interface {
	Stats() (*sale.Stats, error)
}

// Holdings enumerates an address's tokens. *property.Service satisfies it.
type Holdings interface {
	Owned(ctx context.Context, owner string) ([]*property.Property, error)
}

// Assistant replies to chat messages from live marketplace data after a
// short simulated typing delay.
type Assistant struct {
	repo     *Repository
	listings Listings
	sales    SaleStats
	holdings Holdings
	delay    time.Duration
}

// NewAssistant creates an Assistant. holdings may be nil when no chain is
// configured.
func NewAssistant(repo *Repository, listings Listings, sales SaleStats, holdings Holdings, delay time.Duration) *Assistant {
	return &Assistant{repo: repo, listings: listings, sales: sales, holdings: holdings, delay: delay}
}

// Reply stores the user's message, waits the typing delay and stores and
// returns the assistant's answer. A cancelled ctx aborts the wait and no
// reply is stored.
func (a *Assistant) Reply(ctx context.Context, conversation, address, text string) (*Message, error) {
	if _, err := a.repo.Add(conversation, SenderUser, text, address); err != nil {
		return nil, err
	}

	if a.delay > 0 {
		timer := time.NewTimer(a.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	answer := a.answer(ctx, address, text)
	return a.repo.Add(conversation, SenderAssistant, answer, "")
}

const helpText = "I can tell you how many properties are listed, which is the cheapest or most valuable, " +
	"how the marketplace is doing, and what your connected wallet owns. Try \"cheapest property\" or \"my portfolio\"."

func (a *Assistant) answer(ctx context.Context, address, text string) string {
	ws := words(text)

	switch {
	case hasWord(ws, "my", "mine", "own", "owned", "owns", "portfolio", "wallet", "holdings"):
		return a.portfolio(ctx, address)
	case hasPrefix(ws, "cheap", "lowest", "affordab"):
		return a.extreme(property.SortValuationAsc, "most affordable")
	case hasPrefix(ws, "expensive", "valuable", "highest"):
		return a.extreme(property.SortValuationDesc, "most valuable")
	case hasPrefix(ws, "sale", "sold", "volume", "market"):
		return a.marketActivity()
	case hasWord(ws, "many", "count") || hasPrefix(ws, "listing", "propert"):
		return a.listingSummary()
	case hasWord(ws, "hello", "hi", "hey"):
		return "Hello! " + helpText
	}
	return helpText
}

func (a *Assistant) listingSummary() string {
	stats, err := a.listings.Stats()
	if err != nil {
		slog.Error("chat listing stats", "err", err)
		return "Sorry, I couldn't load the listings right now."
	}
	if stats.Count == 0 {
		return "There are no tokenized properties listed yet."
	}
	return fmt.Sprintf("There %s %s across %s, with an average valuation of %s.",
		verb(stats.Count), format.Count(stats.Count, "property", "properties"),
		format.Count(stats.Cities, "city", "cities"), format.USD(stats.AverageValuation))
}

func (a *Assistant) extreme(sort, label string) string {
	props, err := a.listings.List(property.ListOptions{Sort: sort, Limit: 1})
	if err != nil {
		slog.Error("chat listing lookup", "err", err)
		return "Sorry, I couldn't load the listings right now."
	}
	if len(props) == 0 {
		return "There are no tokenized properties listed yet."
	}
	p := props[0]
	where := p.Location.City
	if where == "" {
		where = p.Location.Address
	}
	return fmt.Sprintf("The %s property is %s (token #%s) in %s, valued at %s.",
		label, p.Name, p.TokenID, where, format.USD(p.Valuation))
}

func (a *Assistant) marketActivity() string {
	stats, err := a.sales.Stats()
	if err != nil {
		slog.Error("chat sale stats", "err", err)
		return "Sorry, I couldn't load marketplace activity right now."
	}
	return fmt.Sprintf("The marketplace has %s, %s and %s, with %s in completed volume.",
		format.Count(stats.Pending, "pending sale", "pending sales"),
		format.Count(stats.Completed, "completed sale", "completed sales"),
		format.Count(stats.Cancelled, "cancelled sale", "cancelled sales"),
		format.USD(stats.CompletedVolume))
}

func (a *Assistant) portfolio(ctx context.Context, address string) string {
	if address == "" {
		return "Connect your wallet and I can show you the properties you own."
	}
	if a.holdings == nil {
		return "Ownership lookups are unavailable because no blockchain network is configured."
	}

	owned, err := a.holdings.Owned(ctx, address)
	if err != nil {
		slog.Error("chat owned tokens", "address", address, "err", err)
		return "Sorry, I couldn't read your tokens from the blockchain right now."
	}
	if len(owned) == 0 {
		return fmt.Sprintf("%s doesn't own any property tokens yet.", format.ShortAddress(address))
	}

	var total int64
	names := make([]string, 0, len(owned))
	for _, p := range owned {
		total += p.Valuation
		names = append(names, p.Name)
	}
	return fmt.Sprintf("You own %s worth %s: %s.",
		format.Count(int64(len(owned)), "property", "properties"), format.USD(total), strings.Join(names, ", "))
}

func verb(n int64) string {
	if n == 1 {
		return "is"
	}
	return "are"
}

// words splits text into lower-case words.
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

func hasWord(ws []string, want ...string) bool {
	for _, w := range ws {
		for _, x := range want {
			if w == x {
				return true
			}
		}
	}
	return false
}

func hasPrefix(ws []string, stems ...string) bool {
	for _, w := range ws {
		for _, stem := range stems {
			if strings.HasPrefix(w, stem) {
				return true
			}
		}
	}
	return false
}
