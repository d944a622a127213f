package chat

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/evcraddock/estate-market/internal/db"
)

func testDB(t *testing.T) *sql.DB {
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
	return d
}

func TestAddAndList(t *testing.T) {
	repo := NewRepository(testDB(t))

	m, err := repo.Add("conv-1", SenderUser, "  hello there  ", "0xabc")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if m.ID == "" {
		t.Error("expected generated ID")
	}
	if m.Text != "hello there" {
		t.Errorf("text = %q, want trimmed", m.Text)
	}
	if m.Address != "0xabc" || m.Sender != SenderUser {
		t.Errorf("message = %+v", m)
	}

	for _, text := range []string{"second", "third"} {
		if _, err := repo.Add("conv-1", SenderAssistant, text, ""); err != nil {
			t.Fatalf("add %s: %v", text, err)
		}
	}
	if _, err := repo.Add("conv-2", SenderUser, "elsewhere", ""); err != nil {
		t.Fatalf("add other conversation: %v", err)
	}

	all, err := repo.ListByConversation("conv-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d messages, want 3", len(all))
	}
	if all[0].Text != "hello there" || all[2].Text != "third" {
		t.Errorf("order = %q..%q, want oldest first", all[0].Text, all[2].Text)
	}

	last, err := repo.ListByConversation("conv-1", 2)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(last) != 2 || last[0].Text != "second" || last[1].Text != "third" {
		t.Errorf("limited list = %v", texts(last))
	}
}

func TestAddValidation(t *testing.T) {
	repo := NewRepository(testDB(t))

	tests := []struct {
		name         string
		conversation string
		sender       Sender
		text         string
	}{
		{"empty text", "c", SenderUser, "   "},
		{"no conversation", "", SenderUser, "hi"},
		{"bad sender", "c", Sender("bot"), "hi"},
		{"too long", "c", SenderUser, strings.Repeat("x", MaxMessageLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := repo.Add(tt.conversation, tt.sender, tt.text, ""); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func texts(ms []*Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Text
	}
	return out
}
