package repo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-messenger-backend/internal/domain"
)

func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:msgrepo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(&domain.User{}, &domain.Message{}, &domain.MessageVote{}, &domain.DeviceToken{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, name+"@example.com", name, "https://cdn.example/"+name+".webp")
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}

func strptr(s string) *string { return &s }

func TestCreateMessage_AndMarkSent(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a := seedUser(t, db, "alice")
	b := seedUser(t, db, "bob")

	m, err := CreateMessage(ctx, db, a.ID, b.ID, strptr("cipher"), nil, nil, nil, nil, false)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if m.ID == 0 {
		t.Fatalf("expected assigned ID")
	}
	if m.IsSent || m.IsRead || m.Edited || m.Deleted {
		t.Fatalf("fresh message should have all flags false: %+v", m)
	}

	if err := MarkSent(ctx, db, m.ID); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	// Idempotent re-mark.
	if err := MarkSent(ctx, db, m.ID); err != nil {
		t.Fatalf("MarkSent (again): %v", err)
	}

	got, err := GetMessage(ctx, db, m.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if !got.IsSent {
		t.Fatalf("expected is_sent after MarkSent")
	}
}

func TestCreateMessage_UnknownSender(t *testing.T) {
	db := newRepoDB(t)
	b := seedUser(t, db, "bob")

	if _, err := CreateMessage(context.Background(), db, uuid.NewString(), b.ID, strptr("x"), nil, nil, nil, nil, false); err == nil {
		t.Fatalf("expected FK violation for unknown sender")
	}
}

func TestGetMessageForSender_HidesOthersMessages(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a := seedUser(t, db, "alice")
	b := seedUser(t, db, "bob")

	m, err := CreateMessage(ctx, db, a.ID, b.ID, strptr("cipher"), nil, nil, nil, nil, false)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	if _, err := GetMessageForSender(ctx, db, m.ID, a.ID); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, err := GetMessageForSender(ctx, db, m.ID, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-sender lookup should be ErrNotFound, got %v", err)
	}
}

func TestMarkConversationRead_OnlyThatDirection(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a := seedUser(t, db, "alice")
	b := seedUser(t, db, "bob")
	c := seedUser(t, db, "carol")

	// Two unread from bob→alice, one from carol→alice.
	for i := 0; i < 2; i++ {
		if _, err := CreateMessage(ctx, db, b.ID, a.ID, strptr("cipher"), nil, nil, nil, nil, false); err != nil {
			t.Fatalf("seed b→a: %v", err)
		}
	}
	if _, err := CreateMessage(ctx, db, c.ID, a.ID, strptr("cipher"), nil, nil, nil, nil, false); err != nil {
		t.Fatalf("seed c→a: %v", err)
	}

	n, err := MarkConversationRead(ctx, db, a.ID, b.ID)
	if err != nil {
		t.Fatalf("MarkConversationRead: %v", err)
	}
	if n != 2 {
		t.Fatalf("rows flipped = %d; want 2", n)
	}

	var unreadFromCarol int64
	db.Model(&domain.Message{}).
		Where("receiver_id = ? AND sender_id = ? AND is_read = ?", a.ID, c.ID, false).
		Count(&unreadFromCarol)
	if unreadFromCarol != 1 {
		t.Fatalf("carol's message must stay unread, got %d unread", unreadFromCarol)
	}

	// Second call is a no-op.
	n, err = MarkConversationRead(ctx, db, a.ID, b.ID)
	if err != nil || n != 0 {
		t.Fatalf("second MarkConversationRead = (%d, %v); want (0, nil)", n, err)
	}
}

func TestListConversation_OrderIdentityAndTally(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	a := seedUser(t, db, "alice")
	b := seedUser(t, db, "bob")
	c := seedUser(t, db, "carol")

	// Interleave directions; also add an unrelated message that must not appear.
	m1, _ := CreateMessage(ctx, db, a.ID, b.ID, strptr("c1"), nil, nil, nil, nil, false)
	m2, _ := CreateMessage(ctx, db, b.ID, a.ID, strptr("c2"), nil, nil, nil, nil, false)
	m3, _ := CreateMessage(ctx, db, a.ID, b.ID, strptr("c3"), nil, nil, nil, nil, false)
	if _, err := CreateMessage(ctx, db, a.ID, c.ID, strptr("other"), nil, nil, nil, nil, false); err != nil {
		t.Fatalf("seed unrelated: %v", err)
	}

	// Two distinct voters on m2.
	if err := CreateVote(ctx, db, m2.ID, a.ID, 1); err != nil {
		t.Fatalf("vote a: %v", err)
	}
	if err := CreateVote(ctx, db, m2.ID, b.ID, 1); err != nil {
		t.Fatalf("vote b: %v", err)
	}

	rows, err := ListConversation(ctx, db, a.ID, b.ID)
	if err != nil {
		t.Fatalf("ListConversation: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d; want 3", len(rows))
	}
	wantOrder := []uint{m1.ID, m2.ID, m3.ID}
	for i, r := range rows {
		if r.ID != wantOrder[i] {
			t.Fatalf("row %d id = %d; want %d (ascending id order)", i, r.ID, wantOrder[i])
		}
	}
	if rows[1].Vote != 2 {
		t.Fatalf("m2 tally = %d; want 2", rows[1].Vote)
	}
	if rows[0].Vote != 0 {
		t.Fatalf("m1 tally = %d; want 0", rows[0].Vote)
	}
	if rows[0].UserName == nil || *rows[0].UserName != "alice" {
		t.Fatalf("m1 sender identity = %v; want alice", rows[0].UserName)
	}
	if rows[1].UserName == nil || *rows[1].UserName != "bob" {
		t.Fatalf("m2 sender identity = %v; want bob", rows[1].UserName)
	}
}

func TestGetConversationRow_NotFound(t *testing.T) {
	db := newRepoDB(t)
	if _, err := GetConversationRow(context.Background(), db, 424242); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
