package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-messenger-backend/internal/crypto"
	"github.com/tbourn/go-messenger-backend/internal/domain"
	"github.com/tbourn/go-messenger-backend/internal/repo"
)

func newService(t *testing.T) *MessageService {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Message{}, &domain.MessageVote{}, &domain.DeviceToken{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	codec, err := crypto.NewCodec("service-test-secret")
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	return &MessageService{DB: db, Codec: codec}
}

func seedSvcUser(t *testing.T, s *MessageService, name string) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), s.DB, name+"@example.com", name, "")
	if err != nil {
		t.Fatalf("seed user %s: %v", name, err)
	}
	return u
}

func strptr(s string) *string { return &s }

func TestSend_EncryptsAtRestAndReturnsPlaintext(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	alice := seedSvcUser(t, s, "alice")
	bob := seedSvcUser(t, s, "bob")

	ev, err := s.Send(ctx, alice, bob.ID, SendInput{Message: strptr("hello bob")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ev.Message == nil || *ev.Message != "hello bob" {
		t.Fatalf("event body = %v; want plaintext", ev.Message)
	}
	if ev.UserName != "alice" || ev.Vote != 0 || ev.IsRead {
		t.Fatalf("unexpected event metadata: %+v", ev)
	}

	stored, err := repo.GetMessage(ctx, s.DB, ev.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if stored.Body == nil || *stored.Body == "hello bob" {
		t.Fatalf("stored body must be encrypted, got %v", stored.Body)
	}
	if !stored.IsSent {
		t.Fatalf("message must be flagged sent")
	}
}

func TestHistory_DecryptsAndOrdersAscending(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	alice := seedSvcUser(t, s, "alice")
	bob := seedSvcUser(t, s, "bob")

	if _, err := s.Send(ctx, alice, bob.ID, SendInput{Message: strptr("first")}); err != nil {
		t.Fatalf("send first: %v", err)
	}
	if _, err := s.Send(ctx, bob, alice.ID, SendInput{Message: strptr("second")}); err != nil {
		t.Fatalf("send second: %v", err)
	}

	events, err := s.History(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d; want 2", len(events))
	}
	if *events[0].Message != "first" || *events[1].Message != "second" {
		t.Fatalf("wrong order or bodies: %q, %q", *events[0].Message, *events[1].Message)
	}
	if events[1].UserName != "bob" {
		t.Fatalf("sender identity = %q; want bob", events[1].UserName)
	}
}

func TestHistory_UndecryptableBodyComesBackNil(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	alice := seedSvcUser(t, s, "alice")
	bob := seedSvcUser(t, s, "bob")

	// Simulate a row written under a different key.
	m, err := repo.CreateMessage(ctx, s.DB, alice.ID, bob.ID, strptr("not-a-ciphertext"), nil, nil, nil, nil, false)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	events, err := s.History(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(events) != 1 || events[0].ID != m.ID {
		t.Fatalf("unexpected events: %+v", events)
	}
	if events[0].Message != nil {
		t.Fatalf("undecryptable body must surface as nil, got %q", *events[0].Message)
	}
}

func TestGet_MapsMissingToErrMessageNotFound(t *testing.T) {
	s := newService(t)
	if _, err := s.Get(context.Background(), 404); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestToggleVote_TogglesOnAndOff(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	alice := seedSvcUser(t, s, "alice")
	bob := seedSvcUser(t, s, "bob")
	ev, err := s.Send(ctx, alice, bob.ID, SendInput{Message: strptr("vote on me")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := s.ToggleVote(ctx, bob.ID, ev.ID, 1); err != nil {
		t.Fatalf("toggle on: %v", err)
	}
	got, err := s.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Vote != 1 {
		t.Fatalf("vote tally = %d; want 1", got.Vote)
	}

	if err := s.ToggleVote(ctx, bob.ID, ev.ID, 1); err != nil {
		t.Fatalf("toggle off: %v", err)
	}
	got, err = s.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Vote != 0 {
		t.Fatalf("vote tally = %d; want 0 after toggle off", got.Vote)
	}
}

func TestToggleVote_Rejections(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	alice := seedSvcUser(t, s, "alice")
	bob := seedSvcUser(t, s, "bob")
	ev, err := s.Send(ctx, alice, bob.ID, SendInput{Message: strptr("target")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := s.ToggleVote(ctx, bob.ID, ev.ID, 2); !errors.Is(err, ErrInvalidVote) {
		t.Fatalf("dir=2: expected ErrInvalidVote, got %v", err)
	}
	if err := s.ToggleVote(ctx, bob.ID, 9999, 1); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("missing message: expected ErrMessageNotFound, got %v", err)
	}

	if _, err := s.Delete(ctx, alice.ID, ev.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.ToggleVote(ctx, bob.ID, ev.ID, 1); !errors.Is(err, ErrMessageDeleted) {
		t.Fatalf("deleted message: expected ErrMessageDeleted, got %v", err)
	}
}

func TestEdit_ReplacesBodyAndFlags(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	alice := seedSvcUser(t, s, "alice")
	bob := seedSvcUser(t, s, "bob")
	ev, err := s.Send(ctx, alice, bob.ID, SendInput{Message: strptr("draft")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := s.Edit(ctx, alice.ID, ev.ID, "final"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	got, err := s.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Message == nil || *got.Message != "final" {
		t.Fatalf("body = %v; want final", got.Message)
	}
	if !got.Edited {
		t.Fatalf("edited flag must be set")
	}

	// The stored body stays encrypted after an edit.
	stored, err := repo.GetMessage(ctx, s.DB, ev.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if stored.Body == nil || *stored.Body == "final" {
		t.Fatalf("edited body must be encrypted at rest, got %v", stored.Body)
	}
}

func TestEdit_OnlySenderAndNotDeleted(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	alice := seedSvcUser(t, s, "alice")
	bob := seedSvcUser(t, s, "bob")
	ev, err := s.Send(ctx, alice, bob.ID, SendInput{Message: strptr("mine")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if err := s.Edit(ctx, bob.ID, ev.ID, "hijack"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("non-sender edit: expected ErrMessageNotFound, got %v", err)
	}
	if err := s.Edit(ctx, alice.ID, ev.ID, "   "); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("blank edit: expected ErrEmptyBody, got %v", err)
	}

	if _, err := s.Delete(ctx, alice.ID, ev.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Edit(ctx, alice.ID, ev.ID, "too late"); !errors.Is(err, ErrMessageDeleted) {
		t.Fatalf("edit after delete: expected ErrMessageDeleted, got %v", err)
	}
}

func TestDelete_ClearsPayloadAndVotes(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	alice := seedSvcUser(t, s, "alice")
	bob := seedSvcUser(t, s, "bob")
	ev, err := s.Send(ctx, alice, bob.ID, SendInput{
		Message: strptr("remove me"),
		FileURL: strptr("https://cdn.example/f.bin"),
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.ToggleVote(ctx, bob.ID, ev.ID, 1); err != nil {
		t.Fatalf("vote: %v", err)
	}

	id, err := s.Delete(ctx, alice.ID, ev.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if id != ev.ID {
		t.Fatalf("returned id = %d; want %d", id, ev.ID)
	}

	got, err := s.Get(ctx, ev.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Deleted || got.Message != nil || got.FileURL != nil {
		t.Fatalf("payload must be cleared: %+v", got)
	}
	if got.Vote != 0 {
		t.Fatalf("votes must be purged, tally = %d", got.Vote)
	}
}

func TestDelete_NonSenderRejected(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	alice := seedSvcUser(t, s, "alice")
	bob := seedSvcUser(t, s, "bob")
	ev, err := s.Send(ctx, alice, bob.ID, SendInput{Message: strptr("keep")})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if _, err := s.Delete(ctx, bob.ID, ev.ID); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestMarkRead_FlipsOnlyIncomingDirection(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	alice := seedSvcUser(t, s, "alice")
	bob := seedSvcUser(t, s, "bob")

	if _, err := s.Send(ctx, bob, alice.ID, SendInput{Message: strptr("to alice")}); err != nil {
		t.Fatalf("send b→a: %v", err)
	}
	if _, err := s.Send(ctx, alice, bob.ID, SendInput{Message: strptr("to bob")}); err != nil {
		t.Fatalf("send a→b: %v", err)
	}

	if err := s.MarkRead(ctx, alice.ID, bob.ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	events, err := s.History(ctx, alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	for _, ev := range events {
		if ev.ReceiverID == alice.ID && !ev.IsRead {
			t.Fatalf("message %d to alice must be read", ev.ID)
		}
		if ev.ReceiverID == bob.ID && ev.IsRead {
			t.Fatalf("message %d to bob must stay unread", ev.ID)
		}
	}
}

func TestRecipient_MapsMissing(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	alice := seedSvcUser(t, s, "alice")

	got, err := s.Recipient(ctx, alice.ID)
	if err != nil || got.UserName != "alice" {
		t.Fatalf("Recipient = (%+v, %v)", got, err)
	}
	if _, err := s.Recipient(ctx, "ghost"); !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}
}
