package goShield

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/goShield/identity"
)

func TestAdminCreateUserDuplicates(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	admin := env.engine.Admin()

	u, err := admin.CreateUser(ctx, "user1", testEmail, testPassword)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if u.Active {
		t.Fatal("admin-created users start inactive")
	}

	if _, err := admin.CreateUser(ctx, "user1", "other@example.com", testPassword); !errors.Is(err, identity.ErrDuplicateUsername) {
		t.Fatalf("expected ErrDuplicateUsername, got %v", err)
	}
	if _, err := admin.CreateUser(ctx, "user2", "USER1@example.com", testPassword); !errors.Is(err, identity.ErrDuplicateIdentity) {
		t.Fatalf("expected ErrDuplicateIdentity, got %v", err)
	}
	if _, err := admin.FindUser(ctx, "user2", ""); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected rolled back user2, got %v", err)
	}
}

func TestAdminFindAndListUsers(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	admin := env.engine.Admin()
	a := env.createActiveUser(t, "alice", "alice@corp.example", testPassword)
	env.createActiveUser(t, "bob", "bob@home.example", testPassword)

	byEmail, err := admin.FindUser(ctx, "", "ALICE@corp.example")
	if err != nil || byEmail.ID != a.ID {
		t.Fatalf("FindUser by email: %+v err=%v", byEmail, err)
	}
	byName, err := admin.FindUser(ctx, "alice", "")
	if err != nil || byName.ID != a.ID {
		t.Fatalf("FindUser by username: %+v err=%v", byName, err)
	}
	if _, err := admin.FindUser(ctx, "", ""); err == nil {
		t.Fatal("expected error without username or email")
	}

	all, err := admin.ListUsers(ctx, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 users, got %d err=%v", len(all), err)
	}
	corp, err := admin.ListUsers(ctx, "corp")
	if err != nil || len(corp) != 1 || corp[0].ID != a.ID {
		t.Fatalf("expected alice only, got %+v err=%v", corp, err)
	}
}

func TestAdminChangeEmailKeepsPassword(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.createActiveUser(t, "user1", testEmail, testPassword)

	if err := env.engine.Admin().ChangeEmail(ctx, u.ID, "New@Example.com"); err != nil {
		t.Fatalf("ChangeEmail failed: %v", err)
	}

	h := env.engine.Auth(&Request{}).Default()
	if _, err := h.Attempt(ctx, Credentials{Email: testEmail, Password: testPassword}); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected old email rejected, got %v", err)
	}
	env.login(t, &Request{}, Credentials{Email: "new@example.com", Password: testPassword})
}

func TestAdminChangeUsername(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.createActiveUser(t, "user1", testEmail, testPassword)

	if err := env.engine.Admin().ChangeUsername(ctx, u.ID, "renamed"); err != nil {
		t.Fatalf("ChangeUsername failed: %v", err)
	}
	env.login(t, &Request{}, Credentials{Username: "renamed", Password: testPassword})
	if err := env.engine.Admin().ChangeUsername(ctx, u.ID, "  "); err == nil {
		t.Fatal("expected empty username rejected")
	}
}

func TestAdminSetPasswordForgetsSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	u := env.createActiveUser(t, "user1", testEmail, testPassword)

	req := &Request{}
	env.login(t, req, Credentials{Email: testEmail, Password: testPassword})

	if err := env.engine.Admin().SetPassword(ctx, u.ID, "short"); !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if err := env.engine.Admin().SetPassword(ctx, u.ID, "Another Passw0rd"); err != nil {
		t.Fatalf("SetPassword failed: %v", err)
	}

	if ok, _ := env.engine.Auth(&Request{SessionID: req.SessionID}).Default().LoggedIn(ctx); ok {
		t.Fatal("expected existing sessions forgotten after password change")
	}
	h := env.engine.Auth(&Request{}).Default()
	if _, err := h.Attempt(ctx, Credentials{Email: testEmail, Password: testPassword}); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	env.login(t, &Request{}, Credentials{Email: testEmail, Password: "Another Passw0rd"})
}

func TestAdminGroups(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	admin := env.engine.Admin()
	u := env.createActiveUser(t, "user1", testEmail, testPassword)

	if err := admin.AddGroup(ctx, u.ID, "staff"); err != nil {
		t.Fatalf("AddGroup failed: %v", err)
	}
	got, err := admin.GetUser(ctx, u.ID)
	if err != nil || !got.InGroup("staff") {
		t.Fatalf("expected staff membership, got %+v err=%v", got, err)
	}
	if err := admin.RemoveGroup(ctx, u.ID, "staff"); err != nil {
		t.Fatalf("RemoveGroup failed: %v", err)
	}
	got, _ = admin.GetUser(ctx, u.ID)
	if got.InGroup("staff") {
		t.Fatal("expected membership removed")
	}
}

func TestAdminDeleteUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	admin := env.engine.Admin()
	u := env.createActiveUser(t, "user1", testEmail, testPassword)

	req := &Request{}
	env.login(t, req, Credentials{Email: testEmail, Password: testPassword})

	if err := admin.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser failed: %v", err)
	}
	if _, err := admin.GetUser(ctx, u.ID); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected user removed, got %v", err)
	}
	if ok, _ := env.engine.Auth(&Request{SessionID: req.SessionID}).Default().LoggedIn(ctx); ok {
		t.Fatal("expected session of deleted user gone")
	}
	if err := admin.DeleteUser(ctx, u.ID); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if env.engine.Metrics().Value(MetricUserDeleted) != 1 {
		t.Fatal("expected user deleted metric")
	}
}

func TestAdminAuditsOperations(t *testing.T) {
	sink := NewChannelSink(8)
	env := newTestEnv(t, func(c *Config) {
		c.Audit.Enabled = true
		c.Audit.DropIfFull = false
	}, func(b *Builder) { b.WithAuditSink(sink) })
	ctx := context.Background()

	u, err := env.engine.Admin().CreateUser(ctx, "user1", testEmail, testPassword)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	select {
	case ev := <-sink.Events():
		if ev.EventType != auditAdmin || ev.Metadata["op"] != "create_user" || ev.UserID != u.ID.String() {
			t.Fatalf("unexpected audit event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected audit event")
	}
}
