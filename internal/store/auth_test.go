package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openAuthTestStore(t *testing.T) (*Store, context.Context) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "control.db")
	st, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return st, context.Background()
}

func TestAuthUserAndSessionLifecycle(t *testing.T) {
	st, ctx := openAuthTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	count, err := st.CountEnabledUsers(ctx)
	if err != nil {
		t.Fatalf("count enabled users: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	created, err := st.CreateUser(ctx, NewAuthUser{
		Username:     "CSE-Admin",
		Email:        "HOD.CSE@Example.edu",
		Department:   " CSE ",
		PasswordHash: "hash-1",
	}, now)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Username != "cse-admin" {
		t.Fatalf("expected normalized username cse-admin, got %q", created.Username)
	}
	if created.Department != "cse" {
		t.Fatalf("expected normalized department cse, got %q", created.Department)
	}
	if created.Email != "hod.cse@example.edu" {
		t.Fatalf("expected normalized email, got %q", created.Email)
	}
	if created.Role != UserRoleEditor {
		t.Fatalf("expected default role %q, got %q", UserRoleEditor, created.Role)
	}

	loaded, err := st.GetUserByUsername(ctx, "CSE-ADMIN")
	if err != nil {
		t.Fatalf("get user by username: %v", err)
	}
	if loaded == nil || loaded.ID != created.ID {
		t.Fatalf("expected loaded user %q, got %+v", created.ID, loaded)
	}
	if loaded.Department != "cse" {
		t.Fatalf("expected department cse, got %q", loaded.Department)
	}

	expiresAt := now.Add(2 * time.Hour)
	if err := st.CreateSession(ctx, created.ID, "token-hash", expiresAt, now); err != nil {
		t.Fatalf("create session: %v", err)
	}

	authed, err := st.GetUserBySessionTokenHash(ctx, "token-hash", now.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("get user by session token hash: %v", err)
	}
	if authed == nil || authed.ID != created.ID {
		t.Fatalf("expected session user %q, got %+v", created.ID, authed)
	}

	expired, err := st.GetUserBySessionTokenHash(ctx, "token-hash", now.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("get user by expired session: %v", err)
	}
	if expired != nil {
		t.Fatal("expected nil user for expired session")
	}

	if err := st.RevokeSessionByTokenHash(ctx, "token-hash", now.Add(time.Hour)); err != nil {
		t.Fatalf("revoke session by token hash: %v", err)
	}

	authed, err = st.GetUserBySessionTokenHash(ctx, "token-hash", now.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("get user by revoked session token hash: %v", err)
	}
	if authed != nil {
		t.Fatal("expected nil user for revoked session")
	}
}

func TestDepartmentDirectory(t *testing.T) {
	st, ctx := openAuthTestStore(t)
	now := time.Now().UTC()

	for _, in := range []NewAuthUser{
		{Username: "alice", Department: "ece", PasswordHash: "h"},
		{Username: "bob", Department: "cse", PasswordHash: "h"},
		{Username: "carol", Department: "cse", PasswordHash: "h", Role: UserRoleAdmin},
	} {
		if _, err := st.CreateUser(ctx, in, now); err != nil {
			t.Fatalf("create %s: %v", in.Username, err)
		}
	}

	exists, err := st.DepartmentExists(ctx, "CSE")
	if err != nil {
		t.Fatalf("department exists: %v", err)
	}
	if !exists {
		t.Fatal("expected cse to exist")
	}
	exists, err = st.DepartmentExists(ctx, "mech")
	if err != nil {
		t.Fatalf("department exists: %v", err)
	}
	if exists {
		t.Fatal("expected mech to be unknown")
	}

	departments, err := st.ListDepartments(ctx)
	if err != nil {
		t.Fatalf("list departments: %v", err)
	}
	if len(departments) != 2 || departments[0] != "cse" || departments[1] != "ece" {
		t.Fatalf("expected [cse ece], got %v", departments)
	}

	users, err := st.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 3 || users[0].Username != "bob" || users[1].Username != "carol" || users[2].Username != "alice" {
		t.Fatalf("expected users ordered by department then username, got %+v", users)
	}
}

func TestAuthUserManagementLifecycle(t *testing.T) {
	st, ctx := openAuthTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	if _, err := st.CreateUser(ctx, NewAuthUser{Username: "alice", Department: "cse", PasswordHash: "hash-a"}, now); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := st.CreateUser(ctx, NewAuthUser{Username: "bob", Department: "cse", PasswordHash: "hash-b"}, now); err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if _, err := st.CreateUser(ctx, NewAuthUser{Username: "alice", Department: "ece", PasswordHash: "hash-c"}, now); err == nil {
		t.Fatal("expected duplicate username to fail")
	}
	if _, err := st.CreateUser(ctx, NewAuthUser{Username: "dave", PasswordHash: "hash-d"}, now); err == nil {
		t.Fatal("expected missing department to fail")
	}

	disabled, err := st.SetUserDisabled(ctx, "alice", true, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("disable alice: %v", err)
	}
	if disabled == nil || !disabled.Disabled {
		t.Fatal("expected alice to be disabled")
	}

	count, err := st.CountEnabledUsers(ctx)
	if err != nil {
		t.Fatalf("count enabled users: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 enabled user, got %d", count)
	}

	missing, err := st.SetUserDisabled(ctx, "nobody", true, now)
	if err != nil {
		t.Fatalf("disable missing user: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for missing user")
	}

	deleted, err := st.DeleteUser(ctx, "bob")
	if err != nil {
		t.Fatalf("delete bob: %v", err)
	}
	if !deleted {
		t.Fatal("expected bob to be deleted")
	}

	users, err := st.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users after delete: %v", err)
	}
	if len(users) != 1 || users[0].Username != "alice" {
		t.Fatalf("expected only alice to remain, got %+v", users)
	}
}
