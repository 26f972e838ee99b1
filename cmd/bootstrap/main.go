package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"idhub.org/internal/auth"
)

// schemaDDL holds the full relational schema. Statements run one at a time
// inside a transaction because the pgx driver rejects multi-statement Exec.
var schemaDDL = []string{
	`create table if not exists users (
		id text primary key,
		username text not null unique,
		email text not null unique,
		password_hash text,
		active boolean not null default true,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,
	`create table if not exists roles (
		id text primary key,
		name text not null unique,
		description text not null default '',
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,
	`create table if not exists permissions (
		id text primary key,
		name text not null unique,
		description text not null default '',
		created_at timestamptz not null default now()
	)`,
	`create table if not exists user_roles (
		user_id text not null references users(id),
		role_id text not null references roles(id),
		primary key (user_id, role_id)
	)`,
	`create table if not exists role_permissions (
		role_id text not null references roles(id),
		permission_id text not null references permissions(id),
		primary key (role_id, permission_id)
	)`,
	`create table if not exists login_history (
		id text primary key,
		user_id text not null references users(id),
		ip_address text not null default '',
		user_agent text not null default '',
		login_at timestamptz not null default now()
	)`,
	`create index if not exists login_history_user_idx on login_history(user_id, login_at desc)`,
}

// bootstrap provisions the schema and the baseline catalog: the USER and
// ADMIN roles and one administrator account. Every step is idempotent, so
// re-running against an already provisioned database is safe.
func main() {
	log.SetFlags(0)
	var (
		dsn        = flag.String("dsn", os.Getenv("IDHUB_PG_DSN"), "PostgreSQL DSN")
		username   = flag.String("username", "admin", "Administrator username")
		email      = flag.String("email", "", "Administrator email")
		password   = flag.String("password", os.Getenv("IDHUB_ADMIN_PASSWORD"), "Administrator password")
		skipSchema = flag.Bool("skip-schema", false, "Skip schema creation")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or IDHUB_PG_DSN")
	}
	if *email == "" {
		log.Fatal("missing -email")
	}
	if *password == "" {
		log.Fatal("missing password: provide via -password or IDHUB_ADMIN_PASSWORD")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !*skipSchema {
		if err := applySchema(ctx, db); err != nil {
			log.Fatalf("apply schema: %v", err)
		}
	}

	store := auth.NewPGStore(db)

	if _, err := ensureRole(ctx, store, auth.DefaultRoleName, "Baseline role granted at registration"); err != nil {
		log.Fatalf("ensure role %s: %v", auth.DefaultRoleName, err)
	}
	adminRole, err := ensureRole(ctx, store, auth.AdminRoleName, "Full administrative access")
	if err != nil {
		log.Fatalf("ensure role %s: %v", auth.AdminRoleName, err)
	}

	admin, err := ensureAdmin(ctx, store, *username, *email, *password)
	if err != nil {
		log.Fatalf("ensure admin: %v", err)
	}

	if !auth.HasRole(admin, auth.AdminRoleName) {
		if err := store.Users(ctx).AssignRole(ctx, admin.ID, adminRole.ID); err != nil && !errors.Is(err, auth.ErrAlreadyExists) {
			log.Fatalf("assign admin role: %v", err)
		}
	}

	log.Printf("bootstrap complete: admin %s (%s)", admin.Username, admin.ID)
}

func applySchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range schemaDDL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func ensureRole(ctx context.Context, store auth.Store, name, description string) (*auth.Role, error) {
	role, err := store.Roles(ctx).FindByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return nil, err
	}
	created := &auth.Role{Name: name, Description: description}
	if err := store.Roles(ctx).Create(ctx, created); err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			return store.Roles(ctx).FindByName(ctx, name)
		}
		return nil, err
	}
	return created, nil
}

func ensureAdmin(ctx context.Context, store auth.Store, username, email, password string) (*auth.User, error) {
	user, err := store.Users(ctx).FindByUsername(ctx, username)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, auth.ErrNotFound) {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	created := &auth.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := store.Users(ctx).Create(ctx, created); err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			return store.Users(ctx).FindByUsername(ctx, username)
		}
		return nil, err
	}
	return created, nil
}
