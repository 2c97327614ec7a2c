// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver

	"github.com/stacklok/tessera/pkg/core"
)

// Connection pool limits for the Postgres backend.
const (
	maxOpenConns    = 10
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// PostgresConfig holds Postgres connection configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

// DSN renders the configuration as a postgres:// URL.
func (c PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   c.Database,
	}
	return u.String()
}

// Connect opens the Postgres pool and verifies connectivity with a ping.
func Connect(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres pool: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return db, nil
}

// NewPostgres builds the repository set over an open pool.
func NewPostgres(db *sql.DB) Repositories {
	return Repositories{
		Realms:    &postgresRealms{db: db},
		Clients:   &postgresClients{db: db},
		Users:     &postgresUsers{db: db},
		Providers: &postgresProviders{db: db},
	}
}

var (
	_ RealmRepo            = (*postgresRealms)(nil)
	_ ClientRepo           = (*postgresClients)(nil)
	_ UserRepo             = (*postgresUsers)(nil)
	_ IdentityProviderRepo = (*postgresProviders)(nil)
)

// postgresRealms implements RealmRepo using Postgres.
type postgresRealms struct {
	db *sql.DB
}

// realmColumns is the SELECT column list shared by realm queries.
const realmColumns = `id, slug, name, description, enabled, created_at`

// GetBySlug returns the realm with the given slug.
func (r *postgresRealms) GetBySlug(ctx context.Context, slug string) (core.Realm, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+realmColumns+` FROM realms WHERE slug = $1`, slug)
	return scanRealm(row)
}

// Get returns the realm with the given id.
func (r *postgresRealms) Get(ctx context.Context, id string) (core.Realm, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+realmColumns+` FROM realms WHERE id = $1`, id)
	return scanRealm(row)
}

func scanRealm(sc scanner) (core.Realm, error) {
	var r core.Realm
	err := sc.Scan(&r.ID, &r.Slug, &r.Name, &r.Description, &r.Enabled, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Realm{}, ErrNotFound
		}
		return core.Realm{}, fmt.Errorf("scanning realm row: %w", err)
	}
	return r, nil
}

// postgresClients implements ClientRepo using Postgres.
type postgresClients struct {
	db *sql.DB
}

// clientColumns is the SELECT column list shared by client queries.
const clientColumns = `c.id, c.realm_id, c.client_id, c.client_secret_hash, c.name,
	c.client_type, c.grant_types, c.redirect_uris, c.scopes, c.enabled,
	c.expires_at, c.created_at`

// GetByClientID returns the client registered under clientID in the
// realm. Clients of disabled realms are not visible.
func (p *postgresClients) GetByClientID(ctx context.Context, realmSlug, clientID string) (core.Client, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+clientColumns+`
		FROM clients c
		JOIN realms r ON c.realm_id = r.id
		WHERE r.slug = $1 AND r.enabled AND c.client_id = $2`,
		realmSlug, clientID)

	var (
		c            core.Client
		grantsJSON   []byte
		redirectJSON []byte
		scopesJSON   []byte
		expiresAt    sql.NullTime
	)
	err := row.Scan(&c.ID, &c.RealmID, &c.ClientID, &c.SecretHash, &c.Name,
		&c.Type, &grantsJSON, &redirectJSON, &scopesJSON, &c.Enabled,
		&expiresAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Client{}, ErrNotFound
		}
		return core.Client{}, fmt.Errorf("scanning client row: %w", err)
	}

	if err := json.Unmarshal(grantsJSON, &c.GrantTypes); err != nil {
		return core.Client{}, fmt.Errorf("decoding grant types: %w", err)
	}
	if c.RedirectURIs, err = decodeStrings(redirectJSON); err != nil {
		return core.Client{}, fmt.Errorf("decoding redirect uris: %w", err)
	}
	if c.Scopes, err = decodeStrings(scopesJSON); err != nil {
		return core.Client{}, fmt.Errorf("decoding scopes: %w", err)
	}
	if expiresAt.Valid {
		c.ExpiresAt = &expiresAt.Time
	}
	return c, nil
}

// postgresUsers implements UserRepo using Postgres.
type postgresUsers struct {
	db *sql.DB
}

// userColumns is the SELECT column list shared by user queries.
const userColumns = `u.id, u.email, u.username, u.password_hash, u.status, u.created_at`

// Create persists a new user. The email is lowercased at storage.
func (p *postgresUsers) Create(ctx context.Context, user core.User) (core.User, error) {
	user = normalizeUser(user)

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, nullString(user.Email), nullString(user.Username),
		nullString(user.PasswordHash), string(user.Status), user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return core.User{}, ErrAlreadyExists
		}
		return core.User{}, fmt.Errorf("inserting user: %w", err)
	}
	return user, nil
}

// CreateWithIdentity persists a new user together with its provider
// identity in one transaction.
func (p *postgresUsers) CreateWithIdentity(ctx context.Context, user core.User, identity core.UserIdentity) (core.User, error) {
	user = normalizeUser(user)
	if identity.ID == "" {
		identity.ID = uuid.NewString()
	}
	identity.UserID = user.ID
	identity.Email = strings.ToLower(identity.Email)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return core.User{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollback(tx)

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, email, username, password_hash, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, nullString(user.Email), nullString(user.Username),
		nullString(user.PasswordHash), string(user.Status), user.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return core.User{}, ErrAlreadyExists
		}
		return core.User{}, fmt.Errorf("inserting user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_identities (id, user_id, provider_id, provider_user_id, email)
		VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.UserID, identity.ProviderID,
		identity.ProviderUserID, identity.Email,
	); err != nil {
		if isUniqueViolation(err) {
			return core.User{}, ErrAlreadyExists
		}
		return core.User{}, fmt.Errorf("inserting user identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.User{}, fmt.Errorf("committing transaction: %w", err)
	}
	return user, nil
}

// Get returns the user with the given id.
func (p *postgresUsers) Get(ctx context.Context, id string) (core.User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`, id)
	return scanUser(row)
}

// GetByEmail returns the user with the given email.
func (p *postgresUsers) GetByEmail(ctx context.Context, email string) (core.User, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.email = $1`,
		strings.ToLower(email))
	return scanUser(row)
}

// GetByProvider returns the user linked to the provider account.
func (p *postgresUsers) GetByProvider(ctx context.Context, providerUserID string) (core.User, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users u
		JOIN user_identities ui ON ui.user_id = u.id
		WHERE ui.provider_user_id = $1`,
		providerUserID)
	return scanUser(row)
}

// GetGroups returns the user's groups within the realm.
func (p *postgresUsers) GetGroups(ctx context.Context, realmSlug, userID string) ([]core.Group, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT g.id, g.realm_id, g.name, g.description, g.roles
		FROM "groups" g
		JOIN user_groups ug ON ug.group_id = g.id
		JOIN realms r ON g.realm_id = r.id
		WHERE ug.user_id = $1 AND r.slug = $2
		ORDER BY g.name`,
		userID, realmSlug)
	if err != nil {
		return nil, fmt.Errorf("querying groups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var groups []core.Group
	for rows.Next() {
		var (
			g         core.Group
			rolesJSON []byte
		)
		if err := rows.Scan(&g.ID, &g.RealmID, &g.Name, &g.Description, &rolesJSON); err != nil {
			return nil, fmt.Errorf("scanning group row: %w", err)
		}
		if err := json.Unmarshal(rolesJSON, &g.Roles); err != nil {
			return nil, fmt.Errorf("decoding group roles: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating group rows: %w", err)
	}
	return groups, nil
}

// postgresProviders implements IdentityProviderRepo using Postgres.
type postgresProviders struct {
	db *sql.DB
}

// GetByName returns the provider registered under the given name.
func (p *postgresProviders) GetByName(ctx context.Context, name string) (core.IdentityProvider, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, protocol, client_id, client_secret, scopes, enabled
		FROM identity_providers WHERE name = $1`,
		name)

	var (
		ip         core.IdentityProvider
		scopesJSON []byte
	)
	err := row.Scan(&ip.ID, &ip.Name, &ip.Protocol, &ip.ClientID,
		&ip.ClientSecret, &scopesJSON, &ip.Enabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.IdentityProvider{}, ErrNotFound
		}
		return core.IdentityProvider{}, fmt.Errorf("scanning identity provider row: %w", err)
	}

	if ip.Scopes, err = decodeStrings(scopesJSON); err != nil {
		return core.IdentityProvider{}, fmt.Errorf("decoding provider scopes: %w", err)
	}
	return ip, nil
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface{ Scan(dest ...any) error }

func scanUser(sc scanner) (core.User, error) {
	var (
		u        core.User
		email    sql.NullString
		username sql.NullString
		hash     sql.NullString
	)
	err := sc.Scan(&u.ID, &email, &username, &hash, &u.Status, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.User{}, ErrNotFound
		}
		return core.User{}, fmt.Errorf("scanning user row: %w", err)
	}
	u.Email = email.String
	u.Username = username.String
	u.PasswordHash = hash.String
	return u, nil
}

// normalizeUser fills generated fields and applies the storage rules.
func normalizeUser(user core.User) core.User {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Email = strings.ToLower(user.Email)
	return user
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func decodeStrings(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var result []string
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// isUniqueViolation checks for a Postgres unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}

// rollback rolls back tx, ignoring errors (tx may already be committed).
func rollback(tx *sql.Tx) { _ = tx.Rollback() }
