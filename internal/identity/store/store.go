package store

import (
	"context"
	"errors"
	"time"

	"github.com/campushq/identity/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrAlreadyConsumed reports a single-use record that was redeemed
	// before. Distinct from ErrNotFound so reuse detection can be logged.
	ErrAlreadyConsumed = errors.New("store: already consumed")

	// ErrExpired reports a record past its lifetime. Expiry is enforced at
	// read time; expired rows may still exist physically.
	ErrExpired = errors.New("store: expired")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. Sub-repositories keep concerns tidy and make it
// obvious which operations participate in a transaction.
type Store interface {
	Users() Users
	RefreshRecords() RefreshRecords
	OneTimeKeys() OneTimeKeys
	Federations() Federations
	RBAC() RBAC
	LoginAttempts() LoginAttempts

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, rolling back when fn returns
	// an error and committing otherwise. Preferred over Tx directly.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. Same repos plus Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during the password login path. Username is
	// unique within a tenant.
	GetUserByUsername(ctx context.Context, tenantID, username string) (domain.User, error)

	// GetUserByEmail resolves the local account during federated login.
	// Email matching is case-insensitive.
	GetUserByEmail(ctx context.Context, tenantID, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error
}

type RefreshRecords interface {
	// CreateRefreshRecord stores the footprint of a freshly issued refresh
	// token. The record id equals the token's jti.
	CreateRefreshRecord(ctx context.Context, rec domain.RefreshRecord) error

	// GetRefreshRecordByID returns the record regardless of consumed state.
	GetRefreshRecordByID(ctx context.Context, id string) (domain.RefreshRecord, error)

	// ConsumeRefreshRecord atomically flips consumed from false to true and
	// returns the record. The conditional UPDATE is the only point of mutual
	// exclusion: of N concurrent consumers exactly one succeeds; the rest
	// get ErrAlreadyConsumed, ErrExpired or ErrNotFound.
	ConsumeRefreshRecord(ctx context.Context, id string, now time.Time) (domain.RefreshRecord, error)

	// GetActiveSessionRecord returns the single live (unconsumed, unexpired)
	// record for a session, used to validate the fingerprint cookie.
	GetActiveSessionRecord(ctx context.Context, sessionID string, now time.Time) (domain.RefreshRecord, error)
}

type OneTimeKeys interface {
	// CreateOneTimeKey persists a key hash with its context.
	CreateOneTimeKey(ctx context.Context, k domain.OneTimeKey) error

	// RedeemOneTimeKey atomically deletes and returns the key. A second
	// redemption of the same key gets ErrNotFound. TTL enforcement is the
	// caller's job since it varies per purpose.
	RedeemOneTimeKey(ctx context.Context, keyHash, purpose string) (domain.OneTimeKey, error)
}

type Federations interface {
	// GetFederationByName resolves a federation by its case-insensitive
	// name within a tenant.
	GetFederationByName(ctx context.Context, tenantID, name string) (domain.Federation, error)

	// ListFederations returns a tenant's federations ordered by position
	// ascending. Email-domain lookup takes the first match in this order.
	ListFederations(ctx context.Context, tenantID string) ([]domain.Federation, error)

	// CreateFederation inserts a federation. Duplicate names within a
	// tenant are rejected with ErrAlreadyExists.
	CreateFederation(ctx context.Context, f domain.Federation) error
}

type RBAC interface {
	// CreateRole inserts a role (id is ULID).
	CreateRole(ctx context.Context, r domain.Role) error

	// AssignRole links a user to a role.
	AssignRole(ctx context.Context, userID, roleID string) error

	// GetRolesForUser returns all roles assigned to a user.
	GetRolesForUser(ctx context.Context, userID string) ([]domain.Role, error)

	// CreateAccessGrant inserts a grant. The (role, access type, reference)
	// triple is unique; duplicates get ErrAlreadyExists at write time.
	CreateAccessGrant(ctx context.Context, g domain.AccessGrant) error

	// ListAccessGrantsForRoles returns every grant held by the given roles.
	ListAccessGrantsForRoles(ctx context.Context, roleIDs []string) ([]domain.AccessGrant, error)
}

type LoginAttempts interface {
	// CreateLoginAttempt appends an attempt record. A colliding
	// (user, attempted-at) pair gets ErrAlreadyExists; the recorder
	// disambiguates, never overwrites.
	CreateLoginAttempt(ctx context.Context, a domain.LoginAttempt) error

	// ListLoginAttempts returns a user's attempts, newest first.
	ListLoginAttempts(ctx context.Context, userID string, limit int) ([]domain.LoginAttempt, error)
}
