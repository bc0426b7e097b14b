package model

import "time"

// Roles stored in users.role.
const (
    RoleClient   = "client"
    RoleOperator = "operator"
    RoleAdmin    = "admin"
)

// User represents an application user record as stored in the `users`
// table. Verification is tracked by the Verified flag only; VerifiedAt is
// kept for auditing and never consulted to decide access.
type User struct {
    ID               uint64     // users.id
    Name             string     // users.name
    Email            string     // users.email
    PasswordHash     string     // users.password_hash
    Role             string     // users.role (client, operator, admin)
    Phone            string     // users.phone
    Verified         bool       // users.is_verified
    VerifiedAt       *time.Time // users.email_verified_at (nullable)
    ProfileCompleted bool       // users.profile_completed
    CreatedAt        time.Time  // users.created_at
    UpdatedAt        time.Time  // users.updated_at
}

// IsVerified is the one predicate every layer uses to decide whether a
// user has completed OTP verification.
func (u User) IsVerified() bool { return u.Verified }

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 hash of the issued token is stored.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
