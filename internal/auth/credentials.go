package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/BradenHooton/bastion/internal/models"
	pkgauth "github.com/BradenHooton/bastion/pkg/auth"
)

// Principal is a verified caller
type Principal struct {
	Identity string
	Role     string
}

// CredentialVerifier checks a password for an identity
type CredentialVerifier interface {
	Verify(ctx context.Context, identity, password string) (Principal, error)
}

type credential struct {
	hash string
	role string
}

// CredentialStore is an in-memory bcrypt credential table
type CredentialStore struct {
	mu          sync.RWMutex
	credentials map[string]credential
	cost        int
	dummyHash   string
}

// NewCredentialStore creates an empty store hashing at the given bcrypt cost
// (pkgauth.BcryptCost when cost is 0)
func NewCredentialStore(cost int) (*CredentialStore, error) {
	if cost == 0 {
		cost = pkgauth.BcryptCost
	}
	dummy, err := pkgauth.HashPasswordWithCost("not-a-real-password", cost)
	if err != nil {
		return nil, err
	}
	return &CredentialStore{
		credentials: make(map[string]credential),
		cost:        cost,
		dummyHash:   dummy,
	}, nil
}

// Add registers identity with password and role
func (s *CredentialStore) Add(identity, password, role string) error {
	if !ValidRole(role) {
		return fmt.Errorf("unknown role %q: %w", role, models.ErrBadRequest)
	}
	hash, err := pkgauth.HashPasswordWithCost(password, s.cost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[identity] = credential{hash: hash, role: role}
	return nil
}

// Verify checks password for identity. Unknown identities still pay for a
// bcrypt comparison so that both failures take the same time.
func (s *CredentialStore) Verify(_ context.Context, identity, password string) (Principal, error) {
	s.mu.RLock()
	cred, ok := s.credentials[identity]
	s.mu.RUnlock()

	if !ok {
		_ = pkgauth.ComparePassword(s.dummyHash, password)
		return Principal{}, models.ErrUnauthorized
	}

	if err := pkgauth.ComparePassword(cred.hash, password); err != nil {
		return Principal{}, models.ErrUnauthorized
	}

	return Principal{Identity: identity, Role: cred.role}, nil
}
