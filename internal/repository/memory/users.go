package memory

import (
    "context"
    "strings"
    "time"

    "github.com/iliyamo/parking-space-reservation/internal/model"
    "github.com/iliyamo/parking-space-reservation/internal/repository"
    "github.com/iliyamo/parking-space-reservation/internal/utils"
)

// UserStore is the users table.
type UserStore struct{ st *state }

func (s *UserStore) Create(ctx context.Context, email, password, role string, cost int) (uint64, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    hash, err := utils.HashPassword(password, cost)
    if err != nil {
        return 0, err
    }
    if err := s.st.lock(ctx); err != nil {
        return 0, err
    }
    defer s.st.mu.Unlock()
    for _, u := range s.st.users {
        if u.Email == email {
            return 0, repository.ErrEmailExists
        }
    }
    s.st.nextUserID++
    t := now()
    s.st.users[s.st.nextUserID] = &model.User{
        ID: s.st.nextUserID, Email: email, PasswordHash: hash, Role: role,
        IsActive: true, CreatedAt: t, UpdatedAt: t,
    }
    return s.st.nextUserID, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
    email = strings.ToLower(strings.TrimSpace(email))
    if err := s.st.lock(ctx); err != nil {
        return model.User{}, err
    }
    defer s.st.mu.Unlock()
    for _, u := range s.st.users {
        if u.Email == email {
            return *u, nil
        }
    }
    return model.User{}, repository.ErrNotFound
}

func (s *UserStore) GetByID(ctx context.Context, id uint64) (model.User, error) {
    if err := s.st.lock(ctx); err != nil {
        return model.User{}, err
    }
    defer s.st.mu.Unlock()
    u, ok := s.st.users[id]
    if !ok {
        return model.User{}, repository.ErrNotFound
    }
    return *u, nil
}

// TokenStore is the refresh_tokens table.
type TokenStore struct{ st *state }

func (s *TokenStore) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
    if err := s.st.lock(ctx); err != nil {
        return err
    }
    defer s.st.mu.Unlock()
    s.st.tokens[tokenHash] = &token{userID: userID, expires: exp}
    return nil
}

func (s *TokenStore) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
    if err := s.st.lock(ctx); err != nil {
        return 0, err
    }
    defer s.st.mu.Unlock()
    t, ok := s.st.tokens[tokenHash]
    if !ok || t.revoked || time.Now().UTC().After(t.expires) {
        return 0, repository.ErrNotFound
    }
    return t.userID, nil
}

func (s *TokenStore) RevokeByHash(ctx context.Context, tokenHash string) error {
    if err := s.st.lock(ctx); err != nil {
        return err
    }
    defer s.st.mu.Unlock()
    if t, ok := s.st.tokens[tokenHash]; ok {
        t.revoked = true
    }
    return nil
}

func (s *TokenStore) RevokeAllForUser(ctx context.Context, userID uint64) error {
    if err := s.st.lock(ctx); err != nil {
        return err
    }
    defer s.st.mu.Unlock()
    for _, t := range s.st.tokens {
        if t.userID == userID {
            t.revoked = true
        }
    }
    return nil
}
