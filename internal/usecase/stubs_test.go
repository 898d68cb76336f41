package usecase

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/zaedhealth/identity-service/internal/core/domain"
	"github.com/zaedhealth/identity-service/internal/repository"
)

// plainHasher is a deterministic stand-in for the argon2 hasher; the real
// hasher is covered in the security package.
type plainHasher struct{}

func (plainHasher) Hash(secret string) (string, error) {
	return "h:" + secret, nil
}

func (plainHasher) Verify(secret, encoded string) (bool, error) {
	return encoded == "h:"+secret, nil
}

type stubUserRepo struct {
	users map[string]domain.User
}

func newStubUserRepo(users ...domain.User) *stubUserRepo {
	r := &stubUserRepo{users: make(map[string]domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *stubUserRepo) Create(_ context.Context, user domain.User) error {
	r.users[user.ID] = user
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := r.users[id]; ok {
		copy := u
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Email == email {
			copy := u
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	for _, u := range r.users {
		if u.Phone != nil && *u.Phone == phone {
			copy := u
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.LastLoginAt = &at
	r.users[id] = u
	return nil
}

func (r *stubUserRepo) SetActive(_ context.Context, id string, active bool) error {
	u, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsActive = active
	r.users[id] = u
	return nil
}

type stubCredentialRepo struct {
	creds map[string]domain.Credential
}

func newStubCredentialRepo(creds ...domain.Credential) *stubCredentialRepo {
	r := &stubCredentialRepo{creds: make(map[string]domain.Credential)}
	for _, c := range creds {
		r.creds[c.UserID] = c
	}
	return r
}

func (r *stubCredentialRepo) GetByUserID(_ context.Context, userID string) (*domain.Credential, error) {
	if c, ok := r.creds[userID]; ok {
		copy := c
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubCredentialRepo) Save(_ context.Context, credential domain.Credential) error {
	r.creds[credential.UserID] = credential
	return nil
}

func (r *stubCredentialRepo) RecordFailure(_ context.Context, userID string, threshold int, lockedUntil time.Time) (int, error) {
	c, ok := r.creds[userID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	c.FailedAttempts++
	if c.FailedAttempts >= threshold {
		c.LockedUntil = &lockedUntil
	}
	r.creds[userID] = c
	return c.FailedAttempts, nil
}

func (r *stubCredentialRepo) ClearFailures(_ context.Context, userID string) error {
	c, ok := r.creds[userID]
	if !ok {
		return repository.ErrNotFound
	}
	c.FailedAttempts = 0
	c.LockedUntil = nil
	r.creds[userID] = c
	return nil
}

type stubTwoFactorRepo struct {
	records map[string]domain.TwoFactorRecord
}

func newStubTwoFactorRepo(records ...domain.TwoFactorRecord) *stubTwoFactorRepo {
	r := &stubTwoFactorRepo{records: make(map[string]domain.TwoFactorRecord)}
	for _, rec := range records {
		r.records[rec.UserID] = rec
	}
	return r
}

func (r *stubTwoFactorRepo) GetByUserID(_ context.Context, userID string) (*domain.TwoFactorRecord, error) {
	if rec, ok := r.records[userID]; ok {
		copy := rec
		copy.RecoveryCodes = append([]string(nil), rec.RecoveryCodes...)
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubTwoFactorRepo) Save(_ context.Context, record domain.TwoFactorRecord) error {
	r.records[record.UserID] = record
	return nil
}

func (r *stubTwoFactorRepo) ConsumeRecoveryCode(_ context.Context, userID string, previous, remaining []string) (bool, error) {
	rec, ok := r.records[userID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if len(rec.RecoveryCodes) != len(previous) {
		return false, nil
	}
	for i := range previous {
		if rec.RecoveryCodes[i] != previous[i] {
			return false, nil
		}
	}
	rec.RecoveryCodes = append([]string(nil), remaining...)
	rec.UsedCount++
	r.records[userID] = rec
	return true, nil
}

func (r *stubTwoFactorRepo) Clear(_ context.Context, userID string) error {
	delete(r.records, userID)
	return nil
}

type stubTokenRepo struct {
	tokens map[string]domain.RefreshToken
}

func newStubTokenRepo() *stubTokenRepo {
	return &stubTokenRepo{tokens: make(map[string]domain.RefreshToken)}
}

func (r *stubTokenRepo) Create(_ context.Context, token domain.RefreshToken) error {
	if _, exists := r.tokens[token.ID]; exists {
		return fmt.Errorf("duplicate token id %s", token.ID)
	}
	r.tokens[token.ID] = token
	return nil
}

func (r *stubTokenRepo) GetByID(_ context.Context, id string) (*domain.RefreshToken, error) {
	if t, ok := r.tokens[id]; ok {
		copy := t
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubTokenRepo) Revoke(_ context.Context, id string, at time.Time, reason string) (bool, error) {
	t, ok := r.tokens[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	t.RevokeReason = &reason
	r.tokens[id] = t
	return true, nil
}

func (r *stubTokenRepo) RevokeAllForUser(_ context.Context, userID string, at time.Time, reason string) (int, error) {
	revoked := 0
	for id, t := range r.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &at
			t.RevokeReason = &reason
			r.tokens[id] = t
			revoked++
		}
	}
	return revoked, nil
}

func (r *stubTokenRepo) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	t, ok := r.tokens[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.LastUsedAt = &at
	r.tokens[id] = t
	return nil
}

func (r *stubTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	deleted := 0
	for id, t := range r.tokens {
		if t.ExpiresAt.Before(before) {
			delete(r.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *stubTokenRepo) liveCount(userID string) int {
	live := 0
	for _, t := range r.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			live++
		}
	}
	return live
}

type stubAuditRepo struct {
	mu     sync.Mutex
	events []domain.AuthEvent
}

func (r *stubAuditRepo) Record(_ context.Context, event domain.AuthEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *stubAuditRepo) CountFailedLoginsByEmail(_ context.Context, email string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.events {
		if e.EventType == domain.EventLoginFailed && e.Email != nil && *e.Email == email && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *stubAuditRepo) CountFailedLoginsByIP(_ context.Context, ip string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.events {
		if e.EventType == domain.EventLoginFailed && e.IP == ip && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *stubAuditRepo) lastEvent() *domain.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	e := r.events[len(r.events)-1]
	return &e
}

func (r *stubAuditRepo) countByType(kind domain.AuthEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.events {
		if e.EventType == kind {
			count++
		}
	}
	return count
}

type stubPublisher struct {
	events []domain.AuthEvent
}

func (p *stubPublisher) PublishAuthEvent(_ context.Context, event domain.AuthEvent) error {
	p.events = append(p.events, event)
	return nil
}

type storedValue struct {
	value     string
	expiresAt time.Time
}

// stubEphemeralStore mimics the redis-backed store with a controllable clock.
type stubEphemeralStore struct {
	values map[string]storedValue
	now    func() time.Time
}

func newStubEphemeralStore(now func() time.Time) *stubEphemeralStore {
	return &stubEphemeralStore{values: make(map[string]storedValue), now: now}
}

func (s *stubEphemeralStore) live(key string) (storedValue, bool) {
	v, ok := s.values[key]
	if !ok {
		return storedValue{}, false
	}
	if !v.expiresAt.IsZero() && !v.expiresAt.After(s.now()) {
		delete(s.values, key)
		return storedValue{}, false
	}
	return v, true
}

func (s *stubEphemeralStore) Get(_ context.Context, key string) (string, error) {
	v, ok := s.live(key)
	if !ok {
		return "", repository.ErrNotFound
	}
	return v.value, nil
}

func (s *stubEphemeralStore) SetWithTTL(_ context.Context, key, value string, ttl time.Duration) error {
	s.values[key] = storedValue{value: value, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *stubEphemeralStore) Delete(_ context.Context, key string) error {
	delete(s.values, key)
	return nil
}

func (s *stubEphemeralStore) Increment(_ context.Context, key string) (int64, error) {
	v, ok := s.live(key)
	count := int64(0)
	if ok {
		parsed, err := strconv.ParseInt(v.value, 10, 64)
		if err != nil {
			return 0, err
		}
		count = parsed
	}
	count++
	s.values[key] = storedValue{value: strconv.FormatInt(count, 10), expiresAt: v.expiresAt}
	return count, nil
}

func (s *stubEphemeralStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	v, ok := s.live(key)
	if !ok {
		return repository.ErrNotFound
	}
	v.expiresAt = s.now().Add(ttl)
	s.values[key] = v
	return nil
}

func (s *stubEphemeralStore) TTL(_ context.Context, key string) (time.Duration, error) {
	v, ok := s.live(key)
	if !ok || v.expiresAt.IsZero() {
		return 0, nil
	}
	return v.expiresAt.Sub(s.now()), nil
}
