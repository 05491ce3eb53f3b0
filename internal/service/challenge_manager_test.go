package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"stepup-auth/internal/domain"
	"stepup-auth/internal/repository"
)

type sentCode struct {
	to        string
	code      string
	expiresAt time.Time
}

type captureSender struct {
	mu   sync.Mutex
	sent []sentCode
	err  error
}

func (s *captureSender) SendLoginOTP(_ context.Context, toEmail, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentCode{to: toEmail, code: code, expiresAt: expiresAt})
	return nil
}

func (s *captureSender) last(t *testing.T) sentCode {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatalf("expected a delivered code")
	}
	return s.sent[len(s.sent)-1]
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(store repository.ChallengeRepository, sender *captureSender, clock *fakeClock) *ChallengeManager {
	m := NewChallengeManager(zap.NewNop(), store, sender, ChallengeOptions{
		TTL:         5 * time.Minute,
		MaxAttempts: 5,
		MaxResends:  3,
	})
	m.now = clock.Now
	return m
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

var testUser = domain.User{
	ID:     "u1",
	Email:  "ana@example.com",
	Role:   domain.RoleUser,
	Status: domain.UserActive,
}

func TestChallengeManagerIssue(t *testing.T) {
	store := NewMemoryChallengeStore()
	sender := &captureSender{}
	clock := newFakeClock()
	m := newTestManager(store, sender, clock)

	issued, err := m.Issue(context.Background(), testUser, true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Token == "" || issued.UserID != "u1" {
		t.Fatalf("unexpected issued challenge: %+v", issued)
	}
	if !issued.ExpiresAt.Equal(clock.Now().Add(5 * time.Minute)) {
		t.Fatalf("unexpected expiry: %v", issued.ExpiresAt)
	}

	sent := sender.last(t)
	if sent.to != "ana@example.com" || !isValidOTPCode(sent.code) {
		t.Fatalf("unexpected delivery: %+v", sent)
	}

	stored, err := store.Get(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.State != domain.ChallengePending || stored.Attempts != 0 || !stored.RememberMe {
		t.Fatalf("unexpected stored challenge: %+v", stored)
	}
	if stored.OTPHash == sent.code || !verifyOTP(sent.code, stored.OTPHash) {
		t.Fatalf("expected stored hash to match code without storing it")
	}

	other, err := m.Issue(context.Background(), testUser, false)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if other.Token == issued.Token {
		t.Fatalf("expected a fresh token per issue")
	}
}

func TestChallengeManagerVerifySuccessIsSingleUse(t *testing.T) {
	sender := &captureSender{}
	m := newTestManager(NewMemoryChallengeStore(), sender, newFakeClock())

	issued, err := m.Issue(context.Background(), testUser, true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := sender.last(t).code

	res, err := m.Verify(context.Background(), issued.Token, code)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.UserID != "u1" || !res.RememberMe {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := m.Verify(context.Background(), issued.Token, code); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected consumed challenge to be rejected, got %v", err)
	}
	if _, err := m.Resend(context.Background(), issued.Token); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected resend on consumed challenge to be rejected, got %v", err)
	}
}

func TestChallengeManagerUnknownToken(t *testing.T) {
	m := newTestManager(NewMemoryChallengeStore(), &captureSender{}, newFakeClock())
	if _, err := m.Verify(context.Background(), "missing", "123456"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := m.Resend(context.Background(), "missing"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestChallengeManagerAttemptsExhausted(t *testing.T) {
	store := NewMemoryChallengeStore()
	sender := &captureSender{}
	m := newTestManager(store, sender, newFakeClock())

	issued, err := m.Issue(context.Background(), testUser, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := sender.last(t).code
	bad := wrongCode(code)

	for i := 1; i <= 4; i++ {
		if _, err := m.Verify(context.Background(), issued.Token, bad); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("attempt %d: expected invalid code, got %v", i, err)
		}
	}
	if _, err := m.Verify(context.Background(), issued.Token, bad); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("fifth wrong attempt: expected too many attempts, got %v", err)
	}
	if _, err := m.Verify(context.Background(), issued.Token, code); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("correct code after exhaustion: expected too many attempts, got %v", err)
	}
	if _, err := m.Resend(context.Background(), issued.Token); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("resend after exhaustion: expected too many attempts, got %v", err)
	}

	stored, _ := store.Get(context.Background(), issued.Token)
	if stored.State != domain.ChallengeExhausted || stored.Attempts != 5 {
		t.Fatalf("unexpected stored state: %+v", stored)
	}
}

func TestChallengeManagerMalformedCodeCountsAsAttempt(t *testing.T) {
	store := NewMemoryChallengeStore()
	sender := &captureSender{}
	m := newTestManager(store, sender, newFakeClock())

	issued, err := m.Issue(context.Background(), testUser, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for _, code := range []string{"12a456", "1234567", ""} {
		if _, err := m.Verify(context.Background(), issued.Token, code); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("code %q: expected invalid code, got %v", code, err)
		}
	}
	stored, _ := store.Get(context.Background(), issued.Token)
	if stored.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", stored.Attempts)
	}
}

func TestChallengeManagerExpiry(t *testing.T) {
	store := NewMemoryChallengeStore()
	sender := &captureSender{}
	clock := newFakeClock()
	m := newTestManager(store, sender, clock)

	issued, err := m.Issue(context.Background(), testUser, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := sender.last(t).code

	clock.Advance(5*time.Minute + time.Second)

	if _, err := m.Verify(context.Background(), issued.Token, code); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
	if _, err := m.Resend(context.Background(), issued.Token); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected resend to report expired, got %v", err)
	}
	stored, _ := store.Get(context.Background(), issued.Token)
	if stored.State != domain.ChallengeExpired {
		t.Fatalf("expected expired state, got %s", stored.State)
	}
	if sender.count() != 1 {
		t.Fatalf("expected no delivery for expired challenge, got %d", sender.count())
	}
}

func TestChallengeManagerResendInvalidatesPreviousCode(t *testing.T) {
	store := NewMemoryChallengeStore()
	sender := &captureSender{}
	clock := newFakeClock()
	m := newTestManager(store, sender, clock)

	issued, err := m.Issue(context.Background(), testUser, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	first := sender.last(t).code
	if _, err := m.Verify(context.Background(), issued.Token, wrongCode(first)); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected invalid code, got %v", err)
	}

	clock.Advance(4 * time.Minute)
	resent, err := m.Resend(context.Background(), issued.Token)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if !resent.ExpiresAt.Equal(clock.Now().Add(5 * time.Minute)) {
		t.Fatalf("expected a fresh window, got %v", resent.ExpiresAt)
	}
	second := sender.last(t).code

	stored, _ := store.Get(context.Background(), issued.Token)
	if stored.Attempts != 0 || stored.ResendCount != 1 {
		t.Fatalf("unexpected counters after resend: %+v", stored)
	}

	if first != second {
		if _, err := m.Verify(context.Background(), issued.Token, first); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("expected old code to be rejected, got %v", err)
		}
	}
	if _, err := m.Verify(context.Background(), issued.Token, second); err != nil {
		t.Fatalf("expected new code to verify, got %v", err)
	}
}

func TestChallengeManagerResendLimit(t *testing.T) {
	sender := &captureSender{}
	m := newTestManager(NewMemoryChallengeStore(), sender, newFakeClock())

	issued, err := m.Issue(context.Background(), testUser, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if _, err := m.Resend(context.Background(), issued.Token); err != nil {
			t.Fatalf("resend %d: %v", i, err)
		}
	}
	third := sender.last(t).code

	if _, err := m.Resend(context.Background(), issued.Token); !errors.Is(err, ErrResendLimitExceeded) {
		t.Fatalf("expected resend limit, got %v", err)
	}
	if sender.count() != 4 {
		t.Fatalf("expected 4 deliveries, got %d", sender.count())
	}
	if _, err := m.Verify(context.Background(), issued.Token, third); err != nil {
		t.Fatalf("expected last resent code to verify, got %v", err)
	}
}

func TestChallengeManagerDeliveryFailure(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp down")}
	m := newTestManager(NewMemoryChallengeStore(), sender, newFakeClock())

	issued, err := m.Issue(context.Background(), testUser, false)
	if !errors.Is(err, ErrDeliveryUnavailable) {
		t.Fatalf("expected delivery unavailable, got %v", err)
	}
	if issued.Token != "" {
		t.Fatalf("expected no token on delivery failure")
	}
}

func TestChallengeManagerConcurrentWrongGuesses(t *testing.T) {
	store := NewMemoryChallengeStore()
	sender := &captureSender{}
	m := newTestManager(store, sender, newFakeClock())

	issued, err := m.Issue(context.Background(), testUser, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	bad := wrongCode(sender.last(t).code)

	const workers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		invalid int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Verify(context.Background(), issued.Token, bad)
			if errors.Is(err, ErrInvalidCode) {
				mu.Lock()
				invalid++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if invalid > 4 {
		t.Fatalf("expected at most 4 invalid-code results, got %d", invalid)
	}
	stored, _ := store.Get(context.Background(), issued.Token)
	if stored.Attempts > 5 {
		t.Fatalf("attempts exceeded cap: %d", stored.Attempts)
	}
}

func TestChallengeManagerConcurrentCorrectCode(t *testing.T) {
	sender := &captureSender{}
	m := newTestManager(NewMemoryChallengeStore(), sender, newFakeClock())

	issued, err := m.Issue(context.Background(), testUser, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	code := sender.last(t).code

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Verify(context.Background(), issued.Token, code); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful verification, got %d", successes)
	}
}

type conflictStore struct {
	repository.ChallengeRepository
}

func (s conflictStore) CompareAndSwap(context.Context, int64, domain.LoginChallenge) error {
	return repository.ErrVersionConflict
}

func TestChallengeManagerContention(t *testing.T) {
	sender := &captureSender{}
	store := conflictStore{ChallengeRepository: NewMemoryChallengeStore()}
	m := newTestManager(store, sender, newFakeClock())

	issued, err := m.Issue(context.Background(), testUser, false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(context.Background(), issued.Token, "123456"); !errors.Is(err, ErrChallengeContention) {
		t.Fatalf("expected contention error, got %v", err)
	}
}

func TestChallengeManagerNotConfigured(t *testing.T) {
	m := NewChallengeManager(nil, nil, nil, ChallengeOptions{})
	if _, err := m.Issue(context.Background(), testUser, false); !errors.Is(err, ErrServiceNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
	if _, err := m.Verify(context.Background(), "t", "123456"); !errors.Is(err, ErrServiceNotConfigured) {
		t.Fatalf("expected not configured, got %v", err)
	}
}
