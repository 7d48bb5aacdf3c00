package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/matheus3301/chatbox/internal/bus"
	"github.com/matheus3301/chatbox/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// CredentialsCollection holds one document per account, keyed by lowercased email.
const CredentialsCollection = "credentials"

const defaultTTL = 30 * 24 * time.Hour

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Claims is the payload of an ID token.
type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

type account struct {
	UID          string `json:"uid"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
}

// LocalConfig configures a Local provider.
type LocalConfig struct {
	Secret    []byte
	TTL       time.Duration
	TokenPath string // where the signed-in token is persisted; empty disables persistence
	HashCost  int
}

// Local is a Provider that keeps accounts in the document store and issues
// HS256 ID tokens.
type Local struct {
	docs store.Store
	bus  *bus.Bus
	cfg  LocalConfig
	log  *zap.Logger

	mu      sync.RWMutex
	current *Credential
}

var _ Provider = (*Local)(nil)

// NewLocal creates a signed-out provider. Call Restore to pick up a persisted token.
func NewLocal(docs store.Store, b *bus.Bus, cfg LocalConfig, log *zap.Logger) *Local {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.HashCost == 0 {
		cfg.HashCost = bcrypt.DefaultCost
	}
	return &Local{docs: docs, bus: b, cfg: cfg, log: log}
}

func validate(email, password string) error {
	if !emailPattern.MatchString(email) {
		return &Error{Code: CodeInvalidEmail}
	}
	if utf8.RuneCountInString(password) < 6 {
		return &Error{Code: CodeWeakPassword}
	}
	return nil
}

// CreateAccount registers a new account and signs it in.
func (l *Local) CreateAccount(ctx context.Context, email, password string) (*Credential, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validate(email, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cfg.HashCost)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Cause: err}
	}
	acct := account{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UnixMilli(),
	}
	rec, err := store.Encode(acct)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Cause: err}
	}
	err = l.docs.Create(ctx, CredentialsCollection, email, rec)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil, &Error{Code: CodeEmailInUse}
	}
	if err != nil {
		return nil, &Error{Code: CodeInternal, Cause: err}
	}
	l.log.Info("account created", zap.String("uid", acct.UID))
	return l.issue(acct.UID, acct.Email)
}

// SignIn verifies the password and makes the account current.
func (l *Local) SignIn(ctx context.Context, email, password string) (*Credential, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validate(email, password); err != nil {
		return nil, err
	}

	rec, err := l.docs.Get(ctx, CredentialsCollection, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &Error{Code: CodeUserNotFound}
	}
	if err != nil {
		return nil, &Error{Code: CodeInternal, Cause: err}
	}
	var acct account
	if err := store.Decode(rec, &acct); err != nil {
		return nil, &Error{Code: CodeInternal, Cause: err}
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return nil, &Error{Code: CodeWrongPassword}
	}
	return l.issue(acct.UID, acct.Email)
}

// SignOut forgets the current credential and its persisted token.
func (l *Local) SignOut(ctx context.Context) error {
	l.setCurrent(nil)
	if l.cfg.TokenPath != "" {
		if err := os.Remove(l.cfg.TokenPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove token: %w", err)
		}
	}
	return nil
}

// Restore signs in from the persisted token, if any. An unusable token is
// discarded and the provider stays signed out.
func (l *Local) Restore(ctx context.Context) error {
	if l.cfg.TokenPath == "" {
		return nil
	}
	data, err := os.ReadFile(l.cfg.TokenPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read token: %w", err)
	}
	cred, err := l.Verify(strings.TrimSpace(string(data)))
	if err != nil {
		_ = os.Remove(l.cfg.TokenPath)
		return err
	}
	if _, err := l.docs.Get(ctx, CredentialsCollection, cred.Email); err != nil {
		_ = os.Remove(l.cfg.TokenPath)
		if errors.Is(err, store.ErrNotFound) {
			return &Error{Code: CodeUserNotFound}
		}
		return &Error{Code: CodeInternal, Cause: err}
	}
	l.log.Info("restored signed-in account", zap.String("uid", cred.UID))
	l.setCurrent(cred)
	return nil
}

// Verify parses and validates an ID token issued by this provider.
func (l *Local) Verify(tokenStr string) (*Credential, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return l.cfg.Secret, nil
	})
	if err != nil || !token.Valid || claims.UID == "" {
		return nil, &Error{Code: CodeInvalidToken, Cause: err}
	}
	cred := &Credential{UID: claims.UID, Email: claims.Email, Token: tokenStr}
	if claims.ExpiresAt != nil {
		cred.ExpiresAt = claims.ExpiresAt.Time
	}
	return cred, nil
}

func (l *Local) ObserveAuthState(ctx context.Context) (<-chan *Credential, func()) {
	ctx, cancel := context.WithCancel(ctx)
	events, unsub := l.bus.Subscribe(bus.KindAuthState, 8)
	out := make(chan *Credential, 1)
	out <- l.Current()

	go func() {
		defer close(out)
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-events:
				cred, _ := evt.Payload.(*Credential)
				bus.Offer(out, cred)
			}
		}
	}()
	return out, cancel
}

func (l *Local) Current() *Credential {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func (l *Local) issue(uid, email string) (*Credential, error) {
	now := time.Now()
	expires := now.Add(l.cfg.TTL)
	claims := Claims{
		UID:   uid,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.cfg.Secret)
	if err != nil {
		return nil, &Error{Code: CodeInternal, Cause: err}
	}
	cred := &Credential{UID: uid, Email: email, Token: signed, ExpiresAt: expires}
	if l.cfg.TokenPath != "" {
		if err := os.WriteFile(l.cfg.TokenPath, []byte(signed), 0600); err != nil {
			l.log.Warn("persist token failed", zap.Error(err))
		}
	}
	l.setCurrent(cred)
	return cred, nil
}

func (l *Local) setCurrent(cred *Credential) {
	l.mu.Lock()
	l.current = cred
	l.mu.Unlock()
	l.bus.Emit(bus.KindAuthState, cred)
}

// LoadOrCreateKey reads a hex-encoded signing key from path, creating a
// random one when the file does not exist.
func LoadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("decode key %s: %w", path, err)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read key: %w", err)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}
	return key, nil
}
