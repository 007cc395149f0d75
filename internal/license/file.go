package license

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// File resolver errors.
var (
	ErrFileUnreadable   = errors.New("license file: unreadable")
	ErrFileMalformed    = errors.New("license file: malformed")
	ErrFileBadSignature = errors.New("license file: signature verification failed")
)

// signedLicenseFile is the on-disk artifact: a JSON payload plus an
// ed25519 signature over the raw payload bytes, both base64-encoded.
type signedLicenseFile struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// FileResolver serves a single-tenant deployment from a signed license
// file. The file is hot-reloaded when its modification time changes. If
// the file becomes unreadable, the last-known-good parsed license keeps
// being served for a bounded grace window to tolerate transient
// filesystem issues.
type FileResolver struct {
	path        string
	publicKey   ed25519.PublicKey
	gracePeriod time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu         sync.Mutex
	cached     *License
	modTime    time.Time
	lastGood   *License
	lastGoodAt time.Time
}

// FileResolverOption configures a FileResolver.
type FileResolverOption func(*FileResolver)

// WithFileClock overrides the resolver's clock. Used by tests.
func WithFileClock(now func() time.Time) FileResolverOption {
	return func(r *FileResolver) { r.now = now }
}

// NewFileResolver creates the file-mode resolver. publicKey may be nil
// to skip signature verification in development setups.
func NewFileResolver(path string, publicKey ed25519.PublicKey, gracePeriod time.Duration, logger *slog.Logger, opts ...FileResolverOption) *FileResolver {
	r := &FileResolver{
		path:        path,
		publicKey:   publicKey,
		gracePeriod: gracePeriod,
		logger:      logger.With(slog.String("component", "license.resolver.file")),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the current license regardless of tenantID: the file
// is the whole deployment's entitlement. The returned license carries
// the tenant ID from the file itself.
func (r *FileResolver) Resolve(ctx context.Context, _ string) (*License, error) {
	return r.Current(ctx)
}

// Current returns the parsed, signature-verified license, reloading the
// file when it changed on disk.
func (r *FileResolver) Current(_ context.Context) (*License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, err := os.Stat(r.path)
	if err != nil {
		return r.degradeLocked(fmt.Errorf("%w: %v", ErrFileUnreadable, err))
	}

	if r.cached != nil && info.ModTime().Equal(r.modTime) {
		// Refresh on cached hits too: the grace window runs from the
		// last successful read, not the last reload, so a long-stable
		// file still gets the full window when it turns unreadable.
		r.lastGoodAt = r.now()
		return r.cached, nil
	}

	lic, err := r.loadLocked()
	if err != nil {
		return r.degradeLocked(err)
	}

	r.cached = lic
	r.modTime = info.ModTime()
	r.lastGood = lic
	r.lastGoodAt = r.now()
	return lic, nil
}

// IsExpired reports whether the file's overall license has expired.
// Unreadable files count as expired once the grace window has passed.
func (r *FileResolver) IsExpired(ctx context.Context) bool {
	lic, err := r.Current(ctx)
	if err != nil {
		return true
	}
	return lic.Status == StatusExpired
}

// loadLocked reads, parses, and verifies the file. Caller holds r.mu.
func (r *FileResolver) loadLocked() (*License, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileUnreadable, err)
	}

	var signed signedLicenseFile
	if err := json.Unmarshal(data, &signed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileMalformed, err)
	}

	payload, err := base64.StdEncoding.DecodeString(signed.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrFileMalformed, err)
	}

	if r.publicKey != nil {
		sig, err := base64.StdEncoding.DecodeString(signed.Signature)
		if err != nil {
			return nil, fmt.Errorf("%w: signature: %v", ErrFileMalformed, err)
		}
		if !ed25519.Verify(r.publicKey, payload, sig) {
			return nil, ErrFileBadSignature
		}
	}

	var lic License
	if err := json.Unmarshal(payload, &lic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileMalformed, err)
	}
	return &lic, nil
}

// degradeLocked serves the last-known-good license while inside the
// grace window; outside it, the load error surfaces. Caller holds r.mu.
func (r *FileResolver) degradeLocked(cause error) (*License, error) {
	// Bad signatures never get grace: a tampered file is not a transient
	// filesystem issue.
	if errors.Is(cause, ErrFileBadSignature) {
		r.logger.Error("license file rejected", slog.String("error", cause.Error()))
		return nil, cause
	}

	if r.lastGood != nil && r.now().Sub(r.lastGoodAt) <= r.gracePeriod {
		r.logger.Warn("license file unavailable, serving last-known-good within grace period",
			slog.String("error", cause.Error()),
			slog.Duration("grace_period", r.gracePeriod))
		return r.lastGood, nil
	}

	r.logger.Error("license file unavailable and grace period exhausted",
		slog.String("error", cause.Error()))
	return nil, cause
}

// EncodeLicenseFile builds the signed on-disk artifact for a license.
// Used by provisioning tooling and tests; the private key never ships
// with the application.
func EncodeLicenseFile(lic *License, privateKey ed25519.PrivateKey) ([]byte, error) {
	payload, err := json.Marshal(lic)
	if err != nil {
		return nil, fmt.Errorf("marshal license payload: %w", err)
	}
	signed := signedLicenseFile{
		Payload: base64.StdEncoding.EncodeToString(payload),
	}
	if privateKey != nil {
		signed.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(privateKey, payload))
	}
	return json.Marshal(signed)
}
