// Package upload issues single-use photo upload links, stores the images
// customers submit and runs them through vision analysis.
//
// During a call the agent may decide that a photo would help diagnosis. It
// creates an upload request here, the customer receives the link by email,
// uploads one image, and the resulting analysis is attached to the request
// record for the technician.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Refusal texts shown to customers who follow a link that cannot accept an
// image anymore.
const (
	refusalInvalid = "Invalid upload link"
	refusalUsed    = "This upload link has already been used"
	refusalExpired = "This upload link has expired"
)

// Request is a single-use upload link issued to one customer.
type Request struct {
	ID               int
	CustomerID       int // 0 when the caller was never matched to a record
	Token            string
	EmailSentTo      string
	EmailSentAt      time.Time
	ExpiresAt        time.Time
	IsUsed           bool
	UploadedAt       time.Time // zero until an image arrives
	ImageFilename    string
	ImagePath        string
	ImageAnalysis    string
	ApplianceType    string
	IssueDescription string
	CallSID          string
	CreatedAt        time.Time
}

// Expired reports whether the link's validity window has passed.
func (r *Request) Expired() bool {
	return time.Now().UTC().After(r.ExpiresAt)
}

// RequestStore persists upload requests. [Store] implements it against
// PostgreSQL.
type RequestStore interface {
	// Create inserts r and fills in its ID and CreatedAt.
	Create(ctx context.Context, r *Request) error

	// ByToken returns the request with the given token, or (nil, nil) when
	// no such token was ever issued.
	ByToken(ctx context.Context, token string) (*Request, error)

	// MarkUploaded records a received image and burns the link.
	MarkUploaded(ctx context.Context, id int, at time.Time, filename, path string) error

	// SaveAnalysis attaches the vision analysis to the request.
	SaveAnalysis(ctx context.Context, id int, analysis string) error
}

// Config configures a [Service]. Store and BaseURL are required; zero
// values elsewhere fall back to defaults.
type Config struct {
	Store  RequestStore
	Mailer Mailer   // defaults to LogMailer
	Vision Analyzer // optional; Analyze fails without it

	BaseURL  string        // public base URL, e.g. "https://assist.example.com"
	Dir      string        // image directory, default "uploads/images"
	TTL      time.Duration // link validity, default 24h
	MaxBytes int64         // image size cap, default 10 MiB
}

const (
	defaultTTL      = 24 * time.Hour
	defaultMaxBytes = 10 << 20
	defaultDir      = "uploads/images"
)

// Service ties upload links, image intake and vision analysis together.
type Service struct {
	store    RequestStore
	mailer   Mailer
	vision   Analyzer
	baseURL  string
	dir      string
	ttl      time.Duration
	maxBytes int64
}

// NewService creates a [Service] from cfg.
func NewService(cfg Config) *Service {
	if cfg.Mailer == nil {
		cfg.Mailer = LogMailer{}
	}
	if cfg.Dir == "" {
		cfg.Dir = defaultDir
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	return &Service{
		store:    cfg.Store,
		mailer:   cfg.Mailer,
		vision:   cfg.Vision,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		dir:      cfg.Dir,
		ttl:      cfg.TTL,
		maxBytes: cfg.MaxBytes,
	}
}

// CreateRequest issues a fresh upload link for the customer and sends it to
// email. The link stays valid even when the mail cannot go out.
func (s *Service) CreateRequest(ctx context.Context, customerID int, email, applianceType, issue, callSID string) (*Request, error) {
	now := time.Now().UTC()
	r := &Request{
		CustomerID:       customerID,
		Token:            uuid.NewString(),
		EmailSentTo:      email,
		EmailSentAt:      now,
		ExpiresAt:        now.Add(s.ttl),
		ApplianceType:    applianceType,
		IssueDescription: issue,
		CallSID:          callSID,
	}
	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}

	if err := s.mailer.SendUploadLink(ctx, email, s.UploadURL(r.Token), applianceType); err != nil {
		slog.Warn("upload link email failed", "to", email, "error", err)
	}
	return r, nil
}

// UploadURL returns the public link for an upload token.
func (s *Service) UploadURL(token string) string {
	return s.baseURL + "/upload/" + token
}

// Validate checks a link token and returns the customer-facing refusal
// text, or "" when the link can still accept an image.
func (s *Service) Validate(ctx context.Context, token string) (string, error) {
	r, err := s.store.ByToken(ctx, token)
	if err != nil {
		return "", err
	}
	return validate(r), nil
}

func validate(r *Request) string {
	switch {
	case r == nil:
		return refusalInvalid
	case r.IsUsed:
		return refusalUsed
	case r.Expired():
		return refusalExpired
	}
	return ""
}

// SaveImage writes a submitted image to disk and burns the link. The first
// return value is refusal text for the customer ("" on success); the error
// covers storage failures.
func (s *Service) SaveImage(ctx context.Context, token string, data []byte, filename string) (string, error) {
	r, err := s.store.ByToken(ctx, token)
	if err != nil {
		return "", err
	}
	if errText := validate(r); errText != "" {
		return errText, nil
	}
	if int64(len(data)) > s.maxBytes {
		return fmt.Sprintf("File too large. Maximum size is %dMB.", s.maxBytes>>20), nil
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}
	now := time.Now().UTC()
	stored := fmt.Sprintf("%s_%s%s", token, now.Format("20060102_150405"), ext)

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("upload: create image dir: %w", err)
	}
	path := filepath.Join(s.dir, stored)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("upload: write image: %w", err)
	}

	if err := s.store.MarkUploaded(ctx, r.ID, now, stored, path); err != nil {
		return "", err
	}
	slog.Info("image saved", "token", token, "path", path)
	return "", nil
}

// Analyze runs the stored image through the vision analyzer and attaches
// the result to the request. The refusal text reports requests that have no
// image yet; breaker and API failures come back as errors.
func (s *Service) Analyze(ctx context.Context, token string) (analysis, errText string, err error) {
	r, err := s.store.ByToken(ctx, token)
	if err != nil {
		return "", "", err
	}
	if r == nil || r.ImagePath == "" {
		return "", "No image found for this upload", nil
	}
	if s.vision == nil {
		return "", "", errors.New("upload: vision analyzer not configured")
	}

	image, err := os.ReadFile(r.ImagePath)
	if err != nil {
		return "", "", fmt.Errorf("upload: read image: %w", err)
	}

	analysis, err = s.vision.Analyze(ctx, image, mediaTypeFor(filepath.Ext(r.ImagePath)), r.ApplianceType, r.IssueDescription)
	if err != nil {
		return "", "", err
	}
	if err := s.store.SaveAnalysis(ctx, r.ID, analysis); err != nil {
		return "", "", err
	}
	return analysis, "", nil
}
