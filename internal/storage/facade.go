package storage

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"imagestudio-backend/internal/apperrors"
	"imagestudio-backend/internal/models"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var slugDisallowed = regexp.MustCompile(`[^a-z0-9]+`)

// Facade is the Object Store Facade: it owns the storage-key scheme and
// the host allowlist, and delegates the actual bytes to an R2Client.
type Facade struct {
	client         *R2Client
	allowedFetchHosts map[string]bool
	httpClient     *http.Client
}

// NewFacade wraps an R2Client with key generation and fetch-host
// allowlisting.
func NewFacade(client *R2Client, allowedFetchHosts []string) *Facade {
	allowed := make(map[string]bool, len(allowedFetchHosts))
	for _, h := range allowedFetchHosts {
		allowed[strings.ToLower(h)] = true
	}
	return &Facade{
		client:            client,
		allowedFetchHosts: allowed,
		httpClient:        &http.Client{Timeout: 30 * time.Second},
	}
}

// buildKey produces a storage key of the form
// u/{userId}/{yyyy}/{mm}/{dd}/{ulid}_{slug}, sortable within a day by
// ULID and readable by date without a directory listing. The date is the
// UTC date of now; the slug is lowercased, runs of other characters
// become "-", and it is clipped to 60 characters ("unnamed" when empty).
func buildKey(userID uuid.UUID, now time.Time, slug string) string {
	now = now.UTC()
	id := ulid.MustNew(ulid.Timestamp(now), rand.Reader)
	cleanSlug := strings.Trim(slugDisallowed.ReplaceAllString(strings.ToLower(slug), "-"), "-")
	if len(cleanSlug) > 60 {
		cleanSlug = cleanSlug[:60]
	}
	if cleanSlug == "" {
		cleanSlug = "unnamed"
	}
	return fmt.Sprintf("u/%s/%04d/%02d/%02d/%s_%s",
		userID, now.Year(), now.Month(), now.Day(), id.String(), cleanSlug)
}

// Put uploads data under a freshly generated key scoped to userID and
// returns the Upload record describing where it landed.
func (f *Facade) Put(ctx context.Context, userID uuid.UUID, purpose string, data []byte, mimeType string) (*models.Upload, error) {
	key := buildKey(userID, time.Now(), purpose)
	if err := f.client.PutObject(ctx, key, data, mimeType); err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "store object", err)
	}
	return &models.Upload{
		UploadID:  uuid.New(),
		UserID:    userID,
		Key:       key,
		URL:       f.client.GetPublicURL(key),
		MimeType:  mimeType,
		SizeBytes: int64(len(data)),
	}, nil
}

// Fetch dereferences a previously issued URL back into bytes, refusing
// any host not in the configured allowlist so the facade can't be used
// as an open proxy to fetch arbitrary third-party content. An empty
// allowlist applies no host check.
func (f *Facade) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindValidation, "invalid upload url", err)
	}
	if len(f.allowedFetchHosts) > 0 && !f.allowedFetchHosts[strings.ToLower(parsed.Hostname())] {
		return nil, apperrors.New(apperrors.KindValidation, fmt.Sprintf("host %q is not allowed", parsed.Hostname()))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInternal, "build fetch request", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindUpstream, "fetch upload", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.KindUpstream, fmt.Sprintf("fetch upload: unexpected status %d", resp.StatusCode))
	}

	buf := make([]byte, 0, 64*1024)
	chunk := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			break
		}
	}
	return buf, nil
}

// PresignPut delegates to the underlying client for direct-to-storage
// uploads under a freshly generated key.
func (f *Facade) PresignPut(ctx context.Context, userID uuid.UUID, purpose, contentType string, maxSizeBytes int64) (key, presignedURL string, err error) {
	key = buildKey(userID, time.Now(), purpose)
	presignedURL, err = f.client.GeneratePresignedURLWithMaxSize(ctx, key, contentType, maxSizeBytes)
	if err != nil {
		return "", "", apperrors.Wrap(apperrors.KindInternal, "presign upload", err)
	}
	return key, presignedURL, nil
}

// PublicURL exposes the underlying client's URL builder so handlers can
// compute a download URL for a key they already have (e.g. after a
// client-side presigned PUT completes).
func (f *Facade) PublicURL(key string) string {
	return f.client.GetPublicURL(key)
}
