// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnreachable is returned when the source cannot be contacted at all.
	ErrUnreachable = errors.New("runtime source unreachable")

	// ErrNotFound is returned when the source has no object with the requested name.
	ErrNotFound = errors.New("runtime image not found")

	// ErrBadStatus is returned for responses that are neither success nor not-found.
	ErrBadStatus = errors.New("unexpected response from runtime source")

	// ErrCorrupt is returned when downloaded data cannot be decoded.
	ErrCorrupt = errors.New("corrupt runtime image")

	// ErrIncomplete is returned when fewer bytes arrive than the source announced.
	ErrIncomplete = errors.New("incomplete transfer")
)

type (
	// Source opens remote objects by name. size is -1 when unknown.
	Source interface {
		Open(ctx context.Context, name string) (rc io.ReadCloser, size int64, err error)
		// Location returns a printable location for name.
		Location(name string) string
	}

	// StatusError records a non-success HTTP status. It wraps ErrNotFound for
	// 404 and ErrBadStatus otherwise.
	StatusError struct {
		URL  string
		Code int
	}

	// HTTPSource fetches objects below a base URL.
	HTTPSource struct {
		httpClient *http.Client
		baseURL    string
		userAgent  string
	}

	// HTTPOption configures an HTTPSource during construction.
	HTTPOption func(*HTTPSource)

	// DirSource serves objects from a local directory, for offline mirrors.
	DirSource struct {
		dir string
	}
)

// Error formats the status and URL.
func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Unwrap classifies the status for errors.Is.
func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusNotFound {
		return ErrNotFound
	}
	return ErrBadStatus
}

// WithHTTPClient sets a custom HTTP client, useful for tests or proxy configurations.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) HTTPOption {
	return func(s *HTTPSource) {
		s.userAgent = ua
	}
}

// NewHTTPSource creates an HTTPSource for baseURL.
// Defaults: httpClient=http.DefaultClient, userAgent="sfxpack/dev".
func NewHTTPSource(baseURL string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		httpClient: http.DefaultClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "sfxpack/dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Location returns the object URL.
func (s *HTTPSource) Location(name string) string {
	return s.baseURL + "/" + url.PathEscape(name)
}

// Open issues a GET for name and returns the streaming body.
func (s *HTTPSource) Open(ctx context.Context, name string) (io.ReadCloser, int64, error) {
	reqURL := s.Location(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		return nil, 0, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, 0, &StatusError{URL: reqURL, Code: resp.StatusCode}
	}

	return resp.Body, resp.ContentLength, nil
}

// NewDirSource serves objects from dir.
func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

// Location returns the object path.
func (s *DirSource) Location(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}

// Open opens the file for name.
func (s *DirSource) Open(_ context.Context, name string) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.Location(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", ErrNotFound, s.Location(name))
		}
		return nil, 0, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

// IsTransferError reports whether err came from reaching or reading the
// source, as opposed to local filesystem trouble.
func IsTransferError(err error) bool {
	for _, target := range []error{
		context.Canceled, context.DeadlineExceeded,
		ErrUnreachable, ErrNotFound, ErrBadStatus, ErrIncomplete, ErrCorrupt,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// SplitLocation splits a full object URL into its base and object name.
func SplitLocation(rawURL string) (base, name string) {
	i := strings.LastIndex(rawURL, "/")
	if i < 0 {
		return "", rawURL
	}
	return rawURL[:i], rawURL[i+1:]
}

// NewSource picks a Source implementation from the scheme of base:
// s3:// uses S3, file:// a local directory, anything else HTTP.
func NewSource(base string, opts ...HTTPOption) (Source, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parsing source URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "s3":
		return NewS3SourceFromURL(u)
	case "file":
		return NewDirSource(u.Path), nil
	case "http", "https":
		return NewHTTPSource(base, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported source URL scheme %q in %q", u.Scheme, base)
	}
}
