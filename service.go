package logstorage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/syedhassaanahmed/log-storage-service/archive"
	"github.com/syedhassaanahmed/log-storage-service/resolve"
	"github.com/syedhassaanahmed/log-storage-service/store"
)

// DefaultBaseURL is the link prefix used when none is configured.
const DefaultBaseURL = "/logs/"

// Link addresses one inner file.
type Link struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// UploadResult describes a stored archive.
type UploadResult struct {
	// ArchiveID is the normalized identifier the archive is stored under.
	ArchiveID string

	// Name is the name the archive was uploaded with.
	Name string

	// Size is the archive size in bytes.
	Size int64

	// Links holds one link per inner file, in archive order.
	Links []Link
}

// Service uploads archives and resolves their inner files.
// A Service is safe for concurrent use.
type Service struct {
	store         *store.Store
	resolver      *resolve.Resolver
	baseURL       string
	archiveOpts   []archive.Option
	maxUploadSize int64
	logger        *slog.Logger
}

// New creates a Service over st.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:   st,
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !strings.HasSuffix(s.baseURL, "/") {
		s.baseURL += "/"
	}
	s.resolver = resolve.New(st,
		resolve.WithArchiveOptions(s.archiveOpts...),
		resolve.WithLogger(s.log()),
	)
	return s
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Service) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// BaseURL returns the link prefix.
func (s *Service) BaseURL() string {
	return s.baseURL
}

// Upload reads an archive from r and stores it under the normalized form
// of name.
//
// Bytes that are not a ZIP archive fail with ErrUnsupportedArchive and an
// archive without files fails with ErrEmptyArchive. Neither reaches the
// store.
func (s *Service) Upload(ctx context.Context, name string, r io.Reader) (*UploadResult, error) {
	archiveID, err := store.NormalizeArchiveID(name)
	if err != nil {
		return nil, err
	}
	buf, err := archive.NewBuffer(r, s.maxUploadSize)
	if err != nil {
		return nil, fmt.Errorf("read upload %q: %w", name, err)
	}
	if buf.Size() == 0 {
		return nil, ErrEmptyUpload
	}
	if !archive.Validate(buf) {
		return nil, ErrUnsupportedArchive
	}
	a, err := archive.Open(buf, s.archiveOpts...)
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", name, err)
	}
	if a.IsEmpty() {
		return nil, ErrEmptyArchive
	}

	entries := a.EntryList()
	if err := s.store.Upload(ctx, archiveID, buf, entries, store.WithDisplayName(name)); err != nil {
		return nil, err
	}

	res := &UploadResult{
		ArchiveID: archiveID,
		Name:      name,
		Size:      buf.Size(),
		Links:     make([]Link, 0, len(entries)),
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Name]; dup {
			continue
		}
		seen[e.Name] = struct{}{}
		res.Links = append(res.Links, s.link(archiveID, store.EncodeKey(e.Name), e.Size))
	}
	s.log().Info("archive uploaded", "name", name, "archive", archiveID, "files", len(res.Links))
	return res, nil
}

// Index returns the links of every file in an archive, sorted by inner
// name. A missing archive fails with ErrNotFound.
func (s *Service) Index(ctx context.Context, archiveID string) ([]Link, error) {
	ix, err := s.store.Index(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	links := make([]Link, 0, ix.Len())
	for _, e := range ix.Entries {
		links = append(links, s.link(ix.ArchiveID, e.Key, e.Size))
	}
	return links, nil
}

// Resolve looks up the inner file addressed by a "{archiveID}/{key}" path.
// See resolve.Resolver.Resolve.
func (s *Service) Resolve(ctx context.Context, path string) (*resolve.File, bool, error) {
	return s.resolver.Resolve(ctx, path)
}

// Exists reports whether an archive is stored under archiveID.
func (s *Service) Exists(ctx context.Context, archiveID string) (bool, error) {
	return s.store.Exists(ctx, archiveID)
}

func (s *Service) link(archiveID, key string, size int64) Link {
	return Link{URL: s.baseURL + archiveID + "/" + key, Size: size}
}
