// Package documents stores answer documents in badger and hands out stable
// references for the history ledger.
package documents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const (
	DefaultMaxBytes = 10 << 20

	keyPrefix = "doc/"
)

var (
	ErrTooLarge          = errors.New("document exceeds the size limit")
	ErrEmpty             = errors.New("document is empty")
	ErrMediaTypeRejected = errors.New("document media type is not accepted")
	ErrNotFound          = errors.New("document not found")
)

// Meta describes a stored document.
type Meta struct {
	Ref       string    `json:"ref"`
	Name      string    `json:"name"`
	MediaType string    `json:"media_type"`
	Size      int       `json:"size"`
	StoredAt  time.Time `json:"stored_at"`
}

type Options struct {
	// Dir is the badger directory. Empty keeps documents in memory.
	Dir        string
	MaxBytes   int64
	MediaTypes []string
	Logger     *slog.Logger
}

type Store struct {
	db         *badger.DB
	maxBytes   int64
	mediaTypes map[string]bool
	logger     *slog.Logger
}

func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		// Throw away logs so callers need no guards
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	logger = logger.With("module", "documents", "layer", "adapter")

	var badgerOpts badger.Options
	if opts.Dir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create document dir: %w", err)
		}
		badgerOpts = badger.DefaultOptions(filepath.Join(opts.Dir, "documents"))
	}
	badgerOpts = badgerOpts.
		WithLogger(newBadgerLogger(logger)).
		// The default INFO logging is a bit verbose
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open document store: %w", err)
	}

	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	accepted := opts.MediaTypes
	if len(accepted) == 0 {
		accepted = []string{"application/pdf"}
	}
	mediaTypes := make(map[string]bool, len(accepted))
	for _, mt := range accepted {
		mediaTypes[normalizeMediaType(mt)] = true
	}
	return &Store{db: db, maxBytes: maxBytes, mediaTypes: mediaTypes, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func normalizeMediaType(mt string) string {
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// Validate checks a document's declared media type and size.
func (s *Store) Validate(mediaType string, size int) error {
	if size <= 0 {
		return ErrEmpty
	}
	if int64(size) > s.maxBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, s.maxBytes)
	}
	if !s.mediaTypes[normalizeMediaType(mediaType)] {
		return fmt.Errorf("%w: %q", ErrMediaTypeRejected, mediaType)
	}
	return nil
}

func metaKey(ref string) []byte { return []byte(keyPrefix + ref + "/meta") }
func dataKey(ref string) []byte { return []byte(keyPrefix + ref + "/data") }

// Put stores a validated document and returns its reference.
func (s *Store) Put(ctx context.Context, name, mediaType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.Validate(mediaType, len(data)); err != nil {
		return "", err
	}
	meta := Meta{
		Ref:       uuid.NewString(),
		Name:      filepath.Base(name),
		MediaType: normalizeMediaType(mediaType),
		Size:      len(data),
		StoredAt:  time.Now().UTC(),
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(meta.Ref), encoded); err != nil {
			return err
		}
		return txn.Set(dataKey(meta.Ref), data)
	})
	if err != nil {
		s.logger.Error("document write failed", "event", "documents_put_failed", "error", err.Error())
		return "", fmt.Errorf("write document: %w", err)
	}
	s.logger.Debug("document stored",
		"event", "documents_put",
		"document_ref", meta.Ref,
		"media_type", meta.MediaType,
		"size", meta.Size,
	)
	return meta.Ref, nil
}

// Get returns a document and its metadata.
func (s *Store) Get(ctx context.Context, ref string) (Meta, []byte, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, nil, err
	}
	var (
		meta Meta
		data []byte
	)
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(ref))
		if err != nil {
			return err
		}
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &meta) }); err != nil {
			return err
		}
		item, err = txn.Get(dataKey(ref))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Meta{}, nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return Meta{}, nil, err
	}
	return meta, data, nil
}

// Delete removes a document. Deleting an unknown reference is a no-op.
func (s *Store) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(metaKey(ref)); err != nil {
			return err
		}
		return txn.Delete(dataKey(ref))
	})
}

// badgerLogger routes badger's printf logging into slog.
type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) *badgerLogger {
	return &badgerLogger{logger: logger.With("component", "badger")}
}

func (b *badgerLogger) Errorf(format string, args ...any) {
	b.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Warningf(format string, args ...any) {
	b.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Infof(format string, args ...any) {
	b.logger.Info(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Debugf(format string, args ...any) {
	b.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
