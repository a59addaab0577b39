package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// headerSampleLen is how many header bytes the record keeps as hex.
const headerSampleLen = 16

// OwnerResolver resolves the identity that owns a file. A platform
// implementation is selected at build time; tests inject fakes.
type OwnerResolver interface {
	Owner(path string) (string, error)
}

// Enricher assembles Detections. Every lookup is best effort: a field
// that cannot be gathered is left empty and never fails the pipeline.
type Enricher struct {
	hashEnabled  bool
	ownerEnabled bool
	owner        OwnerResolver
	hostname     string
	log          *zap.Logger
}

// Config represents the enricher capabilities
type Config struct {
	CalculateHash bool
	ResolveOwner  bool
	// Owner overrides the platform resolver (used by tests)
	Owner OwnerResolver
}

// NewEnricher creates an Enricher. The hostname is resolved once here.
func NewEnricher(cfg Config, log *zap.Logger) *Enricher {
	owner := cfg.Owner
	if owner == nil {
		owner = systemResolver{}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &Enricher{
		hashEnabled:  cfg.CalculateHash,
		ownerEnabled: cfg.ResolveOwner,
		owner:        owner,
		hostname:     hostname,
		log:          log,
	}
}

// Enrich builds the Detection for a confirmed mismatch. header is the
// sample already read during classification; it is not re-read.
func (e *Enricher) Enrich(path, claimedExt, actualType string, header []byte) Detection {
	det := Detection{
		FilePath:         path,
		FileName:         filepath.Base(path),
		ClaimedExtension: claimedExt,
		ActualType:       actualType,
		Owner:            "unknown",
		HeaderHex:        headerHex(header),
		DetectedAt:       time.Now().UTC(),
		Hostname:         e.hostname,
	}

	if info, err := os.Stat(path); err == nil {
		det.SizeBytes = info.Size()
	} else {
		e.log.Debug("size lookup failed", zap.String("path", path), zap.Error(err))
	}

	if e.hashEnabled {
		sha, xxh, err := HashFile(path)
		if err != nil {
			e.log.Debug("hashing failed", zap.String("path", path), zap.Error(err))
		} else {
			det.SHA256 = sha
			det.XXH64 = xxh
		}
	}

	if e.ownerEnabled {
		owner, err := e.owner.Owner(path)
		if err != nil {
			e.log.Debug("owner lookup failed", zap.String("path", path), zap.Error(err))
		} else if owner != "" {
			det.Owner = owner
		}
	}

	return det
}

// HashFile computes the SHA-256 and XXH64 digests of a file in a
// single streaming pass.
func HashFile(path string) (sha, xxh string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	shaHash := sha256.New()
	xxhHash := xxhash.New()
	if _, err := io.Copy(io.MultiWriter(shaHash, xxhHash), f); err != nil {
		return "", "", fmt.Errorf("failed to hash %s: %w", path, err)
	}

	return hex.EncodeToString(shaHash.Sum(nil)), hex.EncodeToString(xxhHash.Sum(nil)), nil
}

// headerHex renders the first header bytes as lowercase hex.
func headerHex(header []byte) string {
	if len(header) > headerSampleLen {
		header = header[:headerSampleLen]
	}
	return hex.EncodeToString(header)
}
