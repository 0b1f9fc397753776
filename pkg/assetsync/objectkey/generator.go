package objectkey

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/assetsync/pkg/assetsync"
)

// Generator defines the interface for object key generation strategies
type Generator interface {
	// GenerateKey creates an object key for an upload
	GenerateKey(metadata KeyMetadata) (string, error)
}

// KeyMetadata contains information that influences key generation
type KeyMetadata struct {
	FileName string
	OwnerID  string
	Folder   string
}

// TimestampGenerator builds {owner}/{folder}/{unixMillis}-{fileName}. The
// folder segment is left out when empty, which leaves the record without a
// folder.
type TimestampGenerator struct {
	Now func() time.Time
}

func NewTimestampGenerator() *TimestampGenerator {
	return &TimestampGenerator{Now: time.Now}
}

func (g *TimestampGenerator) GenerateKey(metadata KeyMetadata) (string, error) {
	owner := sanitizePathComponent(metadata.OwnerID)
	if owner == "" {
		return "", &assetsync.ValidationError{Field: "owner_id", Reason: "is required to generate a key"}
	}
	name := sanitizeFilename(metadata.FileName)
	if name == "" {
		name = "file"
	}
	leaf := fmt.Sprintf("%d-%s", g.Now().UnixMilli(), name)

	parts := []string{owner}
	if folder := sanitizePathComponent(metadata.Folder); folder != "" {
		parts = append(parts, folder)
	}
	parts = append(parts, leaf)

	key := strings.Join(parts, "/")
	if err := assetsync.ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// ShardedGenerator spreads keys over two-character shard directories below
// the owner: {owner}/objects/ab/cd1234ef5678_filename
type ShardedGenerator struct {
	// ShardLength controls how many characters to use for sharding (default: 2)
	ShardLength int
}

func NewShardedGenerator() *ShardedGenerator {
	return &ShardedGenerator{ShardLength: 2}
}

func (g *ShardedGenerator) GenerateKey(metadata KeyMetadata) (string, error) {
	owner := sanitizePathComponent(metadata.OwnerID)
	if owner == "" {
		return "", &assetsync.ValidationError{Field: "owner_id", Reason: "is required to generate a key"}
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	shard := min(max(g.ShardLength, 1), 8)

	filename := id[shard:]
	if name := sanitizeFilename(metadata.FileName); name != "" {
		filename = fmt.Sprintf("%s_%s", filename, name)
	}
	return fmt.Sprintf("%s/objects/%s/%s", owner, id[:shard], filename), nil
}

// CustomFuncGenerator allows users to provide their own key generation function
type CustomFuncGenerator struct {
	GenerateFunc func(metadata KeyMetadata) (string, error)
}

func NewCustomFuncGenerator(fn func(metadata KeyMetadata) (string, error)) *CustomFuncGenerator {
	return &CustomFuncGenerator{GenerateFunc: fn}
}

func (g *CustomFuncGenerator) GenerateKey(metadata KeyMetadata) (string, error) {
	return g.GenerateFunc(metadata)
}

var unsafe = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	"#", "_",
	"%", "_",
	" ", "_",
)

// Helper functions for path sanitization
func sanitizeFilename(filename string) string {
	filename = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, strings.TrimSpace(filename))
	return unsafe.Replace(filename)
}

func sanitizePathComponent(component string) string {
	component = sanitizeFilename(component)
	if component == "." || component == ".." {
		return ""
	}
	return component
}
