package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

const (
	// MetadataFilename is the archive entry holding the metadata document.
	MetadataFilename = "export.json"

	// MetadataFormatVersion identifies the metadata document layout.
	MetadataFormatVersion = "1.0"
)

// Metadata keys of a migratable block.
const (
	KeyExternals        = "externals"
	KeyFolders          = "folders"
	KeySystemProperties = "system.properties"
	KeyJavaProperties   = "java.properties"
)

// ArchiveMetadata is the aggregate document written once per archive.
type ArchiveMetadata struct {
	Version        string           `json:"version"`
	ProductVersion string           `json:"product.version"`
	Date           time.Time        `json:"date"`
	Migratables    MigratableBlocks `json:"migratables"`
}

// Validate checks the document against the supported format and product.
func (m *ArchiveMetadata) Validate(productVersion string) error {
	if m.Version == "" {
		return fmt.Errorf("%w: missing [version]", ErrInvalidMetadata)
	}
	if m.Version != MetadataFormatVersion {
		return fmt.Errorf("%w: format version [%s] (expected [%s])",
			ErrUnsupportedVersion, m.Version, MetadataFormatVersion)
	}
	if m.ProductVersion == "" {
		return fmt.Errorf("%w: missing [product.version]", ErrInvalidMetadata)
	}
	if m.ProductVersion != productVersion {
		return fmt.Errorf("%w: product version [%s] (expected [%s])",
			ErrUnsupportedVersion, m.ProductVersion, productVersion)
	}
	return nil
}

// MigratableBlock is one migratable's raw metadata block.
type MigratableBlock struct {
	ID  string
	Raw json.RawMessage
}

// MigratableBlocks keeps migratable blocks in archive order. It serializes as a
// JSON object whose key order is preserved in both directions.
type MigratableBlocks []MigratableBlock

// Get returns the block for id.
func (b MigratableBlocks) Get(id string) (MigratableBlock, bool) {
	for _, block := range b {
		if block.ID == id {
			return block, true
		}
	}
	return MigratableBlock{}, false
}

// IDs returns the migratable ids in order.
func (b MigratableBlocks) IDs() []string {
	ids := make([]string, 0, len(b))
	for _, block := range b {
		ids = append(ids, block.ID)
	}
	return ids
}

func (b MigratableBlocks) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, block := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(block.ID)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(block.Raw) == 0 {
			buf.WriteString("{}")
		} else {
			buf.Write(block.Raw)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (b *MigratableBlocks) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*b = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: [migratables] must be an object", ErrInvalidMetadata)
	}

	var blocks MigratableBlocks
	seen := make(map[string]bool)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		id, _ := tok.(string)
		if seen[id] {
			return fmt.Errorf("%w: duplicate migratable [%s]", ErrInvalidMetadata, id)
		}
		seen[id] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		blocks = append(blocks, MigratableBlock{ID: id, Raw: raw})
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	*b = blocks
	return nil
}

// MigratableMetadata is the decoded form of a migratable block.
type MigratableMetadata struct {
	Version          string                 `json:"version"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	Organization     string                 `json:"organization"`
	Externals        []ExternalRecord       `json:"externals,omitempty"`
	Folders          []FolderRecord         `json:"folders,omitempty"`
	SystemProperties []SystemPropertyRecord `json:"system.properties,omitempty"`
	JavaProperties   []JavaPropertyRecord   `json:"java.properties,omitempty"`
}

// ExternalRecord describes a file that was verified rather than copied.
type ExternalRecord struct {
	Name     string `json:"name"`
	Checksum string `json:"checksum,omitempty"`
	Softlink bool   `json:"softlink"`
}

// FolderRecord describes an exported directory.
type FolderRecord struct {
	Folder       string   `json:"folder"`
	Filtered     bool     `json:"filtered"`
	LastModified int64    `json:"last-modified"`
	Files        []string `json:"files"`
}

// SystemPropertyRecord links a system property to the entry it references.
type SystemPropertyRecord struct {
	Property  string `json:"property"`
	Reference string `json:"reference"`
}

// JavaPropertyRecord links a property in a properties file to an entry.
type JavaPropertyRecord struct {
	Property  string `json:"property"`
	Reference string `json:"reference"`
	Name      string `json:"name"`
}

// ParseMigratableMetadata decodes a block, checking its shape first.
func ParseMigratableMetadata(raw json.RawMessage) (*MigratableMetadata, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return &MigratableMetadata{}, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: migratable block must be an object: %v", ErrInvalidMetadata, err)
	}

	for _, key := range []string{KeyExternals, KeyFolders, KeySystemProperties, KeyJavaProperties} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		trimmed := bytes.TrimSpace(value)
		if bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		if len(trimmed) == 0 || trimmed[0] != '[' {
			return nil, fmt.Errorf("%w: [%s] must be a list", ErrInvalidMetadata, key)
		}
	}

	var meta MigratableMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	if err := meta.validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

func (m *MigratableMetadata) validate() error {
	for _, e := range m.Externals {
		if e.Name == "" {
			return fmt.Errorf("%w: missing [name] in [%s]", ErrInvalidMetadata, KeyExternals)
		}
	}
	for _, f := range m.Folders {
		if f.Folder == "" {
			return fmt.Errorf("%w: missing [folder] in [%s]", ErrInvalidMetadata, KeyFolders)
		}
	}
	for _, p := range m.SystemProperties {
		if p.Property == "" || p.Reference == "" {
			return fmt.Errorf("%w: missing [property] or [reference] in [%s]", ErrInvalidMetadata, KeySystemProperties)
		}
	}
	for _, p := range m.JavaProperties {
		if p.Property == "" || p.Reference == "" || p.Name == "" {
			return fmt.Errorf("%w: missing [property], [reference] or [name] in [%s]", ErrInvalidMetadata, KeyJavaProperties)
		}
	}
	return nil
}
