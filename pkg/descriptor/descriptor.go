// Package descriptor parses SKILL.md files. A skill folder is identified by
// the YAML front matter at the top of its SKILL.md: the file must open with a
// "---" line, and the block ends at the next "---" line. Only the name and
// description keys are read; everything else in the block is ignored.
package descriptor

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"
)

// FileName is the descriptor file every skill folder carries.
const FileName = "SKILL.md"

const delimiter = "---"

var (
	// ErrInvalidDescriptor is returned when the front matter is missing,
	// unterminated or not valid YAML.
	ErrInvalidDescriptor = errors.New("invalid skill descriptor")
	// ErrMissingName is returned by RequireName when a descriptor has no name.
	ErrMissingName = errors.New("skill name is required in frontmatter")
)

// Descriptor is the identity a SKILL.md asserts.
type Descriptor struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// HasName reports whether the descriptor carries a usable name.
func (d *Descriptor) HasName() bool {
	return d != nil && d.Name != ""
}

// Parse extracts the descriptor from SKILL.md content. A missing name is not
// an error here; callers that need an identity use RequireName.
func Parse(content []byte) (*Descriptor, error) {
	block, err := frontMatter(content)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(block, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrapf(ErrInvalidDescriptor, "failed to parse markdown: %v", err)
	}

	metaData, err := meta.TryGet(pctx)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidDescriptor, "failed to parse frontmatter: %v", err)
	}

	return &Descriptor{
		Name:        stringField(metaData, "name"),
		Description: stringField(metaData, "description"),
	}, nil
}

// ParseFile reads and parses a SKILL.md file.
func ParseFile(path string) (*Descriptor, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill file")
	}
	return Parse(content)
}

// Load parses the SKILL.md inside skillDir and requires a name.
func Load(skillDir string) (*Descriptor, error) {
	d, err := ParseFile(filepath.Join(skillDir, FileName))
	if err != nil {
		return nil, err
	}
	if err := RequireName(d); err != nil {
		return nil, errors.Wrapf(err, "in %s", skillDir)
	}
	return d, nil
}

// RequireName returns ErrMissingName unless d has a non-empty name.
func RequireName(d *Descriptor) error {
	if !d.HasName() {
		return ErrMissingName
	}
	return nil
}

// Body returns the markdown that follows the front matter. Content without a
// well-formed front matter block is returned unchanged.
func Body(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || !isDelimiter(lines[0]) {
		return content
	}

	for i := 1; i < len(lines); i++ {
		if isDelimiter(lines[i]) {
			return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n")
		}
	}
	return content
}

// frontMatter validates the delimiters and returns the front matter block
// re-framed so goldmark-meta sees nothing but the block itself.
func frontMatter(content []byte) ([]byte, error) {
	text := strings.TrimPrefix(string(content), "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	if !isDelimiter(lines[0]) {
		return nil, errors.Wrap(ErrInvalidDescriptor, "SKILL.md frontmatter not found")
	}

	for i := 1; i < len(lines); i++ {
		if isDelimiter(lines[i]) {
			var buf bytes.Buffer
			buf.WriteString(delimiter + "\n")
			for _, line := range lines[1:i] {
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
			buf.WriteString(delimiter + "\n")
			return buf.Bytes(), nil
		}
	}

	return nil, errors.Wrap(ErrInvalidDescriptor, "SKILL.md frontmatter not closed")
}

func isDelimiter(line string) bool {
	return strings.TrimRight(line, " \t\r") == delimiter
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, ok := m[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
