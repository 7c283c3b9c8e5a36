package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestText(t *testing.T) {
	path := writeFile(t, "lease.txt", "\uFEFFThe tenant shall pay rent.\n\xffEnd.")

	got, err := Text{}.Extract(path)
	require.NoError(t, err)
	assert.Equal(t, "The tenant shall pay rent.\nEnd.", got)

	_, err = Text{}.Extract(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestJoinPages(t *testing.T) {
	assert.Equal(t, "", JoinPages(nil))
	assert.Equal(t, "PAGE 1\nFirst page.\n\nPAGE 2\n\n\nPAGE 3\nThird.", JoinPages([]string{"First page.", "", "Third."}))
}

func TestPDF_InvalidFile(t *testing.T) {
	path := writeFile(t, "broken.pdf", "not a pdf")

	_, err := PDF{}.Extract(path)
	assert.Error(t, err)
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path    string
		want    Extractor
		wantErr bool
	}{
		{"a/lease.txt", Text{}, false},
		{"notes.MD", Text{}, false},
		{"contract.PDF", PDF{}, false},
		{"sheet.xlsx", nil, true},
		{"noext", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ForPath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				assert.False(t, Supported(tt.path))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, Supported(tt.path))
		})
	}
}

func TestFile(t *testing.T) {
	path := writeFile(t, "clause.md", "# Termination\nEither party may terminate.")

	got, err := File(path)
	require.NoError(t, err)
	assert.Contains(t, got, "Either party may terminate.")

	_, err = File("deck.pptx")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractorFunc(t *testing.T) {
	e := ExtractorFunc(func(path string) (string, error) { return "text of " + path, nil })
	got, err := e.Extract("x")
	require.NoError(t, err)
	assert.Equal(t, "text of x", got)
}
