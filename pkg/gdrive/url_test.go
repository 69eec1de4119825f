package gdrive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertShareLink(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantKind ErrorKind
	}{
		{
			name:     "share link converts",
			input:    "https://drive.google.com/file/d/ABC123/view?usp=sharing",
			expected: "https://drive.google.com/uc?export=download&id=ABC123",
		},
		{
			name:     "view link without query converts",
			input:    "https://drive.google.com/file/d/1qwerty/view",
			expected: "https://drive.google.com/uc?export=download&id=1qwerty",
		},
		{
			name:     "trailing segments beyond the id are ignored",
			input:    "https://drive.google.com/file/d/XYZ/view/extra",
			expected: "https://drive.google.com/uc?export=download&id=XYZ",
		},
		{
			name:     "id needing escaping is escaped",
			input:    "https://drive.google.com/file/d/a%20b/view",
			expected: "https://drive.google.com/uc?export=download&id=a%2520b",
		},
		{
			name:     "http scheme rejected",
			input:    "http://drive.google.com/file/d/ABC/view",
			wantKind: KindInvalidScheme,
		},
		{
			name:     "wrong host rejected",
			input:    "https://example.com/x/y/z",
			wantKind: KindInvalidHost,
		},
		{
			name:     "missing host rejected",
			input:    "https:///file/d/ABC/view",
			wantKind: KindNoHost,
		},
		{
			name:     "empty path rejected",
			input:    "https://drive.google.com",
			wantKind: KindNoSegments,
		},
		{
			name:     "root path rejected",
			input:    "https://drive.google.com/",
			wantKind: KindNoSegments,
		},
		{
			name:     "two segments rejected",
			input:    "https://drive.google.com/file/d",
			wantKind: KindNoIDInPath,
		},
		{
			name:     "empty third segment rejected",
			input:    "https://drive.google.com/file/d//view",
			wantKind: KindNoIDInPath,
		},
		{
			name:     "unparseable url rejected",
			input:    "https://drive.google.com/%zz",
			wantKind: KindInvalidURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConvertShareLink(tt.input)

			if tt.wantKind != "" {
				require.Error(t, err)
				ce, ok := AsConvertError(err)
				require.True(t, ok, "expected a ConvertError, got %T", err)
				assert.Equal(t, tt.wantKind, ce.Kind)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
