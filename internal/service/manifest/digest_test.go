package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestComputeDigests checks both digests against known vectors.
func TestComputeDigests(t *testing.T) {
	t.Parallel()

	d := computeDigests([]byte("hello"))

	require.Equal(t, "LPJNul-wow4m6DsqxbninhsWHlwfp0JecwQzYpOLmCQ", d.Hash)
	require.Equal(t, "5d41402abc4b2a76b9719d911017c592", d.Key)
}

// TestManifestID ensures the id is the dashed prefix of the metadata SHA-256.
func TestManifestID(t *testing.T) {
	t.Parallel()

	metadata := []byte(`{"version":0,"bundler":"metro","fileMetadata":{}}`)
	sum := sha256.Sum256(metadata)
	hexSum := hex.EncodeToString(sum[:])

	want := hexSum[0:8] + "-" + hexSum[8:12] + "-" + hexSum[12:16] + "-" + hexSum[16:20] + "-" + hexSum[20:32]

	require.Equal(t, want, manifestID(metadata))
	require.Equal(t, manifestID(metadata), manifestID(metadata))
	require.NotEqual(t, manifestID(metadata), manifestID([]byte(`{}`)))
}

// TestContentTypeForExtension covers built-in, supplemental and unknown extensions.
func TestContentTypeForExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext     string
		want    string
		wantErr bool
	}{
		{ext: "png", want: "image/png"},
		{ext: ".PNG", want: "image/png"},
		{ext: "jpg", want: "image/jpeg"},
		{ext: "ttf", want: "font/ttf"},
		{ext: "json", want: "application/json"},
		{ext: "", wantErr: true},
		{ext: "definitely-not-a-type", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			t.Parallel()

			got, err := contentTypeForExtension(tt.ext)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
