package http

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ndjsonRows builds a payload shaped like exported report rows.
func ndjsonRows(n int) []byte {
	var b strings.Builder

	for i := range n {
		fmt.Fprintf(&b,
			`{"window":%d,"category":"frame","name":"fps","value":%d.5}`+"\n",
			1000+i, 60+i)
	}

	return []byte(b.String())
}

func TestCompressor_RoundTrip(t *testing.T) {
	tests := []struct {
		algorithm string
		encoding  string
		smaller   bool
	}{
		{algorithm: CompressionGzip, encoding: "gzip", smaller: true},
		{algorithm: CompressionZstd, encoding: "zstd", smaller: true},
		{algorithm: CompressionZlib, encoding: "deflate", smaller: true},
		{algorithm: CompressionSnappy, encoding: "snappy"},
	}

	for _, tt := range tests {
		t.Run(tt.algorithm, func(t *testing.T) {
			c, err := NewCompressor(tt.algorithm, 0)
			require.NoError(t, err)
			defer c.Close()

			original := ndjsonRows(32)

			// Twice, so pooled writers are reused.
			for range 2 {
				body, encoding, err := c.Compress(original)
				require.NoError(t, err)
				assert.Equal(t, tt.encoding, encoding)

				if tt.smaller {
					assert.Less(t, len(body), len(original))
				}

				decompressed, err := Decompress(encoding, body)
				require.NoError(t, err)
				assert.Equal(t, original, decompressed)
			}
		})
	}
}

func TestCompressor_BelowMinSize(t *testing.T) {
	c, err := NewCompressor(CompressionGzip, 1024)
	require.NoError(t, err)
	defer c.Close()

	small := ndjsonRows(1)
	body, encoding, err := c.Compress(small)
	require.NoError(t, err)
	assert.Empty(t, encoding)
	assert.Equal(t, small, body)

	large := ndjsonRows(64)
	require.GreaterOrEqual(t, len(large), 1024)

	_, encoding, err = c.Compress(large)
	require.NoError(t, err)
	assert.Equal(t, "gzip", encoding)
}

func TestCompressor_None(t *testing.T) {
	c, err := NewCompressor(CompressionNone, 0)
	require.NoError(t, err)
	defer c.Close()

	original := ndjsonRows(1)
	body, encoding, err := c.Compress(original)
	require.NoError(t, err)

	assert.Equal(t, original, body)
	assert.Empty(t, encoding)
}

func TestNewCompressor_Unsupported(t *testing.T) {
	_, err := NewCompressor("lz4", 0)
	require.Error(t, err)

	_, err = Decompress("br", []byte("x"))
	require.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Enabled:      true,
				Address:      "http://localhost:8080",
				BatchSize:    100,
				MaxQueueSize: 1000,
				Workers:      1,
			},
			wantErr: false,
		},
		{
			name: "disabled config - no validation",
			cfg: Config{
				Enabled: false,
			},
			wantErr: false,
		},
		{
			name: "missing address",
			cfg: Config{
				Enabled: true,
			},
			wantErr: true,
		},
		{
			name: "invalid compression",
			cfg: Config{
				Enabled:     true,
				Address:     "http://localhost:8080",
				Compression: "invalid",
			},
			wantErr: true,
		},
		{
			name: "non-http scheme",
			cfg: Config{
				Enabled: true,
				Address: "ftp://collector",
			},
			wantErr: true,
		},
		{
			name: "negative min compress bytes",
			cfg: Config{
				Enabled:          true,
				Address:          "https://collector",
				MinCompressBytes: -1,
			},
			wantErr: true,
		},
		{
			name: "batch size > queue size",
			cfg: Config{
				Enabled:      true,
				Address:      "http://localhost:8080",
				BatchSize:    1000,
				MaxQueueSize: 100,
				Workers:      1,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ApplyDefaults()
			err := tt.cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
