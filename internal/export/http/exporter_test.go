package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRow struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
}

func quietLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestExporter_ExportItems(t *testing.T) {
	var (
		receivedBody            []byte
		receivedContentType     string
		receivedContentEncoding string
		receivedCustomHeader    string
		receivedInstance        string
		receivedUserAgent       string
		receivedRows            string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentType = r.Header.Get("Content-Type")
		receivedContentEncoding = r.Header.Get("Content-Encoding")
		receivedCustomHeader = r.Header.Get("X-Custom-Header")
		receivedInstance = r.Header.Get(InstanceHeader)
		receivedUserAgent = r.Header.Get("User-Agent")
		receivedRows = r.Header.Get(RowsHeader)

		body, _ := io.ReadAll(r.Body)
		receivedBody = body

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled:     true,
		Address:     server.URL,
		Compression: CompressionGzip,
		Headers: map[string]string{
			"X-Custom-Header": "test-value",
		},
		UserAgent:        "perfhud/test",
		MetaInstanceName: "rig-01",
	}

	exporter, err := NewExporter[testRow](quietLog(), cfg)
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	items := []*testRow{
		{Metric: "fps", Value: 60},
		nil,
		{Metric: "cpu", Value: 12.5},
	}

	err = exporter.ExportItems(context.Background(), items)
	require.NoError(t, err)

	assert.Equal(t, "application/x-ndjson", receivedContentType)
	assert.Equal(t, "gzip", receivedContentEncoding)
	assert.Equal(t, "test-value", receivedCustomHeader)
	assert.Equal(t, "rig-01", receivedInstance)
	assert.Equal(t, "perfhud/test", receivedUserAgent)
	assert.Equal(t, "2", receivedRows)

	decompressed, err := Decompress(receivedContentEncoding, receivedBody)
	require.NoError(t, err)

	// Nil items are skipped.
	lines := strings.Split(strings.TrimSpace(string(decompressed)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"metric":"fps"`)
	assert.Contains(t, lines[1], `"value":12.5`)
}

func TestExporter_NoCompression(t *testing.T) {
	var (
		receivedBody            []byte
		receivedContentEncoding string
		receivedInstance        string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedContentEncoding = r.Header.Get("Content-Encoding")
		receivedInstance = r.Header.Get(InstanceHeader)

		body, _ := io.ReadAll(r.Body)
		receivedBody = body

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	cfg := Config{
		Enabled:     true,
		Address:     server.URL,
		Compression: CompressionNone,
	}

	exporter, err := NewExporter[testRow](quietLog(), cfg)
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	err = exporter.ExportItems(context.Background(), []*testRow{{Metric: "fps", Value: 144}})
	require.NoError(t, err)

	assert.Empty(t, receivedContentEncoding)
	assert.Empty(t, receivedInstance)
	assert.Equal(t, "{\"metric\":\"fps\",\"value\":144}\n", string(receivedBody))
}

func TestExporter_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("schema mismatch\n"))
	}))
	defer server.Close()

	cfg := Config{
		Enabled:     true,
		Address:     server.URL,
		Compression: CompressionNone,
	}

	exporter, err := NewExporter[testRow](quietLog(), cfg)
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	err = exporter.ExportItems(context.Background(), []*testRow{{Metric: "fps", Value: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 400")
	assert.Contains(t, err.Error(), "schema mismatch")
}

func TestExporter_EmptyBatch(t *testing.T) {
	serverCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		serverCalled = true
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := Config{
		Enabled:     true,
		Address:     server.URL,
		Compression: CompressionNone,
	}

	exporter, err := NewExporter[testRow](quietLog(), cfg)
	require.NoError(t, err)
	defer exporter.Shutdown(context.Background())

	require.NoError(t, exporter.ExportItems(context.Background(), []*testRow{}))
	require.NoError(t, exporter.ExportItems(context.Background(), []*testRow{nil, nil}))
	assert.False(t, serverCalled)
}

func TestNewExporter_InvalidConfig(t *testing.T) {
	_, err := NewExporter[testRow](quietLog(), Config{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http address is required")
}
