package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClickHouseConfig_QualifiedTable(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClickHouseConfig
		want string
	}{
		{name: "defaults", cfg: ClickHouseConfig{}, want: DefaultTable},
		{name: "database", cfg: ClickHouseConfig{Database: "perf"}, want: "perf.perfhud_reports"},
		{name: "custom table", cfg: ClickHouseConfig{Database: "perf", Table: "runs"}, want: "perf.runs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.QualifiedTable())
		})
	}
}

func TestClickHouseConfig_DSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClickHouseConfig
		want string
	}{
		{
			name: "host only",
			cfg:  ClickHouseConfig{Endpoint: "localhost:9000"},
			want: "clickhouse://localhost:9000",
		},
		{
			name: "database and credentials",
			cfg: ClickHouseConfig{
				Endpoint: "ch:9000",
				Database: "perf",
				Username: "writer",
				Password: "p@ss",
			},
			want: "clickhouse://writer:p%40ss@ch:9000/perf",
		},
		{
			name: "username only",
			cfg:  ClickHouseConfig{Endpoint: "ch:9000", Username: "default"},
			want: "clickhouse://default@ch:9000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.DSN())
		})
	}
}
