package resnet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want Config
	}{
		{
			name: "preset depth",
			yaml: "depth: 50\nnum_classes: 10\n",
			want: Config{Depth: 50, Block: Bottleneck, Layers: []int{3, 4, 6, 3}, NumClasses: 10, IncludeTop: true},
		},
		{
			name: "explicit layout",
			yaml: "block: basic\nlayers: [1, 2, 3, 4]\ninclude_top: false\n",
			want: Config{Block: Basic, Layers: []int{1, 2, 3, 4}, NumClasses: DefaultNumClasses, IncludeTop: false},
		},
		{
			name: "explicit layout overrides preset",
			yaml: "depth: 18\nlayers: [1, 1, 1, 1]\n",
			want: Config{Depth: 18, Block: Basic, Layers: []int{1, 1, 1, 1}, NumClasses: DefaultNumClasses, IncludeTop: true},
		},
		{
			name: "case-insensitive block",
			yaml: "block: Bottleneck\nlayers: [3, 4, 23, 3]\n",
			want: Config{Block: Bottleneck, Layers: []int{3, 4, 23, 3}, NumClasses: DefaultNumClasses, IncludeTop: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseConfig([]byte(tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"empty", "", "block must be basic or bottleneck"},
		{"unknown depth", "depth: 42\n", "unknown resnet depth 42"},
		{"unknown block", "block: dense\nlayers: [1, 1, 1, 1]\n", "unknown block kind"},
		{"three stages", "block: basic\nlayers: [2, 2, 2]\n", "layers must have 4 entries"},
		{"zero blocks", "block: basic\nlayers: [2, 0, 2, 2]\n", "layers[1] must be positive"},
		{"no classes", "depth: 18\nnum_classes: 0\n", "num_classes must be positive"},
		{"malformed", "depth: [\n", "failed to parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	// A headless network needs no class count.
	_, err := ParseConfig([]byte("depth: 18\nnum_classes: 0\ninclude_top: false\n"))
	assert.NoError(t, err)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resnet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("depth: 101\nnum_classes: 21\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4, 23, 3}, cfg.Layers)
	assert.Equal(t, 101, cfg.NetworkDepth())

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("block: basic\n"), 0o600))
	_, err = LoadConfig(bad)
	assert.ErrorContains(t, err, bad)
}

func TestConfig_MarshalRoundTrip(t *testing.T) {
	cfg := Config{Block: Bottleneck, Layers: []int{3, 8, 36, 3}, NumClasses: 100, IncludeTop: true}

	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "block: bottleneck")
	assert.Contains(t, string(data), "layers: [3, 8, 36, 3]")

	back, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)
	assert.Equal(t, 152, back.NetworkDepth())
}

func TestConfig_NetworkDepth(t *testing.T) {
	for _, depth := range Depths() {
		arch, err := Preset(depth)
		require.NoError(t, err)
		assert.Equal(t, depth, arch.Config(10, true).NetworkDepth(), arch.Name())
	}
}
