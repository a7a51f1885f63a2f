package cmd

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"dhashfinder/utils"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag of c and its children to its default
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, child := range c.Commands() {
		resetFlags(child)
	}
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// writeGradient writes a PNG whose brightness falls (or rises) left to right
func writeGradient(t *testing.T, path string, falling bool) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			v := uint8(20 + 3*x)
			if falling {
				v = uint8(220 - 3*x)
			}
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestRootCmd_Definition(t *testing.T) {
	assert.Equal(t, "imagefinder", rootCmd.Use)

	pflags := rootCmd.PersistentFlags()
	for _, name := range []string{"config", "debug", "logfile", "database"} {
		assert.NotNil(t, pflags.Lookup(name), "missing persistent flag %s", name)
	}
	assert.Equal(t, "s", pflags.Lookup("database").Shorthand)

	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"build", "query", "split", "stats"})
}

func TestBuildCmd_Definition(t *testing.T) {
	assert.ElementsMatch(t, []string{"create", "scan"}, buildCmd.Aliases)

	flags := buildCmd.Flags()
	for _, name := range []string{"dataset", "pattern", "trainfile", "hash-size", "resampler", "workers", "decoder"} {
		assert.NotNil(t, flags.Lookup(name), "missing flag %s", name)
	}
	assert.Equal(t, "8", flags.Lookup("hash-size").DefValue)
	assert.Equal(t, "bilinear", flags.Lookup("resampler").DefValue)
}

func TestQueryCmd_Definition(t *testing.T) {
	assert.Equal(t, []string{"search"}, queryCmd.Aliases)

	flags := queryCmd.Flags()
	assert.Equal(t, "10", flags.Lookup("max-results").DefValue)
	assert.Equal(t, "10", flags.Lookup("max-distance").DefValue)
	for _, name := range []string{"image", "evalfile", "output", "json", "seed"} {
		assert.NotNil(t, flags.Lookup(name), "missing flag %s", name)
	}
}

func TestBuildCmd_RequiresSource(t *testing.T) {
	_, err := executeCommand(t, "build", "-s", filepath.Join(t.TempDir(), "hashes.db"))
	assert.Error(t, err)

	_, err = executeCommand(t, "build", "--dataset", "a", "--trainfile", "b")
	assert.Error(t, err)
}

func TestQueryCmd_MissingDatabase(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "q.png")
	writeGradient(t, img, true)

	_, err := executeCommand(t, "query", "--image", img, "-s", filepath.Join(dir, "none.db"), "--decoder", "go")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Run the build command first")
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "dataset")
	writeGradient(t, filepath.Join(dataset, "light", "a.png"), true)
	writeGradient(t, filepath.Join(dataset, "light", "b.png"), true)
	writeGradient(t, filepath.Join(dataset, "dark", "c.png"), false)
	db := filepath.Join(dir, "hashes.db")

	// split
	train := filepath.Join(dir, "train.txt")
	test := filepath.Join(dir, "test.txt")
	out, err := executeCommand(t, "split", "--dataset", dataset, "--pattern", "*/*.png",
		"--ratio", "0.5", "--train", train, "--test", test, "--seed", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Train images : 1")
	trainLines, err := utils.ReadLines(train)
	require.NoError(t, err)
	testLines, err := utils.ReadLines(test)
	require.NoError(t, err)
	assert.Len(t, append(trainLines, testLines...), 3)

	// build from the folder
	out, err = executeCommand(t, "build", "--dataset", dataset, "-s", db, "--decoder", "go", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Total hashes stored : 2")
	assert.Contains(t, out, "Total images stored : 3")

	// stats
	out, err = executeCommand(t, "stats", "-s", db, "--json")
	require.NoError(t, err)
	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.Fingerprints)
	assert.Equal(t, 3, stats.Images)
	assert.Equal(t, "bilinear", stats.Resampler)

	// query
	query := filepath.Join(dataset, "light", "a.png")
	out, err = executeCommand(t, "query", "--image", query, "-s", db, "--decoder", "go", "--json")
	require.NoError(t, err)
	var result queryOutputJSON
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 2, result.Total)
	require.Len(t, result.Matches, 2)
	assert.Equal(t, 0, result.Matches[0].Distance)
	assert.Equal(t, query, string(result.Matches[0].ID))
	assert.Equal(t, filepath.Join(dataset, "light", "b.png"), string(result.Matches[1].ID))

	// query from the evaluation list, copying results
	results := filepath.Join(dir, "results")
	require.NoError(t, utils.WriteLines(test, []string{query}))
	out, err = executeCommand(t, "search", "--evalfile", test, "-s", db, "--decoder", "go",
		"--max-results", "1", "--output", results)
	require.NoError(t, err)
	assert.Contains(t, out, "Found matches : 2")
	assert.Contains(t, out, "1. d=0 "+query)
	assert.FileExists(t, filepath.Join(results, "Query.jpg"))
	assert.FileExists(t, filepath.Join(results, "Match_1_d_0.jpg"))

	// rebuilding from a list replaces the previous content
	require.NoError(t, utils.WriteLines(train, []string{filepath.Join(dataset, "dark", "c.png")}))
	out, err = executeCommand(t, "build", "--trainfile", train, "-s", db, "--decoder", "go")
	require.NoError(t, err)
	assert.Contains(t, out, "Total images stored : 1")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	dataset := filepath.Join(dir, "dataset")
	writeGradient(t, filepath.Join(dataset, "a.png"), true)
	db := filepath.Join(dir, "from-config.db")

	cfgPath := filepath.Join(dir, "imagefinder.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database: "+db+"\nhash_size: 4\nresampler: nearest\n"), 0o644))

	_, err := executeCommand(t, "build", "--config", cfgPath, "--dataset", dataset, "--decoder", "go")
	require.NoError(t, err)

	out, err := executeCommand(t, "stats", "--config", cfgPath, "--json")
	require.NoError(t, err)
	var stats statsOutput
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 4, stats.HashSize)
	assert.Equal(t, "nearest", stats.Resampler)

	// an explicit flag wins over the file
	_, err = executeCommand(t, "build", "--config", cfgPath, "--dataset", dataset, "--decoder", "go", "--hash-size", "6")
	require.NoError(t, err)
	out, err = executeCommand(t, "stats", "--config", cfgPath, "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 6, stats.HashSize)
}
