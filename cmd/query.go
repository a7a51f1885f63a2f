package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"dhashfinder/config"
	"dhashfinder/database"
	"dhashfinder/imageprocessor"
	"dhashfinder/logging"
	"dhashfinder/search"
	"dhashfinder/signalhandler"
	"dhashfinder/types"
	"dhashfinder/utils"

	"github.com/spf13/cobra"
)

var (
	queryImage    string
	queryEvalFile string
	querySeed     int64
	queryOutput   string
	queryJSON     bool
	queryDecoder  string
)

// queryCmd ranks the database against one image
var queryCmd = &cobra.Command{
	Use:     "query",
	Aliases: []string{"search"},
	Short:   "Find images similar to a query image",
	Long: `Fingerprint a query image and list the stored images whose fingerprint
distance is below --max-distance, nearest first.

The query is either given with --image or picked at random from an
evaluation list with --evalfile. With --output the query and the matches are
copied into a folder as Query.jpg and Match_<rank>_d_<distance>.jpg.

Examples:
  imagefinder query --image photo.jpg
  imagefinder query --evalfile test.txt --output results
  imagefinder query --image photo.jpg --max-results 25 --json`,
	Args: cobra.NoArgs,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	defaults := config.Default()
	flags := queryCmd.Flags()
	flags.StringVarP(&queryImage, "image", "i", "", "Query image")
	flags.StringVarP(&queryEvalFile, "evalfile", "e", "", "Evaluation list to pick a random query image from")
	flags.Int64Var(&querySeed, "seed", 0, "Seed for the random pick (0 uses the clock)")
	flags.IntP("max-results", "n", defaults.MaxResults, "Maximum number of matches to list")
	flags.Int("max-distance", defaults.MaxDistance, "Matches must be strictly closer than this distance")
	flags.StringVarP(&queryOutput, "output", "o", "", "Folder to copy the query and the matching images to")
	flags.BoolVar(&queryJSON, "json", false, "Output as JSON")
	flags.StringVar(&queryDecoder, "decoder", imageprocessor.DecoderOpenCV, "Decoder for standard formats (opencv or go)")

	queryCmd.MarkFlagsMutuallyExclusive("image", "evalfile")
	queryCmd.MarkFlagsOneRequired("image", "evalfile")
}

// queryOutputJSON is the JSON output of a query
type queryOutputJSON struct {
	Image       string              `json:"image"`
	Fingerprint string              `json:"fingerprint"`
	Total       int                 `json:"total"`
	Matches     []types.MatchResult `json:"matches"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	imagePath, err := pickQueryImage()
	if err != nil {
		return err
	}

	ctx, stop := signalhandler.NotifyContext(cmd.Context())
	defer stop()

	startTime := time.Now()
	idx, err := database.Open(ctx, settings.Database)
	if errors.Is(err, types.ErrStoreNotFound) {
		return fmt.Errorf("%w. Run the build command first", err)
	}
	if err != nil {
		return err
	}

	registry, err := imageprocessor.NewImageLoaderRegistry(queryDecoder)
	if err != nil {
		return err
	}
	defer registry.Close()

	img, err := registry.LoadImage(imagePath)
	if err != nil {
		return err
	}

	if !queryJSON {
		fmt.Fprintln(out, "Searching...")
	}
	result, err := search.QueryImage(ctx, img, idx, search.Options{
		MaxResults:  settings.MaxResults,
		MaxDistance: settings.MaxDistance,
		Workers:     settings.Workers,
	})
	if err != nil {
		return err
	}
	logging.DebugLog("Query %s (%s) matched %d of %d images in %v",
		imagePath, result.Query, result.Total, idx.ImageCount(), time.Since(startTime))

	if queryOutput != "" {
		if err := writeMatches(registry, imagePath, result, queryOutput); err != nil {
			return err
		}
	}

	if queryJSON {
		return printQueryJSON(out, imagePath, result)
	}
	printQueryText(out, imagePath, result)
	return nil
}

func pickQueryImage() (string, error) {
	if queryImage != "" {
		return queryImage, nil
	}

	candidates, err := utils.ReadLines(queryEvalFile)
	if err != nil {
		return "", fmt.Errorf("cannot read evaluation list: %w", err)
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("evaluation list %s is empty", queryEvalFile)
	}

	seed := querySeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return candidates[rand.New(rand.NewSource(seed)).Intn(len(candidates))], nil
}

func printQueryText(out io.Writer, imagePath string, result search.Result) {
	fmt.Fprintf(out, "Query image : %s\n", imagePath)
	fmt.Fprintf(out, "Fingerprint : %s\n", result.Query)
	fmt.Fprintf(out, "Found matches : %d\n", result.Total)

	if len(result.Matches) == 0 {
		fmt.Fprintln(out, "No matches found.")
		return
	}
	for i, m := range result.Matches {
		fmt.Fprintf(out, "%d. d=%d %s\n", i+1, m.Distance, m.ID)
	}
	if result.Total > len(result.Matches) {
		fmt.Fprintf(out, "(%d more not shown)\n", result.Total-len(result.Matches))
	}
}

func printQueryJSON(out io.Writer, imagePath string, result search.Result) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(queryOutputJSON{
		Image:       imagePath,
		Fingerprint: result.Query.String(),
		Total:       result.Total,
		Matches:     result.Matches,
	})
}

// writeMatches copies the query and every listed match into dir
func writeMatches(registry *imageprocessor.ImageLoaderRegistry, imagePath string, result search.Result, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create output folder: %w", err)
	}
	if err := registry.WriteImageCopy(imagePath, filepath.Join(dir, "Query.jpg")); err != nil {
		return err
	}

	for i, m := range result.Matches {
		name := fmt.Sprintf("Match_%d_d_%d.jpg", i+1, m.Distance)
		if err := registry.WriteImageCopy(string(m.ID), filepath.Join(dir, name)); err != nil {
			// A stored image may have moved since the build
			logging.LogWarning("Cannot write %s: %v", name, err)
		}
	}
	return nil
}
