package cmd

import (
	"errors"
	"fmt"

	"dhashfinder/config"
	"dhashfinder/fingerprint"
	"dhashfinder/imageprocessor"
	"dhashfinder/scanner"
	"dhashfinder/signalhandler"

	"github.com/spf13/cobra"
)

var (
	buildDataset   string
	buildPattern   string
	buildTrainFile string
	buildDecoder   string
)

// buildCmd fingerprints a dataset and replaces the database with the result
var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"create", "scan"},
	Short:   "Build the fingerprint database",
	Long: `Fingerprint every image of a dataset and write the index to the database,
replacing its previous content.

Images are taken either from a folder (all supported image files, or those
matching --pattern) or from a list file with one path per line. Files that
cannot be decoded are skipped and reported.

Examples:
  imagefinder build --dataset ./photos
  imagefinder build --dataset ./101_ObjectCategories --pattern '*/*.jpg'
  imagefinder build --trainfile train.txt -s hashes.db --hash-size 16`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	defaults := config.Default()
	flags := buildCmd.Flags()
	flags.StringVarP(&buildDataset, "dataset", "d", "", "Folder containing the images to index")
	flags.StringVarP(&buildPattern, "pattern", "p", "", "Glob relative to the dataset folder, e.g. '*/*.jpg'")
	flags.StringVarP(&buildTrainFile, "trainfile", "t", "", "File listing the images to index, one per line")
	flags.StringVar(&buildDecoder, "decoder", imageprocessor.DecoderOpenCV, "Decoder for standard formats (opencv or go)")
	flags.Int("hash-size", defaults.HashSize, "Fingerprint grid size; fingerprints have hash-size² bits")
	flags.String("resampler", defaults.Resampler, fmt.Sprintf("Resampling method %v", fingerprint.Names()))
	flags.IntP("workers", "w", defaults.Workers, "Number of images decoded concurrently")

	buildCmd.MarkFlagsMutuallyExclusive("dataset", "trainfile")
	buildCmd.MarkFlagsOneRequired("dataset", "trainfile")
}

func runBuild(cmd *cobra.Command, args []string) error {
	paths, err := buildPaths()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no images found to index")
	}

	registry, err := imageprocessor.NewImageLoaderRegistry(buildDecoder)
	if err != nil {
		return err
	}
	defer registry.Close()

	ctx, stop := signalhandler.NotifyContext(cmd.Context())
	defer stop()

	_, err = scanner.BuildIndex(ctx, paths, registry, scanner.ScanOptions{
		DbPath:     settings.Database,
		HashSize:   settings.HashSize,
		Resampler:  settings.Resampler,
		MaxWorkers: settings.Workers,
		DebugMode:  settings.Debug,
		Output:     cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Database: %s\n", settings.Database)
	return nil
}

func buildPaths() ([]string, error) {
	if buildTrainFile != "" {
		return scanner.FileListSource(buildTrainFile)
	}
	return scanner.DirectorySource(buildDataset, buildPattern)
}
