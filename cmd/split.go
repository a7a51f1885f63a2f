package cmd

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"dhashfinder/scanner"
	"dhashfinder/utils"

	"github.com/spf13/cobra"
)

var (
	splitDataset   string
	splitPattern   string
	splitRatio     float64
	splitTrainFile string
	splitTestFile  string
	splitSeed      int64
)

// splitCmd writes train and test lists for a dataset
var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split a dataset into train and test lists",
	Long: `Shuffle the images of a dataset and write two list files: one to build the
database from and one to draw query images from.

Examples:
  imagefinder split --dataset ./101_ObjectCategories --pattern '*/*.jpg'
  imagefinder split --dataset ./photos --ratio 0.9 --seed 42`,
	Args: cobra.NoArgs,
	RunE: runSplit,
}

func init() {
	rootCmd.AddCommand(splitCmd)

	flags := splitCmd.Flags()
	flags.StringVarP(&splitDataset, "dataset", "d", "", "Folder containing the images")
	flags.StringVarP(&splitPattern, "pattern", "p", "", "Glob relative to the dataset folder, e.g. '*/*.jpg'")
	flags.Float64Var(&splitRatio, "ratio", utils.DefaultSplitRatio, "Share of images in the train list")
	flags.StringVar(&splitTrainFile, "train", "train.txt", "Train list to write")
	flags.StringVar(&splitTestFile, "test", "test.txt", "Test list to write")
	flags.Int64Var(&splitSeed, "seed", 0, "Shuffle seed (0 uses the clock)")

	splitCmd.MarkFlagRequired("dataset")
}

func runSplit(cmd *cobra.Command, args []string) error {
	images, err := scanner.DirectorySource(splitDataset, splitPattern)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return errors.New("no images found to split")
	}

	seed := splitSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	train, test, err := utils.GenerateSplit(images, splitRatio, rand.New(rand.NewSource(seed)))
	if err != nil {
		return err
	}

	if err := utils.WriteLines(splitTrainFile, train); err != nil {
		return err
	}
	if err := utils.WriteLines(splitTestFile, test); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Train images : %d (%s)\n", len(train), splitTrainFile)
	fmt.Fprintf(out, "Test images  : %d (%s)\n", len(test), splitTestFile)
	return nil
}
