// Command generate_sample_data writes a synthetic housing CSV with the same
// columns as Housing.csv, for trying the trainer without the real dataset.
package main

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"housing-forest/internal/common"
)

var header = []string{
	common.TargetColumn, "area", "bedrooms", "bathrooms", "stories",
	"mainroad", "guestroom", "basement", "hotwaterheating", "airconditioning",
	"parking", "prefarea", common.FurnishingColumn,
}

func main() {
	app := &cli.App{
		Name:  "generate_sample_data",
		Usage: "Write a synthetic housing CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Value: common.DefaultDatasetPath, Usage: "Output CSV path"},
			&cli.IntFlag{Name: "rows", Value: 545, Usage: "Number of rows"},
			&cli.Int64Flag{Name: "seed", Value: common.DefaultSeed, Usage: "Random seed"},
		},
		Action: func(c *cli.Context) error {
			return generate(c.String("out"), c.Int("rows"), c.Int64("seed"))
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("failed to generate data")
	}
}

func generate(path string, rows int, seed int64) error {
	if rows <= 0 {
		return fmt.Errorf("rows must be positive, got %d", rows)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for i := 0; i < rows; i++ {
		if err := w.Write(sampleRow(rng)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("rows", rows).Msg("sample data generated")
	return nil
}

func sampleRow(rng *rand.Rand) []string {
	area := 1650 + rng.IntN(14500)
	bedrooms := 1 + rng.IntN(5)
	bathrooms := 1 + rng.IntN(3)
	stories := 1 + rng.IntN(4)
	parking := rng.IntN(4)
	flags := make([]bool, len(common.BinaryColumns))
	for i := range flags {
		flags[i] = rng.Float64() < 0.4
	}
	furnishing := []string{"furnished", "semi-furnished", "unfurnished"}[rng.IntN(3)]

	price := 1_000_000 + 350*float64(area) + 400_000*float64(bathrooms) +
		250_000*float64(stories) + 150_000*float64(bedrooms) + 200_000*float64(parking)
	for i, set := range flags {
		if set {
			price += float64(150_000 * (i + 1))
		}
	}
	if furnishing == "unfurnished" {
		price -= 300_000
	}
	price *= 1 + rng.NormFloat64()*0.08
	price = math.Max(price, 1_750_000)

	row := []string{
		strconv.FormatInt(int64(math.Round(price/100)*100), 10),
		strconv.Itoa(area),
		strconv.Itoa(bedrooms),
		strconv.Itoa(bathrooms),
		strconv.Itoa(stories),
		yesNo(flags[0]), yesNo(flags[1]), yesNo(flags[2]), yesNo(flags[3]), yesNo(flags[4]),
		strconv.Itoa(parking),
		yesNo(flags[5]),
		furnishing,
	}
	return row
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
