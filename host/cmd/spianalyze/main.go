// Command spianalyze decodes Saleae Logic digital exports of an SPI bus into
// per-transaction byte dumps. It is the bench check for the bit-banged bus:
// capture CS, SCK, SDO and SDI while spi-host runs a script, then compare.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
)

var (
	csFile  string
	clkFile string
	sdoFile string
	sdiFile string
	outFile string
	limit   int
	noStats bool

	rootCmd = &cobra.Command{
		Use:   "spianalyze",
		Short: "Decode SPI transactions from Saleae digital captures",
		Long: "Decode SPI transactions from Saleae binary digital exports (one file per channel).\n" +
			"Every chip-select window becomes one transaction listing the bytes on SDO and,\n" +
			"when an SDI capture is given, the bytes on SDI. Only mode 0, MSB first captures\n" +
			"decode correctly.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadCapture(csFile, clkFile, sdoFile, sdiFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if outFile != "" {
				fp, err := os.Create(outFile)
				if err != nil {
					return err
				}
				defer fp.Close()
				out = fp
			}
			return writeReport(out, c, reportOptions{Limit: limit, Stats: !noStats})
		},
	}
)

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&csFile, "cs", "digital_0.bin", "Input file: chip select channel")
	flags.StringVar(&clkFile, "clk", "digital_1.bin", "Input file: SCK channel")
	flags.StringVar(&sdoFile, "sdo", "digital_2.bin", "Input file: SDO (MOSI) channel")
	flags.StringVar(&sdiFile, "sdi", "", "Input file: SDI (MISO) channel, optional")
	flags.StringVarP(&outFile, "output", "o", "", "Write the report to a file instead of stdout")
	flags.IntVarP(&limit, "limit", "n", 0, "Print at most n transactions (0 prints all)")
	flags.BoolVar(&noStats, "no-stats", false, "Omit the timing summary")
}

func main() {
	log.SetFlags(0)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "spianalyze:", err)
		os.Exit(1)
	}
}
