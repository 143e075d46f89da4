package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/bluewing/auth-core/internal/geometry"
	"github.com/spf13/cobra"
)

type decodedPoint struct {
	SRID uint32  `json:"srid" yaml:"srid"`
	X    float64 `json:"x" yaml:"x"`
	Y    float64 `json:"y" yaml:"y"`
	WKT  string  `json:"wkt" yaml:"wkt"`
}

var decodeCmd = &cobra.Command{
	Use:   "decode-ewkb <hex>",
	Short: "Decode a hex EWKB point as stored by PostGIS",
	Example: `  authctl decode-ewkb 0101000020E6100000000000000000F03F0000000000000040
  authctl decode-ewkb -o json 0101000000000000000000F03F0000000000000040`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := geometry.DecodeHex(args[0])
		if err != nil {
			return err
		}

		result := decodedPoint{SRID: p.SRID, X: p.X, Y: p.Y, WKT: p.String()}
		return render(cmd.OutOrStdout(), result, func(out io.Writer) error {
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SRID\tX\tY\tWKT")
			fmt.Fprintf(w, "%d\t%v\t%v\t%s\n", result.SRID, result.X, result.Y, result.WKT)
			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
