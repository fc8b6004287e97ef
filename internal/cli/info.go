package cli

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"
	vector "github.com/tingold/orb-vector"
)

type layerFlags struct {
	layer string
	index int
}

func (f *layerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.layer, "layer", "", "layer name")
	cmd.Flags().IntVar(&f.index, "layer-index", 0, "layer index")
}

func (f *layerFlags) apply(o *vector.Options) *vector.Options {
	o.Layer = f.layer
	o.LayerIndex = f.index
	return o
}

type propertyInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type datasetInfo struct {
	Path       string         `json:"path"`
	Driver     string         `json:"driver"`
	Layer      string         `json:"layer"`
	Encoding   string         `json:"encoding,omitempty"`
	CRS        string         `json:"crs,omitempty"`
	CRSWKT     string         `json:"crs_wkt,omitempty"` //nolint:tagliatelle // matches crs
	Geometry   string         `json:"geometry"`
	Properties []propertyInfo `json:"properties"`
	Count      *int           `json:"count,omitempty"`
	Bounds     []float64      `json:"bounds,omitempty"`
}

func newInfoCmd(g *globals) *cobra.Command {
	var lf layerFlags
	var withWKT bool
	cmd := &cobra.Command{
		Use:   "info PATH",
		Short: "Print dataset metadata as JSON",
		Long: `Print the driver, layer, CRS, schema, feature count and bounds of a
dataset layer.

Examples:
  fio info cities.shp
  fio info --layer roads --wkt data.gpkg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := vector.Open(args[0], vector.ModeRead, lf.apply(g.options()))
			if err != nil {
				return err
			}
			defer c.Close()

			info, err := describe(c, withWKT)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
	lf.register(cmd)
	cmd.Flags().BoolVar(&withWKT, "wkt", false, "include the WKT CRS")
	return cmd
}

func describe(c *vector.Collection, withWKT bool) (*datasetInfo, error) {
	meta, err := c.Meta()
	if err != nil {
		return nil, err
	}
	info := &datasetInfo{
		Path:       c.Path(),
		Driver:     meta.Driver,
		Layer:      c.Name(),
		Encoding:   c.Encoding(),
		CRS:        meta.CRS,
		Geometry:   meta.Schema.Geometry,
		Properties: make([]propertyInfo, 0, len(meta.Schema.Properties)),
	}
	if withWKT {
		info.CRSWKT = meta.CRSWKT
	}
	for _, p := range meta.Schema.Properties {
		info.Properties = append(info.Properties, propertyInfo{Name: p.Name, Type: p.Type})
	}

	n, err := c.Len()
	switch {
	case err == nil:
		info.Count = &n
	case !errors.Is(err, vector.ErrCountUnsupported):
		return nil, err
	}
	if n > 0 {
		b, err := c.Bounds()
		if err != nil {
			return nil, err
		}
		info.Bounds = []float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	}
	return info, nil
}
