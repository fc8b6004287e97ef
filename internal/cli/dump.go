package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	vector "github.com/tingold/orb-vector"
)

func newDumpCmd(g *globals) *cobra.Command {
	var (
		lf                layerFlags
		bbox              string
		start, stop, step int
	)
	cmd := &cobra.Command{
		Use:   "dump PATH",
		Short: "Write dataset features as a GeoJSON FeatureCollection",
		Long: `Write the features of a dataset layer to stdout as a GeoJSON
FeatureCollection. Features can be filtered by bounding box and selected by
position with Python-style slice bounds.

Examples:
  fio dump cities.shp
  fio dump --bbox -10,40,10,60 cities.shp
  fio dump --start -5 cities.fgb
  fio dump --step -1 cities.geojson`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := &vector.Query{}
			if bbox != "" {
				b, err := parseBBox(bbox)
				if err != nil {
					return err
				}
				q.BBox = &b
			}
			flags := cmd.Flags()
			if flags.Changed("start") {
				q.Slice = q.Slice.From(start)
			}
			if flags.Changed("stop") {
				q.Slice = q.Slice.To(stop)
			}
			if flags.Changed("step") {
				q.Slice = q.Slice.By(step)
			}

			c, err := vector.Open(args[0], vector.ModeRead, lf.apply(g.options()))
			if err != nil {
				return err
			}
			defer c.Close()

			it, err := c.Filter(q)
			if err != nil {
				return err
			}
			defer it.Close()

			fc := geojson.NewFeatureCollection()
			for it.Next() {
				fc.Append(it.Feature())
			}
			if err := it.Err(); err != nil {
				return err
			}
			data, err := fc.MarshalJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	lf.register(cmd)
	cmd.Flags().StringVar(&bbox, "bbox", "", "bounding box filter: minx,miny,maxx,maxy")
	cmd.Flags().IntVar(&start, "start", 0, "slice start")
	cmd.Flags().IntVar(&stop, "stop", 0, "slice stop")
	cmd.Flags().IntVar(&step, "step", 1, "slice step")
	return cmd
}

func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("%w: bbox needs 4 numbers, got %q", vector.ErrInvalidArgument, s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("%w: bad bbox value %q", vector.ErrInvalidArgument, p)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("%w: bbox minimum exceeds maximum: %q", vector.ErrInvalidArgument, s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}
