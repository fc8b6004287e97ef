package cli

import (
	"fmt"
	"io"

	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"
	vector "github.com/tingold/orb-vector"
)

// loadBatch is the number of records handed to WriteRecords at once.
const loadBatch = 500

func newLoadCmd(g *globals) *cobra.Command {
	var (
		src      string
		driver   string
		layer    string
		crs      string
		encoding string
		appendTo bool
	)
	cmd := &cobra.Command{
		Use:   "load DEST",
		Short: "Copy features into a dataset",
		Long: `Copy the features of a source dataset into DEST. The source is read
from --src, or from stdin as GeoJSON when --src is "-" or omitted. DEST is
created with the source schema unless --append is given.

Examples:
  cat cities.geojson | fio load --driver GPKG cities.gpkg
  fio load --src cities.shp --driver FlatGeobuf cities.fgb
  fio load --src more.geojson --append cities.shp`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := openSource(g, cmd.InOrStdin(), src)
			if err != nil {
				return err
			}
			defer in.Close()

			out, err := openDest(g, in.Collection, args[0], destFlags{
				driver: driver, layer: layer, crs: crs, encoding: encoding, appendTo: appendTo,
			})
			if err != nil {
				return err
			}

			n, err := copyFeatures(in.Collection, out)
			if err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d features to %s\n", n, args[0])
			return err
		},
	}
	cmd.Flags().StringVar(&src, "src", "-", `source dataset, "-" for GeoJSON on stdin`)
	cmd.Flags().StringVar(&driver, "driver", "", "output driver, required unless --append")
	cmd.Flags().StringVar(&layer, "layer", "", "output layer name")
	cmd.Flags().StringVar(&crs, "crs", "", "output CRS, defaults to the source CRS")
	cmd.Flags().StringVar(&encoding, "encoding", "", "output attribute encoding")
	cmd.Flags().BoolVar(&appendTo, "append", false, "append to an existing dataset")
	return cmd
}

// source is an open input dataset and whatever must be released with it.
type source struct {
	*vector.Collection
	closer io.Closer
}

func (s *source) Close() error {
	return s.closer.Close()
}

func openSource(g *globals, stdin io.Reader, src string) (*source, error) {
	if src == "" || src == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		o := g.options()
		o.Driver = "GeoJSON"
		bc, err := vector.NewBytesCollection(data, o)
		if err != nil {
			return nil, err
		}
		return &source{Collection: bc.Collection, closer: bc}, nil
	}
	c, err := vector.Open(src, vector.ModeRead, g.options())
	if err != nil {
		return nil, err
	}
	return &source{Collection: c, closer: c}, nil
}

type destFlags struct {
	driver, layer, crs, encoding string
	appendTo                     bool
}

func openDest(g *globals, in *vector.Collection, path string, f destFlags) (*vector.Collection, error) {
	o := g.options()
	o.Layer = f.layer
	o.Encoding = f.encoding
	if f.appendTo {
		o.Driver = f.driver
		return vector.Open(path, vector.ModeAppend, o)
	}
	if f.driver == "" {
		return nil, fmt.Errorf("%w: --driver is required", vector.ErrInvalidArgument)
	}

	meta, err := in.Meta()
	if err != nil {
		return nil, err
	}
	o.Driver = f.driver
	o.Schema = &meta.Schema
	if f.crs != "" {
		o.CRS = f.crs
	} else {
		o.CRS, o.CRSWKT = meta.CRS, meta.CRSWKT
	}
	return vector.Open(path, vector.ModeWrite, o)
}

func copyFeatures(in, out *vector.Collection) (int, error) {
	it, err := in.Iter()
	if err != nil {
		return 0, err
	}
	defer it.Close()

	n := 0
	batch := make([]*geojson.Feature, 0, loadBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := out.WriteRecords(batch); err != nil {
			return err
		}
		n += len(batch)
		batch = batch[:0]
		return nil
	}
	for it.Next() {
		f := it.Feature()
		f.ID = nil
		batch = append(batch, f)
		if len(batch) == loadBatch {
			if err := flush(); err != nil {
				return n, err
			}
		}
	}
	if err := it.Err(); err != nil {
		return n, err
	}
	return n, flush()
}
