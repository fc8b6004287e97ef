package main

import (
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	vector "github.com/tingold/orb-vector"
	_ "github.com/tingold/orb-vector/driver/all"
)

type City struct {
	Name       string
	Country    string
	Longitude  float64
	Latitude   float64
	Population int
	Capital    bool
}

var cities = []City{
	{"Tokyo", "Japan", 139.6917, 35.6895, 13960000, true},
	{"New York", "United States", -73.9857, 40.7484, 8336817, false},
	{"London", "United Kingdom", -0.1276, 51.5074, 8982000, true},
	{"Paris", "France", 2.3522, 48.8566, 2161000, true},
	{"Beijing", "China", 116.4074, 39.9042, 21540000, true},
	{"Moscow", "Russia", 37.6173, 55.7558, 12615000, true},
	{"São Paulo", "Brazil", -46.6333, -23.5505, 12300000, false},
	{"Mumbai", "India", 72.8777, 19.0760, 12400000, false},
	{"Los Angeles", "United States", -118.2437, 34.0522, 3971883, false},
	{"Shanghai", "China", 121.4737, 31.2304, 24870000, false},
	{"Istanbul", "Turkey", 28.9784, 41.0082, 15520000, false},
	{"Buenos Aires", "Argentina", -58.3816, -34.6037, 3075646, true},
	{"Cairo", "Egypt", 31.2357, 30.0444, 10230000, true},
	{"Sydney", "Australia", 151.2093, -33.8688, 5312000, false},
	{"Berlin", "Germany", 13.4050, 52.5200, 3669491, true},
}

var citySchema = &vector.Schema{
	Geometry: "Point",
	Properties: []vector.Property{
		{Name: "name", Type: "str"},
		{Name: "country", Type: "str"},
		{Name: "population", Type: "int"},
		{Name: "capital", Type: "bool"},
	},
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	source := flag.String("source", "", "dataset to serve instead of the built-in city list")
	clientDir := flag.String("client", filepath.Join("..", "client"), "directory of static client files")
	verbose := flag.BoolP("verbose", "v", false, "log debug events")
	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	vector.SetLogger(log)

	features, err := loadFeatures(*source)
	if err != nil {
		log.WithError(err).Fatal("Failed to load features")
	}

	// Render both formats once through /vsimem datasets.
	fgbData, err := render("FlatGeobuf", ".fgb", features)
	if err != nil {
		log.WithError(err).Fatal("Failed to create FlatGeobuf")
	}
	geojsonData, err := render("GeoJSON", ".geojson", features)
	if err != nil {
		log.WithError(err).Fatal("Failed to create GeoJSON")
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		MaxAge:         300,
	}))
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/data.fgb", serveBytes("application/octet-stream", fgbData))
	r.Get("/data.geojson", serveBytes("application/geo+json", geojsonData))
	r.Handle("/*", http.FileServer(http.Dir(*clientDir)))

	log.WithField("addr", *addr).Info("Server starting")
	log.WithField("dir", *clientDir).Info("Serving client files")
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.WithError(err).Fatal("Server stopped")
	}
}

// loadFeatures reads every feature of source, or builds the city list when
// source is empty.
func loadFeatures(source string) ([]*geojson.Feature, error) {
	if source == "" {
		features := make([]*geojson.Feature, 0, len(cities))
		for _, city := range cities {
			f := geojson.NewFeature(orb.Point{city.Longitude, city.Latitude})
			f.Properties = geojson.Properties{
				"name":       city.Name,
				"country":    city.Country,
				"population": city.Population,
				"capital":    city.Capital,
			}
			features = append(features, f)
		}
		return features, nil
	}

	c, err := vector.Open(source, vector.ModeRead, nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	s, err := c.Schema()
	if err != nil {
		return nil, err
	}
	citySchema = s

	it, err := c.Iter()
	if err != nil {
		return nil, err
	}
	defer it.Close()
	var features []*geojson.Feature
	for it.Next() {
		f := it.Feature()
		f.ID = nil
		features = append(features, f)
	}
	return features, it.Err()
}

// render writes features to a /vsimem dataset of the given driver and
// returns its bytes.
func render(driver, ext string, features []*geojson.Feature) ([]byte, error) {
	mf := vector.NewMemoryFile(nil, ext)
	defer mf.Close()

	c, err := mf.Open(vector.ModeWrite, &vector.Options{
		Driver: driver,
		Schema: citySchema,
		CRS:    vector.FromEPSG(4326),
	})
	if err != nil {
		return nil, err
	}
	if err := c.WriteRecords(features); err != nil {
		c.Close()
		return nil, err
	}
	if err := c.Close(); err != nil {
		return nil, err
	}
	return mf.Bytes()
}

func serveBytes(contentType string, data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write(data)
	}
}
