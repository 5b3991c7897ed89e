// Command geoutil converts a receiver or station's latitude/longitude
// (the station block of the main pipeline's config, spec.md §6.4)
// into UTM/MGRS for operators cross-referencing grid-square or
// antenna-survey paperwork. Not part of the recording/discrimination
// pipeline itself.
package main

import (
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
	"github.com/tzneal/coordconv"
)

func d2r(degrees float64) float64 { return degrees * math.Pi / 180 }

func main() {
	if len(os.Args) != 3 {
		usage()
		os.Exit(1)
	}

	lat, errLat := strconv.ParseFloat(os.Args[1], 64)
	lon, errLon := strconv.ParseFloat(os.Args[2], 64)
	if errLat != nil || errLon != nil {
		fmt.Fprintln(os.Stderr, "latitude and longitude must be decimal degrees")
		os.Exit(1)
	}

	latlng := s2.LatLng{Lat: s1.Angle(d2r(lat)), Lng: s1.Angle(d2r(lon))}

	utmCoord, err := coordconv.DefaultUTMConverter.ConvertFromGeodetic(latlng, 0)
	if err != nil {
		fmt.Printf("UTM conversion failed: %s\n", err)
	} else {
		hemi := 'N'
		if utmCoord.Hemisphere == coordconv.HemisphereSouth {
			hemi = 'S'
		}
		fmt.Printf("UTM zone=%d hemisphere=%c easting=%.0f northing=%.0f\n",
			utmCoord.Zone, hemi, utmCoord.Easting, utmCoord.Northing)
	}

	mgrsCoord, err := coordconv.DefaultMGRSConverter.ConvertFromGeodetic(latlng, 5)
	if err != nil {
		fmt.Printf("MGRS conversion failed: %s\n", err)
	} else {
		fmt.Printf("MGRS=%s\n", mgrsCoord)
	}
}

func usage() {
	fmt.Println("geoutil: convert station lat/lon to UTM and MGRS")
	fmt.Println()
	fmt.Println("usage: geoutil <latitude> <longitude>")
	fmt.Println("       latitude/longitude in decimal degrees, negative for south/west")
}
