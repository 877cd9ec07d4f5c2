package main

import(
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"

	"github.com/abworrall/cloudshadow/internal/log"
	"github.com/abworrall/cloudshadow/pkg/cloudshadow"
)

var(
	fConfigFilename string
	fOutputFilename string
	fQuicklookFilename string
	fReportFilename string
	fCloudIDsFilename string
	fPathStrategy string
	fShiftMode string
	fTileSize int
	fWorkers int
	fMountainShadow bool
	fDebug bool
	fDebugPixels string
	fDebugImages string
)

func init() {
	flag.StringVar(&fConfigFilename, "c", "", "config YAML file")
	flag.StringVar(&fOutputFilename, "o", "flags.tif", "name of output flags TIFF")
	flag.StringVar(&fQuicklookFilename, "quicklook", "", "also write a quicklook PNG")
	flag.StringVar(&fReportFilename, "report", "", "also write a YAML run report")
	flag.StringVar(&fCloudIDsFilename, "cloudids", "", "also write the shadow-to-cloud attribution TIFF")
	flag.StringVar(&fPathStrategy, "strategy", "", "shadow path strategy (center, pixel)")
	flag.StringVar(&fShiftMode, "shiftmode", "", "shift clouds one by one (blob), or all together (bulk)")
	flag.IntVar(&fTileSize, "tilesize", 0, "tile size in pixels")
	flag.IntVar(&fWorkers, "workers", 0, "number of tiles to process at once")
	flag.BoolVar(&fMountainShadow, "mountains", false, "flag terrain shadow too")
	flag.BoolVar(&fDebug, "debug", false, "debug logging")
	flag.StringVar(&fDebugPixels, "debugpixels", "", "log the flags at these lat,lon points (e.g. 45.1,7.2;45.2,7.3)")
	flag.StringVar(&fDebugImages, "debugimages", "", "write PNGs of the reflectance, gap values and elevation into this dir")
	flag.Parse()

	if err := log.Init(fDebug); err != nil {
		panic(err)
	}
}

func main() {
	defer log.Sync()

	if flag.NArg() != 1 {
		log.Fatalf("usage: cloudshadow [flags] scene-manifest.yaml")
	}

	cfg := cloudshadow.NewConfig()
	if fConfigFilename != "" {
		var err error
		if cfg, err = cloudshadow.LoadConfig(fConfigFilename); err != nil {
			log.Fatalf("%v", err)
		}
	}

	// Override the config file with command line args, if relevant
	if fPathStrategy != "" { cfg.PathStrategy = fPathStrategy }
	if fShiftMode != "" { cfg.ShiftMode = fShiftMode }
	if fTileSize > 0 { cfg.TileSize = fTileSize }
	if fWorkers > 0 { cfg.Workers = fWorkers }
	if fMountainShadow { cfg.ComputeMountainShadow = true }

	scene, err := cloudshadow.LoadScene(flag.Arg(0))
	if err != nil {
		log.Fatalf("load: %v", err)
	}

	p, err := cloudshadow.NewProcessor(scene, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Debugf("Final configuration:-\n\n%s\n", p.Config.AsYaml())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	res, err := p.Run(ctx)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := cloudshadow.WriteFlagsTIFF(res.Flags, fOutputFilename); err != nil {
		log.Fatalf("write %s: %v", fOutputFilename, err)
	}
	log.Infow("flags written", "file", fOutputFilename)

	if fQuicklookFilename != "" {
		if err := res.Flags.SaveQuicklook(flag.Arg(0), fQuicklookFilename); err != nil {
			log.Fatalf("%v", err)
		}
		log.Infow("quicklook written", "file", fQuicklookFilename)
	}
	if fCloudIDsFilename != "" {
		if err := cloudshadow.WriteCloudIDsTIFF(res.CloudIDs, res.Flags.Bounds(), fCloudIDsFilename); err != nil {
			log.Fatalf("write %s: %v", fCloudIDsFilename, err)
		}
	}
	if fReportFilename != "" {
		if err := res.Report.Save(fReportFilename); err != nil {
			log.Fatalf("%v", err)
		}
	}

	if fDebugImages != "" {
		files, err := cloudshadow.WriteDebugImages(scene, p.Config, fDebugImages)
		if err != nil {
			log.Fatalf("%v", err)
		}
		log.Infow("debug images written", "files", files)
	}
	if fDebugPixels != "" {
		debugPixels(scene, res, fDebugPixels)
	}
}

// debugPixels logs what happened at a few geographic points
func debugPixels(scene *cloudshadow.Scene, res *cloudshadow.Result, pixels string) {
	if scene.Geocoding == nil {
		log.Warnf("debugpixels needs a geocoded scene")
		return
	}
	for _, str := range strings.Split(pixels, ";") {
		pt, err := cloudshadow.ParseLatLon(str)
		if err != nil {
			log.Warnf("debugpixels: %v", err)
			continue
		}
		x, y, ok := scene.Geocoding.LatLonToPixel(pt.Lat(), pt.Lon())
		if !ok {
			log.Warnf("debugpixels: %s is outside the scene", str)
			continue
		}
		ix, iy := int(x), int(y)
		log.Infow("debug pixel", "latlon", str, "x", ix, "y", iy,
			"flags", res.Flags.At(ix, iy).String(),
			"cloud", res.CloudIDs[iy*res.Flags.Bounds().Dx()+ix])
	}
}
