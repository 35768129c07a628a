// Command qmag-navd runs the navigation service behind the HTTP and
// tool-call transports, loading its magnetic-anomaly map from
// QMAG_NAV_MAP_PATH.
package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"qmagnav-engine/calib"
	"qmagnav-engine/ekf"
	"qmagnav-engine/httpapi"
	"qmagnav-engine/mapping"
	"qmagnav-engine/navservice"
	"qmagnav-engine/toolserver"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	mapFormat := flag.String("map-format", "geotiff", "map container format: geotiff or netcdf")
	initLat := flag.Float64("init-lat", 0, "initial filter latitude")
	initLon := flag.Float64("init-lon", 0, "initial filter longitude")
	condWindow := flag.Int("cond-window", 4, "sensor conditioner window size")
	toolStdio := flag.Bool("tools-stdio", false, "serve the tool-call protocol over stdin/stdout instead of the HTTP server")
	flag.Parse()

	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var m *mapping.MagneticMap
	if mapPath := os.Getenv("QMAG_NAV_MAP_PATH"); mapPath != "" {
		source, err := loadSource(*mapFormat, mapPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load magnetic map")
		}
		m = mapping.NewMagneticMap(source, mapping.DefaultTileSize, mapping.DefaultCacheSize)
		log.WithField("path", mapPath).Info("magnetic map loaded")
	} else {
		log.Warn("QMAG_NAV_MAP_PATH not set; map-dependent operations will report 503")
	}

	filter := ekf.New(ekf.DefaultConfig(), *initLat, *initLon)
	cond, err := calib.NewConditioner(calib.Identity(), *condWindow)
	if err != nil {
		log.WithError(err).Fatal("invalid sensor conditioner configuration")
	}

	svc, err := navservice.New(filter, cond, m)
	if err != nil {
		log.WithError(err).Fatal("failed to construct navigation service")
	}

	if *toolStdio {
		srv := toolserver.New(svc, log)
		if err := srv.Serve(os.Stdin, os.Stdout); err != nil {
			log.WithError(err).Fatal("tool server exited with error")
		}
		return
	}

	httpSrv := httpapi.NewServer(svc, log)
	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe(*addr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.WithError(err).Fatal("http server exited with error")
	case <-sigCh:
		log.Info("shutting down")
	}
}

func loadSource(format, path string) (mapping.RasterSource, error) {
	switch strings.ToLower(format) {
	case "netcdf":
		return mapping.LoadNetCDFLike(path)
	default:
		return mapping.LoadGeoTIFFLike(path)
	}
}
