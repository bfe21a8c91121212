package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	reader "github.com/mercuryrf/reader"
	"github.com/mercuryrf/reader/internal/rlog"
)

// Configuration flags, following the teacher's cmd/bluetooth-service/main.go
// flag block.
var (
	uri         = flag.String("uri", "eapi:///dev/ttyUSB0", "Reader connection URI")
	region      = flag.String("region", "", "Region to set after connect (NA, EU, ...); empty leaves device default")
	readMs      = flag.Int("read-ms", 500, "Synchronous read duration in milliseconds")
	background  = flag.Bool("background", false, "Start a background read and print tags until interrupted")
	antenna     = flag.Int("antenna", 1, "Antenna port to read on")
	redisAddr   = flag.String("redis-addr", "", "Optional Redis address to mirror reader state to (empty disables)")
	redisPass   = flag.String("redis-pass", "", "Redis password")
	redisDB     = flag.Int("redis-db", 0, "Redis database number")
	baud        = flag.Int("baud", 115200, "Serial baud rate (ignored for non-serial URIs)")
	timeoutMs   = flag.Int("timeout", 0, "Command timeout in milliseconds; 0 leaves the device default")
	debug       = flag.Bool("debug", false, "Enable verbose protocol logging")
)

func main() {
	flag.Parse()
	level := rlog.LevelInfo
	if *debug {
		level = rlog.LevelDebug
	}
	rlog.Init(level)
	log.Printf("Starting rfidctl")
	log.Printf("URI: %s", *uri)

	var opts []reader.Option
	if *redisAddr != "" {
		pub, err := newRedisPublisher(*redisAddr, *redisPass, *redisDB)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		opts = append(opts, reader.WithStatePublisher(pub))
		log.Printf("Mirroring reader state to Redis at %s", *redisAddr)
	}

	r, err := reader.Create(*uri, opts...)
	if err != nil {
		log.Fatalf("Failed to create reader for %s: %v", *uri, err)
	}

	if err := r.Connect(); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer r.Destroy()
	log.Printf("Connected to %s", *uri)

	if err := r.SetBaudRate(*baud); err != nil {
		log.Printf("Warning: failed to set baud rate %d: %v", *baud, err)
	}
	if *timeoutMs > 0 {
		if err := r.ParamSet("/reader/commandTimeout", reader.ParamValue{Type: reader.TypeInt, Int: *timeoutMs}); err != nil {
			log.Printf("Warning: failed to set command timeout %dms: %v", *timeoutMs, err)
		}
	}
	if *region != "" {
		if err := setRegion(r, *region); err != nil {
			log.Printf("Warning: failed to set region %s: %v", *region, err)
		}
	}

	if *background {
		runBackground(r)
		return
	}

	tags, err := r.Read(time.Duration(*readMs)*time.Millisecond, *antenna, reader.ProtocolGen2)
	if err != nil {
		log.Fatalf("Read failed: %v", err)
	}
	for _, t := range tags {
		fmt.Printf("epc=%x antenna=%d rssi=%d count=%d\n", t.Tag.EPC, t.Antenna, t.RSSI, t.ReadCount)
	}
}

func runBackground(r *reader.ReaderCore) {
	r.AddReadListener(func(t reader.TagReadData) {
		fmt.Printf("epc=%x antenna=%d rssi=%d count=%d\n", t.Tag.EPC, t.Antenna, t.RSSI, t.ReadCount)
	})
	r.AddExceptionListener(func(err error) {
		log.Printf("background read exception: %v", err)
	})

	if err := r.StartReading(reader.ModePolled, 250*time.Millisecond, 0, *antenna, reader.ProtocolGen2); err != nil {
		log.Fatalf("Failed to start background read: %v", err)
	}
	log.Printf("Background read started, press Ctrl-C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("Stopping background read...")
	r.StopReading()
	log.Printf("Shutting down...")
}

func setRegion(r *reader.ReaderCore, name string) error {
	code, ok := regionByName[name]
	if !ok {
		return fmt.Errorf("unknown region %q", name)
	}
	return r.ParamSet("/reader/region/id", reader.ParamValue{Type: reader.TypeRegion, Region: code})
}

var regionByName = map[string]reader.Region{
	"NA": reader.RegionNA, "EU": reader.RegionEU, "EU2": reader.RegionEU2, "EU3": reader.RegionEU3,
	"KR": reader.RegionKR, "KR2": reader.RegionKR2, "IN": reader.RegionIN, "JP": reader.RegionJP,
	"PRC": reader.RegionPRC, "PRC2": reader.RegionPRC2, "AU": reader.RegionAU, "NZ": reader.RegionNZ,
	"OPEN": reader.RegionOpen,
}
