// Command client is a reference entitysync client: it dials a server over
// UDP, registers a minimal entity class, and drives netsync.Client's
// Receive/Update loop at the configured tick rate. It exists to exercise
// the library end-to-end, not as a shippable game client.
package main

import (
	"encoding/binary"
	"flag"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/entitysync/pkg/config"
	"github.com/opd-ai/entitysync/pkg/netsync"
	"github.com/opd-ai/entitysync/pkg/network"
	"github.com/opd-ai/entitysync/pkg/replay"
)

var (
	addr      = flag.String("addr", "127.0.0.1:7777", "server address to dial")
	logLevel  = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	useConfig = flag.Bool("config", false, "load tunables from ./entitysync.toml or $HOME/.entitysync, if present")
	tracePath = flag.String("trace", "", "if set, record every packet to this file for offline replay")
)

// classPosition is the demo entity class: a single interpolated 3D
// position, mirroring the teacher's Position component but laid out as a
// flat field image per spec §9.
const classPosition uint16 = 1

func registerDemoClasses() *netsync.Registry {
	r := netsync.NewRegistry()
	interp := netsync.Float32Interpolator()
	r.Register(&netsync.ClassMetadata{
		ClassID: classPosition,
		Name:    "position",
		Fields: []netsync.FieldDescriptor{
			{Name: "x", StructOffset: 0, WireOffset: 0, Size: 4, Interpolator: interp},
			{Name: "y", StructOffset: 4, WireOffset: 4, Size: 4, Interpolator: interp},
			{Name: "z", StructOffset: 8, WireOffset: 8, Size: 4, Interpolator: interp},
		},
		InterpolatedFieldsSize: 12,
		FixedFieldsSize:        12,
		IsUpdateable:           false,
	})
	return r
}

// logVisual implements netsync.VisualUpdater by logging position changes;
// a real host would instead push Render into its renderer.
type logVisual struct{ log *logrus.Entry }

func (v logVisual) VisualUpdate(e *netsync.Entity) {
	x := math.Float32frombits(binary.LittleEndian.Uint32(e.Render[0:4]))
	y := math.Float32frombits(binary.LittleEndian.Uint32(e.Render[4:8]))
	z := math.Float32frombits(binary.LittleEndian.Uint32(e.Render[8:12]))
	v.log.WithFields(logrus.Fields{"entity": e.ID, "x": x, "y": y, "z": z}).Debug("render position")
}

func main() {
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log level")
	}
	logrus.SetLevel(level)
	log := logrus.NewEntry(logrus.StandardLogger())

	cfg := config.DefaultConfig()
	if *useConfig {
		if err := config.Load(); err != nil {
			log.WithError(err).Fatal("failed to load config")
		}
		cfg = config.Get()
	}

	transport, err := network.Dial(*addr, log)
	if err != nil {
		log.WithError(err).Fatal("failed to dial server")
	}
	defer transport.Close()

	var tracer *replay.Recorder
	if *tracePath != "" {
		tracer, err = replay.NewRecorder(*tracePath, time.Now().UnixNano(), log)
		if err != nil {
			log.WithError(err).Fatal("failed to open trace file")
		}
		defer tracer.Close()
	}

	classes := registerDemoClasses()
	client := netsync.NewClient(cfg, classes, transport, log)
	if tracer != nil {
		client.SetTracer(tracer)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	recvBuf := make([]byte, 65536)
	packets := make(chan []byte, 64)
	go func() {
		for {
			n, err := transport.ReadPacket(recvBuf)
			if err != nil {
				log.WithError(err).Warn("read failed, stopping receive loop")
				close(packets)
				return
			}
			pkt := make([]byte, n)
			copy(pkt, recvBuf[:n])
			packets <- pkt
		}
	}()

	ticker := time.NewTicker(time.Second / time.Duration(cfg.TickRate))
	defer ticker.Stop()

	last := time.Now()
	log.WithField("addr", *addr).Info("entitysync demo client running")

	for {
		select {
		case <-sigChan:
			log.Info("shutdown signal received")
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			now := time.Now()
			if err := client.Receive(pkt, now); err != nil {
				log.WithError(err).Warn("dropped malformed packet")
			}
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			client.Update(dt)
			client.Entities().Each(func(e *netsync.Entity) {
				if e.Visual == nil {
					e.Visual = logVisual{log: log}
				}
			})
		}
	}
}
