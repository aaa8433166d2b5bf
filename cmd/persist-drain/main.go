// persist-drain attaches to a file-backed log region, reports what
// survived the last run, and drains committed bytes to a transmit sink.
//
// The backing file stands in for the reserved RAM range on hosts:
// rerunning the tool after a crash picks up whatever the previous run
// left committed and unreleased.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/korken89/persistlog/core/drain"
	"github.com/korken89/persistlog/core/logsink"
	"github.com/korken89/persistlog/core/region"
	"github.com/korken89/persistlog/core/ringbuf"
	"github.com/korken89/persistlog/core/utils"
)

func main() {
	var (
		regionPath = flag.String("region", region.DefaultRegionPath(), "backing file for the log region")
		regionSize = flag.Int("size", 64*1024, "region size in bytes when creating the backing file")
		wsURL      = flag.String("ws", "", "WebSocket endpoint to drain to (default: stdout)")
		once       = flag.Bool("once", false, "drain whatever is present and exit")
		compress   = flag.Bool("compress", false, "brotli-compress batches before transmit")
		ecc        = flag.Bool("ecc", false, "use the ECC-granule header layout")
		rate       = flag.Int64("rate", 0, "max transmits per second (0 = unpaced)")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := utils.INFO
	if *verbose {
		level = utils.DEBUG
	}
	logger := utils.NewLogger(utils.LoggerConfig{
		Level:     level,
		Component: "persist-drain",
		Output:    os.Stderr,
		Colorize:  true,
	})

	r, err := region.OpenFile(region.FileOptions{
		Path:   *regionPath,
		Size:   *regionSize,
		Create: true,
	})
	if err != nil {
		logger.Fatal("open region", utils.Err(err))
	}
	defer r.Close()

	consumer, rec, err := logsink.Init(r, logsink.Options{
		Ring: ringbuf.Options{ECCPadding: *ecc},
	})
	if err != nil {
		logger.Fatal("attach", utils.Err(err))
	}

	if rec.Reinitialized {
		logger.Info("region reinitialized; no recoverable data")
	} else {
		logger.Info("region recovered",
			utils.Int("bytes", rec.RecoveredBytes),
			utils.Bool("panic_frame", rec.PanicFramePresent),
			utils.String("identifier", hex.EncodeToString(rec.RecoveredIdentifier[:])))
	}

	var sink drain.Sink
	if *wsURL != "" {
		sink = drain.NewWebSocketSink(drain.DefaultWebSocketSinkConfig(*wsURL))
	} else {
		sink = drain.WriterSink{W: os.Stdout}
	}

	config := drain.DefaultConfig()
	config.Compress = *compress
	config.RatePerSecond = *rate

	d, err := drain.New(consumer, sink, config)
	if err != nil {
		logger.Fatal("build drainer", utils.Err(err))
	}
	defer d.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		total := 0
		for {
			n, err := d.DrainOnce(ctx)
			if err != nil {
				logger.Fatal("drain", utils.Err(err))
			}
			if n == 0 {
				break
			}
			total += n
		}
		logger.Info("drained", utils.Int("bytes", total))
		return
	}

	logger.Info("draining", utils.String("region", *regionPath))
	if err := d.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("drain loop", utils.Err(err))
	}
	fmt.Fprintln(os.Stderr)
	logger.Info("stopped")
}
