// Command cmdlogd wires a cmdlog.CmdLog to an HTTP admin surface,
// grounded on cmd/moz-server/main.go's shape: flag-parsed entry point,
// log.Fatalf on startup failure.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"

	"k8s.io/klog/v2"

	"github.com/nyasuto/cmdlogbuf/internal/adminapi"
	"github.com/nyasuto/cmdlogbuf/internal/cmdlog"
)

func main() {
	var (
		port       = flag.String("port", "8081", "port the admin HTTP surface listens on")
		dataDir    = flag.String("data", "", "directory backing the log file (defaults to CMDLOG_DATA_DIR, then .)")
		logPath    = flag.String("log-file", "cmdlog.bin", "log file name within the data directory, opened at startup via FilePrepare")
		bufferSize = flag.Int("buffer-size", cmdlog.DefaultBufferSize, "ring buffer capacity in bytes")
		apiKey     = flag.String("api-key", "", "operator API key; a random one is generated and printed if empty")
		help       = flag.Bool("help", false, "show help")
	)
	flag.Parse()

	if *help {
		fmt.Println("cmdlogd - admin HTTP surface for the command-log buffer subsystem")
		fmt.Println("\nUsage:")
		fmt.Println("  cmdlogd [options]")
		fmt.Println("\nOptions:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg := cmdlog.DefaultConfig()
	cfg.BufferSize = *bufferSize
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	codec := newJSONLineCodec()
	l, err := cmdlog.Init(cfg, codec)
	if err != nil {
		log.Fatalf("cmdlogd: init: %v", err)
	}
	defer l.Final()

	path := cfg.DataDir + string(os.PathSeparator) + *logPath
	if err := l.FilePrepare(path); err != nil {
		log.Fatalf("cmdlogd: file_prepare(%s): %v", path, err)
	}
	if err := l.FileApply(); err != nil {
		log.Fatalf("cmdlogd: recovery: %v", err)
	}

	auth := adminapi.NewAuthManager()
	key := *apiKey
	if key == "" {
		key = auth.GenerateAPIKey()
		klog.Infof("cmdlogd: generated operator API key (store this): %s", key)
	}
	auth.AddAPIKey(key)

	sampler := cmdlog.NewStatsSampler(l, cmdlog.DefaultStatsSampleInterval)
	sampler.Start()
	defer sampler.Stop()

	go ingestStdin(l)

	server := adminapi.NewServer(l, *port, auth, sampler)
	if err := server.Start(); err != nil {
		log.Fatalf("cmdlogd: server: %v", err)
	}
}

// ingestStdin is cmdlogd's producer path: each line read from stdin
// becomes one record, driving RecordWrite (and, through it, the codec's
// Serialize) the way a real command source would. It borrows its
// per-line buffer from CmdLog's scratch pool rather than letting each
// line allocate its own, the same way a hot write path in the teacher's
// kvstore avoids a per-call allocation via memory_pool.go's bufferPool.
func ingestStdin(l *cmdlog.CmdLog) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Bytes()
		buf := l.AcquireScratch(len(line))
		copy(buf, line)
		if err := l.RecordWrite(logLine(buf), nil, false); err != nil {
			klog.Warningf("cmdlogd: record_write: %v", err)
		}
		l.ReleaseScratch(buf)
	}
	if err := scanner.Err(); err != nil {
		klog.Warningf("cmdlogd: stdin scan: %v", err)
	}
}
