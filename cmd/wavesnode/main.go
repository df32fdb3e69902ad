// wavesnode: block-producing node built around the transaction-application
// core. It keeps a Badger-backed ledger, pools submitted transactions and
// assembles blocks on a fixed interval.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/G1zm0nl/Waves/internal/types"
	"github.com/G1zm0nl/Waves/pkg/applier"
	"github.com/G1zm0nl/Waves/pkg/state"
	"github.com/G1zm0nl/Waves/pkg/txstatus"
	"github.com/G1zm0nl/Waves/pkg/utxpool"
)

// Version information
var (
	Version   = "0.1.0"
	GitCommit = "dev"
)

// Configuration flags
var (
	dataDir         = flag.String("data-dir", "/var/lib/wavesnode", "Data directory for ledger and status databases")
	scheme          = flag.String("scheme", "W", "Chain scheme byte for address derivation")
	generator       = flag.String("generator", "", "Base58 address credited with block fees")
	blockInterval   = flag.Duration("block-interval", 5*time.Second, "Interval between assembled blocks")
	maxBlockTxs     = flag.Int("max-block-txs", 1000, "Maximum transactions per block")
	poolCapacity    = flag.Int("pool-capacity", 100000, "Transaction pool capacity")
	complexityLimit = flag.Uint64("complexity-limit", 0, "Per-transaction script complexity limit (0 = default)")
	importSnapshot  = flag.String("import-snapshot", "", "Snapshot file to bootstrap the ledger from")
	exportSnapshot  = flag.String("export-snapshot", "", "Write a ledger snapshot to this file on shutdown")
	showVersion     = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("wavesnode %s (%s)\n", Version, GitCommit)
		os.Exit(0)
	}
	if len(*scheme) != 1 {
		log.Fatalf("scheme must be a single byte, got %q", *scheme)
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Printf("Starting wavesnode %s", Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal %v, shutting down...", sig)
		cancel()
	}()

	ledgerCfg := state.DefaultBadgerConfig(filepath.Join(*dataDir, "ledger"))
	ledger, err := state.NewBadgerLedger(ledgerCfg)
	if err != nil {
		log.Fatalf("Failed to open ledger: %v", err)
	}
	defer ledger.Close()

	if *importSnapshot != "" {
		log.Printf("Importing snapshot from %s", *importSnapshot)
		if err := ledger.ImportSnapshot(*importSnapshot); err != nil {
			log.Fatalf("Failed to import snapshot: %v", err)
		}
	}

	statuses, err := txstatus.Open(txstatus.DefaultConfig(filepath.Join(*dataDir, "txstatus.db")))
	if err != nil {
		log.Fatalf("Failed to open status store: %v", err)
	}
	defer statuses.Close()

	apCfg := applier.DefaultConfig()
	apCfg.Scheme = (*scheme)[0]
	if *complexityLimit > 0 {
		apCfg.ComplexityLimit = *complexityLimit
	}
	ap := applier.New(apCfg)

	poolCfg := utxpool.DefaultConfig()
	poolCfg.Capacity = *poolCapacity
	pool := utxpool.New(poolCfg)

	asmCfg := utxpool.DefaultAssemblerConfig()
	asmCfg.MaxBlockTxs = *maxBlockTxs
	if *generator != "" {
		addr, err := types.AddressFromBase58(*generator)
		if err != nil {
			log.Fatalf("Bad generator address: %v", err)
		}
		asmCfg.Generator = addr
	}
	assembler := utxpool.NewAssembler(asmCfg, ledger, pool, ap, statuses)

	log.Printf("Ledger ready, assembling a block every %s", *blockInterval)

	// Status line every 10 blocks' worth of time.
	go func() {
		ticker := time.NewTicker(10 * *blockInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Printf("Status: pooled=%d priority=%d", pool.Len(), pool.PriorityLen())
			}
		}
	}()

	blocksAssembled := 0
	ticker := time.NewTicker(*blockInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("Assembled %d blocks total", blocksAssembled)
			if *exportSnapshot != "" {
				log.Printf("Exporting snapshot to %s", *exportSnapshot)
				if err := ledger.ExportSnapshot(*exportSnapshot); err != nil {
					log.Printf("Failed to export snapshot: %v", err)
				}
			}
			log.Println("wavesnode stopped")
			return
		case <-ticker.C:
			if pool.Len() == 0 {
				continue
			}
			res, err := assembler.AssembleBlock()
			if err != nil {
				log.Printf("Block assembly failed: %v", err)
				continue
			}
			blocksAssembled++
			log.Printf("Block %d: txs=%d invalid=%d fees=%d hash=%s",
				res.Height, len(res.Results), res.Invalid, res.FeeTotal, res.StateHash.String())
		}
	}
}
