// Command cardmindd is the reference CLI/daemon for this core: it
// wires every package (identity, storage, pool, card, trust,
// discovery, sync) into one process, the same role the teacher's
// cmd/vaultd/main.go plays for vaultd. Grounded on that file's
// flag.NewFlagSet-per-subcommand dispatch and signal-driven daemon
// shutdown; the subcommand set is regrouped around this core's
// card/pool/trust/sync vocabulary instead of vaultd's flat entry
// model, and the HTTP "serve" subcommand is dropped since the
// command/FFI surface is an explicit non-goal here (spec §1) — an
// embedder wanting HTTP builds it on top of internal/boundary.Commands
// rather than finding it already built in.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cardmind/core/internal/cache"
	"github.com/cardmind/core/internal/card"
	"github.com/cardmind/core/internal/coordinator"
	"github.com/cardmind/core/internal/core"
	"github.com/cardmind/core/internal/deviceconfig"
	"github.com/cardmind/core/internal/discovery"
	"github.com/cardmind/core/internal/docstore"
	"github.com/cardmind/core/internal/exportimport"
	"github.com/cardmind/core/internal/identity"
	"github.com/cardmind/core/internal/logging"
	"github.com/cardmind/core/internal/pool"
	"github.com/cardmind/core/internal/pwhash"
	"github.com/cardmind/core/internal/syncmanager"
	"github.com/cardmind/core/internal/syncservice"
	"github.com/cardmind/core/internal/transport"
	"github.com/cardmind/core/internal/trust"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/peer"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "daemon":
		cmdDaemon(args)
	case "card":
		cmdCard(args)
	case "pool":
		cmdPool(args)
	case "trust":
		cmdTrust(args)
	case "export":
		cmdExport(args)
	case "import":
		cmdImport(args)
	case "status":
		cmdStatus(args)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`cardmindd - local-first card sync core

Usage: cardmindd <command> [options]

Commands:
  daemon   Start the sync daemon (discovers and syncs with pool peers on LAN)
  card     add | get | list | update | delete | restore
  pool     create | add-member | remove-member | join | leave | list
  trust    list | add | remove
  export   Export all cards as JSON
  import   Import cards from a JSON array, last-write-wins merge
  status   Show device, pool, and peer status
  help     Show this help

Examples:
  cardmindd card add --title Groceries --body "milk, eggs"
  cardmindd pool create --name Family --password "correct horse battery"
  cardmindd daemon --data ~/.cardmindd`)
}

func defaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cardmindd")
}

func dataDirFlag(fs *flag.FlagSet) *string {
	return fs.String("data", defaultDataDir(), "Data directory")
}

// components bundles every opened dependency a subcommand needs.
// Close releases the cache; the transport host and the sync/discovery
// services that cmdDaemon builds on top are closed and stopped there.
type components struct {
	dataDir string
	cache   *cache.Cache
	docs    *docstore.Store
	cfg     *deviceconfig.Manager
	id      *identity.Identity
	cards   *card.Store
	pools   *pool.Store
	trusted *trust.List
}

func (c *components) Close() {
	c.cache.Close()
}

func openComponents(dataDir string) *components {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		log.Fatalf("creating data directory: %v", err)
	}

	id, err := identity.Open(dataDir)
	if err != nil {
		log.Fatalf("opening identity: %v", err)
	}
	peerID := id.PeerID()

	c, err := cache.Open(filepath.Join(dataDir, "cache.db"))
	if err != nil {
		log.Fatalf("opening cache: %v", err)
	}

	d, err := docstore.Open(filepath.Join(dataDir, "docs"))
	if err != nil {
		log.Fatalf("opening docstore: %v", err)
	}
	// The cache never learns about a pool-owned card any other way: this
	// is the single choke point spec §4.2 requires between the CRDT
	// layer and the relational cache, covering both local pool writes
	// and cards an inbound sync delta applies.
	d.Subscribe(func(_ uuid.UUID, card core.Card) {
		if err := c.PutCard(card); err != nil {
			log.Printf("cache write for card %s failed: %v", card.ID, err)
		}
	})

	cfg, err := deviceconfig.Open(dataDir, peerID, hostnameOr("cardmindd"))
	if err != nil {
		log.Fatalf("opening device config: %v", err)
	}

	return &components{
		dataDir: dataDir,
		cache:   c,
		docs:    d,
		cfg:     cfg,
		id:      id,
		cards:   card.New(c, d, peerID),
		pools:   pool.New(c, d, peerID),
		trusted: trust.New(c),
	}
}

func hostnameOr(fallback string) string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return fallback
	}
	return name
}

// loggingListener implements discovery.Listener: on Discovered it
// records the peer as Online in the coordinator (no dial); on Expired it
// just logs, leaving the coordinator's own staleness sweep
// (housekeepingLoop's CleanupOffline) to remove long-dead peers.
type loggingListener struct {
	svc *syncservice.Service
}

func (l *loggingListener) Discovered(ev discovery.Event) {
	log.Printf("discovered peer %s (%d addrs)", ev.PeerID, len(ev.Addrs))
	l.svc.ConnectToPeer(ev.PeerID)
}

func (l *loggingListener) Expired(ev discovery.Event) {
	log.Printf("peer %s went quiet", ev.PeerID)
}

func cmdDaemon(args []string) {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	dataDir := dataDirFlag(fs)
	listenAddr := fs.String("listen", "/ip4/0.0.0.0/tcp/0", "libp2p listen multiaddr")
	discoveryMinutes := fs.Int("discovery-minutes", 0, "Activate discovery for N minutes on startup (0 = leave as-is)")
	fs.Parse(args)

	comps := openComponents(*dataDir)
	defer comps.Close()

	h, err := transport.New(comps.id.PrivateKey(), []string{*listenAddr})
	if err != nil {
		log.Fatalf("starting transport: %v", err)
	}
	defer h.Close()

	zapLog, syncZap, err := logging.NewZap()
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer syncZap()

	syncMgr := syncmanager.New(comps.pools, comps.docs, comps.id.PeerID())
	coord := coordinator.New()

	// listener's svc field is filled in after syncSvc exists: discovery
	// needs a listener at construction time, and syncservice needs a
	// discovery.Service at construction time, so the listener is the
	// one piece built before its dependency is ready.
	listener := &loggingListener{}
	discSvc := discovery.New(h, comps.cfg, comps.trusted, listener, discovery.WithLogger(zapLog))
	syncSvc := syncservice.New(h, comps.cfg, syncMgr, coord, discSvc, syncservice.WithLogger(zapLog))
	listener.svc = syncSvc

	if *discoveryMinutes > 0 {
		comps.cfg.ActivateDiscovery(time.Now().Add(time.Duration(*discoveryMinutes) * time.Minute).UnixMilli())
	}

	ctx, cancel := context.WithCancel(context.Background())
	syncSvc.Start(ctx)

	log.Printf("cardmindd daemon started, peer id %s", comps.id.PeerID())
	log.Printf("listening on: %v", h.Addrs())

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			stats := syncSvc.GetSyncStatus()
			log.Printf("peers: %d online, %d syncing, %d offline", stats.Online, stats.Syncing, stats.Offline)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("shutting down...")
	cancel()
	syncSvc.Stop()
}

func cmdCard(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: cardmindd card <add|get|list|update|delete|restore> [options]")
		os.Exit(1)
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("card", flag.ExitOnError)
	dataDir := dataDirFlag(fs)

	switch sub {
	case "add":
		title := fs.String("title", "", "Card title")
		body := fs.String("body", "", "Card body")
		poolID := fs.String("pool", "", "Pool id (omit for a local-only card)")
		fs.Parse(rest)

		comps := openComponents(*dataDir)
		defer comps.Close()

		if *poolID != "" {
			pid, err := uuid.Parse(*poolID)
			if err != nil {
				log.Fatalf("invalid pool id: %v", err)
			}
			c, err := comps.cards.CreatePool(pid, *title, *body)
			exitOnErr(err)
			printCard(c)
			return
		}
		c, err := comps.cards.CreateLocal(*title, *body)
		exitOnErr(err)
		printCard(c)

	case "get":
		fs.Parse(rest)
		if fs.NArg() < 1 {
			log.Fatal("Usage: cardmindd card get <id>")
		}
		id, err := uuid.Parse(fs.Arg(0))
		exitOnErr(err)

		comps := openComponents(*dataDir)
		defer comps.Close()
		c, err := comps.cards.Get(id)
		exitOnErr(err)
		printCard(c)

	case "list":
		poolID := fs.String("pool", "", "Filter by pool id")
		tag := fs.String("tag", "", "Filter by tag")
		fs.Parse(rest)

		comps := openComponents(*dataDir)
		defer comps.Close()

		filter := cache.CardFilter{}
		if *poolID != "" {
			pid, err := uuid.Parse(*poolID)
			exitOnErr(err)
			filter.PoolID = &pid
		}
		if *tag != "" {
			filter.Tag = tag
		}
		cards, err := comps.cards.List(filter)
		exitOnErr(err)
		for _, c := range cards {
			fmt.Printf("%s  %-40s  %s\n", c.ID.String()[:8], truncate(c.Title, 40), c.Owner)
		}

	case "update":
		title := fs.String("title", "", "New title")
		body := fs.String("body", "", "New body")
		fs.Parse(rest)
		if fs.NArg() < 1 {
			log.Fatal("Usage: cardmindd card update <id> [--title T] [--body B]")
		}
		id, err := uuid.Parse(fs.Arg(0))
		exitOnErr(err)

		comps := openComponents(*dataDir)
		defer comps.Close()

		input := card.UpdateInput{}
		if *title != "" {
			input.Title = title
		}
		if *body != "" {
			input.Body = body
		}
		c, err := comps.cards.Update(id, input)
		exitOnErr(err)
		printCard(c)

	case "delete":
		fs.Parse(rest)
		if fs.NArg() < 1 {
			log.Fatal("Usage: cardmindd card delete <id>")
		}
		id, err := uuid.Parse(fs.Arg(0))
		exitOnErr(err)

		comps := openComponents(*dataDir)
		defer comps.Close()
		exitOnErr(comps.cards.Delete(id))
		fmt.Println("deleted.")

	case "restore":
		fs.Parse(rest)
		if fs.NArg() < 1 {
			log.Fatal("Usage: cardmindd card restore <id>")
		}
		id, err := uuid.Parse(fs.Arg(0))
		exitOnErr(err)

		comps := openComponents(*dataDir)
		defer comps.Close()
		c, err := comps.cards.Restore(id)
		exitOnErr(err)
		printCard(c)

	default:
		log.Fatalf("unknown card subcommand: %s", sub)
	}
}

func cmdPool(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: cardmindd pool <create|add-member|remove-member|join|leave|list> [options]")
		os.Exit(1)
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("pool", flag.ExitOnError)
	dataDir := dataDirFlag(fs)

	switch sub {
	case "create":
		name := fs.String("name", "", "Pool display name")
		password := fs.String("password", "", "Pool password (hashed before storage, never kept in plaintext)")
		fs.Parse(rest)

		hash, err := pwhash.Hash(*password)
		exitOnErr(err)

		comps := openComponents(*dataDir)
		defer comps.Close()
		p, err := comps.pools.Create(*name, hash)
		exitOnErr(err)
		exitOnErr(comps.cfg.JoinPool(p.ID))
		fmt.Printf("created pool %s (%s)\n", p.ID, p.Name)

	case "add-member":
		fs.Parse(rest)
		if fs.NArg() < 3 {
			log.Fatal("Usage: cardmindd pool add-member <pool-id> <peer-id> <display-name>")
		}
		pid, err := uuid.Parse(fs.Arg(0))
		exitOnErr(err)
		if _, err := peer.Decode(fs.Arg(1)); err != nil {
			log.Fatalf("invalid peer id: %v", err)
		}

		comps := openComponents(*dataDir)
		defer comps.Close()
		p, err := comps.pools.AddMember(pid, fs.Arg(1), fs.Arg(2))
		exitOnErr(err)
		fmt.Printf("pool %s now has %d member(s)\n", p.ID, len(p.Members))

	case "remove-member":
		fs.Parse(rest)
		if fs.NArg() < 2 {
			log.Fatal("Usage: cardmindd pool remove-member <pool-id> <peer-id>")
		}
		pid, err := uuid.Parse(fs.Arg(0))
		exitOnErr(err)

		comps := openComponents(*dataDir)
		defer comps.Close()
		_, err = comps.pools.RemoveMember(pid, fs.Arg(1))
		exitOnErr(err)
		fmt.Println("removed.")

	case "join":
		fs.Parse(rest)
		if fs.NArg() < 1 {
			log.Fatal("Usage: cardmindd pool join <pool-id>")
		}
		pid, err := uuid.Parse(fs.Arg(0))
		exitOnErr(err)

		comps := openComponents(*dataDir)
		defer comps.Close()
		exitOnErr(comps.cfg.JoinPool(pid))
		fmt.Println("joined.")

	case "leave":
		fs.Parse(rest)
		if fs.NArg() < 1 {
			log.Fatal("Usage: cardmindd pool leave <pool-id>")
		}
		pid, err := uuid.Parse(fs.Arg(0))
		exitOnErr(err)

		comps := openComponents(*dataDir)
		defer comps.Close()
		exitOnErr(comps.cfg.LeavePool(pid))
		fmt.Println("left.")

	case "list":
		fs.Parse(rest)
		comps := openComponents(*dataDir)
		defer comps.Close()
		pools, err := comps.pools.List()
		exitOnErr(err)
		for _, p := range pools {
			fmt.Printf("%s  %-30s  %d member(s)  %d card(s)\n", p.ID.String()[:8], p.Name, len(p.Members), len(p.CardIDs))
		}

	default:
		log.Fatalf("unknown pool subcommand: %s", sub)
	}
}

func cmdTrust(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: cardmindd trust <list|add|remove> [options]")
		os.Exit(1)
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("trust", flag.ExitOnError)
	dataDir := dataDirFlag(fs)

	switch sub {
	case "list":
		fs.Parse(rest)
		comps := openComponents(*dataDir)
		defer comps.Close()
		peers, err := comps.trusted.List()
		exitOnErr(err)
		for _, p := range peers {
			fmt.Printf("%s  %-20s  %s\n", p.PeerID, p.DisplayName, p.DeviceClass)
		}

	case "add":
		deviceClass := fs.String("class", "desktop", "Device class")
		fs.Parse(rest)
		if fs.NArg() < 2 {
			log.Fatal("Usage: cardmindd trust add <peer-id> <display-name>")
		}
		comps := openComponents(*dataDir)
		defer comps.Close()
		exitOnErr(comps.trusted.Add(fs.Arg(0), fs.Arg(1), *deviceClass, nowMillis()))
		fmt.Println("trusted.")

	case "remove":
		fs.Parse(rest)
		if fs.NArg() < 1 {
			log.Fatal("Usage: cardmindd trust remove <peer-id>")
		}
		comps := openComponents(*dataDir)
		defer comps.Close()
		exitOnErr(comps.trusted.Remove(fs.Arg(0)))
		fmt.Println("removed.")

	default:
		log.Fatalf("unknown trust subcommand: %s", sub)
	}
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dataDir := dataDirFlag(fs)
	outFile := fs.String("file", "cardmind-export.json", "Output file")
	fs.Parse(args)

	comps := openComponents(*dataDir)
	defer comps.Close()

	f, err := os.Create(*outFile)
	exitOnErr(err)
	defer f.Close()

	exitOnErr(exportimport.NewExporter(comps.cache).ExportAll(f))
	fmt.Printf("exported to %s\n", *outFile)
}

func cmdImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dataDir := dataDirFlag(fs)
	inFile := fs.String("file", "", "Input JSON file")
	fs.Parse(args)

	if *inFile == "" {
		log.Fatal("Usage: cardmindd import --file <path>")
	}

	comps := openComponents(*dataDir)
	defer comps.Close()

	f, err := os.Open(*inFile)
	exitOnErr(err)
	defer f.Close()

	result, err := exportimport.NewImporter(comps.cache).ImportAll(f)
	exitOnErr(err)
	fmt.Printf("created %d, replaced %d, tombstoned %d, kept %d\n",
		result.Created, result.Replaced, result.Tombstoned, result.Kept)
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dataDir := dataDirFlag(fs)
	fs.Parse(args)

	comps := openComponents(*dataDir)
	defer comps.Close()

	cards, _ := comps.cards.List(cache.CardFilter{})
	pools, _ := comps.pools.List()
	devCfg := comps.cfg.Config()

	fmt.Println("cardmindd status")
	fmt.Println("----------------")
	fmt.Printf("  Data dir:   %s\n", *dataDir)
	fmt.Printf("  Peer id:    %s\n", devCfg.PeerID)
	fmt.Printf("  Joined:     %v\n", devCfg.IsJoined())
	fmt.Printf("  Cards:      %d\n", len(cards))
	fmt.Printf("  Pools:      %d\n", len(pools))
}

func printCard(c core.Card) {
	data, _ := json.MarshalIndent(c, "", "  ")
	fmt.Println(string(data))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

func exitOnErr(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func nowMillis() uint64 {
	return uint64(time.Now().UnixMilli())
}
