// orbit is a one-shot interactive client: it opens (or creates) a
// database against a local data directory, gossiping with one peer over
// TCP, and appends each line typed on stdin as a new entry.
//
// Generalizes the teacher's cmd/client, which dialed a single server and
// wrote framed protobuf RPCs to the wire; here the "connection" is a
// gossip peer relationship over src/bus.TCP and what gets written is a
// signed oplog entry, not a bare RPC frame.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	logs "github.com/danmuck/smplog"

	"github.com/praveenmunagapati/orbit-db/cmd/internal/logcfg"
	"github.com/praveenmunagapati/orbit-db/src/bus"
	"github.com/praveenmunagapati/orbit-db/src/manager"
)

func main() {
	logs.Configure(logcfg.Load())

	var (
		listen     = flag.String("listen", "localhost:3001", "gossip bus listen address")
		peer       = flag.String("peer", "localhost:3000", "peer gossip address to connect to")
		identityID = flag.String("identity", "orbit-client", "keystore identity id")
		dataDir    = flag.String("data", "./local/orbit", "root directory for keystore, cache, and object store")
		dbName     = flag.String("db", "log-1", "database name or address to open")
	)
	flag.Parse()

	tcp := bus.NewTCP(*listen)
	if err := tcp.ListenAndAccept(); err != nil {
		logs.Errorf(err, "orbit: listen on %s", *listen)
		return
	}
	defer tcp.Close()
	tcp.AddPeer(*peer)

	mgr, err := manager.New(manager.Config{
		IdentityID:     *identityID,
		KeystoreDir:    *dataDir + "/keystore",
		CacheDir:       *dataDir + "/cache",
		ObjectStoreDir: *dataDir + "/objects",
		Bus:            tcp,
	})
	if err != nil {
		logs.Errorf(err, "orbit: manager init")
		return
	}
	defer mgr.Close()

	log, err := mgr.Eventlog(*dbName, manager.Options{})
	if err != nil {
		logs.Errorf(err, "orbit: open %s", *dbName)
		return
	}
	logs.Infof("orbit: connected to %s via peer %s", log.Address(), *peer)

	fmt.Println("Connected. Type a line and press Enter to append it. Type 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		if line == "exit" {
			break
		}
		if _, err := log.Add([]byte(line)); err != nil {
			logs.Errorf(err, "orbit: append")
			continue
		}
	}
}
