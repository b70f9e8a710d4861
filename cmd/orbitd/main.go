// orbitd runs a replicating peer: it listens for gossip on a TCP bus,
// dials any configured peers, opens one database, and keeps it open until
// interrupted.
//
// Generalizes the teacher's cmd/server, which opened a single Kademlia
// node and idled under a fixed sleep; here the node is the gossip bus
// itself and shutdown is signal-driven rather than timed.
package main

import (
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	logs "github.com/danmuck/smplog"

	"github.com/praveenmunagapati/orbit-db/cmd/internal/logcfg"
	"github.com/praveenmunagapati/orbit-db/src/bus"
	"github.com/praveenmunagapati/orbit-db/src/manager"
	"github.com/praveenmunagapati/orbit-db/src/manifest"
)

func main() {
	logs.Configure(logcfg.Load())

	var (
		listen     = flag.String("listen", "localhost:3000", "gossip bus listen address")
		peers      = flag.String("peers", "", "comma-separated peer addresses to gossip with")
		identityID = flag.String("identity", "orbitd", "keystore identity id")
		dataDir    = flag.String("data", "./local/orbitd", "root directory for keystore, cache, and object store")
		dbName     = flag.String("db", "log-1", "database name or address to open")
		dbType     = flag.String("type", string(manifest.EventLog), "database type when creating")
	)
	flag.Parse()

	tcp := bus.NewTCP(*listen)
	if err := tcp.ListenAndAccept(); err != nil {
		logs.Errorf(err, "orbitd: listen on %s", *listen)
		return
	}
	defer tcp.Close()

	for _, p := range strings.Split(*peers, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			tcp.AddPeer(p)
		}
	}

	mgr, err := manager.New(manager.Config{
		IdentityID:     *identityID,
		KeystoreDir:    *dataDir + "/keystore",
		CacheDir:       *dataDir + "/cache",
		ObjectStoreDir: *dataDir + "/objects",
		Bus:            tcp,
	})
	if err != nil {
		logs.Errorf(err, "orbitd: manager init")
		return
	}
	defer mgr.Close()

	st, err := mgr.Open(*dbName, manager.Options{Create: true, Type: manifest.Type(*dbType)})
	if err != nil {
		logs.Errorf(err, "orbitd: open %s", *dbName)
		return
	}
	logs.Infof("orbitd: serving %s on %s", st.Address(), *listen)

	st.OnEvent(func(event string, data any) {
		logs.Debugf("orbitd: %s event on %s: %v", event, st.Address(), data)
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logs.Infof("orbitd: shutting down")
}
