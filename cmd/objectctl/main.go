// objectctl is a small CLI for inspecting and populating a file-backed
// object store directly, bypassing the database manager: put a file and
// print its content hash, or fetch by hash and print the bytes.
//
// Generalizes the verb-dispatch shape of the teacher's cmd/storage (store,
// view, stats) down to the two primitives the Object Store external
// interface actually exposes (spec.md §6): put and get.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	logs "github.com/danmuck/smplog"

	"github.com/praveenmunagapati/orbit-db/cmd/internal/logcfg"
	"github.com/praveenmunagapati/orbit-db/src/objectstore"
)

func usage() {
	fmt.Println("usage: objectctl [-root dir] put <file> | get <hash>")
}

func main() {
	logs.Configure(logcfg.Load())

	root := "./local/objects"
	args := os.Args[1:]
	if len(args) >= 2 && args[0] == "-root" {
		root = args[1]
		args = args[2:]
	}
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}

	store, err := objectstore.NewFileStore(root)
	if err != nil {
		logs.Fatalf(err, "objectctl: open object store at %s", root)
	}

	switch args[0] {
	case "put":
		data, err := os.ReadFile(args[1])
		if err != nil {
			logs.Fatalf(err, "objectctl: read %s", args[1])
		}
		h, err := store.Put(data)
		if err != nil {
			logs.Fatalf(err, "objectctl: put")
		}
		logs.Field("hash", h.String())
		fmt.Println(h.String())

	case "get":
		raw, err := hex.DecodeString(args[1])
		if err != nil {
			logs.Fatalf(err, "objectctl: parse hash %s", args[1])
		}
		var h objectstore.Hash
		copy(h[:], raw)
		data, err := store.Get(h)
		if err != nil {
			logs.Fatalf(err, "objectctl: get %s", args[1])
		}
		os.Stdout.Write(data)

	default:
		usage()
		os.Exit(1)
	}
}
