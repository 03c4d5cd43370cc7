// Command cli is a stdin/stdout REPL over an engine instance, for
// manual testing.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/emberkv/emberkv/engine"
	"github.com/emberkv/emberkv/protocol"
)

func main() {
	var (
		basePath           = flag.String("base-path", "./data", "root directory for engine state")
		memtableLimitBytes = flag.Int("memtable-limit-bytes", 4<<20, "memtable byte threshold that triggers a flush")
		sstableLevelLimit  = flag.Int("sstable-level-limit", 4, "per-level table count that triggers compaction")
	)
	flag.Parse()

	eng, err := engine.Open(*basePath,
		engine.WithMemtableLimitBytes(*memtableLimitBytes),
		engine.WithSstableLevelLimit(*sstableLevelLimit),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open engine:", err)
		os.Exit(1)
	}
	defer eng.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cmd := protocol.Parse(scanner.Bytes())

		switch cmd.Kind {
		case protocol.Get:
			value, found, err := eng.Get(cmd.Key)
			switch {
			case err != nil:
				fmt.Println("error:", err)
			case !found:
				fmt.Println(protocol.RenderNotFound(cmd.Key))
			default:
				fmt.Println(string(value))
			}
		case protocol.Insert:
			if err := eng.Insert(cmd.Key, cmd.Value); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println(protocol.RenderOK)
			}
		case protocol.Update:
			if err := eng.Update(cmd.Key, cmd.Value); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println(protocol.RenderOK)
			}
		case protocol.Delete:
			if err := eng.Delete(cmd.Key); err != nil {
				fmt.Println("error:", err)
			} else {
				fmt.Println(protocol.RenderOK)
			}
		default:
			fmt.Println(protocol.HelpLine)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "read stdin:", err)
		os.Exit(1)
	}
}
