// Command echobench-server runs the TCP echo benchmark server using one of
// three selectable I/O engines.
package main

import (
	"flag"
	"fmt"
	"os"

	echobench "github.com/behrlich/echobench"
	"github.com/behrlich/echobench/internal/logging"
)

func main() {
	var (
		engineFlag = flag.String("m", string(echobench.EngineEpoll), "I/O engine: epoll, uring, or multishot")
		portFlag   = flag.Int("p", 9999, "TCP port to listen on")
	)
	flag.Usage = usage
	flag.Parse()

	engineName, err := echobench.ParseEngineName(*engineFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "echobench-server: %v\n", err)
		usage()
		os.Exit(1)
	}

	logger := logging.Default()

	server, err := echobench.NewServer(echobench.Options{
		Engine: engineName,
		Port:   *portFlag,
		Logger: logger,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "echobench-server: %v\n", err)
		os.Exit(1)
	}

	stop := server.Watch()
	defer stop()

	fmt.Printf("echobench-server: engine=%s port=%d\n", engineName, *portFlag)

	if err := server.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "echobench-server: %v\n", err)
		server.Close()
		os.Exit(1)
	}

	if err := server.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "echobench-server: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: echobench-server [-m epoll|uring|multishot] [-p port]\n")
	flag.PrintDefaults()
}
