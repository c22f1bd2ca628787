package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"spibus/host/bridge"
	"spibus/host/serial"
)

var (
	device  = flag.String("device", "/dev/ttyACM0", "Serial device path")
	baud    = flag.Int("baud", 250000, "Baud rate (ignored for USB CDC)")
	timeout = flag.Duration("timeout", bridge.DefaultResponseTimeout, "Wait for transfer responses")
	script  = flag.String("c", "", "Run the given ';' separated commands and exit")
)

func main() {
	flag.Parse()

	cfg := serial.DefaultConfig(*device)
	cfg.Baud = *baud
	port, err := serial.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	b := bridge.New(port)
	defer b.Close()
	b.SetTimeout(*timeout)

	// Give the firmware time to enumerate after a port open reset
	time.Sleep(100 * time.Millisecond)

	sh := &shell{bridge: b, out: os.Stdout}

	if *script != "" {
		if err := sh.runScript(*script); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			b.Close()
			os.Exit(1)
		}
		return
	}

	fmt.Printf("Connected to %s. Type 'help' for commands.\n", *device)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		err := sh.exec(scanner.Text())
		if err == errQuit {
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}
