// Command demoserver starts a local stand-in for the scanning service so the
// CLI and API can be tried without an API key.
// Usage: go run ./cmd/demoserver [port]
// Default port: 9999
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/sentinelapp/sentinel/internal/demoserver"
)

func main() {
	cfg := demoserver.DefaultConfig()

	// Optional: custom port from command line
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	fmt.Println("===========================================")
	fmt.Println("   Sentinel Demo Scanning Service")
	fmt.Println("===========================================")
	fmt.Println()
	fmt.Printf("Analyses complete after %d polls. Engines:\n", cfg.PollsToComplete)
	for _, e := range demoserver.Engines() {
		fmt.Printf("  - %s\n", e.Name)
	}
	fmt.Println()
	fmt.Println("Try it:")
	fmt.Printf("  sentinel --base-url http://localhost:%d --api-key demo scan url https://malware.example/\n", cfg.Port)
	fmt.Printf("  analyses: http://localhost:%d/demo/analyses\n", cfg.Port)
	fmt.Println()

	server := demoserver.NewDemoServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
