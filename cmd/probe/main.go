// Command probe checks a running server end to end: gRPC health first, then
// a real search over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"brokerhub/core/internal/search"
)

func main() {
	grpcAddr := flag.String("grpc", "localhost:9090", "gRPC health address")
	httpBase := flag.String("http", "http://localhost:8080", "HTTP base URL")
	text := flag.String("q", "forex", "search text")
	timeout := flag.Duration("timeout", 15*time.Second, "overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Printf("=== Probe ===\n")

	fmt.Println("[1] gRPC health check...")
	if err := checkGRPC(ctx, *grpcAddr); err != nil {
		log.Fatalf("grpc health: %v", err)
	}
	fmt.Println("    SERVING")

	fmt.Printf("[2] GET /search?q=%s ...\n", *text)
	first, err := searchOnce(ctx, *httpBase, *text)
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	fmt.Printf("    %d brokers (cached=%v)\n", len(first.Brokers), first.Cached)

	fmt.Println("[3] repeat search, expecting a cache hit...")
	second, err := searchOnce(ctx, *httpBase, *text)
	if err != nil {
		log.Fatalf("search: %v", err)
	}
	if !second.Cached {
		fmt.Println("    FAIL: second search was not served from cache")
		os.Exit(1)
	}
	fmt.Println("    cached")
	fmt.Println("\n=== Probe passed ===")
}

func checkGRPC(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("status %s", resp.GetStatus())
	}
	return nil
}

func searchOnce(ctx context.Context, base, text string) (search.Result, error) {
	var res search.Result
	u := base + "/search?q=" + url.QueryEscape(text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return res, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("status %s", resp.Status)
	}
	err = json.NewDecoder(resp.Body).Decode(&res)
	return res, err
}
