// Command verify loads the full road graph and prints its connectivity,
// optionally failing when the largest component covers less of the graph
// than a required fraction.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"rescuenav/internal/store"
)

func main() {
	minFraction := flag.Float64("min-fraction", 0, "fail unless the largest component covers at least this fraction")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DATABASE_URL required")
	}
	sp, err := store.NewPostgres(dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	g, err := sp.LoadFullGraph(ctx)
	if err != nil {
		log.Fatalf("load graph: %v", err)
	}
	conn := g.Connectivity()
	fmt.Printf("nodes=%d edges=%d components=%d largestFraction=%.4f\n",
		len(g.Nodes), len(g.Edges), conn.ComponentCount, conn.LargestComponentFraction)
	if *minFraction > 0 && conn.LargestComponentFraction < *minFraction {
		log.Fatalf("largest component %.4f below required %.4f", conn.LargestComponentFraction, *minFraction)
	}
}
