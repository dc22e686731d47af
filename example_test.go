package vexdb_test

import (
	"context"
	"fmt"
	"log"
	"time"

	vexdb "github.com/vexdb/vexdb-go"
	"github.com/vexdb/vexdb-go/protocol"
)

// Example demonstrates a standalone connection: dial, authenticate, work in
// a space, close.
func Example() {
	ctx := context.Background()

	client, err := vexdb.Connect(ctx, "localhost:7801", "admin", "secret")
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	if err := client.UseSpace(ctx, "docs"); err != nil {
		log.Fatal(err)
	}

	if err := client.Put(ctx, "greeting", protocol.String("hello")); err != nil {
		log.Fatal(err)
	}

	value, found, err := client.Get(ctx, "greeting")
	if err != nil {
		log.Fatal(err)
	}
	if found {
		s, _ := value.AsString()
		fmt.Println(s)
	}
}

// ExampleNewPool shows the pooled usage pattern most applications want:
// acquire-use-release bundled by With, sized and bounded by PoolConfig.
func ExampleNewPool() {
	ctx := context.Background()

	pool, err := vexdb.NewPool(ctx, vexdb.PoolConfig{
		Addr:           "localhost:7801",
		Username:       "admin",
		Password:       "secret",
		MinSize:        2,
		MaxSize:        10,
		AcquireTimeout: 5 * time.Second,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	err = pool.WithClient(ctx, func(client *vexdb.Client) error {
		results, err := client.SearchTopK(ctx, []float64{0.1, 0.2, 0.3}, vexdb.SearchOptions{
			K:     5,
			Space: "embeddings",
		})
		if err != nil {
			return err
		}
		for _, r := range results {
			fmt.Printf("id=%d distance=%g\n", r.ID, r.Distance)
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	stats := pool.Stats()
	fmt.Printf("idle=%d active=%d\n", stats.IdleConns, stats.ActiveConns)
}

// ExampleNewBreakerPool wraps a pool with a circuit breaker so a dead
// server fails fast instead of burning the acquire timeout per call.
func ExampleNewBreakerPool() {
	ctx := context.Background()

	inner, err := vexdb.NewPool(ctx, vexdb.PoolConfig{
		Addr:     "localhost:7801",
		Username: "admin",
		Password: "secret",
	})
	if err != nil {
		log.Fatal(err)
	}

	pool := vexdb.NewBreakerPool(inner, vexdb.BreakerConfig{
		Timeout: 10 * time.Second,
	})
	defer pool.Close()

	err = pool.With(ctx, func(conn *vexdb.Connection) error {
		return conn.Ping(ctx)
	})
	if err != nil {
		log.Printf("ping failed: %v (breaker state: %s)", err, pool.BreakerState())
	}
}
