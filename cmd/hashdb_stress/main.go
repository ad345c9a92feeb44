// Stress driver for the hash index: hammers a shared index from several
// workers while a preserved key set must stay fully retrievable.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"hashdb/pkg/concurrency"
	"hashdb/pkg/hash"
)

var MAX_DELAY int64 = 10

// Get delay jitter.
func jitter() time.Duration {
	return time.Duration(rand.Int63n(MAX_DELAY)+1) * time.Microsecond
}

func main() {
	// Set up flags.
	var threadsFlag = flag.Int("threads", 6, "number of worker goroutines")
	var opsFlag = flag.Int("ops", 10000, "operations per worker")
	var preservedFlag = flag.Int("preserved", 5000, "size of the preserved key set")
	var dbFlag = flag.String("db", "data/stress.db", "database file")
	flag.Parse()

	// Clean up old db resources.
	os.Remove(*dbFlag)
	os.Remove(*dbFlag + ".meta")

	index, err := hash.OpenInt64Index(*dbFlag)
	if err != nil {
		log.Fatalf("failed to open index: %v", err)
	}
	defer index.Close()

	// Seed the preserved set before the workers launch; every 10th key is
	// checked for retrievability throughout the run.
	setup := concurrency.NewTransaction()
	preserved := make([]int64, 0, *preservedFlag)
	for i := 1; i <= *preservedFlag; i++ {
		key := int64(i * 10)
		if _, err := index.Insert(setup, key, key); err != nil {
			log.Fatalf("failed to seed preserved key %d: %v", key, err)
		}
		preserved = append(preserved, key)
	}
	log.Printf("seeded %d preserved keys", len(preserved))

	start := time.Now()
	var group errgroup.Group
	for worker := 0; worker < *threadsFlag; worker++ {
		worker := worker
		group.Go(func() error {
			txn := concurrency.NewTransaction()
			rng := rand.New(rand.NewSource(int64(worker) + 1))
			for i := 0; i < *opsFlag; i++ {
				time.Sleep(jitter())
				// Dynamic keys are odd so they never collide with the
				// preserved set.
				key := rng.Int63n(1<<20)*2 + 1
				switch i % 3 {
				case 0:
					if _, err := index.Insert(txn, key, key); err != nil {
						return fmt.Errorf("worker %d insert (%d, %d): %w", worker, key, key, err)
					}
				case 1:
					if _, err := index.Remove(txn, key, key); err != nil {
						return fmt.Errorf("worker %d remove (%d, %d): %w", worker, key, key, err)
					}
				default:
					probe := preserved[rng.Intn(len(preserved))]
					values, err := index.Find(txn, probe)
					if err != nil {
						return fmt.Errorf("worker %d find %d: %w", worker, probe, err)
					}
					if len(values) == 0 {
						return fmt.Errorf("worker %d lost preserved key %d", worker, probe)
					}
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		log.Fatalf("stress run failed: %v", err)
	}
	log.Printf("%d workers x %d ops in %s", *threadsFlag, *opsFlag, time.Since(start))

	// Final sweep: every preserved key retrievable, directory invariants hold.
	check := concurrency.NewTransaction()
	for _, key := range preserved {
		values, err := index.Find(check, key)
		if err != nil {
			log.Fatalf("final find %d: %v", key, err)
		}
		if len(values) == 0 {
			log.Fatalf("preserved key %d missing after run", key)
		}
	}
	if err := index.GetTable().VerifyIntegrity(); err != nil {
		log.Fatalf("integrity check failed: %v", err)
	}
	depth, err := index.GetTable().GlobalDepth()
	if err != nil {
		log.Fatalf("failed to read global depth: %v", err)
	}
	log.Printf("integrity ok, global depth %d", depth)
}
