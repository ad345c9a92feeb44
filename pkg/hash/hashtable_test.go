package hash_test

import (
	"math/rand"
	"path/filepath"
	"testing"

	"golang.org/x/sync/errgroup"

	"hashdb/pkg/buffer"
	"hashdb/pkg/disk"
	"hashdb/pkg/entry"
	"hashdb/pkg/hash"
)

// =====================================================================
// HELPERS
// =====================================================================

// setupTable creates a fresh int64 hash table over a buffer pool with the
// given number of frames.
func setupTable(t *testing.T, poolSize int) *hash.HashTable[int64, int64] {
	t.Helper()
	dm, err := disk.NewManager(filepath.Join(t.TempDir(), "hash.db"))
	if err != nil {
		t.Fatal("failed to create disk manager:", err)
	}
	t.Cleanup(func() { _ = dm.Close() })
	pool := buffer.NewBufferPool(poolSize, dm)
	return hash.NewHashTable("test", pool, hash.Int64Comparator, hash.XxHasher, hash.Int64Codec())
}

// insertPair inserts (key, value) and fails the test unless the outcome
// matches want.
func insertPair(t *testing.T, table *hash.HashTable[int64, int64], key, value int64, want bool) {
	t.Helper()
	ok, err := table.Insert(nil, key, value)
	if err != nil {
		t.Fatalf("insert (%d, %d) errored: %v", key, value, err)
	}
	if ok != want {
		t.Fatalf("insert (%d, %d) = %v, want %v", key, value, ok, want)
	}
}

// removePair removes (key, value) and fails the test unless the outcome
// matches want.
func removePair(t *testing.T, table *hash.HashTable[int64, int64], key, value int64, want bool) {
	t.Helper()
	ok, err := table.Remove(nil, key, value)
	if err != nil {
		t.Fatalf("remove (%d, %d) errored: %v", key, value, err)
	}
	if ok != want {
		t.Fatalf("remove (%d, %d) = %v, want %v", key, value, ok, want)
	}
}

// getValues looks up a key, failing the test on error.
func getValues(t *testing.T, table *hash.HashTable[int64, int64], key int64) []int64 {
	t.Helper()
	values, err := table.GetValue(nil, key)
	if err != nil {
		t.Fatalf("get %d errored: %v", key, err)
	}
	return values
}

// checkSingleValue asserts a key maps to exactly one expected value.
func checkSingleValue(t *testing.T, table *hash.HashTable[int64, int64], key, want int64) {
	t.Helper()
	values := getValues(t, table, key)
	if len(values) != 1 || values[0] != want {
		t.Fatalf("get %d = %v, want [%d]", key, values, want)
	}
}

// verify fails the test when the directory invariants don't hold.
func verify(t *testing.T, table *hash.HashTable[int64, int64]) {
	t.Helper()
	if err := table.VerifyIntegrity(); err != nil {
		t.Fatal("integrity check failed:", err)
	}
}

// =====================================================================
// TESTS
// =====================================================================

func TestHashTableSample(t *testing.T) {
	t.Parallel()
	table := setupTable(t, 50)

	for i := int64(0); i < 5; i++ {
		insertPair(t, table, i, i, true)
		checkSingleValue(t, table, i, i)
	}

	// Exact duplicates are rejected; same key with a new value is not.
	insertPair(t, table, 0, 0, false)
	for i := int64(1); i < 5; i++ {
		insertPair(t, table, i, 2*i, true)
	}
	checkSingleValue(t, table, 0, 0)
	for i := int64(1); i < 5; i++ {
		values := getValues(t, table, i)
		if len(values) != 2 {
			t.Fatalf("get %d = %v, want two values", i, values)
		}
		if !((values[0] == i && values[1] == 2*i) || (values[0] == 2*i && values[1] == i)) {
			t.Fatalf("get %d = %v, want %d and %d", i, values, i, 2*i)
		}
	}

	for i := int64(0); i < 5; i++ {
		removePair(t, table, i, i, true)
	}
	if got := getValues(t, table, 0); len(got) != 0 {
		t.Fatalf("get 0 after remove = %v, want empty", got)
	}
	for i := int64(1); i < 5; i++ {
		checkSingleValue(t, table, i, 2*i)
	}
	removePair(t, table, 0, 0, false)
	verify(t, table)
}

func TestHashTableGrowSmallPool(t *testing.T) {
	t.Parallel()
	// Four frames are enough: a split pins the directory plus two buckets.
	table := setupTable(t, 4)

	for i := int64(0); i < 500; i++ {
		insertPair(t, table, i, i, true)
		checkSingleValue(t, table, i, i)
	}
	verify(t, table)
	for i := int64(0); i < 500; i++ {
		checkSingleValue(t, table, i, i)
	}
	verify(t, table)
}

func TestHashTableRemoveIdempotence(t *testing.T) {
	t.Parallel()
	table := setupTable(t, 10)
	insertPair(t, table, 1, 1, true)
	insertPair(t, table, 1, 2, true)
	removePair(t, table, 1, 1, true)
	removePair(t, table, 1, 1, false)
	checkSingleValue(t, table, 1, 2)
	verify(t, table)
}

func TestHashTableIdenticalKeySplit(t *testing.T) {
	t.Parallel()
	table := setupTable(t, 20)
	capacity := int64(hash.BucketCapacity(hash.Int64Codec().PairSize()))

	// Duplicate keys with distinct values all land in one bucket.
	for j := int64(0); j < capacity; j++ {
		insertPair(t, table, -1, j, true)
	}
	if got := getValues(t, table, -1); int64(len(got)) != capacity {
		t.Fatalf("expected %d values under key -1, got %d", capacity, len(got))
	}

	// Splitting cannot separate identical hashes; once the bucket's local
	// depth reaches the maximum, the overflowing insert reports failure.
	insertPair(t, table, -1, capacity, false)
	verify(t, table)
	depth, err := table.GlobalDepth()
	if err != nil {
		t.Fatal(err)
	}
	if depth > 9 {
		t.Fatalf("global depth %d exceeds the maximum", depth)
	}
}

func TestHashTableGrowShrink(t *testing.T) {
	t.Parallel()
	table := setupTable(t, 20)
	const dataSize = 1000

	for i := int64(0); i < dataSize; i++ {
		insertPair(t, table, i, i, true)
	}
	grownDepth, err := table.GlobalDepth()
	if err != nil {
		t.Fatal(err)
	}
	if grownDepth <= 1 {
		t.Fatalf("expected the directory to grow past depth 1, got %d", grownDepth)
	}

	for i := int64(0); i < dataSize; i += 2 {
		removePair(t, table, i, i, true)
	}
	verify(t, table)

	for i := int64(1); i < dataSize; i += 2 {
		checkSingleValue(t, table, i, i)
		removePair(t, table, i, i, true)
	}
	verify(t, table)

	for i := int64(0); i < dataSize; i++ {
		if got := getValues(t, table, i); len(got) != 0 {
			t.Fatalf("get %d after full deletion = %v, want empty", i, got)
		}
	}
	shrunkDepth, err := table.GlobalDepth()
	if err != nil {
		t.Fatal(err)
	}
	if shrunkDepth > 1 {
		t.Fatalf("global depth %d after full deletion, want <= 1", shrunkDepth)
	}
}

func TestHashTableRoundTrip(t *testing.T) {
	t.Parallel()
	table := setupTable(t, 30)

	// Multiset semantics: every distinct (key, value) pair survives.
	rng := rand.New(rand.NewSource(0xdb))
	want := make(map[int64]map[int64]bool)
	for i := 0; i < 2000; i++ {
		key := rng.Int63n(300)
		value := rng.Int63n(1000)
		if want[key] == nil {
			want[key] = make(map[int64]bool)
		}
		insertPair(t, table, key, value, !want[key][value])
		want[key][value] = true
	}
	for key, values := range want {
		got := getValues(t, table, key)
		if len(got) != len(values) {
			t.Fatalf("key %d has %d values, want %d", key, len(got), len(values))
		}
		for _, v := range got {
			if !values[v] {
				t.Fatalf("key %d returned value %d that was never inserted", key, v)
			}
		}
	}
	verify(t, table)
}

func TestHashTableReinsertAfterCollapse(t *testing.T) {
	t.Parallel()
	table := setupTable(t, 30)
	const dataSize = 5000

	for round := 0; round < 2; round++ {
		for i := int64(0); i < dataSize; i++ {
			insertPair(t, table, i, i, true)
		}
		verify(t, table)
		for i := int64(0); i < dataSize; i++ {
			checkSingleValue(t, table, i, i)
			removePair(t, table, i, i, true)
		}
		verify(t, table)
	}
	for i := int64(0); i < dataSize; i++ {
		insertPair(t, table, i, i, true)
	}
	for i := int64(0); i < dataSize; i++ {
		checkSingleValue(t, table, i, i)
	}
	depth, err := table.GlobalDepth()
	if err != nil {
		t.Fatal(err)
	}
	if depth >= 9 {
		t.Fatalf("global depth %d should sit well below the maximum", depth)
	}
	verify(t, table)
}

func TestHashTableConcurrent(t *testing.T) {
	t.Parallel()
	table := setupTable(t, 50)
	const numWorkers = 6
	const preservedMax = 5000

	// The preserved set: every 10th key, inserted before the workers launch.
	var preserved []int64
	for key := int64(10); key <= preservedMax; key += 10 {
		insertPair(t, table, key, key, true)
		preserved = append(preserved, key)
	}

	var group errgroup.Group
	for worker := 0; worker < numWorkers; worker++ {
		worker := worker
		group.Go(func() error {
			rng := rand.New(rand.NewSource(int64(worker)))
			for i := 0; i < 2000; i++ {
				// Dynamic keys are odd so they never touch the preserved set.
				key := rng.Int63n(1<<16)*2 + 1
				switch i % 3 {
				case 0:
					if _, err := table.Insert(nil, key, key); err != nil {
						return err
					}
				case 1:
					if _, err := table.Remove(nil, key, key); err != nil {
						return err
					}
				default:
					probe := preserved[rng.Intn(len(preserved))]
					values, err := table.GetValue(nil, probe)
					if err != nil {
						return err
					}
					if len(values) != 1 || values[0] != probe {
						t.Errorf("preserved key %d lost: got %v", probe, values)
					}
				}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		t.Fatal("concurrent workload errored:", err)
	}

	for _, key := range preserved {
		checkSingleValue(t, table, key, key)
	}
	verify(t, table)
}

func TestHashTableBlobKeys(t *testing.T) {
	t.Parallel()
	dm, err := disk.NewManager(filepath.Join(t.TempDir(), "blob.db"))
	if err != nil {
		t.Fatal("failed to create disk manager:", err)
	}
	t.Cleanup(func() { _ = dm.Close() })
	pool := buffer.NewBufferPool(10, dm)
	table := hash.NewHashTable("blobs", pool, hash.BlobComparator, hash.BlobHasher, hash.BlobCodec(8))

	rid := func(p, s int32) entry.RID { return entry.RID{PageID: p, SlotNum: s} }
	keys := []string{"alfa\x00\x00\x00\x00", "bravo\x00\x00\x00", "charlie\x00"}
	for i, key := range keys {
		ok, err := table.Insert(nil, key, rid(int32(i), int32(i)))
		if err != nil || !ok {
			t.Fatalf("insert blob key %q failed: %v", key, err)
		}
	}
	for i, key := range keys {
		values, err := table.GetValue(nil, key)
		if err != nil || len(values) != 1 || values[0] != rid(int32(i), int32(i)) {
			t.Fatalf("get blob key %q = %v (%v)", key, values, err)
		}
	}
	ok, err := table.Remove(nil, keys[0], rid(0, 0))
	if err != nil || !ok {
		t.Fatalf("remove blob key failed: %v", err)
	}
	if err := table.VerifyIntegrity(); err != nil {
		t.Fatal("integrity check failed:", err)
	}
}
