// Package lsmkv is an embedded, single-node LSM-tree key-value store.
//
// Writes go through a write-ahead log into an in-memory memtable (several
// interchangeable backends) and spill to immutable, bloom-filter-guarded
// Parquet segments when the memtable fills. A background loop k-way-merges
// overlapping segments into deeper levels. Reads probe the memtable first,
// then the levels newest to oldest.
//
//	db, err := lsmkv.Open("data", func(o *lsmkv.Options) {
//		o.MemtableVariant = memtable.VariantSkipList
//		o.WALSyncMode = wal.SyncModeBatch
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	ctx := context.Background()
//	if err := db.Put(ctx, "answer", "42"); err != nil {
//		log.Fatal(err)
//	}
//
//	value, err := db.Get(ctx, "answer")
//	if errors.Is(err, lsmkv.ErrNotFound) {
//		// absent key, not a failure
//	}
package lsmkv
