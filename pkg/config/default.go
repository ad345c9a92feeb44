// Global database config.
package config

// Name of the database.
const DBName = "hashdb"

// Prompt printed by interactive tooling.
const Prompt = DBName + "> "

// The maximum number of pages a single buffer pool instance caches at once.
const BufferPoolSize = 64

// The number of buffer pool instances the parallel buffer pool shards across.
const NumPoolInstances = 4
