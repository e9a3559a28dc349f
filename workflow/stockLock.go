package workflow

import (
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"
)

// Posting for one (company, warehouse, item) triple must be a single critical
// section: read balance, append movement, update balance and item mirror. Two
// layers enforce it. A process-local keyed mutex serializes writers inside one
// instance; a MySQL advisory lock serializes across instances. Both are taken in
// sorted key order so opposite-direction transfers of the same item cannot deadlock.

var (
	stockMutexesMu sync.Mutex
	stockMutexes   = map[string]*sync.Mutex{}
)

func stockLockKey(companyId int, warehouseId int, itemId int) string {
	return fmt.Sprintf("stock:%d:%d:%d", companyId, warehouseId, itemId)
}

func stockMutexFor(key string) *sync.Mutex {
	stockMutexesMu.Lock()
	defer stockMutexesMu.Unlock()
	mu, ok := stockMutexes[key]
	if !ok {
		mu = &sync.Mutex{}
		stockMutexes[key] = mu
	}
	return mu
}

// lockStockKeys acquires the process-local mutex for every key, sorted and
// deduplicated. The returned release func unlocks in reverse order.
func lockStockKeys(keys ...string) func() {
	sorted := make([]string, 0, len(keys))
	seen := map[string]bool{}
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			sorted = append(sorted, k)
		}
	}
	sort.Strings(sorted)

	locked := make([]*sync.Mutex, 0, len(sorted))
	for _, k := range sorted {
		mu := stockMutexFor(k)
		mu.Lock()
		locked = append(locked, mu)
	}
	return func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].Unlock()
		}
	}
}

// AcquireStockPostingLocks takes MySQL advisory locks for the keys, in sorted order.
// GET_LOCK is connection-scoped, so this must run on the same *gorm.DB connection
// as the posting transaction. No-op on other dialects, where the keyed mutex plus
// the engine's own write serialization suffice.
func AcquireStockPostingLocks(tx *gorm.DB, keys ...string) error {
	if tx.Dialector.Name() != "mysql" {
		return nil
	}
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, key := range sorted {
		var ok int
		if err := tx.Raw("SELECT GET_LOCK(?, 30)", key).Scan(&ok).Error; err != nil {
			return err
		}
		if ok != 1 {
			return fmt.Errorf("could not acquire posting lock %s", key)
		}
	}
	return nil
}

func ReleaseStockPostingLocks(tx *gorm.DB, keys ...string) {
	if tx.Dialector.Name() != "mysql" {
		return
	}
	for _, key := range keys {
		var _ok int
		_ = tx.Raw("SELECT RELEASE_LOCK(?)", key).Scan(&_ok).Error
	}
}
