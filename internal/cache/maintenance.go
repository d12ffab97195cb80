package cache

import "time"

// compactLoop periodically rebuilds the table to drop tombstones.
//
// Inserts already rebuild when the table gets crowded; the loop keeps
// lookups for absent names short on caches that mostly evict and rarely grow.
func (c *Cache) compactLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.compactEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			// If Close raced with the ticker, the table may already be gone.
			if !c.closed && c.tombstones > 0 {
				c.rehashLocked(len(c.slots))
			}
			c.mu.Unlock()
		}
	}
}

// growIfNeededLocked makes room for one more entry. When occupied plus
// deleted slots would pass the load limit, the table is rebuilt: doubled if
// live entries alone are crowding it, otherwise at the same size.
func (c *Cache) growIfNeededLocked() {
	n := len(c.slots)
	if (c.live+c.tombstones+1)*100 <= n*maxLoadPercent {
		return
	}
	if (c.live+1)*100 > n*maxLoadPercent/2 {
		n *= 2
	}
	c.rehashLocked(n)
}

// rehashLocked moves every live entry into a fresh table of n slots.
// Recency order is untouched; only the slot indices in the list change.
func (c *Cache) rehashLocked(n int) {
	old := c.slots
	c.slots = make([]slot, n)
	c.tombstones = 0

	for el := c.lru.Front(); el != nil; el = el.Next() {
		s := old[el.Value.(int)]
		idx, _ := c.probeLocked(s.e.name)
		el.Value = idx
		c.slots[idx] = slot{state: slotUsed, e: s.e, el: el}
	}
}
