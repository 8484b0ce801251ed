package sync

import (
	"sync"
)

// OrderedLocker is a sync.Locker that carries a key that places it in
// a total order relative to all other OrderedLockers that may be
// acquired by the same thread. Keys must be stable for the lifetime of
// the lock and unique among locks that may end up in the same
// LockPile.
type OrderedLocker interface {
	sync.Locker
	LockOrderKey() uint64
}

type lockHandle struct {
	lock      OrderedLocker
	recursion int
}

// LockPile is a list to keep track of locks held by a thread. For every
// lock, it keeps track of a recursion count, allowing locks that don't
// support recursion to be acquired multiple times. The underlying lock
// will only be unlocked if the recursion count reaches zero.
//
// LockPile implements a deadlock avoidance algorithm, ensuring that
// locks are always acquired along a total order. The order is
// determined by the key returned by OrderedLocker.LockOrderKey(). For
// the in-memory file system these are node IDs, meaning that any two
// directories locked by a rename are always acquired lowest ID first.
//
// What LockPile implements is equivalent to the "Ordered" algorithm
// described on Howard Hinnant's page titled "Dining Philosophers
// Rebooted":
//
// https://howardhinnant.github.io/dining_philosophers.html
//
// As the set of locks held can be extended over time, there may be a
// possibility LockPile has to backtrack and temporarily unlock one or
// more locks it held prior to acquiring more. The caller is signalled
// when this happens, so that it may revalidate its state. Depending on
// the state's validity, the caller may either continue or retry.
type LockPile []lockHandle

func (lp *LockPile) insert(newLock OrderedLocker, lockedUpTo *int) {
	// Find spot at which to store the lock in the pile. Store locks
	// by key in increasing order in the list.
	newKey := newLock.LockOrderKey()
	i := len(*lp)
	for i > 0 {
		lh := &(*lp)[i-1]
		existingKey := lh.lock.LockOrderKey()
		if newKey == existingKey {
			// Lock has already been acquired. No need to
			// lock it; just increase the recursion count.
			lh.recursion++
			return
		} else if newKey > existingKey {
			break
		}
		i--
	}

	// Before inserting, unlock all locks that are stored further
	// within the list. This way Lock() will pick up the locks in
	// sorted order once again.
	for *lockedUpTo > i {
		*lockedUpTo--
		(*lp)[*lockedUpTo].lock.Unlock()
	}

	// Insert the lock into the list.
	*lp = append(*lp, lockHandle{})
	copy((*lp)[i+1:], (*lp)[i:])
	(*lp)[i] = lockHandle{lock: newLock}
}

// Lock one or more OrderedLocker objects, adding them to the LockPile.
// This function returns true iff it was capable of acquiring all locks
// without temporarily unlocking one of the existingly owned locks.
// Regardless of whether this function returns true or false, the same
// set of locks is held by the calling threads afterwards.
//
// Example usage, of a function that renames an entry between two
// directories:
//
//	lockPile := sync.LockPile{}
//	defer lockPile.UnlockAll()
//	lockPile.Lock(&oldDirectory.lock)  // Always returns 'true'
//	if !lockPile.Lock(&newDirectory.lock) {
//	    // oldDirectory was unlocked temporarily. Any state
//	    // observed before this point must be revalidated.
//	}
func (lp *LockPile) Lock(newLocks ...OrderedLocker) bool {
	// Insert the locks into the pile one by one.
	originallyLockedUpTo := len(*lp)
	lockedUpTo := len(*lp)
	for _, newLock := range newLocks {
		lp.insert(newLock, &lockedUpTo)
	}

	// Acquire any new locks or reacquire any we had to drop.
	for i := lockedUpTo; i < len(*lp); i++ {
		(*lp)[i].lock.Lock()
	}
	return originallyLockedUpTo == lockedUpTo
}

// Unlock an OrderedLocker object, removing it from the LockPile.
func (lp *LockPile) Unlock(oldLock OrderedLocker) {
	// Find lock to unlock.
	key := oldLock.LockOrderKey()
	i := 0
	for (*lp)[i].lock.LockOrderKey() != key {
		i++
	}

	// When locked recursively, just decrement the recursion count.
	if (*lp)[i].recursion > 0 {
		(*lp)[i].recursion--
		return
	}

	// Unlock and remove entry from lock pile.
	(*lp)[i].lock.Unlock()
	copy((*lp)[i:], (*lp)[i+1:])
	*lp = (*lp)[:len(*lp)-1]
}

// UnlockAll unlocks all locks associated with a LockPile. Calling this
// function using 'defer' ensures that no locks remain acquired after
// the calling function returns.
func (lp *LockPile) UnlockAll() {
	// Release all locks contained in the pile exactly once.
	for _, lockHandle := range *lp {
		lockHandle.lock.Unlock()
	}
	*lp = nil
}
