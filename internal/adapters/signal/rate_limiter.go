package signal

import (
	"sync"
	"time"
)

const sweepThreshold = 4096

// JoinLimiter caps how many room joins one client token may attempt within
// a sliding window.
type JoinLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewJoinLimiter(limit int, interval time.Duration) *JoinLimiter {
	return &JoinLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *JoinLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)
	if len(rl.history) >= sweepThreshold {
		rl.sweep(windowStart)
	}

	// 1. Берем историю клиента
	attempts := rl.history[client]

	// 2. Убираем старые попытки
	fresh := make([]time.Time, 0, len(attempts)+1)
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	// 3. Если свежих попыток >= лимита → блок
	if len(fresh) >= rl.limit {
		rl.history[client] = fresh
		return false
	}

	// 4. Иначе добавить текущую попытку
	rl.history[client] = append(fresh, now)
	return true
}

// Sweep drops clients with no attempt inside the window.
func (rl *JoinLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.sweep(rl.now().Add(-rl.interval))
}

func (rl *JoinLimiter) sweep(windowStart time.Time) {
	for client, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, client)
		}
	}
}
