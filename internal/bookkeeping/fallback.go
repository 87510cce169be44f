package bookkeeping

import (
	"sync"

	"github.com/iotserver24/xibe-review/internal/core"
)

// ringBuffer holds the newest logs in memory while the key-value store is
// unreachable. The oldest entry is evicted once capacity is reached.
type ringBuffer struct {
	mu   sync.Mutex
	size int
	logs []*core.WebhookLog // newest first
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{size: size}
}

func (r *ringBuffer) push(log *core.WebhookLog) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := cloneLog(log)
	for i, existing := range r.logs {
		if existing.ID == log.ID {
			r.logs[i] = cp
			return
		}
	}
	r.logs = append([]*core.WebhookLog{cp}, r.logs...)
	if len(r.logs) > r.size {
		r.logs = r.logs[:r.size]
	}
}

func (r *ringBuffer) update(id string, fn func(*core.WebhookLog)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, log := range r.logs {
		if log.ID == id {
			fn(log)
			return true
		}
	}
	return false
}

func (r *ringBuffer) get(id string) (*core.WebhookLog, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, log := range r.logs {
		if log.ID == id {
			return cloneLog(log), true
		}
	}
	return nil, false
}

func (r *ringBuffer) list(limit int, status core.LogStatus) []*core.WebhookLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*core.WebhookLog, 0, min(limit, len(r.logs)))
	for _, log := range r.logs {
		if len(out) >= limit {
			break
		}
		if status != "" && log.Status != status {
			continue
		}
		out = append(out, cloneLog(log))
	}
	return out
}

func (r *ringBuffer) stats() core.WebhookStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := core.WebhookStats{Total: int64(len(r.logs))}
	for _, log := range r.logs {
		switch log.Status {
		case core.StatusProcessing:
			stats.Processing++
		case core.StatusCompleted:
			stats.Completed++
		case core.StatusError:
			stats.Error++
		case core.StatusIgnored:
			stats.Ignored++
		}
	}
	return stats
}

func (r *ringBuffer) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

func (r *ringBuffer) clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.logs)
	r.logs = nil
	return n
}

func cloneLog(log *core.WebhookLog) *core.WebhookLog {
	cp := *log
	cp.Actions = append([]string(nil), log.Actions...)
	if log.ProcessingTime != nil {
		pt := *log.ProcessingTime
		cp.ProcessingTime = &pt
	}
	return &cp
}
