// Package probe fires concurrent duplicate requests at a running server to
// show that one Idempotency-Key executes at most once.
package probe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

type Config struct {
	BaseURL     string
	OrderID     string
	Key         string
	Operation   string
	Concurrency int
	Timeout     time.Duration
}

// Report tallies status codes and the distinct 2xx bodies seen.
type Report struct {
	Statuses       map[int]int
	Errors         int
	DistinctBodies int
}

// Consistent reports whether every 2xx response carried the same body.
func (r Report) Consistent() bool {
	return r.DistinctBodies <= 1
}

func (r Report) String() string {
	codes := make([]int, 0, len(r.Statuses))
	for code := range r.Statuses {
		codes = append(codes, code)
	}
	sort.Ints(codes)

	var b strings.Builder
	for _, code := range codes {
		fmt.Fprintf(&b, "%d: %d\n", code, r.Statuses[code])
	}
	if r.Errors > 0 {
		fmt.Fprintf(&b, "transport errors: %d\n", r.Errors)
	}
	fmt.Fprintf(&b, "distinct success bodies: %d", r.DistinctBodies)
	return b.String()
}

func Run(ctx context.Context, cfg Config, log logrus.FieldLogger) (Report, error) {
	if cfg.BaseURL == "" || cfg.OrderID == "" || cfg.Key == "" {
		return Report{}, errors.New("probe: base url, order and key are required")
	}
	if cfg.Operation != "pay" && cfg.Operation != "refund" {
		return Report{}, fmt.Errorf("probe: unknown operation %q", cfg.Operation)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Idempotency-Key", cfg.Key)
	path := fmt.Sprintf("/orders/%s/%s", cfg.OrderID, cfg.Operation)

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		start  = make(chan struct{})
		report = Report{Statuses: map[int]int{}}
		bodies = map[string]struct{}{}
	)
	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			resp, err := client.R().SetContext(ctx).Post(path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors++
				log.WithError(err).Warn("probe: request failed")
				return
			}
			report.Statuses[resp.StatusCode()]++
			if resp.IsSuccess() {
				bodies[string(resp.Body())] = struct{}{}
			}
		}()
	}
	close(start)
	wg.Wait()

	report.DistinctBodies = len(bodies)
	log.WithFields(logrus.Fields{
		"operation":   cfg.Operation,
		"order_id":    cfg.OrderID,
		"concurrency": cfg.Concurrency,
		"statuses":    report.Statuses,
	}).Info("probe: done")
	return report, nil
}
