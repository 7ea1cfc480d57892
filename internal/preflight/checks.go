package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/samber/lo"
	"golang.org/x/sys/unix"

	"accession/internal/queue"
	"accession/internal/repository"
)

const serviceTimeout = 5 * time.Second

// Service describes one collaborator probe. Headers carry whatever
// credential the collaborator expects so that auth problems surface here.
type Service struct {
	Name    string
	BaseURL string
	Path    string
	Headers map[string]string
}

// CheckService verifies that a collaborator answers HTTP. Any reply below 500
// other than 401/403 counts as reachable.
func CheckService(ctx context.Context, svc Service) Result {
	base := strings.TrimRight(strings.TrimSpace(svc.BaseURL), "/")
	if base == "" {
		return Result{Name: svc.Name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()

	resp, err := resty.New().
		SetTimeout(serviceTimeout).
		R().
		SetContext(checkCtx).
		SetHeaders(svc.Headers).
		Get(base + svc.Path)
	if err != nil {
		return Result{Name: svc.Name, Detail: summarizeError(err)}
	}

	code := resp.StatusCode()
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return Result{Name: svc.Name, Detail: fmt.Sprintf("auth failed (%d)", code)}
	case code >= http.StatusInternalServerError:
		return Result{Name: svc.Name, Detail: fmt.Sprintf("server error (%d)", code)}
	}
	return Result{Name: svc.Name, Passed: true, Detail: fmt.Sprintf("reachable (%d)", code)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckRepository opens the repository database and pings it.
func CheckRepository(ctx context.Context, databaseURL string) Result {
	const name = "Repository database"
	if strings.TrimSpace(databaseURL) == "" {
		return Result{Name: name, Detail: "missing database_url"}
	}
	store, err := repository.OpenURL(databaseURL, 1)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer store.Close()

	checkCtx, cancel := context.WithTimeout(ctx, serviceTimeout)
	defer cancel()
	if err := store.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	counts, err := store.Counts(checkCtx)
	if err != nil {
		return Result{Name: name, Passed: true, Detail: "reachable"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("reachable (%d records)", lo.Sum(lo.Values(counts)))}
}

// CheckQueue inspects the queue database without creating it.
func CheckQueue(ctx context.Context, path string) Result {
	const name = "Queue database"
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (created on first start)", path)}
	}
	store, err := queue.OpenPath(path)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer store.Close()

	health, err := store.CheckHealth(ctx)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if !health.IntegrityCheck {
		return Result{Name: name, Detail: "integrity check failed"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d records)", path, health.TotalRecords)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Sprintf("unreachable (%v)", opErr.Err)
	}
	return err.Error()
}
