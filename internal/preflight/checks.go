package preflight

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"laserlink/internal/wire"
)

// CheckDistinctPorts fails when the laser and SFC sides name the same device.
func CheckDistinctPorts(laser, sfc string) Result {
	const name = "Port assignment"
	laser, sfc = strings.TrimSpace(laser), strings.TrimSpace(sfc)
	if laser == "" || sfc == "" {
		return Result{Name: name, Detail: "laser and sfc ports must both be configured"}
	}
	if strings.EqualFold(laser, sfc) {
		return Result{Name: name, Detail: fmt.Sprintf("laser and sfc both use %s", laser)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("laser=%s sfc=%s", laser, sfc)}
}

// CheckPortAccess verifies that a serial device exists and this process may
// open it for reading and writing.
func CheckPortAccess(name, port string) Result {
	port = strings.TrimSpace(port)
	if port == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	if !wire.ValidPortName(port) {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not a serial device name)", port)}
	}
	info, err := os.Stat(port)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", port)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", port, err)}
	}
	if info.Mode()&os.ModeCharDevice == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a character device)", port)}
	}
	if err := unix.Access(port, unix.R_OK|unix.W_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v; add the user to the dialout group)", port, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", port)}
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

// CheckNtfy verifies the ntfy server behind a topic URL answers its health
// endpoint. Nothing is published.
func CheckNtfy(ctx context.Context, topic string) Result {
	const name = "ntfy"

	parsed, err := url.Parse(strings.TrimSpace(topic))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("invalid topic url %q", topic)}
	}
	health := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/v1/health"}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, health.String(), nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s reachable", parsed.Host)}
}
