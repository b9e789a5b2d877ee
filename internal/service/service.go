package service

import (
	"sync"
)

var (
	mu           sync.RWMutex
	alertService *AlertService
	scanService  *ScanService
)

// Init 由 cmd/server 在依赖就绪后调用一次
func Init(alert *AlertService, scan *ScanService) {
	mu.Lock()
	defer mu.Unlock()
	alertService = alert
	scanService = scan
}

func Alert() *AlertService {
	mu.RLock()
	defer mu.RUnlock()
	return alertService
}

func Scan() *ScanService {
	mu.RLock()
	defer mu.RUnlock()
	return scanService
}
