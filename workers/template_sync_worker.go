// workers/template_sync_worker.go
package workers

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"pickleball-session-system/utils"
)

// TemplateSyncWorker keeps the local template cache warm: it periodically
// lists the bucket and downloads templates the cache does not have yet, so
// session creation never waits on the object store.
type TemplateSyncWorker struct {
	dir      string
	interval time.Duration
}

func NewTemplateSyncWorker(templateDir string) *TemplateSyncWorker {
	return &TemplateSyncWorker{
		dir:      templateDir,
		interval: 5 * time.Minute,
	}
}

func (w *TemplateSyncWorker) Start(ctx context.Context) {
	log.Println("🔁 Starting Template Sync Worker (R2 → local cache)…")
	go w.run(ctx)
}

func (w *TemplateSyncWorker) run(ctx context.Context) {
	if err := w.syncOnce(); err != nil {
		log.Printf("⚠️ Initial template sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Println("Template Sync Worker stopped")
			return
		case <-ticker.C:
			if err := w.syncOnce(); err != nil {
				log.Printf("⚠️ Template sync failed: %v", err)
			}
		}
	}
}

func (w *TemplateSyncWorker) syncOnce() error {
	if !utils.R2Enabled() {
		return nil
	}
	names, err := utils.ListTemplates()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}

	fetched := 0
	for _, name := range names {
		local := filepath.Join(w.dir, name)
		if _, err := os.Stat(local); err == nil {
			continue
		}
		data, err := utils.DownloadTemplate(name)
		if err != nil {
			log.Printf("⚠️ Failed to fetch template %s: %v", name, err)
			continue
		}
		if data == nil {
			continue
		}
		if err := os.WriteFile(local, data, 0o644); err != nil {
			log.Printf("⚠️ Failed to cache template %s: %v", name, err)
			continue
		}
		fetched++
	}
	if fetched > 0 {
		log.Printf("✅ Template sync: fetched %d new template(s)", fetched)
	}
	return nil
}
