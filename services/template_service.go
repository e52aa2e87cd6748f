package services

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"pickleball-session-system/models"
	"pickleball-session-system/utils"

	"github.com/gofiber/fiber/v2"
)

// TemplateService resolves declarative schedule templates keyed by
// (courts, hours, players, session type). Templates are JSON files cached in
// a local directory and backed by the R2 bucket: the loader reads the cache
// first and falls back to the object store, caching what it fetches.
type TemplateService struct {
	Dir string
}

func NewTemplateService(dir string) *TemplateService {
	return &TemplateService{Dir: dir}
}

// LoadTemplate returns the template for a configuration, or (nil, nil) when
// no template exists for it.
func (s *TemplateService) LoadTemplate(courts, hours, players int, sessionType models.SessionType) (*models.Template, error) {
	filename := models.TemplateKey(courts, hours, players, sessionType) + ".json"

	data, err := os.ReadFile(filepath.Join(s.Dir, filename))
	if os.IsNotExist(err) {
		data, err = utils.DownloadTemplate(filename)
		if err != nil {
			return nil, err
		}
		if data == nil {
			return nil, nil
		}
		if writeErr := s.cacheLocally(filename, data); writeErr != nil {
			log.Printf("[TEMPLATES] Failed to cache %s locally: %v", filename, writeErr)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", filename, err)
	}

	var tpl models.Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("template %s is malformed: %w", filename, err)
	}
	return &tpl, nil
}

// HasTemplate reports whether a configuration resolves to a template.
func (s *TemplateService) HasTemplate(courts, hours, players int, sessionType models.SessionType) bool {
	tpl, err := s.LoadTemplate(courts, hours, players, sessionType)
	if err != nil {
		log.Printf("[TEMPLATES] Lookup error for %s: %v",
			models.TemplateKey(courts, hours, players, sessionType), err)
		return false
	}
	return tpl != nil
}

func (s *TemplateService) cacheLocally(filename string, data []byte) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.Dir, filename), data, 0o644)
}

// ValidateConfiguration checks a configuration before session creation:
// GET /templates/validate?courts=&hours=&players=&type=
func (s *TemplateService) ValidateConfiguration(c *fiber.Ctx) error {
	courts, err1 := strconv.Atoi(c.Query("courts"))
	hours, err2 := strconv.Atoi(c.Query("hours"))
	players, err3 := strconv.Atoi(c.Query("players"))
	sessionType := models.SessionType(c.Query("type"))
	if err1 != nil || err2 != nil || err3 != nil || sessionType == "" {
		return c.Status(400).JSON(fiber.Map{"error": "courts, hours, players and type are required"})
	}

	if players < courts*4 {
		return c.JSON(fiber.Map{
			"valid":   false,
			"message": fmt.Sprintf("You need at least %d players for %d court(s). Each court requires 4 players minimum.", courts*4, courts),
		})
	}

	if !s.HasTemplate(courts, hours, players, sessionType) {
		return c.JSON(fiber.Map{
			"valid":   false,
			"message": "That session configuration has not been created yet. Please try a different combination of players, courts & hours - we will add more options soon!",
		})
	}

	return c.JSON(fiber.Map{"valid": true, "message": "Configuration is valid"})
}

// ListTemplates lists the template keys available in the object store.
func (s *TemplateService) ListTemplates(c *fiber.Ctx) error {
	names, err := utils.ListTemplates()
	if err != nil {
		log.Printf("[TEMPLATES] List failed: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to list templates"})
	}
	return c.JSON(fiber.Map{"templates": names, "count": len(names)})
}

// UploadTemplate validates and stores a template JSON:
// POST /admin/templates/:key with the template document as body.
func (s *TemplateService) UploadTemplate(c *fiber.Ctx) error {
	key := c.Params("key")
	if key == "" {
		return c.Status(400).JSON(fiber.Map{"error": "template key required in URL"})
	}

	var tpl models.Template
	if err := json.Unmarshal(c.Body(), &tpl); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid template JSON", "details": err.Error()})
	}
	if len(tpl.Blocks) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "template must declare at least one block"})
	}
	for _, block := range tpl.Blocks {
		for _, round := range block.Rounds {
			for _, court := range round.Courts {
				if len(court.A) != 2 || len(court.B) != 2 {
					return c.Status(400).JSON(fiber.Map{
						"error": fmt.Sprintf("block %q declares a court without two slots per team", block.Label),
					})
				}
				for _, slot := range append(append([]string{}, court.A...), court.B...) {
					if _, err := models.ParsePlayerRef(slot); err != nil {
						return c.Status(400).JSON(fiber.Map{
							"error": fmt.Sprintf("block %q: %v", block.Label, err),
						})
					}
				}
			}
		}
	}

	filename := key + ".json"
	if err := utils.UploadTemplate(filename, c.Body()); err != nil {
		log.Printf("[TEMPLATES] Upload %s failed: %v", filename, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to store template"})
	}
	if err := s.cacheLocally(filename, c.Body()); err != nil {
		log.Printf("[TEMPLATES] Failed to cache %s locally: %v", filename, err)
	}

	return c.Status(201).JSON(fiber.Map{
		"message": "template stored",
		"key":     key,
		"games":   tpl.GameCount(),
		"blocks":  len(tpl.Blocks),
	})
}
