package achievement

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"studyhub-backend/internal/models"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogFile struct {
	Badges []badgeEntry `yaml:"badges"`
}

type badgeEntry struct {
	ID          string                    `yaml:"id"`
	Name        string                    `yaml:"name"`
	Description string                    `yaml:"description"`
	Rarity      models.Rarity             `yaml:"rarity"`
	Criteria    models.CriteriaDescriptor `yaml:"criteria"`
}

// Catalog is the static, validated badge set in declaration order.
type Catalog struct {
	badges []models.Badge
	byID   map[string]models.Badge
}

// DefaultCatalog parses the embedded badge catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(catalogYAML)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse badge catalog: %w", err)
	}
	if len(f.Badges) == 0 {
		return nil, fmt.Errorf("parse badge catalog: no badges defined")
	}

	c := &Catalog{byID: make(map[string]models.Badge, len(f.Badges))}
	for i, entry := range f.Badges {
		id := strings.TrimSpace(entry.ID)
		if id == "" {
			return nil, fmt.Errorf("badge #%d: id is required", i)
		}
		if _, dup := c.byID[id]; dup {
			return nil, fmt.Errorf("badge %s: duplicate id", id)
		}
		if strings.TrimSpace(entry.Name) == "" {
			return nil, fmt.Errorf("badge %s: name is required", id)
		}
		if !entry.Rarity.Valid() {
			return nil, fmt.Errorf("badge %s: invalid rarity %q", id, entry.Rarity)
		}
		criteria, err := models.ParseCriteria(entry.Criteria)
		if err != nil {
			return nil, fmt.Errorf("badge %s: %w", id, err)
		}

		b := models.Badge{
			ID:          id,
			Name:        entry.Name,
			Description: entry.Description,
			Rarity:      entry.Rarity,
			Criteria:    criteria,
		}
		c.badges = append(c.badges, b)
		c.byID[id] = b
	}
	return c, nil
}

func (c *Catalog) Badges() []models.Badge {
	out := make([]models.Badge, len(c.badges))
	copy(out, c.badges)
	return out
}

func (c *Catalog) Get(id string) (models.Badge, bool) {
	b, ok := c.byID[id]
	return b, ok
}

func (c *Catalog) Len() int { return len(c.badges) }
