package tabloide

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/flanksource/tabloide/inject"
)

// Entry places one product in one slot.
type Entry struct {
	Slot           int `yaml:"slot" json:"slot"`
	inject.Product `yaml:",inline"`
}

// Catalog is a flyer's product list, usually kept next to its images:
//
//	project: semana-42
//	version: 3
//	template: encarte.svg
//	products:
//	  - slot: 1
//	    name: Arroz Tio João 5kg
//	    price: 24.90
//	    reference_price: 29.90
//	    image: img/arroz.png
type Catalog struct {
	Project  string  `yaml:"project" json:"project"`
	Version  int     `yaml:"version,omitempty" json:"version,omitempty"`
	Title    string  `yaml:"title,omitempty" json:"title,omitempty"`
	Template string  `yaml:"template,omitempty" json:"template,omitempty"`
	Products []Entry `yaml:"products" json:"products"`

	// Dir is the directory the catalog was loaded from. Relative image and
	// template paths resolve against it.
	Dir string `yaml:"-" json:"-"`
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", filepath.Base(path), err)
	}
	c.Dir, _ = filepath.Abs(filepath.Dir(path))
	if c.Project == "" {
		base := filepath.Base(path)
		c.Project = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if c.Version == 0 {
		c.Version = 1
	}
	return &c, c.Validate()
}

// Validate rejects entries without a slot or placed twice.
func (c *Catalog) Validate() error {
	var errs []error
	seen := map[int]bool{}
	for i, e := range c.Products {
		switch {
		case e.Slot < 1:
			errs = append(errs, fmt.Errorf("product %d (%s): slot must be at least 1", i+1, e.Name))
		case seen[e.Slot]:
			errs = append(errs, fmt.Errorf("product %d (%s): slot %d is already taken", i+1, e.Name, e.Slot))
		}
		seen[e.Slot] = true
	}
	if c.Version < 1 {
		errs = append(errs, fmt.Errorf("version must be at least 1"))
	}
	return errors.Join(errs...)
}

// ProductMap indexes the products by slot.
func (c *Catalog) ProductMap() map[int]inject.Product {
	return lo.SliceToMap(c.Products, func(e Entry) (int, inject.Product) {
		return e.Slot, e.Product
	})
}

// TemplatePath resolves the catalog's template reference.
func (c *Catalog) TemplatePath() string {
	if c.Template == "" || filepath.IsAbs(c.Template) {
		return c.Template
	}
	return filepath.Join(c.Dir, c.Template)
}
