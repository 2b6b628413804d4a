package template

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/flanksource/tabloide/svg"
)

// Role is the purpose of an element inside a slot.
type Role string

const (
	RoleImage        Role = "image"
	RoleName         Role = "name"
	RolePrice        Role = "price"
	RolePriceInteger Role = "price_integer"
	RolePriceDecimal Role = "price_decimal"
	RolePriceDe      Role = "price_de"
	RolePricePor     Role = "price_por"
	RoleUnit         Role = "unit"
)

var slotPattern = regexp.MustCompile(`(?i)^SLOT_(\d+)$`)

// Patterns are anchored so that TXT_PRECO never claims TXT_PRECO_DE and
// friends. Each accepts an optional _<n> suffix naming the slot.
var rolePatterns = []struct {
	role Role
	re   *regexp.Regexp
}{
	{RoleImage, regexp.MustCompile(`(?i)^ALVO_IMAGEM(?:_(\d+))?$`)},
	{RoleName, regexp.MustCompile(`(?i)^TXT_NOME(?:_PRODUTO)?(?:_(\d+))?$`)},
	{RolePriceInteger, regexp.MustCompile(`(?i)^TXT_PRECO_(?:INTEIRO|INT|BIG)(?:_(\d+))?$`)},
	{RolePriceDecimal, regexp.MustCompile(`(?i)^TXT_PRECO_(?:DECIMAL|DEC|CENTS)(?:_(\d+))?$`)},
	{RolePriceDe, regexp.MustCompile(`(?i)^TXT_PRECO_DE(?:_(\d+))?$`)},
	{RolePricePor, regexp.MustCompile(`(?i)^TXT_PRECO_POR(?:_(\d+))?$`)},
	{RolePrice, regexp.MustCompile(`(?i)^TXT_PRECO(?:_COMPLETO|_COM)?(?:_(\d+))?$`)},
	{RoleUnit, regexp.MustCompile(`(?i)^TXT_(?:UNIDADE|PESO)(?:_(\d+))?$`)},
}

// Classify matches an id against the slot role patterns. index is -1 when
// the id carries no numeric suffix. Ids whose suffix does not fit an int
// match nothing.
func Classify(id string) (role Role, index int, ok bool) {
	role, index, err := classify(id)
	return role, index, err == nil && role != ""
}

func classify(id string) (Role, int, error) {
	for _, p := range rolePatterns {
		m := p.re.FindStringSubmatch(id)
		if m == nil {
			continue
		}
		if m[1] == "" {
			return p.role, -1, nil
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return "", -1, fmt.Errorf("slot index of %q is out of range", id)
		}
		return p.role, n, nil
	}
	return "", -1, nil
}

// SlotIndex parses a SLOT_<n> container id.
func SlotIndex(id string) (int, bool) {
	n, err := slotIndex(id)
	return n, err == nil && n >= 0
}

func slotIndex(id string) (int, error) {
	m := slotPattern.FindStringSubmatch(id)
	if m == nil {
		return -1, nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return -1, fmt.Errorf("slot index of %q is out of range", id)
	}
	return n, nil
}

// SlotDefinition is a product position discovered in a template.
type SlotDefinition struct {
	Index       int      `json:"index" yaml:"index"`
	ContainerID string   `json:"container_id,omitempty" yaml:"container_id,omitempty"`
	Bounds      svg.Rect `json:"bounds" yaml:"bounds"`

	ImageID        string `json:"image_id,omitempty" yaml:"image_id,omitempty"`
	NameID         string `json:"name_id,omitempty" yaml:"name_id,omitempty"`
	PriceID        string `json:"price_id,omitempty" yaml:"price_id,omitempty"`
	PriceIntegerID string `json:"price_integer_id,omitempty" yaml:"price_integer_id,omitempty"`
	PriceDecimalID string `json:"price_decimal_id,omitempty" yaml:"price_decimal_id,omitempty"`
	PriceDeID      string `json:"price_de_id,omitempty" yaml:"price_de_id,omitempty"`
	PricePorID     string `json:"price_por_id,omitempty" yaml:"price_por_id,omitempty"`
	UnitID         string `json:"unit_id,omitempty" yaml:"unit_id,omitempty"`

	// Extra maps ids found inside the slot that match no role to their tag.
	Extra map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`

	// Synthesized slots have no SLOT_<n> container and were assembled from
	// loose suffixed elements.
	Synthesized bool `json:"synthesized,omitempty" yaml:"synthesized,omitempty"`
}

// Target returns the element id bound to role.
func (s SlotDefinition) Target(role Role) (string, bool) {
	var id string
	switch role {
	case RoleImage:
		id = s.ImageID
	case RoleName:
		id = s.NameID
	case RolePrice:
		id = s.PriceID
	case RolePriceInteger:
		id = s.PriceIntegerID
	case RolePriceDecimal:
		id = s.PriceDecimalID
	case RolePriceDe:
		id = s.PriceDeID
	case RolePricePor:
		id = s.PricePorID
	case RoleUnit:
		id = s.UnitID
	}
	return id, id != ""
}

// bind sets the id for role unless it is already taken.
func (s *SlotDefinition) bind(role Role, id string) bool {
	var field *string
	switch role {
	case RoleImage:
		field = &s.ImageID
	case RoleName:
		field = &s.NameID
	case RolePrice:
		field = &s.PriceID
	case RolePriceInteger:
		field = &s.PriceIntegerID
	case RolePriceDecimal:
		field = &s.PriceDecimalID
	case RolePriceDe:
		field = &s.PriceDeID
	case RolePricePor:
		field = &s.PricePorID
	case RoleUnit:
		field = &s.UnitID
	default:
		return false
	}
	if *field != "" {
		return false
	}
	*field = id
	return true
}

// HasPrice reports whether any price field is bound.
func (s SlotDefinition) HasPrice() bool {
	return s.PriceID != "" || s.PriceIntegerID != "" || s.PriceDecimalID != "" || s.PricePorID != ""
}

// StaticElement is an identified element that belongs to no slot.
type StaticElement struct {
	ID  string `json:"id" yaml:"id"`
	Tag string `json:"tag" yaml:"tag"`
}
