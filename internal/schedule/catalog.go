// Package schedule holds the national immunization schedule and the pure
// logic computed against it: progress, defaulter detection and validation of
// administration dates. Nothing in this package touches a store.
package schedule

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed schedule.yaml
var scheduleYAML []byte

var ErrInvalidCatalog = errors.New("invalid schedule catalog")

type Vaccine struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	DoseNumber int    `yaml:"dose_number" json:"dose_number"`
}

// VaccineGroup is a bundle of vaccines that become due at the same minimum
// age, expressed in whole weeks since birth.
type VaccineGroup struct {
	ID               string    `yaml:"id" json:"id"`
	Name             string    `yaml:"name" json:"name"`
	AgeDescription   string    `yaml:"age_description" json:"age_description"`
	MinEligibleWeeks int       `yaml:"min_eligible_weeks" json:"min_eligible_weeks"`
	Vaccines         []Vaccine `yaml:"vaccines" json:"vaccines"`
}

// Catalog is the ordered, immutable vaccine schedule. It is safe for
// concurrent use.
type Catalog struct {
	groups     []VaccineGroup
	byVaccine  map[string]int
	facilities []string
	total      int
}

type catalogFile struct {
	Groups     []VaccineGroup `yaml:"groups"`
	Facilities []string       `yaml:"facilities"`
}

var defaultCatalog = mustLoad(scheduleYAML)

// Default returns the schedule compiled into the binary.
func Default() *Catalog {
	return defaultCatalog
}

func mustLoad(data []byte) *Catalog {
	c, err := Load(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Load parses a catalog document in the embedded YAML format.
func Load(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return NewCatalog(file.Groups, file.Facilities)
}

// NewCatalog builds a catalog from groups in schedule order. Vaccine ids must
// be unique across all groups.
func NewCatalog(groups []VaccineGroup, facilities []string) (*Catalog, error) {
	c := &Catalog{
		groups:     make([]VaccineGroup, 0, len(groups)),
		byVaccine:  make(map[string]int),
		facilities: slices.Clone(facilities),
	}

	seenGroups := make(map[string]bool, len(groups))
	for i, g := range groups {
		if g.ID == "" {
			return nil, fmt.Errorf("%w: group %d has no id", ErrInvalidCatalog, i)
		}
		if seenGroups[g.ID] {
			return nil, fmt.Errorf("%w: duplicate group id %q", ErrInvalidCatalog, g.ID)
		}
		seenGroups[g.ID] = true

		if g.MinEligibleWeeks < 0 {
			return nil, fmt.Errorf("%w: group %q has negative min_eligible_weeks", ErrInvalidCatalog, g.ID)
		}

		for _, v := range g.Vaccines {
			if v.ID == "" {
				return nil, fmt.Errorf("%w: group %q has a vaccine without id", ErrInvalidCatalog, g.ID)
			}
			if _, dup := c.byVaccine[v.ID]; dup {
				return nil, fmt.Errorf("%w: duplicate vaccine id %q", ErrInvalidCatalog, v.ID)
			}
			c.byVaccine[v.ID] = i
		}

		g.Vaccines = slices.Clone(g.Vaccines)
		c.groups = append(c.groups, g)
		c.total += len(g.Vaccines)
	}

	return c, nil
}

// AllGroups returns the groups in schedule order.
func (c *Catalog) AllGroups() []VaccineGroup {
	out := make([]VaccineGroup, len(c.groups))
	for i, g := range c.groups {
		g.Vaccines = slices.Clone(g.Vaccines)
		out[i] = g
	}
	return out
}

// GroupContaining returns the group that lists vaccineID. The boolean is
// false for unknown ids.
func (c *Catalog) GroupContaining(vaccineID string) (VaccineGroup, bool) {
	i, ok := c.byVaccine[vaccineID]
	if !ok {
		return VaccineGroup{}, false
	}
	g := c.groups[i]
	g.Vaccines = slices.Clone(g.Vaccines)
	return g, true
}

func (c *Catalog) Vaccine(vaccineID string) (Vaccine, bool) {
	i, ok := c.byVaccine[vaccineID]
	if !ok {
		return Vaccine{}, false
	}
	for _, v := range c.groups[i].Vaccines {
		if v.ID == vaccineID {
			return v, true
		}
	}
	return Vaccine{}, false
}

func (c *Catalog) TotalVaccineCount() int {
	return c.total
}

func (c *Catalog) Facilities() []string {
	return slices.Clone(c.facilities)
}

func (c *Catalog) IsFacility(name string) bool {
	return slices.Contains(c.facilities, name)
}
