package catalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/go-playground/validator/v10"
)

const (
	fieldName       = "name"
	fieldPrice      = "price"
	fieldCategoryID = "categoryId"
	fieldSlug       = "slug"
	fieldFilterSlug = "filterSlug"

	msgDuplicateSlug = "Ya existe una categoría con ese slug"
)

var recordRules = map[Resource]map[string]any{
	Products: {
		fieldName:       "required",
		fieldPrice:      "omitempty,number,gte=0",
		fieldCategoryID: "omitempty,number",
	},
	Categories: {
		fieldName:       "required",
		fieldSlug:       "omitempty,max=120",
		fieldFilterSlug: "omitempty,max=120",
	},
}

// checkFields validates the fields of a new record, or only the fields
// present in a patch when partial is set.
func checkFields(v *validator.Validate, res Resource, fields map[string]any, partial bool) error {
	rules := recordRules[res]
	if partial {
		present := map[string]any{}
		for k, rule := range rules {
			if _, ok := fields[k]; ok {
				present[k] = rule
			}
		}
		rules = present
	}

	errs := v.ValidateMap(fields, rules)
	if len(errs) == 0 {
		return nil
	}
	bad := make([]string, 0, len(errs))
	for field := range errs {
		bad = append(bad, field)
	}
	sort.Strings(bad)
	return errdefs.ErrInvalidArgument.WithMessage(fmt.Sprintf("Datos inválidos: %s", strings.Join(bad, ", ")))
}

// prepareCategory fills slug and filterSlug from the name when they are missing.
func prepareCategory(fields Record) {
	slug, _ := fields[fieldSlug].(string)
	if slug == "" {
		if name, ok := fields[fieldName].(string); ok {
			slug = Slugify(name)
			fields[fieldSlug] = slug
		}
	}
	if fs, _ := fields[fieldFilterSlug].(string); fs == "" && slug != "" {
		fields[fieldFilterSlug] = FilterSlug(slug)
	}
}

// checkUniqueSlugs rejects a category whose slug or filterSlug is already used
// by another category. selfID is skipped (0 for new records).
func checkUniqueSlugs(doc *Document, rec Record, selfID int) error {
	slug, _ := rec[fieldSlug].(string)
	filter, _ := rec[fieldFilterSlug].(string)
	for _, other := range doc.Items {
		if id, ok := other.ID(); ok && id == selfID {
			continue
		}
		if s, _ := other[fieldSlug].(string); slug != "" && s == slug {
			return errdefs.ErrConflict.WithMessage(msgDuplicateSlug)
		}
		if f, _ := other[fieldFilterSlug].(string); filter != "" && f == filter {
			return errdefs.ErrConflict.WithMessage(msgDuplicateSlug)
		}
	}
	return nil
}

// normalizeReferences stores categoryId as an integer so the category guard
// sees it. An empty value is kept as nil, meaning "no category".
func normalizeReferences(res Resource, fields map[string]any) error {
	if res != Products {
		return nil
	}
	v, ok := fields[fieldCategoryID]
	if !ok || v == nil {
		return nil
	}
	if v == "" {
		fields[fieldCategoryID] = nil
		return nil
	}
	n, ok := foreignKey(v)
	if !ok {
		return errdefs.ErrInvalidArgument.WithMessage("Datos inválidos: " + fieldCategoryID)
	}
	fields[fieldCategoryID] = n
	return nil
}

// foreignKey reads a stored reference. Whole numbers and digit-only strings
// both count, so a "3" written by an older client still points at category 3.
func foreignKey(v any) (int, bool) {
	if s, ok := v.(string); ok {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		return n, err == nil
	}
	return integral(v)
}
