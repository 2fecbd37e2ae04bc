// Package loader parses and lints the declarative rule inputs, normalizing
// legacy shapes into one canonical in-memory representation so every later
// stage sees a single form.
package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"foodgraph/pkg/ontology"
)

// Input file names expected under the definitions directory. Files marked
// optional may be absent; an absent required file is a schema violation.
const (
	FileTaxa                   = "taxa.yaml"
	FileParts                  = "parts.yaml"
	FileTransforms             = "transforms.yaml"
	FileFamilies               = "families.yaml"
	FileApplicability          = "applicability.yaml"
	FileTaxonOverrides         = "taxon_overrides.yaml"
	FilePromotions             = "promotions.yaml"
	FileTransformApplicability = "transform_applicability.yaml"
	FileAllowlists             = "allowlists.yaml"
	FileBuckets                = "buckets.yaml"
	FileFlagRules              = "flag_rules.yaml"
	FileCurated                = "curated.yaml"
	FileNameOverrides          = "name_overrides.yaml"
)

// Loader reads one definitions directory.
type Loader struct {
	dir    string
	logger *slog.Logger
}

// New constructs a loader rooted at dir.
func New(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{dir: dir, logger: logger}
}

// Load reads every input file, validates each record, and returns the
// canonical definitions plus all schema violations found. An I/O failure is
// returned as an error; validation failures never are.
func (l *Loader) Load() (ontology.Definitions, []ontology.Violation, error) {
	var (
		defs ontology.Definitions
		vs   []ontology.Violation
	)

	taxa, err := decodeRecords[rawTaxon](l, FileTaxa, true, &vs)
	if err != nil {
		return defs, nil, err
	}
	for _, r := range taxa {
		defs.Taxa = append(defs.Taxa, r.normalize(&vs))
	}

	parts, err := decodeRecords[rawPart](l, FileParts, true, &vs)
	if err != nil {
		return defs, nil, err
	}
	for _, r := range parts {
		defs.Parts = append(defs.Parts, r.normalize(&vs))
	}

	transforms, err := decodeRecords[rawTransform](l, FileTransforms, true, &vs)
	if err != nil {
		return defs, nil, err
	}
	for _, r := range transforms {
		defs.Transforms = append(defs.Transforms, r.normalize(&vs))
	}

	families, err := decodeRecords[rawFamily](l, FileFamilies, false, &vs)
	if err != nil {
		return defs, nil, err
	}
	for _, r := range families {
		defs.Families = append(defs.Families, r.normalize(&vs))
	}

	rules, err := decodeRecords[rawApplicability](l, FileApplicability, false, &vs)
	if err != nil {
		return defs, nil, err
	}
	for _, r := range rules {
		defs.Applicability = append(defs.Applicability, r.normalize(&vs))
	}

	overrides, err := decodeRecords[rawTaxonOverride](l, FileTaxonOverrides, false, &vs)
	if err != nil {
		return defs, nil, err
	}
	for _, r := range overrides {
		defs.TaxonOverrides = append(defs.TaxonOverrides, r.normalize(&vs))
	}

	promotions, err := decodeRecords[rawPromotion](l, FilePromotions, false, &vs)
	if err != nil {
		return defs, nil, err
	}
	for _, r := range promotions {
		defs.Promotions = append(defs.Promotions, r.normalize(&vs))
	}

	ta, err := decodeRecords[rawTransformApplicability](l, FileTransformApplicability, false, &vs)
	if err != nil {
		return defs, nil, err
	}
	for _, r := range ta {
		defs.TransformApplicability = append(defs.TransformApplicability, r.normalize(&vs))
	}

	allowlists, err := decodeRecords[rawAllowlist](l, FileAllowlists, false, &vs)
	if err != nil {
		return defs, nil, err
	}
	for _, r := range allowlists {
		defs.Allowlists = append(defs.Allowlists, r.normalize(&vs))
	}

	defs.GlobalBuckets, err = l.loadBuckets(&vs)
	if err != nil {
		return defs, nil, err
	}

	flagRules, err := decodeRecords[rawFlagRule](l, FileFlagRules, false, &vs)
	if err != nil {
		return defs, nil, err
	}
	for _, r := range flagRules {
		defs.FlagRules = append(defs.FlagRules, r.normalize(&vs))
	}

	curated, err := decodeRecords[rawCurated](l, FileCurated, false, &vs)
	if err != nil {
		return defs, nil, err
	}
	for _, r := range curated {
		defs.Curated = append(defs.Curated, r.normalize(&vs))
	}

	nameOverrides, err := decodeRecords[rawNameOverride](l, FileNameOverrides, false, &vs)
	if err != nil {
		return defs, nil, err
	}
	for _, r := range nameOverrides {
		defs.NameOverrides = append(defs.NameOverrides, r.normalize(&vs))
	}

	l.logger.Info("definitions loaded",
		slog.Int("taxa", len(defs.Taxa)),
		slog.Int("parts", len(defs.Parts)),
		slog.Int("transform_defs", len(defs.Transforms)),
		slog.Int("families", len(defs.Families)),
		slog.Int("schema_violations", len(vs)))
	return defs, vs, nil
}

// record pairs a decoded YAML node with its source locator.
type record struct {
	node    *yaml.Node
	locator ontology.Locator
}

// readDocuments reads the file and returns one record per top-level list
// entry. Missing optional files yield no records and no violation.
func (l *Loader) readDocuments(name string, required bool, vs *[]ontology.Violation) ([]record, error) {
	path := filepath.Join(l.dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if required {
			*vs = append(*vs, ontology.Violation{
				Category: ontology.CategorySchema,
				Severity: ontology.SeverityBlock,
				Message:  fmt.Sprintf("required input file %s is missing", name),
				Locator:  ontology.Locator{File: name},
			})
		}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		*vs = append(*vs, ontology.Violation{
			Category: ontology.CategorySchema,
			Severity: ontology.SeverityBlock,
			Message:  fmt.Sprintf("malformed YAML: %v", err),
			Locator:  ontology.Locator{File: name},
		})
		return nil, nil
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	list := root.Content[0]
	if list.Kind != yaml.SequenceNode {
		*vs = append(*vs, ontology.Violation{
			Category: ontology.CategorySchema,
			Severity: ontology.SeverityBlock,
			Message:  "top-level document must be a list of records",
			Locator:  ontology.Locator{File: name},
		})
		return nil, nil
	}
	records := make([]record, 0, len(list.Content))
	for i, n := range list.Content {
		records = append(records, record{node: n, locator: ontology.Locator{File: name, Record: i}})
	}
	return records, nil
}

// rawRecord is implemented by every intermediate decode shape.
type rawRecord interface {
	setLocator(ontology.Locator)
}

// decodeRecords decodes every record of one file into the raw shape T,
// reporting per-record decode failures with a file+record locator.
func decodeRecords[T any, PT interface {
	*T
	rawRecord
}](l *Loader, name string, required bool, vs *[]ontology.Violation) ([]PT, error) {
	records, err := l.readDocuments(name, required, vs)
	if err != nil {
		return nil, err
	}
	out := make([]PT, 0, len(records))
	for _, rec := range records {
		v := PT(new(T))
		if err := rec.node.Decode(v); err != nil {
			*vs = append(*vs, ontology.Violation{
				Category: ontology.CategorySchema,
				Severity: ontology.SeverityBlock,
				Message:  fmt.Sprintf("record does not match schema: %v", err),
				Locator:  rec.locator,
			})
			continue
		}
		v.setLocator(rec.locator)
		out = append(out, v)
	}
	return out, nil
}

// loadBuckets reads the global parameter-bucket table, keyed by
// "transform.param".
func (l *Loader) loadBuckets(vs *[]ontology.Violation) (map[string][]ontology.Bucket, error) {
	path := filepath.Join(l.dir, FileBuckets)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string][]ontology.Bucket{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", FileBuckets, err)
	}
	table := map[string][]ontology.Bucket{}
	if err := yaml.Unmarshal(data, &table); err != nil {
		*vs = append(*vs, ontology.Violation{
			Category: ontology.CategorySchema,
			Severity: ontology.SeverityBlock,
			Message:  fmt.Sprintf("malformed bucket table: %v", err),
			Locator:  ontology.Locator{File: FileBuckets},
		})
		return map[string][]ontology.Bucket{}, nil
	}
	for key, buckets := range table {
		for _, v := range validateBuckets(key, buckets, ontology.Locator{File: FileBuckets, ID: key}) {
			*vs = append(*vs, v)
		}
	}
	return table, nil
}
