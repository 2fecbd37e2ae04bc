// Package identity reduces draft derived-food records to their
// identity-relevant canonical path, buckets continuous parameters, and
// computes the stable content hash that keys deduplication.
package identity

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"foodgraph/internal/generate"
	"foodgraph/internal/registry"
	"foodgraph/pkg/ontology"
)

// Canonicalizer performs per-draft identity reduction over the read-only
// registry tables.
type Canonicalizer struct {
	reg     *registry.Registry
	workers int
}

// New constructs a canonicalizer. workers <= 0 selects GOMAXPROCS.
func New(reg *registry.Registry, workers int) *Canonicalizer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Canonicalizer{reg: reg, workers: workers}
}

// canonResult is the per-draft fan-out output, merged back by input index
// so parallel execution never changes the final node set.
type canonResult struct {
	node       ontology.TPTNode
	ok         bool
	violations []ontology.Violation
}

// Canonicalize reduces every draft and collapses duplicates. Two drafts
// hashing identically for the same (taxon, part) are one node: the one with
// higher declared priority (curated beats generated) is kept, the collision
// is logged, and nothing is silently overwritten.
func (c *Canonicalizer) Canonicalize(drafts []generate.Draft) ([]ontology.TPTNode, []ontology.Collision, []ontology.Violation) {
	results := make([]canonResult, len(drafts))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = c.canonicalize(drafts[i])
			}
		}()
	}
	for i := range drafts {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var (
		nodes      []ontology.TPTNode
		collisions []ontology.Collision
		vs         []ontology.Violation
		byHash     = map[string]int{}
	)
	for _, res := range results {
		vs = append(vs, res.violations...)
		if !res.ok {
			continue
		}
		node := res.node
		// The hash covers taxon, part, and the reduced path, so it is the
		// dedup key. The node id also embeds the family and would keep two
		// copies of the same derived food authored under different families.
		prev, dup := byHash[node.Hash]
		if !dup {
			byHash[node.Hash] = len(nodes)
			nodes = append(nodes, node)
			continue
		}
		kept := nodes[prev]
		if kept.Provenance == ontology.ProvenanceGenerated && node.Provenance == ontology.ProvenanceCurated {
			nodes[prev] = node
			kept, node = node, kept
		}
		collisions = append(collisions, ontology.Collision{
			ID:      kept.ID,
			Kept:    kept.Provenance,
			Dropped: node.Provenance,
			Detail:  fmt.Sprintf("drafts for (%s, %s) canonicalize to the same identity path", kept.Taxon, kept.Part),
		})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	sort.Slice(collisions, func(i, j int) bool { return collisions[i].ID < collisions[j].ID })
	return nodes, collisions, vs
}

// canonicalize applies the identity reduction to one draft: keep identity
// steps, keep identity params, bucket continuous values, sort by transform
// order, then hash the canonical serialization.
func (c *Canonicalizer) canonicalize(draft generate.Draft) canonResult {
	var res canonResult
	family, _ := c.reg.Family(draft.Family)

	var steps []ontology.IdentityStep
	for _, step := range draft.Path {
		transform, ok := c.reg.Transform(step.Transform)
		if !ok {
			// Unknown transforms were already reported by the generator.
			return res
		}
		if !transform.Identity && !family.PromotesIdentity(transform.ID) {
			continue
		}
		params := map[string]string{}
		extra := family.IdentityParamNames(transform.ID)
		for name, value := range step.Params {
			decl, declared := transform.Param(name)
			identityParam := declared && decl.IdentityParam
			if !identityParam {
				for _, n := range extra {
					if n == name {
						identityParam = true
						break
					}
				}
			}
			if !identityParam {
				continue
			}
			label, v := c.bucketLabel(&family, transform, decl, name, value, draft)
			if v != nil {
				res.violations = append(res.violations, *v)
			}
			params[name] = label
		}
		if len(params) == 0 {
			params = nil
		}
		steps = append(steps, ontology.IdentityStep{Transform: transform.ID, Params: params})
	}

	// Canonical sort key is the transform's merged order, id as tiebreak.
	sort.SliceStable(steps, func(i, j int) bool {
		a, _ := c.reg.Transform(steps[i].Transform)
		b, _ := c.reg.Transform(steps[j].Transform)
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.ID < b.ID
	})

	hash := Hash(draft.Taxon, draft.Part, steps)
	res.node = ontology.TPTNode{
		ID:           NodeID(draft.Taxon, draft.Part, draft.Family, hash),
		Taxon:        draft.Taxon,
		Part:         draft.Part,
		Family:       draft.Family,
		Path:         draft.Path,
		IdentityPath: steps,
		Hash:         hash,
		Name:         draft.Name,
		Synonyms:     draft.Synonyms,
		Provenance:   draft.Provenance,
	}
	res.ok = true
	return res
}

// bucketLabel maps an identity parameter value to its discrete label. The
// effective bucket table (family over global) applies to numeric values;
// everything else is canonically formatted.
func (c *Canonicalizer) bucketLabel(family *ontology.Family, transform ontology.Transform, decl ontology.TransformParam, name string, value any, draft generate.Draft) (string, *ontology.Violation) {
	num, isNum := value.(float64)
	if !isNum || decl.Kind != ontology.ParamNumber {
		return FormatValue(value), nil
	}
	buckets := c.reg.Buckets(family, transform.ID+"."+name)
	if len(buckets) == 0 {
		return FormatValue(value), nil
	}
	for _, b := range buckets {
		if b.Min != nil && num < *b.Min {
			continue
		}
		if b.Max != nil && num >= *b.Max {
			continue
		}
		return b.Label, nil
	}
	return FormatValue(value), &ontology.Violation{
		Category: ontology.CategorySchema,
		Severity: ontology.SeverityWarn,
		Message:  fmt.Sprintf("value %v of %s.%s on draft (%s, %s) falls outside every bucket", value, transform.ID, name, draft.Taxon, draft.Part),
		Locator:  draft.Locator,
	}
}

// FormatValue renders a parameter value in its single canonical string form
// so serialization and hashing are representation-stable.
func FormatValue(v any) string {
	switch n := v.(type) {
	case nil:
		return ""
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", n)
	}
}
