package ontology

// Step is one authored transform application in a derivation path.
type Step struct {
	Transform string         `json:"transform" yaml:"transform"`
	Params    map[string]any `json:"params,omitempty" yaml:"params"`
}

// IdentityStep is a step reduced to its identity-relevant content: only
// identity parameters survive, with continuous values replaced by bucket
// labels. Params are canonical strings so serialization is stable.
type IdentityStep struct {
	Transform string            `json:"transform"`
	Params    map[string]string `json:"params,omitempty"`
}

// Provenance records how a TPT node entered the graph.
type Provenance string

// Node provenance values. Curated nodes win duplicate collisions.
const (
	ProvenanceCurated   Provenance = "curated"
	ProvenanceGenerated Provenance = "generated"
)

// TPTNode is a derived-food node: one deterministic (taxon, part,
// transform-path) identity. Unique per (taxon, part, identity path).
type TPTNode struct {
	ID           string         `json:"id"`
	Taxon        string         `json:"taxon"`
	Part         string         `json:"part"`
	Family       string         `json:"family,omitempty"`
	Path         []Step         `json:"path"`
	IdentityPath []IdentityStep `json:"identity_path"`
	Hash         string         `json:"hash"`
	Name         string         `json:"name"`
	Synonyms     []string       `json:"synonyms,omitempty"`
	Flags        []string       `json:"flags,omitempty"`
	Provenance   Provenance     `json:"provenance"`
}

// SubstrateEdge records that a taxon carries a part. Promotion edges
// additionally carry the proto-path that produced the derived part and any
// byproduct parts.
type SubstrateEdge struct {
	Taxon      string   `json:"taxon"`
	Part       string   `json:"part"`
	Source     string   `json:"source"`
	FromPart   string   `json:"from_part,omitempty"`
	ProtoPath  []string `json:"proto_path,omitempty"`
	Byproducts []string `json:"byproducts,omitempty"`
}

// ClosureRow is one computed transitive ancestry fact. Depth 0 rows relate
// an id to itself.
type ClosureRow struct {
	Descendant string `json:"descendant"`
	Ancestor   string `json:"ancestor"`
	Depth      int    `json:"depth"`
}

// Graph is the full compiler output contract consumed by the query-serving
// layer. Re-running on unchanged inputs reproduces it byte-identically.
type Graph struct {
	Nodes        []TPTNode       `json:"nodes"`
	Edges        []SubstrateEdge `json:"edges"`
	TaxonClosure []ClosureRow    `json:"taxon_closure"`
	PartClosure  []ClosureRow    `json:"part_closure"`
}
