// Package compiler orchestrates the full pipeline from rule files to a
// published artifact. Stages run in a fixed order; each one collects every
// diagnostic it can before the run decides whether to continue.
package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"foodgraph/internal/ancestry"
	"foodgraph/internal/artifact"
	"foodgraph/internal/blob"
	"foodgraph/internal/flagrules"
	"foodgraph/internal/generate"
	"foodgraph/internal/identity"
	"foodgraph/internal/loader"
	"foodgraph/internal/naming"
	"foodgraph/internal/registry"
	"foodgraph/internal/substrate"
	"foodgraph/pkg/ontology"
)

// Compiler wires the stages together. A nil store disables publishing, which
// is what validate-only runs use.
type Compiler struct {
	cfg     Config
	store   blob.Store
	logger  *slog.Logger
	metrics *Metrics
}

// New constructs a compiler.
func New(cfg Config, store blob.Store, logger *slog.Logger, metrics *Metrics) *Compiler {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Compiler{cfg: cfg, store: store, logger: logger, metrics: metrics}
}

// Run executes one compile. The returned report is always populated, even
// when the run fails; the graph is nil unless every stage completed. A run
// with blocking violations returns *ontology.CompileError and publishes
// nothing.
func (c *Compiler) Run(ctx context.Context) (*ontology.Graph, *ontology.Report, error) {
	runID := uuid.NewString()
	report := ontology.NewReport(runID)
	logger := c.logger.With("run_id", runID)
	logger.Info("compile starting", "rules_dir", c.cfg.RulesDir, "workers", c.cfg.Workers)

	graph, err := c.run(ctx, report, logger)
	report.FinishedAt = time.Now().UTC()
	c.metrics.recordViolations(violationsByCategory(report))
	switch {
	case err != nil:
		c.metrics.recordOutcome("error")
		logger.Error("compile failed", "error", err)
		return nil, report, err
	case report.HasFatal():
		c.metrics.recordOutcome("blocked")
		logger.Error("compile blocked", "violations", len(report.Violations))
		return nil, report, &ontology.CompileError{Report: report}
	default:
		c.metrics.recordOutcome("ok")
		c.metrics.recordGraph(len(graph.Nodes))
		logger.Info("compile finished",
			"nodes", len(graph.Nodes),
			"edges", len(graph.Edges),
			"warnings", len(report.Violations))
		return graph, report, nil
	}
}

func (c *Compiler) run(ctx context.Context, report *ontology.Report, logger *slog.Logger) (*ontology.Graph, error) {
	start := time.Now()
	defs, vs, err := loader.New(c.cfg.RulesDir, logger).Load()
	c.metrics.observeStage("load", start)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	report.AddAll(vs)

	start = time.Now()
	reg, vs := registry.Build(defs)
	c.metrics.observeStage("registry", start)
	report.AddAll(vs)
	report.AddAll(flagrules.ValidateRules(reg, defs.FlagRules))
	if report.HasFatal() {
		return nil, nil
	}

	start = time.Now()
	sub, vs := substrate.NewBuilder(reg, c.cfg.Workers).Build(defs)
	c.metrics.observeStage("substrate", start)
	report.AddAll(vs)
	if report.HasFatal() {
		return nil, nil
	}

	start = time.Now()
	res, vs := generate.New(reg, sub, defs.TransformApplicability).Generate(defs.Curated, defs.Allowlists)
	c.metrics.observeStage("generate", start)
	report.AddAll(vs)
	report.Count("drafts_total", res.Total)
	report.Count("drafts_rejected", res.Rejected)
	if res.Total > 0 {
		ratio := float64(res.Rejected) / float64(res.Total)
		if ratio > c.cfg.ApplicabilityThreshold {
			report.Add(ontology.Violation{
				Category: ontology.CategoryApplicability,
				Severity: ontology.SeverityBlock,
				Message: fmt.Sprintf("%.1f%% of drafts failed applicability, above the %.1f%% abort threshold",
					ratio*100, c.cfg.ApplicabilityThreshold*100),
			})
		}
	}
	if report.HasFatal() {
		return nil, nil
	}

	start = time.Now()
	nodes, collisions, vs := identity.New(reg, c.cfg.Workers).Canonicalize(res.Drafts)
	c.metrics.observeStage("identity", start)
	report.AddAll(vs)
	report.Collisions = collisions
	if report.HasFatal() {
		return nil, nil
	}

	start = time.Now()
	report.AddAll(naming.New(reg, defs.NameOverrides, defs.FlagRules).Resolve(nodes))
	c.metrics.observeStage("naming", start)

	start = time.Now()
	c.evaluateFlags(reg, sub, defs.FlagRules, nodes)
	c.metrics.observeStage("flags", start)

	start = time.Now()
	taxonClosure, vs := ancestry.TaxonClosure(reg.Taxa())
	report.AddAll(vs)
	partClosure, vs := ancestry.PartClosure(reg.Parts())
	report.AddAll(vs)
	report.AddAll(ancestry.Sweep(reg, sub, nodes))
	c.metrics.observeStage("ancestry", start)
	if report.HasFatal() {
		return nil, nil
	}

	graph := &ontology.Graph{
		Nodes:        nodes,
		Edges:        sub.Edges(),
		TaxonClosure: taxonClosure,
		PartClosure:  partClosure,
	}
	report.Count("nodes", len(graph.Nodes))
	report.Count("edges", len(graph.Edges))
	report.Count("collisions", len(collisions))

	if c.store != nil {
		start = time.Now()
		if _, err := artifact.NewPublisher(c.store, logger).Publish(ctx, graph, report); err != nil {
			return nil, fmt.Errorf("publish artifact: %w", err)
		}
		if c.cfg.PostgresDSN != "" {
			if err := artifact.PublishPostgres(ctx, c.cfg.PostgresDSN, graph, report); err != nil {
				return nil, fmt.Errorf("publish postgres mirror: %w", err)
			}
		}
		c.metrics.observeStage("publish", start)
	}
	return graph, nil
}

// evaluateFlags fans node flag evaluation out across workers. Results land
// in the indexed node slice so output order never depends on scheduling.
func (c *Compiler) evaluateFlags(reg *registry.Registry, sub *substrate.Substrate, rules []ontology.FlagRule, nodes []ontology.TPTNode) {
	if len(rules) == 0 || len(nodes) == 0 {
		return
	}
	eval := flagrules.New(reg, sub, rules)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < c.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				nodes[i].Flags = eval.Evaluate(nodes[i])
			}
		}()
	}
	for i := range nodes {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

func violationsByCategory(report *ontology.Report) map[string]int {
	out := make(map[string]int)
	for _, v := range report.Violations {
		out[string(v.Category)]++
	}
	return out
}
