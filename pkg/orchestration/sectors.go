package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/iln-nexus/iln/pkg/annotation"
	"github.com/iln-nexus/iln/pkg/core"
)

// Built-in sectors
const (
	SectorConcurrency = "concurrency"
	SectorSafety      = "safety"
	SectorReactivity  = "reactivity"
	SectorGeneral     = "general"
)

var builtinSectors = []string{SectorConcurrency, SectorSafety, SectorReactivity, SectorGeneral}

var sectorOfTag = map[string]string{
	annotation.TagChan:       SectorConcurrency,
	annotation.TagConcurrent: SectorConcurrency,
	annotation.TagAsync:      SectorConcurrency,
	annotation.TagOwn:        SectorSafety,
	annotation.TagSafe:       SectorSafety,
	annotation.TagEvent:      SectorReactivity,
	annotation.TagReactive:   SectorReactivity,
}

// SectorOf returns the sector a tag belongs to
func SectorOf(tag string) string {
	if s, ok := sectorOfTag[tag]; ok {
		return s
	}
	return SectorGeneral
}

// Bucket is one sector and the tags assigned to it
type Bucket struct {
	Sector string
	Tags   []string
}

// Partition groups the tags of set into sector buckets. Built-in sectors
// appear only when they hold a tag, in fixed order; declared sectors
// follow, possibly empty. With nothing to partition a single empty
// general bucket is returned.
func Partition(set *annotation.Set, declared []string) []Bucket {
	byName := make(map[string]*Bucket)
	var order []string
	add := func(sector string) *Bucket {
		if b, ok := byName[sector]; ok {
			return b
		}
		b := &Bucket{Sector: sector, Tags: []string{}}
		byName[sector] = b
		order = append(order, sector)
		return b
	}

	tagged := make(map[string][]string)
	for _, tag := range set.Tags() {
		s := SectorOf(tag)
		tagged[s] = append(tagged[s], tag)
	}
	for _, s := range builtinSectors {
		if tags, ok := tagged[s]; ok {
			add(s).Tags = tags
		}
	}
	for _, s := range declared {
		add(s)
	}
	if len(order) == 0 {
		add(SectorGeneral)
	}

	out := make([]Bucket, 0, len(order))
	for _, s := range order {
		out = append(out, *byName[s])
	}
	return out
}

// declaredSectors reads options["sectors"] as a list or a comma separated string
func declaredSectors(req core.Request) []string {
	v, ok := req.Option("sectors")
	if !ok || v == nil {
		return nil
	}
	var raw []string
	switch s := v.(type) {
	case []string:
		raw = s
	case []interface{}:
		for _, item := range s {
			raw = append(raw, fmt.Sprint(item))
		}
	case string:
		raw = strings.Split(s, ",")
	default:
		raw = []string{fmt.Sprint(s)}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SectorResult is the independent outcome of one sector
type SectorResult struct {
	Sector      string                 `json:"sector" yaml:"sector"`
	Backend     string                 `json:"backend" yaml:"backend"`
	Score       float64                `json:"score" yaml:"score"`
	Annotations []string               `json:"annotations" yaml:"annotations"`
	Success     bool                   `json:"success" yaml:"success"`
	Result      map[string]interface{} `json:"result,omitempty" yaml:"result,omitempty"`
	Error       string                 `json:"error,omitempty" yaml:"error,omitempty"`
}

func (d *Dispatcher) executeLevel4(ctx context.Context, req core.Request, start time.Time) *core.ExecutionResult {
	ctx, span := d.levelSpan(ctx, core.LevelMultiSector)
	defer span.End()

	set := d.extractor.Extract(req.Text)
	tags := set.Tags()
	ectx := req.Context
	priority := levelPriority(req)
	buckets := Partition(set, declaredSectors(req))

	opts := mergeOptions(ectx.Options, req.Options)
	opts["priority"] = string(priority)
	delete(opts, "sectors")

	results := make([]SectorResult, len(buckets))
	var g errgroup.Group
	for i, b := range buckets {
		i, b := i, b
		g.Go(func() error {
			sub := set.Subset(b.Tags...)
			r := SectorResult{Sector: b.Sector, Annotations: b.Tags}
			defer func() { results[i] = r }()

			c, err := d.choose(AutoBackend, sub, priority, ectx)
			if err != nil {
				r.Error = err.Error()
				return err
			}
			r.Backend, r.Score = c.id, c.score

			sectorOpts := mergeOptions(opts)
			sectorOpts["sector"] = b.Sector
			payload, err := invoke(c.id, core.LevelCoordinated, func() (map[string]interface{}, error) {
				return c.backend.ExecuteLevel2(ctx, sub, ectx, sectorOpts)
			})
			if err != nil {
				r.Error = err.Error()
				return fmt.Errorf("sector %s: %w", b.Sector, err)
			}
			r.Success, r.Result = true, payload
			return nil
		})
	}
	err := g.Wait()

	sectors := make(map[string]interface{}, len(results))
	var backends []string
	seen := make(map[string]bool)
	for _, r := range results {
		sectors[r.Sector] = r
		if r.Backend != "" && !seen[r.Backend] {
			seen[r.Backend] = true
			backends = append(backends, r.Backend)
		}
	}
	backend := strings.Join(backends, "+")

	if err != nil {
		res := failed(req.Level, err, start, tags, backend)
		res.Result = map[string]interface{}{"sectors": sectors}
		return res
	}

	order := make([]string, 0, len(buckets))
	for _, b := range buckets {
		order = append(order, b.Sector)
	}
	return &core.ExecutionResult{
		Success:         true,
		Level:           core.LevelMultiSector,
		Result:          map[string]interface{}{"sectors": sectors},
		ExecutionTime:   time.Since(start),
		AnnotationsUsed: tags,
		Backend:         backend,
		Metadata: map[string]interface{}{
			"sector_count": len(buckets),
			"sector_order": order,
			"optimization": string(priority),
		},
	}
}
