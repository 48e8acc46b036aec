package experiment

import (
	"fmt"
	"slices"

	"github.com/san-kum/ecosim/internal/dynamo"
	"github.com/san-kum/ecosim/internal/integrators"
	"github.com/san-kum/ecosim/internal/metrics"
	"github.com/san-kum/ecosim/internal/models"
)

type entry struct {
	description string
	build       func() models.Demo
	metrics     func(d models.Demo, cfg dynamo.Config) []metrics.Metric
}

// Registry maps demo names to their builders and default metrics.
type Registry struct {
	models map[string]entry
}

func NewRegistry() *Registry {
	r := &Registry{models: make(map[string]entry)}

	r.Register("lake", "single lake water balance with bulk evaporation",
		func() models.Demo { return models.NewLake() },
		func(d models.Demo, cfg dynamo.Config) []metrics.Metric {
			l := d.(*models.Lake)
			return []metrics.Metric{
				metrics.NewMean("mean_outflow", l.Outflow),
				metrics.NewPeak("peak_level", l.WaterLevel),
				metrics.NewCumulative("evaporation_mm", l.Evaporation, cfg.Dt, 1),
				metrics.NewBounds("level_above_sill", l.WaterLevel, 10, 1642),
			}
		})
	r.Register("magic", "MAGIC style soil carbon and nitrogen, monthly",
		func() models.Demo { return models.NewCarbonNitrogen("Soil", "Peat") },
		func(d models.Demo, cfg dynamo.Config) []metrics.Metric {
			c := d.(*models.CarbonNitrogen)
			return []metrics.Metric{
				metrics.NewMean("mean_cn", c.CNRatio),
				metrics.NewCumulative("no3_loss", c.NO3ProcessesLoss, 1, 1),
				metrics.NewCumulative("nh4_loss", c.NH4ProcessesLoss, 1, 1),
				metrics.NewDrift("organic_n_drift", c.OrganicN),
			}
		})
	r.Register("reservoir", "cascade of regulated reservoirs with spill",
		func() models.Demo { return models.NewReservoirs() },
		func(d models.Demo, cfg dynamo.Config) []metrics.Metric {
			res := d.(*models.Reservoirs)
			return []metrics.Metric{
				metrics.NewPeak("peak_storage", res.TotalStorage),
				metrics.NewCumulative("spill_m3", res.Spill, cfg.Dt, 86400),
				metrics.NewBounds("below_capacity", res.FillFraction, 0, 1),
				metrics.NewDrift("storage_drift", res.TotalStorage),
			}
		})

	return r
}

// Register adds or replaces a demo.
func (r *Registry) Register(name, description string, build func() models.Demo, ms func(models.Demo, dynamo.Config) []metrics.Metric) {
	r.models[name] = entry{description: description, build: build, metrics: ms}
}

func (r *Registry) GetModel(name string) (models.Demo, error) {
	e, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return e.build(), nil
}

func (r *Registry) Description(name string) string { return r.models[name].description }

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ListSolvers returns the integration methods solvers may name.
func (r *Registry) ListSolvers() []string { return integrators.Names() }

// DefaultMetrics returns fresh metrics for a demo built by this
// registry under name.
func (r *Registry) DefaultMetrics(name string, d models.Demo, cfg dynamo.Config) []metrics.Metric {
	e, ok := r.models[name]
	if !ok || e.metrics == nil {
		return nil
	}
	return e.metrics(d, cfg)
}
