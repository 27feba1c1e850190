package pipeline

type LayoutHealth struct {
	Configured bool `json:"configured"`
	Healthy    bool `json:"healthy"`
}

type TrainedModelHealth struct {
	Enabled bool   `json:"enabled"`
	ModelID string `json:"modelId,omitempty"`
}

type GenerativeHealth struct {
	Configured bool `json:"configured"`
}

// HealthReport is what operators poll before batch runs.
type HealthReport struct {
	LayoutProvider       LayoutHealth       `json:"layoutProvider"`
	TrainedModelProvider TrainedModelHealth `json:"trainedModelProvider"`
	GenerativeProvider   GenerativeHealth   `json:"generativeProvider"`
}

// Healthy reports whether at least one extraction layer can run.
func (h HealthReport) Healthy() bool {
	return (h.LayoutProvider.Configured && h.LayoutProvider.Healthy) ||
		h.TrainedModelProvider.Enabled ||
		h.GenerativeProvider.Configured
}

// modelInfo is implemented by trained-model providers.
type modelInfo interface {
	Enabled() bool
	ModelID() string
}

// Health summarizes the last health snapshot.
func (o *Orchestrator) Health() HealthReport {
	var rep HealthReport
	if p := o.providers.Layout; p != nil {
		h := o.health.Health(p.Name())
		rep.LayoutProvider = LayoutHealth{Configured: h.Configured, Healthy: h.Healthy}
	}
	if p := o.providers.TrainedModel; p != nil {
		if mi, ok := p.(modelInfo); ok {
			rep.TrainedModelProvider = TrainedModelHealth{Enabled: mi.Enabled(), ModelID: mi.ModelID()}
		} else {
			rep.TrainedModelProvider.Enabled = o.health.Health(p.Name()).Configured
		}
	}
	if p := o.providers.Generative; p != nil {
		rep.GenerativeProvider.Configured = o.health.Health(p.Name()).Configured
	}
	return rep
}
