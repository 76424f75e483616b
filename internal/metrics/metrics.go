// Package metrics owns the private Prometheus registry served on /metrics:
// runtime collectors, build and upstream info, and the application
// collectors handed in by the caller.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cities_api"

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

type Config struct {
	Build BuildInfo
	// application collectors registered next to the runtime ones
	Collectors []prometheus.Collector
}

type Provider struct {
	reg      *prometheus.Registry
	upstream *prometheus.GaugeVec
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build info for this binary (value is always 1).",
		},
		[]string{"version", "revision", "branch", "build_date"},
	)
	upstream := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_info",
			Help:      "Configured upstreams (value is always 1).",
		},
		[]string{"upstream", "target"},
	)
	reg.MustRegister(build, upstream)

	v := cfg.Build
	if v.Version == "" {
		v.Version = "dev"
	}
	build.WithLabelValues(v.Version, v.Revision, v.Branch, v.BuildDate).Set(1)

	p := &Provider{reg: reg, upstream: upstream}
	p.Register(cfg.Collectors...)
	return p
}

func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{Registry: p.reg})
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	for _, c := range cs {
		p.reg.MustRegister(c)
	}
}

// SetUpstream records which host an upstream points at. target must not
// carry credentials.
func (p *Provider) SetUpstream(name, target string) {
	p.upstream.WithLabelValues(name, target).Set(1)
}
