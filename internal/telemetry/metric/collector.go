package metric

import "github.com/prometheus/client_golang/prometheus"

// Collector reports gauges whose values live in other components.
// Each gauge is read through its callback at scrape time.
type Collector struct {
	tenants   func() int
	resources func() int

	tenantsDesc   *prometheus.Desc
	resourcesDesc *prometheus.Desc
}

// NewCollector creates a collector. tenants returns the number of configured
// tenants; resources returns the number of live tenant-scoped resources.
// Either callback may be nil.
func NewCollector(tenants, resources func() int) *Collector {
	return &Collector{
		tenants:   tenants,
		resources: resources,
		tenantsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "tenants_configured"),
			"Tenants present in the tenant registry.", nil, nil),
		resourcesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "tenant_resources"),
			"Tenant-scoped resources built by the resource distributor.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tenantsDesc
	ch <- c.resourcesDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.tenants != nil {
		ch <- prometheus.MustNewConstMetric(c.tenantsDesc, prometheus.GaugeValue, float64(c.tenants()))
	}
	if c.resources != nil {
		ch <- prometheus.MustNewConstMetric(c.resourcesDesc, prometheus.GaugeValue, float64(c.resources()))
	}
}
