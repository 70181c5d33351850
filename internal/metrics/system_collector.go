package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"go-guardian/internal/logging"
)

// SystemCollector reports host statistics at scrape time.
type SystemCollector struct {
	diskPath string

	cpuPercent  *prometheus.Desc
	memUsed     *prometheus.Desc
	memPercent  *prometheus.Desc
	uptime      *prometheus.Desc
	diskPercent *prometheus.Desc
	netBytes    *prometheus.Desc
}

// NewSystemCollector reports disk usage for the filesystem holding diskPath.
func NewSystemCollector(diskPath string) *SystemCollector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &SystemCollector{
		diskPath:    diskPath,
		cpuPercent:  prometheus.NewDesc(namespace+"_host_cpu_percent", "Host CPU utilisation", nil, nil),
		memUsed:     prometheus.NewDesc(namespace+"_host_memory_used_bytes", "Host memory in use", nil, nil),
		memPercent:  prometheus.NewDesc(namespace+"_host_memory_percent", "Host memory utilisation", nil, nil),
		uptime:      prometheus.NewDesc(namespace+"_host_uptime_seconds", "Host uptime", nil, nil),
		diskPercent: prometheus.NewDesc(namespace+"_host_disk_percent", "Disk utilisation of the storage volume", []string{"path"}, nil),
		netBytes:    prometheus.NewDesc(namespace+"_host_network_bytes_total", "Host network traffic", []string{"direction"}, nil),
	}
}

func (c *SystemCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpuPercent
	ch <- c.memUsed
	ch <- c.memPercent
	ch <- c.uptime
	ch <- c.diskPercent
	ch <- c.netBytes
}

func (c *SystemCollector) Collect(ch chan<- prometheus.Metric) {
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		ch <- prometheus.MustNewConstMetric(c.cpuPercent, prometheus.GaugeValue, pct[0])
	} else if err != nil {
		logging.Debug("[METRICS] cpu: %v", err)
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.memUsed, prometheus.GaugeValue, float64(vm.Used))
		ch <- prometheus.MustNewConstMetric(c.memPercent, prometheus.GaugeValue, vm.UsedPercent)
	} else {
		logging.Debug("[METRICS] memory: %v", err)
	}

	if up, err := host.Uptime(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, float64(up))
	}

	if du, err := disk.Usage(c.diskPath); err == nil {
		ch <- prometheus.MustNewConstMetric(c.diskPercent, prometheus.GaugeValue, du.UsedPercent, c.diskPath)
	}

	if io, err := net.IOCounters(false); err == nil && len(io) > 0 {
		ch <- prometheus.MustNewConstMetric(c.netBytes, prometheus.CounterValue, float64(io[0].BytesSent), "sent")
		ch <- prometheus.MustNewConstMetric(c.netBytes, prometheus.CounterValue, float64(io[0].BytesRecv), "recv")
	}
}
