package metric

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/t77yq/careops-alerts/internal/model"
)

// HostMetrics returns metrics describing the machine the engine runs on
func HostMetrics() []Metric {
	return []Metric{
		{
			MetricDescriptor: model.MetricDescriptor{
				ID:          "host_cpu_usage",
				Name:        "Host CPU Usage",
				Description: "CPU utilisation of the dashboard host",
				Category:    model.MetricCategorySystem,
				DataType:    model.MetricDataTypePercentage,
				Unit:        "%",
			},
			Fetch: hostCPUUsage,
		},
		{
			MetricDescriptor: model.MetricDescriptor{
				ID:          "host_memory_usage",
				Name:        "Host Memory Usage",
				Description: "Memory utilisation of the dashboard host",
				Category:    model.MetricCategorySystem,
				DataType:    model.MetricDataTypePercentage,
				Unit:        "%",
			},
			Fetch: hostMemoryUsage,
		},
	}
}

func hostCPUUsage(ctx context.Context) (any, error) {
	percent, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("failed to get CPU usage: %w", err)
	}
	if len(percent) == 0 {
		return nil, fmt.Errorf("no CPU usage reported")
	}
	return percent[0], nil
}

func hostMemoryUsage(ctx context.Context) (any, error) {
	info, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory usage: %w", err)
	}
	return info.UsedPercent, nil
}
