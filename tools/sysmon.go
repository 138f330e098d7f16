package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// SystemMetrics is a point-in-time snapshot of host health.
type SystemMetrics struct {
	CPU struct {
		Percent float64 `json:"percent"`
		Count   int     `json:"count"`
	} `json:"cpu"`

	Memory struct {
		Total     uint64  `json:"total"`
		Available uint64  `json:"available"`
		Used      uint64  `json:"used"`
		Percent   float64 `json:"percent"`
	} `json:"memory"`

	Disk struct {
		Total   uint64  `json:"total"`
		Used    uint64  `json:"used"`
		Free    uint64  `json:"free"`
		Percent float64 `json:"percent"`
	} `json:"disk"`

	Network struct {
		BytesSent   uint64 `json:"bytes_sent"`
		BytesRecv   uint64 `json:"bytes_recv"`
		PacketsSent uint64 `json:"packets_sent"`
		PacketsRecv uint64 `json:"packets_recv"`
	} `json:"network"`

	System struct {
		Hostname      string `json:"hostname"`
		Platform      string `json:"platform"`
		UptimeSeconds uint64 `json:"uptime_seconds"`
	} `json:"system"`

	Timestamp string `json:"timestamp"`
}

// SystemMonitor samples host metrics.
type SystemMonitor struct {
	log *slog.Logger
}

func NewSystemMonitor(log *slog.Logger) *SystemMonitor {
	return &SystemMonitor{log: log.With("tool", "system_monitor")}
}

// Metrics samples CPU, memory, root filesystem, network counters and
// host identity. Subsystems that fail to sample leave their section
// zeroed rather than failing the whole snapshot, except CPU and memory
// which are required.
func (m *SystemMonitor) Metrics(ctx context.Context) (*SystemMetrics, error) {
	out := &SystemMetrics{Timestamp: time.Now().UTC().Format(time.RFC3339)}

	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return nil, fmt.Errorf("could not sample CPU: %w", err)
	}
	if len(cpuPercents) > 0 {
		out.CPU.Percent = cpuPercents[0]
	}
	if count, err := cpu.CountsWithContext(ctx, true); err == nil {
		out.CPU.Count = count
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not sample memory: %w", err)
	}
	out.Memory.Total = vm.Total
	out.Memory.Available = vm.Available
	out.Memory.Used = vm.Used
	out.Memory.Percent = vm.UsedPercent

	if usage, err := disk.UsageWithContext(ctx, "/"); err == nil {
		out.Disk.Total = usage.Total
		out.Disk.Used = usage.Used
		out.Disk.Free = usage.Free
		out.Disk.Percent = usage.UsedPercent
	} else {
		m.log.Warn("disk usage unavailable", slog.Any("err", err))
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		out.Network.BytesSent = counters[0].BytesSent
		out.Network.BytesRecv = counters[0].BytesRecv
		out.Network.PacketsSent = counters[0].PacketsSent
		out.Network.PacketsRecv = counters[0].PacketsRecv
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		out.System.Hostname = info.Hostname
		out.System.Platform = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		out.System.UptimeSeconds = info.Uptime
	}

	return out, nil
}
