package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"pairchat/contract"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*TelemetryWorker)(nil)

// TelemetryWorker samples the engine's own process on a fixed interval
// and reports CPU and memory pressure through the logger.
type TelemetryWorker struct {
	log            *slog.Logger
	metricInterval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, metricInterval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{log: log, metricInterval: metricInterval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			cpu, err := proc.CPUPercent()
			if err != nil {
				w.log.Error("Error while finding process cpu usage", "err", err)
				continue
			}
			ram, err := proc.MemoryPercent()
			if err != nil {
				w.log.Error("Error while finding process ram usage", "err", err)
				continue
			}
			w.log.Debug("Engine telemetry", "cpu_percent", cpu, "ram_percent", ram)
		}
	}
}
