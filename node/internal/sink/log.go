package sink

import (
	"context"
	"log/slog"

	"github.com/mrhavens/becomingone/pkg/types"
)

// Log writes states to a slog.Logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Log sink. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Write implements engine.Output.
func (l *Log) Write(ctx context.Context, st types.TemporalState) error {
	l.logger.DebugContext(ctx, "sink: state",
		"timestamp", st.Timestamp,
		"coherence", st.Coherence,
		"phase_re", st.Phase.Re,
		"phase_im", st.Phase.Im,
		"phase_diff", st.PhaseDiff,
		"aligned", st.Aligned,
		"collapsed", st.Collapsed,
		"desynced", st.Desynced,
	)
	return nil
}
